package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/adapter"
	"github.com/m-mizutani/moltender/pkg/policy"
	"github.com/m-mizutani/moltender/pkg/repository"
	"github.com/m-mizutani/moltender/pkg/usecase/session"
	"github.com/m-mizutani/moltender/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const defaultBaseURL = "https://moltender-production.up.railway.app"

// session cache backends
const (
	backendFile      = "file"
	backendFirestore = "firestore"
	backendMemory    = "memory"
)

// config holds configuration values
type config struct {
	// Backend
	baseURL  string
	logLevel string

	// Session cache
	sessionBackend    string
	sessionFile       string
	firestoreProject  string
	firestoreDatabase string
	sessionProfile    string
	credentialsFile   string

	// Autopilot responder
	geminiProject  string
	geminiLocation string
	geminiModel    string

	// Transcript archive
	archiveBucket string
}

// globalFlags returns the backend and logging flags shared by every command
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "base-url",
			Aliases:     []string{"u"},
			Usage:       "Moltender backend URL",
			Value:       defaultBaseURL,
			Sources:     cli.EnvVars("MOLTENDER_BASE_URL"),
			Destination: &cfg.baseURL,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("MOLTENDER_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// sessionFlags returns flags selecting where the session is cached
func sessionFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "session-backend",
			Usage:       "Session cache backend (file, firestore, memory)",
			Value:       backendFile,
			Sources:     cli.EnvVars("MOLTENDER_SESSION_BACKEND"),
			Destination: &cfg.sessionBackend,
		},
		&cli.StringFlag{
			Name:        "session-file",
			Usage:       "Session cache file (default: user config directory)",
			Sources:     cli.EnvVars("MOLTENDER_SESSION_FILE"),
			Destination: &cfg.sessionFile,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID of the Firestore session cache",
			Sources:     cli.EnvVars("MOLTENDER_FIRESTORE_PROJECT", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("MOLTENDER_FIRESTORE_DATABASE"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "session-profile",
			Usage:       "Name of the cached session, to keep several agents apart",
			Value:       "default",
			Sources:     cli.EnvVars("MOLTENDER_SESSION_PROFILE"),
			Destination: &cfg.sessionProfile,
		},
		credentialsFlag(cfg),
	}
}

func credentialsFlag(cfg *config) cli.Flag {
	return &cli.StringFlag{
		Name:        "credentials-file",
		Usage:       "Google Cloud service account key file",
		Sources:     cli.EnvVars("MOLTENDER_CREDENTIALS_FILE"),
		Destination: &cfg.credentialsFile,
	}
}

// llmFlags returns flags for the Gemini responder
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini (canned replies when empty)",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model used for replies",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// archiveFlags returns flags for the chat transcript archive
func archiveFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "archive-bucket",
			Usage:       "Cloud Storage bucket to archive chat transcripts into",
			Sources:     cli.EnvVars("MOLTENDER_ARCHIVE_BUCKET"),
			Destination: &cfg.archiveBucket,
		},
	}
}

// withLogger installs the configured logger as default and into ctx
func (cfg *config) withLogger(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, nil)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newClient creates the backend client
func (cfg *config) newClient() (*adapter.Client, error) {
	client, err := adapter.NewClient(cfg.baseURL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create backend client")
	}
	return client, nil
}

// newSessionCache creates the configured session cache
func (cfg *config) newSessionCache(ctx context.Context) (repository.SessionCache, error) {
	switch cfg.sessionBackend {
	case backendFile, "":
		path := cfg.sessionFile
		if path == "" {
			p, err := repository.DefaultFilePath(cfg.sessionProfile)
			if err != nil {
				return nil, err
			}
			path = p
		}
		return repository.NewFile(path), nil

	case backendFirestore:
		if cfg.firestoreProject == "" {
			return nil, goerr.New("firestore-project is required for the firestore session backend")
		}
		repo, err := repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase, cfg.sessionProfile,
			adapter.CredentialOptions(cfg.credentialsFile)...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create firestore session cache")
		}
		return repo, nil

	case backendMemory:
		return repository.NewMemory(), nil

	default:
		return nil, goerr.New("unknown session backend",
			goerr.V("backend", cfg.sessionBackend),
			goerr.V("supported", []string{backendFile, backendFirestore, backendMemory}))
	}
}

// app is the wired client shared by the commands
type app struct {
	client *adapter.Client
	store  *session.Store
}

// newApp wires the backend client with the session store so that every call
// reads the token of the current session
func (cfg *config) newApp(ctx context.Context) (*app, error) {
	client, err := cfg.newClient()
	if err != nil {
		return nil, err
	}
	cache, err := cfg.newSessionCache(ctx)
	if err != nil {
		return nil, err
	}
	store := session.New(client, cache)
	client.SetTokenSource(store)
	return &app{client: client, store: store}, nil
}

// restore loads the cached session and fails when there is none
func (a *app) restore(ctx context.Context) error {
	ok, err := a.store.Restore(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to read session cache")
	}
	if !ok {
		return goerr.New("not logged in, run `moltender login` or `moltender register` first")
	}
	return nil
}

// newGemini creates a Gemini adapter, or nil when no project is configured
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, nil
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}
	gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, adapter.WithGenerativeModel(cfg.geminiModel))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return gemini, nil
}

// newStorage creates the archive storage, or nil when no bucket is configured
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.archiveBucket == "" {
		return nil, nil
	}
	storage, err := adapter.NewStorage(ctx, cfg.archiveBucket, adapter.CredentialOptions(cfg.credentialsFile)...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newPolicy loads the swipe policy from dir, or the built-in one
func newPolicy(ctx context.Context, dir string) (*policy.Policy, error) {
	p, err := policy.New(ctx, dir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load swipe policy")
	}
	return p, nil
}
