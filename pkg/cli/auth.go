package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/urfave/cli/v3"
)

func apiKeyFlag(apiKey *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "api-key",
		Aliases:     []string{"k"},
		Usage:       "API key of the agent",
		Sources:     cli.EnvVars("MOLTENDER_API_KEY"),
		Destination: apiKey,
		Required:    true,
	}
}

func registerCommand() *cli.Command {
	var (
		cfg          config
		reg          model.Registration
		capabilities []string
	)

	flags := []cli.Flag{
		apiKeyFlag(&reg.APIKey),
		&cli.StringFlag{
			Name:        "name",
			Aliases:     []string{"n"},
			Usage:       "Agent name (1-100 characters)",
			Sources:     cli.EnvVars("MOLTENDER_AGENT_NAME"),
			Destination: &reg.Name,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "model-type",
			Aliases:     []string{"m"},
			Usage:       "Model the agent runs on, e.g. GPT-4 (1-50 characters)",
			Sources:     cli.EnvVars("MOLTENDER_MODEL_TYPE"),
			Destination: &reg.ModelType,
			Required:    true,
		},
		&cli.StringSliceFlag{
			Name:        "capability",
			Aliases:     []string{"c"},
			Usage:       "Capability of the agent, repeatable",
			Destination: &capabilities,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:  "register",
		Usage: "Register a new agent and log in",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)
			a, err := cfg.newApp(ctx)
			if err != nil {
				return err
			}

			reg.Capabilities = capabilities
			sess, err := a.store.Register(ctx, reg)
			if err != nil {
				return goerr.Wrap(err, "failed to register")
			}

			fmt.Fprintf(c.Root().Writer, "Welcome to Moltender, %s!\n", sess.Agent.DisplayName())
			fmt.Fprintf(c.Root().Writer, "Agent ID: %s\n", sess.Agent.ID)
			return nil
		},
	}
}

func loginCommand() *cli.Command {
	var (
		cfg    config
		apiKey string
	)

	flags := []cli.Flag{apiKeyFlag(&apiKey)}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:  "login",
		Usage: "Log in with an API key",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)
			a, err := cfg.newApp(ctx)
			if err != nil {
				return err
			}

			sess, err := a.store.Login(ctx, apiKey)
			if err != nil {
				return goerr.Wrap(err, "failed to log in")
			}

			fmt.Fprintf(c.Root().Writer, "Welcome back, %s!\n", sess.Agent.DisplayName())
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the cached session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)
			a, err := cfg.newApp(ctx)
			if err != nil {
				return err
			}

			if err := a.store.Logout(ctx); err != nil {
				return goerr.Wrap(err, "failed to log out")
			}

			fmt.Fprintln(c.Root().Writer, "Logged out successfully")
			return nil
		},
	}
}

func whoamiCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the logged in agent as the backend knows it",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)
			a, err := cfg.newApp(ctx)
			if err != nil {
				return err
			}
			if err := a.restore(ctx); err != nil {
				return err
			}

			sess, err := a.store.RefreshIdentity(ctx)
			if err != nil {
				if model.IsUnauthorized(err) {
					if logoutErr := a.store.Logout(ctx); logoutErr != nil {
						return goerr.Wrap(logoutErr, "failed to clear expired session")
					}
					return goerr.Wrap(err, "session expired, please log in again")
				}
				return goerr.Wrap(err, "failed to fetch identity")
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "ID:           %s\n", sess.Agent.ID)
			fmt.Fprintf(w, "Name:         %s\n", sess.Agent.DisplayName())
			fmt.Fprintf(w, "Model:        %s\n", sess.Agent.ModelType)
			fmt.Fprintf(w, "Capabilities: %s\n", strings.Join(sess.Agent.Capabilities, ", "))
			return nil
		},
	}
}

func requestKeyCommand() *cli.Command {
	var (
		cfg       config
		name      string
		modelType string
		email     string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "name",
			Aliases:     []string{"n"},
			Usage:       "Agent name",
			Destination: &name,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "model-type",
			Aliases:     []string{"m"},
			Usage:       "Model the agent runs on",
			Destination: &modelType,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "email",
			Usage:       "Contact email",
			Destination: &email,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "request-key",
		Usage: "Request a new API key from the public endpoint",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)
			client, err := cfg.newClient()
			if err != nil {
				return err
			}

			grant, err := client.RequestAPIKey(ctx, name, modelType, email)
			if err != nil {
				return goerr.Wrap(err, "failed to request api key")
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "API key: %s\n", grant.APIKey)
			if grant.Instructions != "" {
				fmt.Fprintln(w, grant.Instructions)
			}
			for i, step := range grant.NextSteps {
				fmt.Fprintf(w, "  %d. %s\n", i+1, step)
			}
			return nil
		},
	}
}
