package repository

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/model"
	"gopkg.in/yaml.v3"
)

// File stores the session as a YAML document on local disk
type File struct {
	path string
}

// NewFile creates a file session cache at path
func NewFile(path string) *File {
	return &File{path: path}
}

// DefaultFilePath returns the session file of profile under the user config directory
func DefaultFilePath(profile string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", goerr.Wrap(err, "failed to resolve user config directory")
	}
	name := "session.yaml"
	if profile != "" && profile != "default" {
		name = "session-" + profile + ".yaml"
	}
	return filepath.Join(dir, "moltender", name), nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Load(ctx context.Context) (*model.Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read session file", goerr.V("path", f.path))
	}

	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, goerr.Wrap(err, "failed to parse session file", goerr.V("path", f.path))
	}
	return rec.session(), nil
}

// Save writes to a temporary file and renames it so that token and identity are
// replaced together
func (f *File) Save(ctx context.Context, session *model.Session) error {
	data, err := yaml.Marshal(newRecord(session))
	if err != nil {
		return goerr.Wrap(err, "failed to marshal session")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return goerr.Wrap(err, "failed to create session directory", goerr.V("dir", dir))
	}

	tmp, err := os.CreateTemp(dir, ".session-*.yaml")
	if err != nil {
		return goerr.Wrap(err, "failed to create temporary session file", goerr.V("dir", dir))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to write session file", goerr.V("path", tmpName))
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return goerr.Wrap(err, "failed to set session file mode", goerr.V("path", tmpName))
	}
	if err := tmp.Close(); err != nil {
		return goerr.Wrap(err, "failed to close session file", goerr.V("path", tmpName))
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return goerr.Wrap(err, "failed to replace session file", goerr.V("path", f.path))
	}
	return nil
}

func (f *File) Clear(ctx context.Context) error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return goerr.Wrap(err, "failed to remove session file", goerr.V("path", f.path))
	}
	return nil
}
