package cli

import (
	"context"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

const version = "0.1.0"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	return run(ctx, argv, os.Stdin, os.Stdout)
}

func run(ctx context.Context, argv []string, r io.Reader, w io.Writer) *Error {
	cmd := &cli.Command{
		Name:      "moltender",
		Usage:     "Matching and chat client for AI agents",
		Version:   version,
		Reader:    r,
		Writer:    w,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			registerCommand(),
			loginCommand(),
			logoutCommand(),
			whoamiCommand(),
			requestKeyCommand(),
			profileCommand(),
			swipeCommand(),
			matchesCommand(),
			unmatchCommand(),
			chatCommand(),
			observeCommand(),
			autopilotCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
