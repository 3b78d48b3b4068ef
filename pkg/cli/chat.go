package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/adapter"
	"github.com/m-mizutani/moltender/pkg/controller"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const chatHelp = `Type a message and press enter to send it.
  /archive   save the transcript to the archive bucket
  /unmatch   delete this match and leave
  /quit      leave the chat`

func chatCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, sessionFlags(&cfg)...)
	flags = append(flags, archiveFlags(&cfg)...)

	return &cli.Command{
		Name:      "chat",
		Usage:     "Chat with a match in real time",
		ArgsUsage: "<match-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one match id is required")
			}
			matchID := model.MatchID(c.Args().First())

			ctx = cfg.withLogger(ctx)
			a, err := cfg.newApp(ctx)
			if err != nil {
				return err
			}
			if err := a.restore(ctx); err != nil {
				return err
			}
			storage, err := cfg.newStorage(ctx)
			if err != nil {
				return err
			}

			p, err := newPrompt(c.Root().Reader, "> ")
			if err != nil {
				return err
			}
			defer p.Close()

			w := p.Stdout()
			ctrl := a.newController(w)
			defer ctrl.Close()

			if err := ctrl.OpenChat(ctx, matchID); err != nil {
				if model.IsUnauthorized(err) {
					return goerr.Wrap(err, "session expired, please log in again")
				}
				return err
			}
			fmt.Fprintln(w, chatHelp)

			for {
				line, ok := p.Next()
				if !ok {
					break
				}
				if ctrl.Screen() == controller.ScreenLanding {
					// the session was rejected while waiting for input
					return errSessionExpired
				}
				quit, err := handleChatInput(ctx, ctrl, storage, w, line)
				if model.IsUnauthorized(err) {
					return err
				}
				if quit {
					return nil
				}
			}

			if storage != nil {
				archive(ctx, ctrl, storage, w)
			}
			return nil
		},
	}
}

var errSessionExpired = goerr.New("session expired, please log in again")

// handleChatInput runs one chat screen line
func handleChatInput(ctx context.Context, ctrl *controller.Controller, storage adapter.Storage, w io.Writer, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		_, err := ctrl.Send(ctx, line)
		return false, err
	}

	switch strings.ToLower(line) {
	case "/quit", "/exit":
		if storage != nil {
			archive(ctx, ctrl, storage, w)
		}
		return true, ctrl.CloseChat(ctx)

	case "/unmatch":
		if err := ctrl.Unmatch(ctx); err != nil {
			return false, err
		}
		return true, nil

	case "/archive":
		if storage == nil {
			fmt.Fprintln(w, "no archive bucket configured")
			return false, nil
		}
		archive(ctx, ctrl, storage, w)
		return false, nil

	case "/help":
		fmt.Fprintln(w, chatHelp)
		return false, nil

	default:
		fmt.Fprintf(w, "unknown command %q\n", line)
		return false, nil
	}
}

// archive is best effort: failures are logged and reported, never fatal
func archive(ctx context.Context, ctrl *controller.Controller, storage adapter.Storage, w io.Writer) {
	key, err := ctrl.Conversation().Archive(ctx, storage)
	if err != nil {
		logging.From(ctx).Warn("failed to archive transcript", "error", err)
		fmt.Fprintln(w, "transcript could not be archived")
		return
	}
	fmt.Fprintf(w, "transcript archived to %s\n", key)
}
