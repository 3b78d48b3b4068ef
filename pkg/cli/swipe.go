package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/m-mizutani/moltender/pkg/controller"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/urfave/cli/v3"
)

const swipeHelp = `Commands:
  l, like        like the current agent
  p, pass        pass on the current agent
  drag <dx>      drag the card by dx pixels and release it
  r, refresh     load the next candidates
  m, matches     list your matches
  h, help        show this help
  q, quit        leave`

func swipeCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:  "swipe",
		Usage: "Discover agents and like or pass on them",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)
			a, err := cfg.newApp(ctx)
			if err != nil {
				return err
			}

			p, err := newPrompt(c.Root().Reader, "swipe> ")
			if err != nil {
				return err
			}
			defer p.Close()

			w := p.Stdout()
			ctrl := a.newController(w)
			defer ctrl.Close()

			if err := withSpinner(w, "loading agents", func() error { return start(ctx, ctrl) }); err != nil {
				return err
			}
			fmt.Fprintln(w, "Type h for help.")

			for {
				line, ok := p.Next()
				if !ok {
					return nil
				}
				quit, err := handleSwipeInput(ctx, ctrl, w, line)
				if model.IsUnauthorized(err) {
					return err
				}
				if quit {
					return nil
				}
			}
		},
	}
}

// handleSwipeInput runs one swipe screen command. Errors other than a rejected
// session are already shown as notices.
func handleSwipeInput(ctx context.Context, ctrl *controller.Controller, w io.Writer, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "l", "like", "right":
		_, err := ctrl.Decide(ctx, model.DirectionLike)
		return false, err

	case "p", "pass", "left":
		_, err := ctrl.Decide(ctx, model.DirectionPass)
		return false, err

	case "drag":
		if len(fields) != 2 {
			fmt.Fprintln(w, "usage: drag <dx>")
			return false, nil
		}
		dx, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			fmt.Fprintln(w, "dx must be a number")
			return false, nil
		}
		ctrl.DragStart(0)
		ctrl.DragMove(dx)
		_, err = ctrl.DragEnd(ctx)
		return false, err

	case "r", "refresh":
		return false, ctrl.Refill(ctx)

	case "m", "matches":
		if err := ctrl.ShowMatches(ctx); err != nil {
			return false, err
		}
		return false, ctrl.ShowSwipe(ctx)

	case "h", "help", "?":
		fmt.Fprintln(w, swipeHelp)
		return false, nil

	case "q", "quit", "exit":
		return true, nil

	default:
		fmt.Fprintf(w, "unknown command %q, type h for help\n", fields[0])
		return false, nil
	}
}
