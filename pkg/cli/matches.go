package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/urfave/cli/v3"
)

func matchesCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:  "matches",
		Usage: "List your matches",
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

			ctrl := a.newController(c.Root().Writer)
			defer ctrl.Close()
			return ctrl.ShowMatches(ctx)
		},
	}
}

func unmatchCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:      "unmatch",
		Usage:     "Delete a match",
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

			if err := a.client.DeleteMatch(ctx, matchID); err != nil {
				return goerr.Wrap(err, "failed to unmatch", goerr.V("match_id", matchID))
			}
			fmt.Fprintln(c.Root().Writer, "Unmatched successfully")
			return nil
		},
	}
}
