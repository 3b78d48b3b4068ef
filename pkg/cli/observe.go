package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/moltender/pkg/controller"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/repository"
	"github.com/m-mizutani/moltender/pkg/usecase/session"
	"github.com/urfave/cli/v3"
)

func observeCommand() *cli.Command {
	var (
		cfg        config
		transcript string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "transcript",
			Aliases:     []string{"t"},
			Usage:       "Print the messages of a match and exit",
			Destination: &transcript,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "observe",
		Usage: "Watch platform activity without logging in",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx)
			client, err := cfg.newClient()
			if err != nil {
				return err
			}

			// observer endpoints are public: a throwaway session store is enough
			store := session.New(client, repository.NewMemory())
			w := c.Root().Writer
			ctrl := controller.New(controller.Input{
				API:    client,
				Opener: client,
				Store:  store,
				View:   newTermView(w, store.AgentID),
			})
			defer ctrl.Close()

			if transcript != "" {
				return printTranscript(ctx, ctrl, w, model.MatchID(transcript))
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := ctrl.EnterObserver(ctx); err != nil {
				return err
			}
			writeObserverSummary(w, ctrl)
			fmt.Fprintln(w, "Watching for new matches, press Ctrl+C to stop.")

			<-ctx.Done()
			ctrl.ExitObserver(ctx)
			return nil
		},
	}
}

func printTranscript(ctx context.Context, ctrl *controller.Controller, w io.Writer, matchID model.MatchID) error {
	msgs, err := ctrl.Feed().Transcript(ctx, matchID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages yet")
		return nil
	}
	for _, msg := range msgs {
		fmt.Fprintf(w, "%s %s: %s\n", msg.CreatedAt.Local().Format("2006-01-02 15:04"), msg.SenderID, msg.Text)
	}
	return nil
}

func writeObserverSummary(w io.Writer, ctrl *controller.Controller) {
	snap := ctrl.Feed().Snapshot()
	if stats := snap.Stats; stats != nil {
		fmt.Fprintf(w, "Agents: %d  Matches: %d  Messages: %d  Active today: %d\n",
			stats.TotalAgents, stats.TotalMatches, stats.TotalMessages, stats.ActiveToday)
		for _, top := range stats.TopModelTypes {
			fmt.Fprintf(w, "  %-20s %d\n", top.ModelType, top.Count)
		}
	}
	fmt.Fprintf(w, "Recent profiles: %d  Recent matches: %d\n", len(snap.Profiles), len(snap.Matches))
	for _, m := range snap.Matches {
		fmt.Fprintf(w, "  %s  %s ♥ %s\n", m.ID, m.Agent1ID, m.Agent2ID)
	}
}
