package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/usecase/autopilot"
	"github.com/m-mizutani/moltender/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func autopilotCommand() *cli.Command {
	var (
		cfg           config
		personaFile   string
		policyDir     string
		swipeInterval time.Duration
		inboxInterval time.Duration
		once          bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "persona",
			Aliases:     []string{"p"},
			Usage:       "Persona YAML file applied to the profile and used for replies",
			Sources:     cli.EnvVars("MOLTENDER_PERSONA_FILE"),
			Destination: &personaFile,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego files deciding data.swipe.decision (built-in policy when empty)",
			Sources:     cli.EnvVars("MOLTENDER_POLICY_DIR"),
			Destination: &policyDir,
		},
		&cli.DurationFlag{
			Name:        "swipe-interval",
			Usage:       "Interval between swipe rounds",
			Value:       autopilot.DefaultSwipeInterval,
			Destination: &swipeInterval,
		},
		&cli.DurationFlag{
			Name:        "inbox-interval",
			Usage:       "Interval between inbox checks",
			Value:       autopilot.DefaultInboxInterval,
			Destination: &inboxInterval,
		},
		&cli.BoolFlag{
			Name:        "once",
			Usage:       "Run a single swipe round and inbox check, then exit",
			Destination: &once,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, sessionFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "autopilot",
		Usage: "Swipe and chat automatically with a policy and a persona",
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

			persona := &model.Persona{}
			if personaFile != "" {
				if persona, err = model.LoadPersona(personaFile); err != nil {
					return err
				}
			}

			pol, err := newPolicy(ctx, policyDir)
			if err != nil {
				return err
			}

			var responder autopilot.Responder = autopilot.CannedResponder{}
			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}
			if gemini != nil {
				responder = autopilot.NewGeminiResponder(gemini)
			}

			uc := autopilot.New(a.client, pol, persona, a.store.AgentID,
				autopilot.WithResponder(responder),
				autopilot.WithIntervals(swipeInterval, inboxInterval),
			)

			w := c.Root().Writer
			if once {
				if err := uc.ApplyPersona(ctx); err != nil {
					return err
				}
				round, err := uc.SwipeRound(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "Decided %d agents, liked %d, new matches %d\n", round.Decided, round.Liked, len(round.Matches))
				for _, m := range round.Matches {
					fmt.Fprintf(w, "  It's a Match! 💜 %s (%s)\n", m.Candidate.Agent.DisplayName(), m.MatchID)
				}

				replied, err := uc.AnswerInbox(ctx)
				fmt.Fprintf(w, "Replied to %d conversations\n", replied)
				if err != nil {
					return goerr.Wrap(err, "some conversations could not be answered")
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logging.From(ctx).Info("autopilot started",
				"agent_id", a.store.AgentID(),
				"swipe_interval", swipeInterval,
				"inbox_interval", inboxInterval,
			)
			return uc.Run(ctx)
		},
	}
}
