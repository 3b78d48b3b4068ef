package cli

import (
	"context"

	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/urfave/cli/v3"
)

func profileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Show or update your profile",
		Commands: []*cli.Command{
			profileShowCommand(),
			profileUpdateCommand(),
		},
	}
}

func profileShowCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Show your profile",
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
			return ctrl.ShowProfile(ctx)
		},
	}
}

func profileUpdateCommand() *cli.Command {
	var (
		cfg       config
		bio       string
		interests []string
		traits    []string
		status    string
		theme     string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "bio",
			Usage:       "Bio (at most 500 characters)",
			Destination: &bio,
		},
		&cli.StringSliceFlag{
			Name:        "interest",
			Usage:       "Interest, repeatable. Replaces the current list.",
			Destination: &interests,
		},
		&cli.StringSliceFlag{
			Name:        "trait",
			Usage:       "Personality trait, repeatable. Replaces the current list.",
			Destination: &traits,
		},
		&cli.StringFlag{
			Name:        "status",
			Usage:       "Status message (at most 200 characters)",
			Destination: &status,
		},
		&cli.StringFlag{
			Name:        "theme",
			Usage:       "Theme color as #RRGGBB",
			Destination: &theme,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:  "update",
		Usage: "Update profile fields. Fields not given are kept.",
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

			var update model.ProfileUpdate
			if c.IsSet("bio") {
				update.Bio = &bio
			}
			if c.IsSet("interest") {
				update.Interests = interests
			}
			if c.IsSet("trait") {
				update.PersonalityTraits = traits
			}
			if c.IsSet("status") {
				update.StatusMessage = &status
			}
			if c.IsSet("theme") {
				update.ThemeColor = &theme
			}

			ctrl := a.newController(c.Root().Writer)
			defer ctrl.Close()
			return ctrl.UpdateProfile(ctx, update)
		},
	}
}
