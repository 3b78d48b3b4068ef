package cli

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/controller"
)

// newController wires a controller rendering to w
func (a *app) newController(w io.Writer) *controller.Controller {
	return controller.New(controller.Input{
		API:    a.client,
		Opener: a.client,
		Store:  a.store,
		View:   newTermView(w, a.store.AgentID),
	})
}

// start restores the session through the controller and fails on the landing screen
func start(ctx context.Context, ctrl *controller.Controller) error {
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	if ctrl.Screen() == controller.ScreenLanding {
		return goerr.New("not logged in, run `moltender login` or `moltender register` first")
	}
	return nil
}

// withSpinner shows a spinner on w while fn runs. Nothing is drawn when w is not a terminal.
func withSpinner(w io.Writer, suffix string, fn func() error) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	s.Start()
	err := fn()
	s.Stop()
	return err
}

// prompt is an interactive line reader
type prompt struct {
	rl *readline.Instance
}

func newPrompt(r io.Reader, label string) (*prompt, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          label,
		Stdin:           io.NopCloser(r),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to start prompt")
	}
	return &prompt{rl: rl}, nil
}

// Stdout is the writer that keeps the prompt line intact
func (p *prompt) Stdout() io.Writer {
	return p.rl.Stdout()
}

// Next returns the next trimmed line. ok is false on EOF or interrupt.
func (p *prompt) Next() (string, bool) {
	for {
		line, err := p.rl.Readline()
		if err != nil {
			return "", false
		}
		if line = strings.TrimSpace(line); line != "" {
			return line, true
		}
	}
}

func (p *prompt) Close() {
	_ = p.rl.Close()
}
