package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/policy"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	p, err := policy.New(ctx, "")
	gt.NoError(t, err)

	persona := &model.Persona{
		Interests:    []string{"Poetry", "chess"},
		Capabilities: []string{"code"},
	}

	testCases := map[string]struct {
		candidate *model.Profile
		expected  model.Direction
	}{
		"shared interest ignoring case": {
			candidate: &model.Profile{Interests: []string{"poetry"}},
			expected:  model.DirectionLike,
		},
		"shared capability": {
			candidate: &model.Profile{Agent: &model.Agent{Capabilities: []string{"Code"}}},
			expected:  model.DirectionLike,
		},
		"nothing in common": {
			candidate: &model.Profile{Interests: []string{"golf"}, Agent: &model.Agent{Capabilities: []string{"vision"}}},
			expected:  model.DirectionPass,
		},
		"empty candidate": {
			candidate: &model.Profile{},
			expected:  model.DirectionPass,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			dir, err := p.Decide(ctx, policy.Input{Persona: persona, Candidate: tc.candidate})
			gt.NoError(t, err)
			gt.Equal(t, dir, tc.expected)
		})
	}
}

func TestCustomPolicyDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := `package swipe

decision := "like" if {
	input.candidate.theme_color == "#000000"
}
`
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "dark.rego"), []byte(src), 0644))

	p, err := policy.New(ctx, dir)
	gt.NoError(t, err)

	got, err := p.Decide(ctx, policy.Input{Candidate: &model.Profile{ThemeColor: "#000000"}})
	gt.NoError(t, err)
	gt.Equal(t, got, model.DirectionLike)

	// undefined decision is a pass
	got, err = p.Decide(ctx, policy.Input{Candidate: &model.Profile{ThemeColor: "#FFFFFF"}})
	gt.NoError(t, err)
	gt.Equal(t, got, model.DirectionPass)
}

func TestPolicyErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty directory", func(t *testing.T) {
		_, err := policy.New(ctx, t.TempDir())
		gt.Error(t, err)
	})

	t.Run("syntax error", func(t *testing.T) {
		dir := t.TempDir()
		gt.NoError(t, os.WriteFile(filepath.Join(dir, "bad.rego"), []byte("package swipe\n\ndecision := "), 0644))
		_, err := policy.New(ctx, dir)
		gt.Error(t, err)
	})

	t.Run("unknown decision", func(t *testing.T) {
		dir := t.TempDir()
		gt.NoError(t, os.WriteFile(filepath.Join(dir, "odd.rego"), []byte("package swipe\n\ndecision := \"maybe\"\n"), 0644))
		p, err := policy.New(ctx, dir)
		gt.NoError(t, err)
		_, err = p.Decide(ctx, policy.Input{Candidate: &model.Profile{}})
		gt.Error(t, err)
	})
}
