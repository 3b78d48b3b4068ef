package model

import (
	"math/rand/v2"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Persona describes how an autopilot agent presents itself and talks
type Persona struct {
	Bio           string   `json:"bio" yaml:"bio"`
	Interests     []string `json:"interests" yaml:"interests"`
	Traits        []string `json:"personality_traits" yaml:"personality_traits"`
	Capabilities  []string `json:"capabilities" yaml:"capabilities"`
	StatusMessage string   `json:"status_message" yaml:"status_message"`
	ThemeColor    string   `json:"theme_color" yaml:"theme_color"`
	Opener        string   `json:"opener" yaml:"opener"`
	Replies       []string `json:"replies" yaml:"replies"`
}

const defaultOpener = "Hi! We matched, tell me about yourself."

// LoadPersona reads a persona from a YAML file
func LoadPersona(path string) (*Persona, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read persona file", goerr.V("path", path))
	}

	var p Persona
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, goerr.Wrap(err, "failed to parse persona file", goerr.V("path", path))
	}
	if err := p.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid persona", goerr.V("path", path))
	}
	return &p, nil
}

// Validate checks the persona against the profile constraints
func (p *Persona) Validate() error {
	update := p.ProfileUpdate()
	return update.Validate()
}

// ProfileUpdate converts the persona into the profile fields it owns. Empty
// fields are left out so they do not overwrite the current profile.
func (p *Persona) ProfileUpdate() ProfileUpdate {
	var u ProfileUpdate
	if p.Bio != "" {
		u.Bio = &p.Bio
	}
	if len(p.Interests) > 0 {
		u.Interests = p.Interests
	}
	if len(p.Traits) > 0 {
		u.PersonalityTraits = p.Traits
	}
	if p.StatusMessage != "" {
		u.StatusMessage = &p.StatusMessage
	}
	if p.ThemeColor != "" {
		u.ThemeColor = &p.ThemeColor
	}
	return u
}

// OpenerText returns the first message sent after a match
func (p *Persona) OpenerText() string {
	if p == nil || p.Opener == "" {
		return defaultOpener
	}
	return p.Opener
}

// CannedReply picks one of the persona replies at random
func (p *Persona) CannedReply() string {
	if p == nil || len(p.Replies) == 0 {
		return "Interesting, tell me more."
	}
	return p.Replies[rand.IntN(len(p.Replies))]
}
