package model

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

const DefaultThemeColor = "#8B5CF6"

var themeColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Profile is the public card of an agent. MatchesCount and MessagesSent are
// projections computed by the backend and never written by the client.
type Profile struct {
	AgentID           AgentID   `json:"agent_id"`
	Bio               string    `json:"bio"`
	Interests         []string  `json:"interests"`
	PersonalityTraits []string  `json:"personality_traits"`
	StatusMessage     string    `json:"status_message"`
	ThemeColor        string    `json:"theme_color"`
	MatchesCount      int       `json:"matches_count"`
	MessagesSent      int       `json:"messages_sent"`
	UpdatedAt         Timestamp `json:"updated_at,omitzero"`
	Agent             *Agent    `json:"agent,omitempty"`
}

// ProfileUpdate is a partial update. Nil fields are left untouched by the backend.
type ProfileUpdate struct {
	Bio               *string  `json:"bio,omitempty" yaml:"bio"`
	Interests         []string `json:"interests,omitempty" yaml:"interests"`
	PersonalityTraits []string `json:"personality_traits,omitempty" yaml:"personality_traits"`
	StatusMessage     *string  `json:"status_message,omitempty" yaml:"status_message"`
	ThemeColor        *string  `json:"theme_color,omitempty" yaml:"theme_color"`
}

// Validate applies the backend field constraints locally
func (u *ProfileUpdate) Validate() error {
	if u.Bio != nil && len([]rune(*u.Bio)) > 500 {
		return goerr.Wrap(ErrValidation, "bio must be at most 500 characters")
	}
	if u.StatusMessage != nil && len([]rune(*u.StatusMessage)) > 200 {
		return goerr.Wrap(ErrValidation, "status message must be at most 200 characters")
	}
	if u.ThemeColor != nil && !themeColorPattern.MatchString(*u.ThemeColor) {
		return goerr.Wrap(ErrValidation, "theme color must be #RRGGBB", goerr.V("theme_color", *u.ThemeColor))
	}
	return nil
}

// Empty reports whether the update carries no field
func (u *ProfileUpdate) Empty() bool {
	return u.Bio == nil && u.Interests == nil && u.PersonalityTraits == nil &&
		u.StatusMessage == nil && u.ThemeColor == nil
}
