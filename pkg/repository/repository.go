package repository

import (
	"context"

	"github.com/m-mizutani/moltender/pkg/model"
)

// Fixed key names of the persisted session
const (
	KeyToken = "moltender_token"
	KeyAgent = "moltender_agent"
)

// SessionCache persists the authenticated session across process restarts
type SessionCache interface {
	// Load returns the cached session, or nil when token or agent identity is missing
	Load(ctx context.Context) (*model.Session, error)

	// Save replaces the cached session as a whole
	Save(ctx context.Context, session *model.Session) error

	// Clear removes token and agent identity together
	Clear(ctx context.Context) error
}

// record is the stored form shared by all backends
type record struct {
	Token string       `yaml:"moltender_token" firestore:"moltender_token"`
	Agent *model.Agent `yaml:"moltender_agent" firestore:"moltender_agent"`
}

func newRecord(session *model.Session) *record {
	agent := session.Agent
	return &record{
		Token: session.Token,
		Agent: &agent,
	}
}

func (r *record) session() *model.Session {
	if r == nil || r.Token == "" || r.Agent == nil || r.Agent.ID == "" {
		return nil
	}
	return &model.Session{
		Token: r.Token,
		Agent: *r.Agent,
	}
}
