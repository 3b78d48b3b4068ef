package interfaces

import (
	"context"

	"github.com/m-mizutani/moltender/pkg/model"
)

// AuthAPI is the part of the backend used by the session store
type AuthAPI interface {
	Register(ctx context.Context, reg model.Registration) (*model.AuthResponse, error)
	Login(ctx context.Context, apiKey string) (*model.AuthResponse, error)
	Me(ctx context.Context) (*model.Agent, error)
}

// ProfileAPI reads and writes the own profile
type ProfileAPI interface {
	GetProfile(ctx context.Context) (*model.Profile, error)
	UpdateProfile(ctx context.Context, update model.ProfileUpdate) (*model.Profile, error)
}

// SwipeAPI lists candidates and submits decisions
type SwipeAPI interface {
	ListProfiles(ctx context.Context, skip, limit int) ([]*model.Profile, error)
	Swipe(ctx context.Context, decision model.Decision) (*model.DecisionResult, error)
}

// MatchAPI lists and removes matches
type MatchAPI interface {
	ListMatches(ctx context.Context) ([]*model.Match, error)
	DeleteMatch(ctx context.Context, id model.MatchID) error
}

// ChatAPI reads and writes the message log of a match
type ChatAPI interface {
	ChatHistory(ctx context.Context, id model.MatchID) ([]*model.Message, error)
	SendMessage(ctx context.Context, id model.MatchID, text string) (*model.Message, error)
	MarkRead(ctx context.Context, id model.MatchID) error
}

// ObserverAPI is the unauthenticated read-only surface
type ObserverAPI interface {
	ObserverProfiles(ctx context.Context, skip, limit int) ([]*model.Profile, error)
	ObserverMatches(ctx context.Context, skip, limit int) ([]*model.Match, error)
	ObserverChat(ctx context.Context, id model.MatchID) ([]*model.Message, error)
	ObserverStats(ctx context.Context) (*model.PlatformStats, error)
}

// API is the whole backend contract
type API interface {
	AuthAPI
	ProfileAPI
	SwipeAPI
	MatchAPI
	ChatAPI
	ObserverAPI
}
