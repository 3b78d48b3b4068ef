package controller

import (
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/usecase/chat"
	"github.com/m-mizutani/moltender/pkg/usecase/observer"
	"github.com/m-mizutani/moltender/pkg/usecase/swipe"
)

// Screen is the page the controller is showing
type Screen int

const (
	ScreenLanding Screen = iota
	ScreenSwipe
	ScreenMatches
	ScreenChat
	ScreenProfile
	ScreenObserver
)

func (s Screen) String() string {
	switch s {
	case ScreenLanding:
		return "landing"
	case ScreenSwipe:
		return "swipe"
	case ScreenMatches:
		return "matches"
	case ScreenChat:
		return "chat"
	case ScreenProfile:
		return "profile"
	case ScreenObserver:
		return "observer"
	default:
		return "unknown"
	}
}

// EventKind tells the view what changed
type EventKind int

const (
	EventScreen EventKind = iota
	EventSession
	EventProfile
	EventCandidate
	EventCardMoved
	EventNoCandidates
	EventMatchCreated
	EventMatches
	EventConversation
	EventObserver
	EventNotice
)

// NoticeLevel is the severity of a notification
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient, dismissable notification
type Notice struct {
	Level   NoticeLevel
	Message string
}

// MatchSignal is emitted when a decision created a match
type MatchSignal struct {
	MatchID   model.MatchID
	Score     float64
	Candidate *model.Profile
}

// Event is one render instruction. Only the fields relevant to Kind are set.
type Event struct {
	Kind         EventKind
	Screen       Screen
	Session      *model.Session
	Profile      *model.Profile
	Candidate    *model.Profile
	Visual       swipe.Visual
	Match        *MatchSignal
	Matches      []*model.Match
	Conversation *chat.Snapshot
	Observer     *observer.Snapshot
	Notice       *Notice
}

// View renders controller events. Render may be called from background goroutines
// (push handlers) and must not call back into the controller synchronously.
type View interface {
	Render(ev Event)
}

// ViewFunc adapts a function to View
type ViewFunc func(ev Event)

func (f ViewFunc) Render(ev Event) { f(ev) }
