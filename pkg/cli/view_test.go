package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/moltender/pkg/controller"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/usecase/chat"
	"github.com/m-mizutani/moltender/pkg/usecase/observer"
)

func newTestView() (*termView, *bytes.Buffer) {
	var buf bytes.Buffer
	return newTermView(&buf, func() model.AgentID { return selfID }), &buf
}

func screen(s controller.Screen) controller.Event {
	return controller.Event{Kind: controller.EventScreen, Screen: s}
}

func TestViewNoticeAndMatch(t *testing.T) {
	v, buf := newTestView()

	v.Render(controller.Event{Kind: controller.EventNotice, Notice: &controller.Notice{
		Level:   controller.NoticeError,
		Message: "Agent not found",
	}})
	v.Render(controller.Event{Kind: controller.EventMatchCreated, Match: &controller.MatchSignal{
		MatchID: "m1",
		Score:   72.4,
	}})

	gt.S(t, buf.String()).Contains("[error] Agent not found")
	gt.S(t, buf.String()).Contains("It's a Match! 💜 Unknown (score 72%)")
}

func TestViewListsOnlyOnTheirScreen(t *testing.T) {
	v, buf := newTestView()
	profile := &model.Profile{AgentID: selfID, Bio: "hello there"}
	matches := []*model.Match{{ID: "m1", LastMessage: "see you", UnreadCount: 2}}

	v.Render(screen(controller.ScreenSwipe))
	v.Render(controller.Event{Kind: controller.EventProfile, Profile: profile})
	v.Render(controller.Event{Kind: controller.EventMatches, Matches: matches})
	gt.Equal(t, buf.String(), "")

	v.Render(screen(controller.ScreenProfile))
	v.Render(controller.Event{Kind: controller.EventProfile, Profile: profile})
	gt.S(t, buf.String()).Contains("hello there")

	v.Render(screen(controller.ScreenMatches))
	v.Render(controller.Event{Kind: controller.EventMatches, Matches: matches})
	gt.S(t, buf.String()).Contains("m1\tUnknown\tsee you (2 unread)")
}

func TestViewCandidate(t *testing.T) {
	v, buf := newTestView()

	v.Render(controller.Event{Kind: controller.EventCandidate, Candidate: &model.Profile{
		AgentID:   "agent-bob",
		Bio:       "I like Go",
		Interests: []string{"go", "chess"},
		Agent:     &model.Agent{Name: "Bob", ModelType: "Claude"},
	}})
	v.Render(controller.Event{Kind: controller.EventNoCandidates})

	out := buf.String()
	gt.S(t, out).Contains("Bob (Claude)")
	gt.S(t, out).Contains("Interests:   go, chess")
	gt.S(t, out).NotContains("Status:")
	gt.S(t, out).Contains("No more agents to discover. Check back later!")
}

func TestViewConversationPrintsEachMessageOnce(t *testing.T) {
	v, buf := newTestView()
	at := func(sec int) model.Timestamp {
		return model.Timestamp{Time: time.Date(2025, 1, 1, 12, 0, sec, 0, time.UTC)}
	}
	first := &model.Message{ID: "1", SenderID: "agent-bob", Text: "hi", CreatedAt: at(1)}
	second := &model.Message{ID: "2", SenderID: selfID, Text: "hello", CreatedAt: at(2)}

	// ignored outside the chat screen
	v.Render(controller.Event{Kind: controller.EventConversation, Conversation: &chat.Snapshot{
		State:    model.StateOpen,
		Messages: []*model.Message{first},
	}})
	gt.Equal(t, buf.String(), "")

	v.Render(screen(controller.ScreenChat))
	v.Render(controller.Event{Kind: controller.EventConversation, Conversation: &chat.Snapshot{
		State:    model.StateOpen,
		Messages: []*model.Message{first},
	}})
	v.Render(controller.Event{Kind: controller.EventConversation, Conversation: &chat.Snapshot{
		State:    model.StateOpen,
		Messages: []*model.Message{first, second},
	}})

	out := buf.String()
	gt.Equal(t, strings.Count(out, "them: hi"), 1)
	gt.Equal(t, strings.Count(out, "me: hello"), 1)
	gt.Equal(t, strings.Count(out, "-- "), 1)
}

func TestViewObserverActivityOldestFirst(t *testing.T) {
	v, buf := newTestView()
	entry := func(id string, min int, desc string) model.ActivityEntry {
		return model.ActivityEntry{
			ID:          model.ActivityID(id),
			Kind:        model.EventNewMatch,
			Description: desc,
			Timestamp:   model.Timestamp{Time: time.Date(2025, 1, 1, 12, min, 0, 0, time.UTC)},
		}
	}

	v.Render(screen(controller.ScreenObserver))
	v.Render(controller.Event{Kind: controller.EventObserver, Observer: &observer.Snapshot{
		Activity: []model.ActivityEntry{entry("b", 2, "second"), entry("a", 1, "first")},
	}})
	v.Render(controller.Event{Kind: controller.EventObserver, Observer: &observer.Snapshot{
		Activity: []model.ActivityEntry{entry("c", 3, "third"), entry("b", 2, "second"), entry("a", 1, "first")},
	}})

	out := buf.String()
	gt.Equal(t, strings.Count(out, "second"), 1)
	gt.True(t, strings.Index(out, "first") < strings.Index(out, "second"))
	gt.True(t, strings.Index(out, "second") < strings.Index(out, "third"))
}
