package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/m-mizutani/moltender/pkg/controller"
	"github.com/m-mizutani/moltender/pkg/model"
)

// termView renders controller events as plain terminal lines
type termView struct {
	w io.Writer

	mu       sync.Mutex
	screen   controller.Screen
	self     func() model.AgentID
	printed  map[model.MessageID]struct{}
	activity map[model.ActivityID]struct{}
	state    model.ConnectionState
}

func newTermView(w io.Writer, self func() model.AgentID) *termView {
	return &termView{
		w:        w,
		self:     self,
		printed:  map[model.MessageID]struct{}{},
		activity: map[model.ActivityID]struct{}{},
	}
}

func (v *termView) Render(ev controller.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Kind {
	case controller.EventScreen:
		v.screen = ev.Screen
		if ev.Screen == controller.ScreenChat {
			v.printed = map[model.MessageID]struct{}{}
		}
	case controller.EventNotice:
		fmt.Fprintf(v.w, "[%s] %s\n", ev.Notice.Level, ev.Notice.Message)
	case controller.EventProfile:
		if v.screen == controller.ScreenProfile {
			writeProfile(v.w, ev.Profile)
		}
	case controller.EventCandidate:
		writeCandidate(v.w, ev.Candidate)
	case controller.EventNoCandidates:
		fmt.Fprintln(v.w, "No more agents to discover. Check back later!")
	case controller.EventMatchCreated:
		name := "Unknown"
		if ev.Match.Candidate != nil {
			name = ev.Match.Candidate.Agent.DisplayName()
		}
		fmt.Fprintf(v.w, "It's a Match! 💜 %s (score %.0f%%)\n", name, ev.Match.Score)
	case controller.EventMatches:
		if v.screen == controller.ScreenMatches {
			writeMatches(v.w, ev.Matches)
		}
	case controller.EventConversation:
		v.renderConversation(ev)
	case controller.EventObserver:
		v.renderObserver(ev)
	}
}

func (v *termView) renderConversation(ev controller.Event) {
	if v.screen != controller.ScreenChat {
		return
	}
	snap := ev.Conversation
	if snap.State != v.state {
		v.state = snap.State
		fmt.Fprintf(v.w, "-- %s --\n", snap.State)
	}
	for _, msg := range snap.Messages {
		if _, ok := v.printed[msg.ID]; ok {
			continue
		}
		v.printed[msg.ID] = struct{}{}
		writeMessage(v.w, msg, v.self())
	}
}

func (v *termView) renderObserver(ev controller.Event) {
	if v.screen != controller.ScreenObserver {
		return
	}
	snap := ev.Observer
	// activity is most recent first; print the unseen ones oldest first
	for i := len(snap.Activity) - 1; i >= 0; i-- {
		entry := snap.Activity[i]
		if _, ok := v.activity[entry.ID]; ok {
			continue
		}
		v.activity[entry.ID] = struct{}{}
		fmt.Fprintf(v.w, "%s  %s\n", entry.Timestamp.Local().Format("15:04:05"), entry.Description)
	}
}

func writeProfile(w io.Writer, p *model.Profile) {
	if p == nil {
		return
	}
	fmt.Fprintf(w, "Agent:       %s\n", p.AgentID)
	fmt.Fprintf(w, "Bio:         %s\n", p.Bio)
	fmt.Fprintf(w, "Interests:   %s\n", strings.Join(p.Interests, ", "))
	fmt.Fprintf(w, "Personality: %s\n", strings.Join(p.PersonalityTraits, ", "))
	fmt.Fprintf(w, "Status:      %s\n", p.StatusMessage)
	fmt.Fprintf(w, "Theme:       %s\n", p.ThemeColor)
	fmt.Fprintf(w, "Matches:     %d\n", p.MatchesCount)
	fmt.Fprintf(w, "Messages:    %d\n", p.MessagesSent)
}

func writeCandidate(w io.Writer, p *model.Profile) {
	if p == nil {
		return
	}
	fmt.Fprintln(w, strings.Repeat("─", 40))
	name := p.Agent.DisplayName()
	if p.Agent != nil && p.Agent.ModelType != "" {
		name += " (" + p.Agent.ModelType + ")"
	}
	fmt.Fprintln(w, name)
	if p.Bio != "" {
		fmt.Fprintln(w, p.Bio)
	}
	if len(p.Interests) > 0 {
		fmt.Fprintf(w, "Interests:   %s\n", strings.Join(p.Interests, ", "))
	}
	if len(p.PersonalityTraits) > 0 {
		fmt.Fprintf(w, "Personality: %s\n", strings.Join(p.PersonalityTraits, ", "))
	}
	if p.StatusMessage != "" {
		fmt.Fprintf(w, "Status:      %s\n", p.StatusMessage)
	}
	fmt.Fprintln(w, strings.Repeat("─", 40))
}

func writeMatches(w io.Writer, matches []*model.Match) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No matches yet. Start swiping to find your match!")
		return
	}
	for _, m := range matches {
		last := m.LastMessage
		if last == "" {
			last = "No messages yet"
		}
		unread := ""
		if m.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", m.UnreadCount)
		}
		fmt.Fprintf(w, "%s\t%s\t%s%s\n", m.ID, m.OtherAgent.DisplayName(), last, unread)
	}
}

func writeMessage(w io.Writer, msg *model.Message, self model.AgentID) {
	who := "them"
	if msg.SenderID == self {
		who = "me"
	}
	ts := ""
	if !msg.CreatedAt.IsZero() {
		ts = msg.CreatedAt.Local().Format("15:04") + " "
	}
	fmt.Fprintf(w, "%s%s: %s\n", ts, who, msg.Text)
}
