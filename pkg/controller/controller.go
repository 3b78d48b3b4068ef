package controller

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/interfaces"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/usecase/chat"
	"github.com/m-mizutani/moltender/pkg/usecase/observer"
	"github.com/m-mizutani/moltender/pkg/usecase/session"
	"github.com/m-mizutani/moltender/pkg/usecase/swipe"
	"github.com/m-mizutani/moltender/pkg/utils/logging"
)

// Controller decides which component is active for each screen and forwards their
// state to the view
type Controller struct {
	api   interfaces.API
	store *session.Store
	view  View

	queue   *swipe.Queue
	gesture *swipe.Gesture
	conv    *chat.Conversation
	feed    *observer.Feed

	mu      sync.Mutex
	screen  Screen
	profile *model.Profile
	matches []*model.Match

	// serializes forced logouts raised by concurrent 401s
	logoutMu sync.Mutex
}

// Input contains the collaborators of a controller
type Input struct {
	API    interfaces.API
	Opener interfaces.ChannelOpener
	Store  *session.Store
	View   View

	// Threshold is the gesture commit boundary. 0 uses swipe.DefaultThreshold.
	Threshold float64
	// PageSize is the candidate refill size. 0 uses swipe.DefaultPageSize.
	PageSize int
}

func New(input Input) *Controller {
	view := input.View
	if view == nil {
		view = ViewFunc(func(Event) {})
	}

	c := &Controller{
		api:     input.API,
		store:   input.Store,
		view:    view,
		queue:   swipe.NewQueue(input.API, swipe.WithPageSize(input.PageSize)),
		gesture: swipe.NewGesture(input.Threshold),
		conv:    chat.New(input.API, input.Opener, input.Store.AgentID),
		feed:    observer.New(input.API, input.Opener),
		screen:  ScreenLanding,
	}

	c.conv.Subscribe(func(snap chat.Snapshot) {
		c.view.Render(Event{Kind: EventConversation, Conversation: &snap})
	})
	c.conv.OnError(func(ctx context.Context, err error) {
		// the conversation context ends when logout closes it
		_ = c.fail(context.WithoutCancel(ctx), err)
	})
	c.feed.Subscribe(func(snap observer.Snapshot) {
		c.view.Render(Event{Kind: EventObserver, Observer: &snap})
	})
	c.store.Subscribe(func(sess *model.Session) {
		c.view.Render(Event{Kind: EventSession, Session: sess})
	})
	c.store.OnLogout(c.conv.Close)

	return c
}

// Screen returns the screen being shown
func (c *Controller) Screen() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// Queue exposes the swipe engine for read access
func (c *Controller) Queue() *swipe.Queue {
	return c.queue
}

// Conversation exposes the chat channel owner
func (c *Controller) Conversation() *chat.Conversation {
	return c.conv
}

// Feed exposes the observer feed
func (c *Controller) Feed() *observer.Feed {
	return c.feed
}

// Profile returns the last loaded own profile
func (c *Controller) Profile() *model.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// Matches returns the last loaded match list
func (c *Controller) Matches() []*model.Match {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*model.Match(nil), c.matches...)
}

// show switches the screen and tears down what the previous screen owned
func (c *Controller) show(screen Screen) {
	c.mu.Lock()
	prev := c.screen
	c.screen = screen
	c.mu.Unlock()

	if prev == ScreenChat && screen != ScreenChat {
		c.conv.Close()
	}
	if prev == ScreenObserver && screen != ScreenObserver {
		c.feed.Stop()
	}
	c.view.Render(Event{Kind: EventScreen, Screen: screen})
}

func (c *Controller) notice(level NoticeLevel, msg string) {
	c.view.Render(Event{Kind: EventNotice, Notice: &Notice{Level: level, Message: msg}})
}

// fail applies the error policy and returns err. A 401 means the session is no
// longer valid: it is cleared and the landing screen shown. Everything else is only
// reported.
func (c *Controller) fail(ctx context.Context, err error) error {
	if model.IsUnauthorized(err) {
		c.logoutMu.Lock()
		defer c.logoutMu.Unlock()
		if c.store.Current() != nil {
			logging.From(ctx).Warn("session rejected by backend, logging out", "error", err)
			c.forceLogout(ctx)
			c.notice(NoticeError, "Session expired. Please log in again.")
			return err
		}
	}

	msg := err.Error()
	if reqErr, ok := model.AsRequestError(err); ok {
		msg = reqErr.Detail
	}
	c.notice(NoticeError, msg)
	return err
}

func (c *Controller) forceLogout(ctx context.Context) {
	if err := c.store.Logout(ctx); err != nil {
		logging.From(ctx).Error("failed to clear session", "error", err)
	}
	c.reset()
	c.show(ScreenLanding)
}

func (c *Controller) reset() {
	c.queue.Reset()
	c.gesture.Cancel()
	c.mu.Lock()
	c.profile = nil
	c.matches = nil
	c.mu.Unlock()
}

// Start restores a cached session. With one, the swipe screen is entered; without,
// the landing screen.
func (c *Controller) Start(ctx context.Context) error {
	restored, err := c.store.Restore(ctx)
	if err != nil {
		logging.From(ctx).Warn("ignoring unreadable session cache", "error", err)
	}
	if !restored {
		c.show(ScreenLanding)
		return nil
	}
	return c.enterSwipe(ctx)
}

// Login authenticates with an api key and enters the swipe screen
func (c *Controller) Login(ctx context.Context, apiKey string) error {
	sess, err := c.store.Login(ctx, apiKey)
	if err != nil {
		return c.fail(ctx, err)
	}
	c.notice(NoticeSuccess, "Welcome back, "+sess.Agent.DisplayName()+"!")
	return c.enterSwipe(ctx)
}

// Register creates an agent and enters the swipe screen
func (c *Controller) Register(ctx context.Context, reg model.Registration) error {
	sess, err := c.store.Register(ctx, reg)
	if err != nil {
		return c.fail(ctx, err)
	}
	c.notice(NoticeSuccess, "Welcome to Moltender, "+sess.Agent.DisplayName()+"!")
	return c.enterSwipe(ctx)
}

// Logout clears the session and returns to the landing screen
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.store.Logout(ctx); err != nil {
		return c.fail(ctx, err)
	}
	c.reset()
	c.show(ScreenLanding)
	return nil
}

func (c *Controller) enterSwipe(ctx context.Context) error {
	c.show(ScreenSwipe)
	if err := c.LoadProfile(ctx); err != nil {
		return err
	}
	if c.store.Current() == nil {
		return nil
	}
	return c.Refill(ctx)
}

// ShowSwipe switches to the swipe screen and renders the current candidate
func (c *Controller) ShowSwipe(ctx context.Context) error {
	c.show(ScreenSwipe)
	switch c.queue.State() {
	case swipe.StateEmpty:
		return c.Refill(ctx)
	default:
		c.renderCandidate()
		return nil
	}
}

// LoadProfile fetches the own profile
func (c *Controller) LoadProfile(ctx context.Context) error {
	profile, err := c.api.GetProfile(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}
	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()
	c.view.Render(Event{Kind: EventProfile, Profile: profile})
	return nil
}

// ShowProfile switches to the profile screen
func (c *Controller) ShowProfile(ctx context.Context) error {
	c.show(ScreenProfile)
	return c.LoadProfile(ctx)
}

// UpdateProfile validates and submits a partial profile update
func (c *Controller) UpdateProfile(ctx context.Context, update model.ProfileUpdate) error {
	if err := update.Validate(); err != nil {
		return c.fail(ctx, err)
	}
	if update.Empty() {
		return c.fail(ctx, goerr.Wrap(model.ErrValidation, "nothing to update"))
	}

	profile, err := c.api.UpdateProfile(ctx, update)
	if err != nil {
		return c.fail(ctx, err)
	}
	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()
	c.view.Render(Event{Kind: EventProfile, Profile: profile})
	c.notice(NoticeSuccess, "Profile updated!")
	return nil
}

// Refill loads the next page of candidates
func (c *Controller) Refill(ctx context.Context) error {
	if _, err := c.queue.Refill(ctx); err != nil {
		return c.fail(ctx, err)
	}
	c.renderCandidate()
	return nil
}

func (c *Controller) renderCandidate() {
	candidate, err := c.queue.Current()
	if err != nil {
		c.view.Render(Event{Kind: EventNoCandidates})
		return
	}
	c.view.Render(Event{Kind: EventCandidate, Candidate: candidate, Visual: swipe.RestVisual})
}

// Decide submits a like or pass on the current candidate. A created match is
// signalled to the view and refreshes the match list.
func (c *Controller) Decide(ctx context.Context, dir model.Direction) (*swipe.Outcome, error) {
	out, err := c.queue.Decide(ctx, dir)
	if err != nil {
		return nil, c.fail(ctx, err)
	}

	if out.MatchCreated {
		c.view.Render(Event{Kind: EventMatchCreated, Match: &MatchSignal{
			MatchID:   out.MatchID,
			Score:     out.Score,
			Candidate: out.Candidate,
		}})
		if err := c.RefreshMatches(ctx); err != nil {
			logging.From(ctx).Warn("failed to refresh matches after a match", "error", err)
		}
	}

	c.renderCandidate()
	return out, nil
}

// DragStart begins a card drag at x. Nothing happens when there is no candidate.
func (c *Controller) DragStart(x float64) {
	if _, err := c.queue.Current(); err != nil {
		return
	}
	c.gesture.Start(x)
}

// DragMove moves the dragged card to x
func (c *Controller) DragMove(x float64) {
	if !c.gesture.Active() {
		return
	}
	visual := c.gesture.Move(x)
	candidate, err := c.queue.Current()
	if err != nil {
		return
	}
	c.view.Render(Event{Kind: EventCardMoved, Candidate: candidate, Visual: visual})
}

// DragEnd releases the card. Past the threshold it submits a decision; otherwise
// the card snaps back and nil is returned.
func (c *Controller) DragEnd(ctx context.Context) (*swipe.Outcome, error) {
	dir, committed := c.gesture.End()
	if !committed {
		c.renderCandidate()
		return nil, nil
	}
	return c.Decide(ctx, dir)
}

// RefreshMatches reloads the match list
func (c *Controller) RefreshMatches(ctx context.Context) error {
	matches, err := c.api.ListMatches(ctx)
	if err != nil {
		return c.fail(ctx, err)
	}
	c.mu.Lock()
	c.matches = matches
	c.mu.Unlock()
	c.view.Render(Event{Kind: EventMatches, Matches: matches})
	return nil
}

// ShowMatches switches to the matches screen
func (c *Controller) ShowMatches(ctx context.Context) error {
	c.show(ScreenMatches)
	return c.RefreshMatches(ctx)
}

// OpenChat switches to the chat screen of matchID. A conversation opened before
// is closed first.
func (c *Controller) OpenChat(ctx context.Context, matchID model.MatchID) error {
	c.show(ScreenChat)
	if err := c.conv.Connect(ctx, matchID); err != nil {
		return c.fail(ctx, err)
	}
	if err := c.conv.MarkRead(ctx); err != nil {
		return c.fail(ctx, err)
	}
	return nil
}

// Send posts a message to the open conversation
func (c *Controller) Send(ctx context.Context, text string) (*model.Message, error) {
	msg, err := c.conv.Send(ctx, text)
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	return msg, nil
}

// CloseChat leaves the chat screen for the matches screen
func (c *Controller) CloseChat(ctx context.Context) error {
	return c.ShowMatches(ctx)
}

// Unmatch deletes the open match and returns to the matches screen
func (c *Controller) Unmatch(ctx context.Context) error {
	if err := c.conv.Unmatch(ctx); err != nil {
		return c.fail(ctx, err)
	}
	c.notice(NoticeInfo, "Unmatched")
	return c.ShowMatches(ctx)
}

// EnterObserver shows the public activity stream. No session is needed.
func (c *Controller) EnterObserver(ctx context.Context) error {
	c.show(ScreenObserver)
	if err := c.feed.Start(ctx); err != nil {
		logging.From(ctx).Warn("observer data partially loaded", "error", err)
		c.notice(NoticeError, "Some observer data could not be loaded")
	}
	return nil
}

// ExitObserver leaves the observer screen
func (c *Controller) ExitObserver(ctx context.Context) {
	if c.store.Current() != nil {
		c.show(ScreenSwipe)
		c.renderCandidate()
		return
	}
	c.show(ScreenLanding)
}

// Close releases every channel held by the controller
func (c *Controller) Close() {
	c.conv.Close()
	c.feed.Stop()
}
