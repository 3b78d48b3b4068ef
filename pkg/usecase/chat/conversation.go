package chat

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/interfaces"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/utils/logging"
)

// API is the backend surface used by a conversation
type API interface {
	interfaces.ChatAPI
	DeleteMatch(ctx context.Context, id model.MatchID) error
}

// Snapshot is an immutable view of a conversation
type Snapshot struct {
	MatchID  model.MatchID
	State    model.ConnectionState
	Messages []*model.Message
}

// Listener receives a snapshot after every change
type Listener func(Snapshot)

// ErrorHandler receives failures of work the conversation runs in the background
type ErrorHandler func(ctx context.Context, err error)

// Conversation owns at most one push channel at a time, for the match it is
// connected to. Every Connect and Close starts a new generation; work started by an
// older generation never touches the current state.
type Conversation struct {
	api    API
	opener interfaces.ChannelOpener
	self   func() model.AgentID

	mu       sync.Mutex
	gen      uint64
	matchID  model.MatchID
	channel  interfaces.Channel
	cancel   context.CancelFunc
	state    model.ConnectionState
	messages []*model.Message

	// version increases on every local change; appended records the version at
	// which a sent message was added so a refresh started earlier keeps it
	version  uint64
	appended map[model.MessageID]uint64
	tickets  uint64
	applied  uint64

	listenerMu sync.Mutex
	listeners  []Listener
	onError    []ErrorHandler
}

// New creates a closed conversation. self returns the agent of the current session.
func New(api API, opener interfaces.ChannelOpener, self func() model.AgentID) *Conversation {
	return &Conversation{
		api:      api,
		opener:   opener,
		self:     self,
		state:    model.StateClosed,
		appended: map[model.MessageID]uint64{},
	}
}

// Subscribe registers fn for conversation changes
func (c *Conversation) Subscribe(fn Listener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// OnError registers fn for failed history refreshes started by the channel
func (c *Conversation) OnError(fn ErrorHandler) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.onError = append(c.onError, fn)
}

func (c *Conversation) report(ctx context.Context, err error) {
	c.listenerMu.Lock()
	handlers := append([]ErrorHandler(nil), c.onError...)
	c.listenerMu.Unlock()

	for _, fn := range handlers {
		fn(ctx, err)
	}
}

func (c *Conversation) notify(snap Snapshot) {
	c.listenerMu.Lock()
	listeners := append([]Listener(nil), c.listeners...)
	c.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (c *Conversation) snapshotLocked() Snapshot {
	return Snapshot{
		MatchID:  c.matchID,
		State:    c.state,
		Messages: slices.Clone(c.messages),
	}
}

// Snapshot returns the current state of the conversation
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// MatchID returns the connected match, or an empty ID when closed
func (c *Conversation) MatchID() model.MatchID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matchID
}

// State returns the connection state of the current channel
func (c *Conversation) State() model.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the local message log
func (c *Conversation) Messages() []*model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

// Connect opens the push channel of matchID, closing any channel opened before. It
// returns immediately; history is fetched each time the channel becomes Open.
func (c *Conversation) Connect(ctx context.Context, matchID model.MatchID) error {
	if matchID == "" {
		return goerr.Wrap(model.ErrValidation, "match id is required")
	}

	c.mu.Lock()
	prev := c.detachLocked()

	c.gen++
	gen := c.gen
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = logging.With(runCtx, logging.From(ctx).With("match_id", matchID))

	ch := c.opener.OpenChannel("/ws/chat/"+url.PathEscape(string(matchID)), true)
	c.matchID = matchID
	c.channel = ch
	c.cancel = cancel
	c.messages = nil
	c.appended = map[model.MessageID]uint64{}
	c.version++
	c.state = model.StateConnecting
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	ch.OnStateChange(func(state model.ConnectionState) {
		c.handleState(runCtx, gen, state)
	})
	ch.OnMessage(func(data []byte) {
		c.handlePush(runCtx, gen, data)
	})
	ch.OnError(func(err error) {
		logging.From(runCtx).Warn("conversation channel failed", "error", err)
	})

	c.notify(snap)
	ch.Connect(runCtx)
	return nil
}

// detachLocked drops the current channel and returns it for closing outside the lock
func (c *Conversation) detachLocked() interfaces.Channel {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	ch := c.channel
	c.channel = nil
	return ch
}

func (c *Conversation) handleState(ctx context.Context, gen uint64, state model.ConnectionState) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = state
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	if state == model.StateOpen {
		go c.refreshQuietly(ctx, gen)
	}
}

func (c *Conversation) handlePush(ctx context.Context, gen uint64, data []byte) {
	c.mu.Lock()
	live := c.gen == gen
	c.mu.Unlock()
	if !live {
		return
	}

	ev, err := model.ParsePushEvent(data)
	if err != nil {
		logging.From(ctx).Warn("ignoring malformed push event", "error", err)
		return
	}
	if ev.Type != model.EventNewMessage {
		logging.From(ctx).Debug("ignoring push event", "type", ev.Type)
		return
	}
	go c.refreshQuietly(ctx, gen)
}

func (c *Conversation) refreshQuietly(ctx context.Context, gen uint64) {
	_, err := c.refresh(ctx, gen)
	if err == nil || ctx.Err() != nil || errors.Is(err, model.ErrChannelClosed) {
		return
	}

	c.mu.Lock()
	live := c.gen == gen
	c.mu.Unlock()
	if !live {
		return
	}

	logging.From(ctx).Warn("failed to refresh conversation", "error", err)
	c.report(ctx, err)
}

// History fetches the whole message log of the connected match and replaces the
// local log with it. Calling it repeatedly against an unchanged backend yields the
// same log.
func (c *Conversation) History(ctx context.Context) ([]*model.Message, error) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	return c.refresh(ctx, gen)
}

func (c *Conversation) refresh(ctx context.Context, gen uint64) ([]*model.Message, error) {
	c.mu.Lock()
	if c.gen != gen || c.matchID == "" {
		c.mu.Unlock()
		return nil, goerr.Wrap(model.ErrChannelClosed, "conversation is not connected")
	}
	matchID := c.matchID
	c.tickets++
	ticket := c.tickets
	startVersion := c.version
	c.mu.Unlock()

	fetched, err := c.api.ChatHistory(ctx, matchID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil, goerr.Wrap(model.ErrChannelClosed, "conversation changed during refresh", goerr.V("match_id", matchID))
	}
	if ticket < c.applied {
		// a newer refresh already landed
		msgs := slices.Clone(c.messages)
		c.mu.Unlock()
		return msgs, nil
	}

	merged := slices.Clone(fetched)
	for _, msg := range c.messages {
		at, ok := c.appended[msg.ID]
		if !ok {
			continue
		}
		switch {
		case containsMessage(fetched, msg.ID):
			delete(c.appended, msg.ID)
		case at > startVersion:
			merged = append(merged, msg)
		default:
			delete(c.appended, msg.ID)
		}
	}
	model.SortMessages(merged)

	c.messages = merged
	c.applied = ticket
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	logging.From(ctx).Debug("conversation refreshed", "match_id", matchID, "messages", len(merged))
	c.notify(snap)
	return slices.Clone(merged), nil
}

func containsMessage(msgs []*model.Message, id model.MessageID) bool {
	return slices.ContainsFunc(msgs, func(m *model.Message) bool { return m.ID == id })
}

// Send posts text to the connected match and appends the message the backend
// assigned. Blank text is rejected before any network call.
func (c *Conversation) Send(ctx context.Context, text string) (*model.Message, error) {
	text, err := model.NormalizeMessageText(text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	gen := c.gen
	matchID := c.matchID
	c.mu.Unlock()
	if matchID == "" {
		return nil, goerr.Wrap(model.ErrChannelClosed, "conversation is not connected")
	}

	msg, err := c.api.SendMessage(ctx, matchID, text)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == "" && c.self != nil {
		msg.SenderID = c.self()
	}
	if msg.MatchID == "" {
		msg.MatchID = matchID
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return msg, nil
	}
	if containsMessage(c.messages, msg.ID) {
		// a push-triggered refresh already brought it in
		c.mu.Unlock()
		return msg, nil
	}
	c.version++
	c.appended[msg.ID] = c.version
	c.messages = append(c.messages, msg)
	model.SortMessages(c.messages)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return msg, nil
}

// MarkRead marks the messages of the connected match as read. Read state is best
// effort: failures are logged, and only a rejected session is returned.
func (c *Conversation) MarkRead(ctx context.Context) error {
	matchID := c.MatchID()
	if matchID == "" {
		return nil
	}
	if err := c.api.MarkRead(ctx, matchID); err != nil {
		if model.IsUnauthorized(err) {
			return err
		}
		logging.From(ctx).Warn("failed to mark messages read", "match_id", matchID, "error", err)
	}
	return nil
}

// Unmatch deletes the connected match and closes the conversation
func (c *Conversation) Unmatch(ctx context.Context) error {
	matchID := c.MatchID()
	if matchID == "" {
		return goerr.Wrap(model.ErrChannelClosed, "conversation is not connected")
	}
	if err := c.api.DeleteMatch(ctx, matchID); err != nil {
		return err
	}
	c.Close()
	return nil
}

// Close tears the conversation down. It is safe to call more than once, and no
// callback of the closed channel changes state afterwards.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.matchID == "" && c.channel == nil {
		c.mu.Unlock()
		return
	}
	ch := c.detachLocked()
	c.gen++
	c.matchID = ""
	c.messages = nil
	c.appended = map[model.MessageID]uint64{}
	c.state = model.StateClosed
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	c.notify(snap)
}
