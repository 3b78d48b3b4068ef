package observer

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/interfaces"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/utils/logging"
)

const (
	// DefaultActivityCap is the number of activity entries retained
	DefaultActivityCap = 50
	// DefaultPageSize is the page size of the initial profile and match loads
	DefaultPageSize = 50

	channelPath = "/ws/observer"
)

// Snapshot is an immutable view of the feed
type Snapshot struct {
	State    model.ConnectionState
	Stats    *model.PlatformStats
	Profiles []*model.Profile
	Matches  []*model.Match
	Activity []model.ActivityEntry
}

// Listener receives a snapshot after every change
type Listener func(Snapshot)

// Feed follows the global activity stream without authentication
type Feed struct {
	api         interfaces.ObserverAPI
	opener      interfaces.ChannelOpener
	activityCap int
	pageSize    int
	now         func() time.Time

	mu       sync.Mutex
	gen      uint64
	channel  interfaces.Channel
	cancel   context.CancelFunc
	state    model.ConnectionState
	stats    *model.PlatformStats
	profiles []*model.Profile
	matches  []*model.Match
	activity []model.ActivityEntry

	statsLoads   tickets
	matchesLoads tickets

	listenerMu sync.Mutex
	listeners  []Listener
}

// tickets orders concurrent loads of the same data. A result is applied only when
// no load issued after it has already been applied.
type tickets struct {
	issued  uint64
	applied uint64
}

func (t *tickets) next() uint64 {
	t.issued++
	return t.issued
}

func (t *tickets) accept(ticket uint64) bool {
	if ticket < t.applied {
		return false
	}
	t.applied = ticket
	return true
}

type Option func(*Feed)

// WithActivityCap sets how many activity entries are kept
func WithActivityCap(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.activityCap = n
		}
	}
}

// WithPageSize sets the page size of profile and match loads
func WithPageSize(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

// WithClock replaces the clock used for entries without a server timestamp
func WithClock(now func() time.Time) Option {
	return func(f *Feed) {
		f.now = now
	}
}

func New(api interfaces.ObserverAPI, opener interfaces.ChannelOpener, opts ...Option) *Feed {
	f := &Feed{
		api:         api,
		opener:      opener,
		activityCap: DefaultActivityCap,
		pageSize:    DefaultPageSize,
		now:         time.Now,
		state:       model.StateClosed,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscribe registers fn for feed changes
func (f *Feed) Subscribe(fn Listener) {
	f.listenerMu.Lock()
	defer f.listenerMu.Unlock()
	f.listeners = append(f.listeners, fn)
}

func (f *Feed) notify(snap Snapshot) {
	f.listenerMu.Lock()
	listeners := append([]Listener(nil), f.listeners...)
	f.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (f *Feed) snapshotLocked() Snapshot {
	return Snapshot{
		State:    f.state,
		Stats:    f.stats,
		Profiles: slices.Clone(f.profiles),
		Matches:  slices.Clone(f.matches),
		Activity: slices.Clone(f.activity),
	}
}

// Snapshot returns the current state of the feed
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Start opens the broadcast channel and loads stats, profiles and matches. Each load
// is independent; a failed one is logged and reported without stopping the others.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	prev := f.detachLocked()
	f.gen++
	gen := f.gen
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = logging.With(runCtx, logging.From(ctx).With("feed", "observer"))
	ch := f.opener.OpenChannel(channelPath, false)
	f.channel = ch
	f.cancel = cancel
	f.activity = nil
	f.state = model.StateConnecting
	f.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	ch.OnStateChange(func(state model.ConnectionState) {
		f.handleState(gen, state)
	})
	ch.OnMessage(func(data []byte) {
		f.handlePush(runCtx, gen, data)
	})
	ch.OnError(func(err error) {
		logging.From(runCtx).Warn("observer channel failed", "error", err)
	})
	ch.Connect(runCtx)

	return f.load(runCtx, gen)
}

func (f *Feed) load(ctx context.Context, gen uint64) error {
	var errs []error
	if err := f.refreshStats(ctx, gen); err != nil {
		errs = append(errs, err)
	}
	if err := f.refreshProfiles(ctx, gen); err != nil {
		errs = append(errs, err)
	}
	if err := f.refreshMatches(ctx, gen); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stop closes the broadcast channel. It is safe to call more than once.
func (f *Feed) Stop() {
	f.mu.Lock()
	if f.channel == nil {
		f.mu.Unlock()
		return
	}
	ch := f.detachLocked()
	f.gen++
	f.state = model.StateClosed
	snap := f.snapshotLocked()
	f.mu.Unlock()

	ch.Close()
	f.notify(snap)
}

func (f *Feed) detachLocked() interfaces.Channel {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	ch := f.channel
	f.channel = nil
	return ch
}

// apply runs fn under the lock if gen is still live, then notifies
func (f *Feed) apply(gen uint64, fn func()) bool {
	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		return false
	}
	fn()
	snap := f.snapshotLocked()
	f.mu.Unlock()

	f.notify(snap)
	return true
}

func (f *Feed) handleState(gen uint64, state model.ConnectionState) {
	f.apply(gen, func() { f.state = state })
}

func (f *Feed) handlePush(ctx context.Context, gen uint64, data []byte) {
	ev, err := model.ParsePushEvent(data)
	if err != nil {
		logging.From(ctx).Warn("ignoring malformed push event", "error", err)
		return
	}
	if ev.Type != model.EventNewMatch {
		logging.From(ctx).Debug("ignoring push event", "type", ev.Type)
		return
	}

	entry := model.ActivityEntry{
		ID:          model.NewActivityID(),
		Kind:        ev.Type,
		Description: "New match between agents!",
		Timestamp:   ev.Timestamp,
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = model.Timestamp{Time: f.now().UTC()}
	}
	if !f.apply(gen, func() { f.prependActivityLocked(entry) }) {
		return
	}

	go func() {
		if err := f.refreshStats(ctx, gen); err != nil {
			logging.From(ctx).Warn("failed to refresh stats", "error", err)
		}
	}()
	go func() {
		if err := f.refreshMatches(ctx, gen); err != nil {
			logging.From(ctx).Warn("failed to refresh matches", "error", err)
		}
	}()
}

func (f *Feed) prependActivityLocked(entry model.ActivityEntry) {
	f.activity = append([]model.ActivityEntry{entry}, f.activity...)
	if len(f.activity) > f.activityCap {
		f.activity = f.activity[:f.activityCap]
	}
}

func (f *Feed) issue(t *tickets) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return t.next()
}

func (f *Feed) refreshStats(ctx context.Context, gen uint64) error {
	ticket := f.issue(&f.statsLoads)
	stats, err := f.api.ObserverStats(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to load platform stats")
	}
	f.apply(gen, func() {
		if f.statsLoads.accept(ticket) {
			f.stats = stats
		}
	})
	return nil
}

func (f *Feed) refreshProfiles(ctx context.Context, gen uint64) error {
	profiles, err := f.api.ObserverProfiles(ctx, 0, f.pageSize)
	if err != nil {
		return goerr.Wrap(err, "failed to load profiles")
	}
	f.apply(gen, func() { f.profiles = profiles })
	return nil
}

func (f *Feed) refreshMatches(ctx context.Context, gen uint64) error {
	ticket := f.issue(&f.matchesLoads)
	matches, err := f.api.ObserverMatches(ctx, 0, f.pageSize)
	if err != nil {
		return goerr.Wrap(err, "failed to load matches")
	}
	f.apply(gen, func() {
		if f.matchesLoads.accept(ticket) {
			f.matches = matches
		}
	})
	return nil
}

// Transcript returns the read-only message log of any match
func (f *Feed) Transcript(ctx context.Context, matchID model.MatchID) ([]*model.Message, error) {
	msgs, err := f.api.ObserverChat(ctx, matchID)
	if err != nil {
		return nil, err
	}
	model.SortMessages(msgs)
	return msgs, nil
}
