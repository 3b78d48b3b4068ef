package swipe

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/interfaces"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/utils/logging"
)

// DefaultPageSize is the number of candidates fetched per refill
const DefaultPageSize = 20

// State of a candidate queue
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateReady
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Outcome is what a submitted decision produced
type Outcome struct {
	Candidate    *model.Profile
	Direction    model.Direction
	MatchCreated bool
	MatchID      model.MatchID
	Score        float64
	Message      string
}

// Queue is an ordered, consumable list of candidates with a cursor. Decisions are
// serialized: only one submission is in flight at a time.
type Queue struct {
	api      interfaces.SwipeAPI
	pageSize int

	mu       sync.Mutex
	state    State
	profiles []*model.Profile
	cursor   int
	offset   int
	inFlight bool
	epoch    uint64
}

type Option func(*Queue)

// WithPageSize sets the refill batch size
func WithPageSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.pageSize = n
		}
	}
}

func NewQueue(api interfaces.SwipeAPI, opts ...Option) *Queue {
	q := &Queue{
		api:      api,
		pageSize: DefaultPageSize,
		state:    StateEmpty,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// State returns the current queue state
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Cursor returns the index of the current candidate
func (q *Queue) Cursor() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor
}

// Offset returns the source offset used by the next refill
func (q *Queue) Offset() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.offset
}

// Len returns the number of candidates in the current batch
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.profiles)
}

// Remaining returns the number of undecided candidates
func (q *Queue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.profiles) - q.cursor
}

// Refill replaces the batch with the next page of candidates and returns its size.
// Zero means no more candidates; the queue is then Exhausted.
func (q *Queue) Refill(ctx context.Context) (int, error) {
	q.mu.Lock()
	if q.inFlight {
		q.mu.Unlock()
		return 0, goerr.Wrap(model.ErrDecisionInFlight, "cannot refill while a decision is pending")
	}
	if q.state == StateLoading {
		q.mu.Unlock()
		return 0, goerr.New("refill already in progress")
	}

	// the backend drops decided candidates from its results, so only the
	// undecided ones left behind shift the offset
	offset := q.offset + len(q.profiles) - q.cursor
	prev := q.state
	epoch := q.epoch
	q.state = StateLoading
	q.mu.Unlock()

	profiles, err := q.api.ListProfiles(ctx, offset, q.pageSize)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.epoch != epoch {
		return 0, goerr.New("queue was reset during refill")
	}
	if err != nil {
		q.state = prev
		return 0, goerr.Wrap(err, "failed to refill candidates", goerr.V("offset", offset))
	}

	q.offset = offset
	q.profiles = profiles
	q.cursor = 0
	q.epoch++
	if len(profiles) == 0 {
		q.state = StateExhausted
		logging.From(ctx).Debug("no more candidates", "offset", offset)
		return 0, nil
	}

	q.state = StateReady
	logging.From(ctx).Debug("candidates refilled", "offset", offset, "count", len(profiles))
	return len(profiles), nil
}

// Current returns the candidate at the cursor
func (q *Queue) Current() (*model.Profile, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentLocked()
}

func (q *Queue) currentLocked() (*model.Profile, error) {
	if q.cursor >= len(q.profiles) {
		return nil, goerr.Wrap(model.ErrOutOfRange, "queue has no current candidate",
			goerr.V("cursor", q.cursor), goerr.V("length", len(q.profiles)))
	}
	return q.profiles[q.cursor], nil
}

// Decide submits a decision on the current candidate. The cursor moves forward once the
// backend accepts the decision, whether or not a match was created. A rejected
// submission leaves the cursor where it was.
func (q *Queue) Decide(ctx context.Context, dir model.Direction) (*Outcome, error) {
	if err := dir.Validate(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	if q.inFlight {
		q.mu.Unlock()
		return nil, goerr.Wrap(model.ErrDecisionInFlight, "decision rejected", goerr.V("direction", dir))
	}
	candidate, err := q.currentLocked()
	if err != nil {
		q.mu.Unlock()
		return nil, err
	}
	q.inFlight = true
	epoch := q.epoch
	q.mu.Unlock()

	result, err := q.api.Swipe(ctx, model.Decision{
		TargetAgentID: candidate.AgentID,
		Direction:     dir,
	})

	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight = false

	if err != nil {
		return nil, err
	}

	// a reset during the submission replaced the batch
	if q.epoch == epoch {
		q.cursor++
		if q.cursor >= len(q.profiles) {
			q.state = StateExhausted
		}
	}

	out := &Outcome{
		Candidate:    candidate,
		Direction:    dir,
		MatchCreated: result.MatchCreated,
		MatchID:      result.MatchID,
		Score:        result.Score(),
		Message:      result.Message,
	}
	logging.From(ctx).Debug("decision submitted",
		"target", candidate.AgentID,
		"direction", dir,
		"match_created", out.MatchCreated)
	return out, nil
}

// Reset drops the batch and pagination, e.g. after the session changed
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.profiles = nil
	q.cursor = 0
	q.offset = 0
	q.epoch++
	q.state = StateEmpty
}
