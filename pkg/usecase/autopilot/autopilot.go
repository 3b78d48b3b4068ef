package autopilot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/interfaces"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/policy"
	"github.com/m-mizutani/moltender/pkg/usecase/swipe"
	"github.com/m-mizutani/moltender/pkg/utils/logging"
)

const (
	DefaultSwipeInterval = time.Minute
	DefaultInboxInterval = 15 * time.Second
)

// API is the part of the backend an autopilot drives
type API interface {
	interfaces.ProfileAPI
	interfaces.SwipeAPI
	interfaces.MatchAPI
	interfaces.ChatAPI
}

// Decider chooses like or pass for a candidate
type Decider interface {
	Decide(ctx context.Context, in policy.Input) (model.Direction, error)
}

// Round is the summary of one swipe round
type Round struct {
	Decided int
	Liked   int
	Matches []*swipe.Outcome
}

// UseCase drives an agent without a human: it swipes through candidates with a
// policy and answers incoming messages.
type UseCase struct {
	api       API
	queue     *swipe.Queue
	decider   Decider
	responder Responder
	persona   *model.Persona
	self      func() model.AgentID

	swipeInterval time.Duration
	inboxInterval time.Duration

	mu      sync.Mutex
	replied map[model.MessageID]struct{}
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithResponder replaces the canned replies
func WithResponder(r Responder) Option {
	return func(uc *UseCase) {
		uc.responder = r
	}
}

// WithIntervals sets how often swipe rounds and inbox checks run
func WithIntervals(swipeEvery, inboxEvery time.Duration) Option {
	return func(uc *UseCase) {
		if swipeEvery > 0 {
			uc.swipeInterval = swipeEvery
		}
		if inboxEvery > 0 {
			uc.inboxInterval = inboxEvery
		}
	}
}

// WithPageSize sets the candidate batch size
func WithPageSize(n int) Option {
	return func(uc *UseCase) {
		uc.queue = swipe.NewQueue(uc.api, swipe.WithPageSize(n))
	}
}

// New creates an autopilot. self returns the identity of the signed-in agent.
func New(api API, decider Decider, persona *model.Persona, self func() model.AgentID, opts ...Option) *UseCase {
	uc := &UseCase{
		api:           api,
		queue:         swipe.NewQueue(api),
		decider:       decider,
		responder:     CannedResponder{},
		persona:       persona,
		self:          self,
		swipeInterval: DefaultSwipeInterval,
		inboxInterval: DefaultInboxInterval,
		replied:       map[model.MessageID]struct{}{},
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// ApplyPersona writes the persona profile fields. A persona without profile
// fields is a no-op.
func (uc *UseCase) ApplyPersona(ctx context.Context) error {
	if uc.persona == nil {
		return nil
	}
	update := uc.persona.ProfileUpdate()
	if update.Empty() {
		return nil
	}
	if err := update.Validate(); err != nil {
		return err
	}
	if _, err := uc.api.UpdateProfile(ctx, update); err != nil {
		return goerr.Wrap(err, "failed to apply persona")
	}
	logging.From(ctx).Info("persona applied")
	return nil
}

// SwipeRound refills the queue and decides on every candidate of the batch. A
// created match gets the persona opener.
func (uc *UseCase) SwipeRound(ctx context.Context) (*Round, error) {
	round := &Round{}

	n, err := uc.queue.Refill(ctx)
	if err != nil {
		return round, err
	}
	if n == 0 {
		logging.From(ctx).Debug("no candidates to decide on")
		return round, nil
	}

	for uc.queue.Remaining() > 0 {
		if err := ctx.Err(); err != nil {
			return round, err
		}

		candidate, err := uc.queue.Current()
		if err != nil {
			return round, err
		}

		dir, err := uc.decider.Decide(ctx, policy.Input{Persona: uc.persona, Candidate: candidate})
		if err != nil {
			return round, goerr.Wrap(err, "failed to decide", goerr.V("candidate", candidate.AgentID))
		}

		out, err := uc.queue.Decide(ctx, dir)
		if err != nil {
			return round, goerr.Wrap(err, "failed to submit decision", goerr.V("candidate", candidate.AgentID))
		}
		round.Decided++
		if dir == model.DirectionLike {
			round.Liked++
		}

		if out.MatchCreated {
			round.Matches = append(round.Matches, out)
			logging.From(ctx).Info("matched",
				"match_id", out.MatchID,
				"agent", candidate.Agent.DisplayName(),
				"score", out.Score)

			if _, err := uc.api.SendMessage(ctx, out.MatchID, uc.persona.OpenerText()); err != nil {
				logging.From(ctx).Warn("failed to send opener", "error", err, "match_id", out.MatchID)
			}
		}
	}

	return round, nil
}

// AnswerInbox replies once to every match holding unread messages from the
// other agent and returns the number of replies sent.
func (uc *UseCase) AnswerInbox(ctx context.Context) (int, error) {
	matches, err := uc.api.ListMatches(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list matches")
	}

	self := uc.self()
	sent := 0
	var errs []error
	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		ok, err := uc.answer(ctx, self, match.ID)
		if err != nil {
			if model.IsUnauthorized(err) {
				return sent, err
			}
			errs = append(errs, err)
			continue
		}
		if ok {
			sent++
		}
	}

	return sent, errors.Join(errs...)
}

func (uc *UseCase) answer(ctx context.Context, self model.AgentID, matchID model.MatchID) (bool, error) {
	history, err := uc.api.ChatHistory(ctx, matchID)
	if err != nil {
		return false, goerr.Wrap(err, "failed to read chat history", goerr.V("match_id", matchID))
	}
	model.SortMessages(history)

	pending := uc.pending(self, history)
	if len(pending) == 0 {
		return false, nil
	}

	reply, err := uc.responder.Reply(ctx, uc.persona, self, history)
	if err != nil {
		return false, goerr.Wrap(err, "failed to compose reply", goerr.V("match_id", matchID))
	}
	if _, err := uc.api.SendMessage(ctx, matchID, reply); err != nil {
		return false, goerr.Wrap(err, "failed to send reply", goerr.V("match_id", matchID))
	}

	uc.mu.Lock()
	for _, id := range pending {
		uc.replied[id] = struct{}{}
	}
	uc.mu.Unlock()

	if err := uc.api.MarkRead(ctx, matchID); err != nil {
		logging.From(ctx).Warn("failed to mark messages as read", "error", err, "match_id", matchID)
	}
	logging.From(ctx).Info("replied", "match_id", matchID, "unread", len(pending))
	return true, nil
}

// pending returns the unread messages from the other agent not answered yet
func (uc *UseCase) pending(self model.AgentID, history []*model.Message) []model.MessageID {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	var ids []model.MessageID
	for _, msg := range history {
		if msg.SenderID == self || !msg.Unread() {
			continue
		}
		if _, done := uc.replied[msg.ID]; done {
			continue
		}
		ids = append(ids, msg.ID)
	}
	return ids
}

// Run applies the persona and then swipes and answers on their intervals until
// ctx is canceled or the session is rejected.
func (uc *UseCase) Run(ctx context.Context) error {
	if err := uc.ApplyPersona(ctx); err != nil {
		return err
	}

	swipeTicker := time.NewTicker(uc.swipeInterval)
	defer swipeTicker.Stop()
	inboxTicker := time.NewTicker(uc.inboxInterval)
	defer inboxTicker.Stop()

	if err := uc.swipeStep(ctx); err != nil {
		return err
	}
	if err := uc.inboxStep(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-swipeTicker.C:
			if err := uc.swipeStep(ctx); err != nil {
				return err
			}
		case <-inboxTicker.C:
			if err := uc.inboxStep(ctx); err != nil {
				return err
			}
		}
	}
}

// swipeStep and inboxStep only surface errors that end the run
func (uc *UseCase) swipeStep(ctx context.Context) error {
	round, err := uc.SwipeRound(ctx)
	if err != nil {
		if model.IsUnauthorized(err) {
			return err
		}
		if ctx.Err() == nil {
			logging.From(ctx).Warn("swipe round failed", "error", err)
		}
	}
	logging.From(ctx).Info("swipe round done",
		"decided", round.Decided,
		"liked", round.Liked,
		"matches", len(round.Matches))
	return nil
}

func (uc *UseCase) inboxStep(ctx context.Context) error {
	sent, err := uc.AnswerInbox(ctx)
	if err != nil {
		if model.IsUnauthorized(err) {
			return err
		}
		if ctx.Err() == nil {
			logging.From(ctx).Warn("inbox check failed", "error", err)
		}
	}
	if sent > 0 {
		logging.From(ctx).Info("inbox answered", "replies", sent)
	}
	return nil
}
