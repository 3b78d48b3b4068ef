package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/interfaces"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/repository"
	"github.com/m-mizutani/moltender/pkg/utils/logging"
)

// Listener is notified with the new session (nil after logout)
type Listener func(session *model.Session)

// Store owns the authenticated session. The session is replaced as a whole value so
// readers never see a token paired with another agent's identity.
type Store struct {
	api   interfaces.AuthAPI
	cache repository.SessionCache

	current atomic.Pointer[model.Session]

	// serializes writers (login, register, restore, logout) with persistence
	writeMu sync.Mutex

	listenerMu sync.Mutex
	listeners  []Listener
	onLogout   []func()
}

func New(api interfaces.AuthAPI, cache repository.SessionCache) *Store {
	return &Store{
		api:   api,
		cache: cache,
	}
}

// Current returns the active session or nil
func (s *Store) Current() *model.Session {
	return s.current.Load()
}

// Token returns the bearer token of the active session, or an empty string
func (s *Store) Token() string {
	if sess := s.current.Load(); sess != nil {
		return sess.Token
	}
	return ""
}

// AgentID returns the agent of the active session, or an empty ID
func (s *Store) AgentID() model.AgentID {
	if sess := s.current.Load(); sess != nil {
		return sess.Agent.ID
	}
	return ""
}

// Subscribe registers fn for session changes
func (s *Store) Subscribe(fn Listener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// OnLogout registers a teardown hook, e.g. closing the open conversation channel
func (s *Store) OnLogout(fn func()) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

func (s *Store) notify(sess *model.Session) {
	s.listenerMu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(sess)
	}
}

// Register creates a new agent and activates its session
func (s *Store) Register(ctx context.Context, reg model.Registration) (*model.Session, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	resp, err := s.api.Register(ctx, reg)
	if err != nil {
		return nil, err
	}
	return s.activate(ctx, resp)
}

// Login exchanges an api key for a session
func (s *Store) Login(ctx context.Context, apiKey string) (*model.Session, error) {
	if apiKey == "" {
		return nil, goerr.Wrap(model.ErrValidation, "api key is required")
	}

	resp, err := s.api.Login(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return s.activate(ctx, resp)
}

func (s *Store) activate(ctx context.Context, resp *model.AuthResponse) (*model.Session, error) {
	sess := &model.Session{
		Token: resp.AccessToken,
		Agent: resp.Agent,
	}
	if !sess.Active() {
		return nil, goerr.New("backend returned an incomplete session",
			goerr.V("has_token", resp.AccessToken != ""),
			goerr.V("agent_id", resp.Agent.ID))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.cache.Save(ctx, sess); err != nil {
		return nil, goerr.Wrap(err, "failed to persist session", goerr.V("agent_id", sess.Agent.ID))
	}
	s.current.Store(sess)

	logging.From(ctx).Info("session activated", "agent_id", sess.Agent.ID, "agent_name", sess.Agent.Name)
	s.notify(sess)
	return sess, nil
}

// Restore reinstates a cached session without contacting the backend. An expired
// token is only discovered by the first authenticated call (401).
func (s *Store) Restore(ctx context.Context) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sess, err := s.cache.Load(ctx)
	if err != nil {
		return false, goerr.Wrap(err, "failed to load cached session")
	}
	if !sess.Active() {
		return false, nil
	}

	s.current.Store(sess)
	logging.From(ctx).Debug("session restored", "agent_id", sess.Agent.ID)
	s.notify(sess)
	return true, nil
}

// RefreshIdentity re-reads the agent identity from the backend and persists it
// with the current token
func (s *Store) RefreshIdentity(ctx context.Context) (*model.Session, error) {
	prev := s.current.Load()
	if prev == nil {
		return nil, goerr.Wrap(model.ErrNotAuthenticated, "no session to refresh")
	}

	agent, err := s.api.Me(ctx)
	if err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// a logout or re-login may have happened while the call was in flight
	if s.current.Load() != prev {
		return s.current.Load(), nil
	}

	sess := &model.Session{Token: prev.Token, Agent: *agent}
	if err := s.cache.Save(ctx, sess); err != nil {
		return nil, goerr.Wrap(err, "failed to persist session", goerr.V("agent_id", agent.ID))
	}
	s.current.Store(sess)
	s.notify(sess)
	return sess, nil
}

// Logout clears the session and its durable copy and runs teardown hooks
func (s *Store) Logout(ctx context.Context) error {
	s.listenerMu.Lock()
	hooks := append([]func(){}, s.onLogout...)
	s.listenerMu.Unlock()

	for _, hook := range hooks {
		hook()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.current.Store(nil)
	s.notify(nil)

	if err := s.cache.Clear(ctx); err != nil {
		return goerr.Wrap(err, "failed to clear cached session")
	}
	logging.From(ctx).Info("session cleared")
	return nil
}
