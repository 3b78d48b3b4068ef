package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/utils/logging"
)

// Backoff returns the delay before reconnection attempt n (starting at 1)
type Backoff func(attempt int) time.Duration

// DefaultBackoff doubles from 500ms up to 30s
func DefaultBackoff() Backoff {
	return ExponentialBackoff(500*time.Millisecond, 30*time.Second)
}

// ExponentialBackoff doubles base on every attempt and caps it at max
func ExponentialBackoff(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		return min(d, max)
	}
}

const sendBufferSize = 16

// channel is a websocket push connection with indefinite reconnection. Each
// Connect starts a new generation; callbacks of older generations are dropped.
type channel struct {
	path       string
	resolve    func() (string, error)
	dialer     *websocket.Dialer
	backoff    Backoff
	maxRetries int

	mu        sync.Mutex
	gen       uint64
	state     model.ConnectionState
	cancel    context.CancelFunc
	conn      *websocket.Conn
	outbox    chan []byte
	onMessage func([]byte)
	onState   func(model.ConnectionState)
	onError   func(error)
}

func newChannel(path string, resolve func() (string, error), dialer *websocket.Dialer, backoff Backoff, maxRetries int) *channel {
	if backoff == nil {
		backoff = DefaultBackoff()
	}
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &channel{
		path:       path,
		resolve:    resolve,
		dialer:     dialer,
		backoff:    backoff,
		maxRetries: maxRetries,
		state:      model.StateClosed,
	}
}

func (ch *channel) OnMessage(handler func([]byte)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onMessage = handler
}

func (ch *channel) OnStateChange(handler func(model.ConnectionState)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onState = handler
}

func (ch *channel) OnError(handler func(error)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onError = handler
}

func (ch *channel) State() model.ConnectionState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Connect starts dialing in the background. A previous generation is cancelled.
func (ch *channel) Connect(ctx context.Context) {
	ch.mu.Lock()
	ch.stopLocked()
	ch.gen++
	gen := ch.gen
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ch.cancel = cancel
	ch.outbox = make(chan []byte, sendBufferSize)
	outbox := ch.outbox
	ch.mu.Unlock()

	logger := logging.From(ctx).With("channel", ch.path)
	runCtx = logging.With(runCtx, logger)

	ch.setState(runCtx, gen, model.StateConnecting)
	go ch.run(runCtx, gen, outbox)
}

// Send queues text for delivery on the open connection without blocking
func (ch *channel) Send(text string) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.state != model.StateOpen || ch.outbox == nil {
		return goerr.New("channel is not open", goerr.V("path", ch.path), goerr.V("state", ch.state.String()))
	}
	select {
	case ch.outbox <- []byte(text):
		return nil
	default:
		return goerr.New("channel send buffer is full", goerr.V("path", ch.path))
	}
}

// Close tears the channel down. It is safe to call more than once.
func (ch *channel) Close() {
	ch.mu.Lock()
	wasOpen := ch.state != model.StateClosed
	ch.stopLocked()
	ch.gen++
	ch.state = model.StateClosed
	handler := ch.onState
	ch.mu.Unlock()

	if wasOpen && handler != nil {
		handler(model.StateClosed)
	}
}

func (ch *channel) stopLocked() {
	if ch.cancel != nil {
		ch.cancel()
		ch.cancel = nil
	}
	if ch.conn != nil {
		_ = ch.conn.Close()
		ch.conn = nil
	}
	ch.outbox = nil
}

// current reports whether gen is still the live generation
func (ch *channel) current(gen uint64) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.gen == gen
}

func (ch *channel) setState(ctx context.Context, gen uint64, state model.ConnectionState) {
	ch.mu.Lock()
	if ch.gen != gen || ch.state == state {
		ch.mu.Unlock()
		return
	}
	ch.state = state
	handler := ch.onState
	ch.mu.Unlock()

	logging.From(ctx).Debug("channel state changed", "state", state.String())
	if handler != nil {
		handler(state)
	}
}

func (ch *channel) deliver(gen uint64, data []byte) {
	ch.mu.Lock()
	if ch.gen != gen {
		ch.mu.Unlock()
		return
	}
	handler := ch.onMessage
	ch.mu.Unlock()

	if handler != nil {
		handler(data)
	}
}

func (ch *channel) fail(ctx context.Context, gen uint64, err error) {
	ch.mu.Lock()
	if ch.gen != gen {
		ch.mu.Unlock()
		return
	}
	ch.state = model.StateClosed
	ch.cancel = nil
	handler, stateHandler := ch.onError, ch.onState
	ch.mu.Unlock()

	logging.From(ctx).Warn("channel gave up reconnecting", "error", err)
	if stateHandler != nil {
		stateHandler(model.StateClosed)
	}
	if handler != nil {
		handler(err)
	}
}

func (ch *channel) run(ctx context.Context, gen uint64, outbox chan []byte) {
	attempt := 0
	for {
		err := ch.session(ctx, gen, outbox, &attempt)
		if ctx.Err() != nil || !ch.current(gen) {
			return
		}

		attempt++
		if ch.maxRetries > 0 && attempt > ch.maxRetries {
			ch.fail(ctx, gen, goerr.Wrap(model.ErrConnection, "reconnection attempts exhausted",
				goerr.V("path", ch.path),
				goerr.V("attempts", attempt-1),
				goerr.V("last_error", err.Error())))
			return
		}

		ch.setState(ctx, gen, model.StateReconnecting)
		delay := ch.backoff(attempt)
		logging.From(ctx).Info("channel reconnecting", "attempt", attempt, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials once and pumps frames until the connection drops
func (ch *channel) session(ctx context.Context, gen uint64, outbox chan []byte, attempt *int) error {
	target, err := ch.resolve()
	if err != nil {
		return err
	}

	conn, _, err := ch.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to dial channel", goerr.V("path", ch.path))
	}

	ch.mu.Lock()
	if ch.gen != gen {
		ch.mu.Unlock()
		_ = conn.Close()
		return ctx.Err()
	}
	ch.conn = conn
	ch.mu.Unlock()

	*attempt = 0
	ch.setState(ctx, gen, model.StateOpen)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case data := <-outbox:
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					logging.From(ctx).Warn("failed to write to channel", "error", err)
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			ch.mu.Lock()
			if ch.conn == conn {
				ch.conn = nil
			}
			ch.mu.Unlock()
			_ = conn.Close()
			return goerr.Wrap(err, "channel read failed", goerr.V("path", ch.path))
		}
		ch.deliver(gen, data)
	}
}
