// Package testtools provides in-process fakes of the push channel and object storage for tests
package testtools

import (
	"context"
	"sync"

	"github.com/m-mizutani/moltender/pkg/interfaces"
	"github.com/m-mizutani/moltender/pkg/model"
)

// Channel is a fake push channel driven by the test. Connect moves it to Connecting;
// the test then calls SetState and Push to simulate the backend.
type Channel struct {
	Path          string
	Authenticated bool

	mu        sync.Mutex
	state     model.ConnectionState
	connects  int
	closes    int
	sent      []string
	onMessage func([]byte)
	onState   func(model.ConnectionState)
	onError   func(error)
}

var _ interfaces.Channel = (*Channel)(nil)

func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	c.connects++
	c.mu.Unlock()
	c.SetState(model.StateConnecting)
}

func (c *Channel) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *Channel) OnMessage(handler func([]byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

func (c *Channel) OnStateChange(handler func(model.ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = handler
}

func (c *Channel) OnError(handler func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

func (c *Channel) State() model.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close records the call and reports Closed. Unlike the real channel it keeps the
// handlers, so tests can deliver late frames to a closed owner.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.SetState(model.StateClosed)
}

// SetState changes the state and calls the state handler
func (c *Channel) SetState(state model.ConnectionState) {
	c.mu.Lock()
	c.state = state
	handler := c.onState
	c.mu.Unlock()
	if handler != nil {
		handler(state)
	}
}

// Push delivers a raw frame to the message handler
func (c *Channel) Push(data string) {
	c.mu.Lock()
	handler := c.onMessage
	c.mu.Unlock()
	if handler != nil {
		handler([]byte(data))
	}
}

// Fail delivers err to the error handler
func (c *Channel) Fail(err error) {
	c.mu.Lock()
	handler := c.onError
	c.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// Connects returns how many times Connect was called
func (c *Channel) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Closes returns how many times Close was called
func (c *Channel) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// Opener hands out fake channels and keeps them for inspection
type Opener struct {
	mu       sync.Mutex
	channels []*Channel
}

var _ interfaces.ChannelOpener = (*Opener)(nil)

func (o *Opener) OpenChannel(path string, authenticated bool) interfaces.Channel {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := &Channel{Path: path, Authenticated: authenticated}
	o.channels = append(o.channels, ch)
	return ch
}

// Channels returns every channel opened so far
func (o *Opener) Channels() []*Channel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Channel(nil), o.channels...)
}

// Last returns the most recently opened channel, or nil
func (o *Opener) Last() *Channel {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.channels) == 0 {
		return nil
	}
	return o.channels[len(o.channels)-1]
}
