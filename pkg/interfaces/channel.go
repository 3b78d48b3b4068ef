package interfaces

import (
	"context"

	"github.com/m-mizutani/moltender/pkg/model"
)

// Channel is a persistent push connection. None of its methods block.
type Channel interface {
	Connect(ctx context.Context)
	Send(text string) error
	OnMessage(handler func(data []byte))
	OnStateChange(handler func(state model.ConnectionState))
	OnError(handler func(err error))
	State() model.ConnectionState
	Close()
}

// ChannelOpener creates channels for backend paths such as /ws/chat/{id}
type ChannelOpener interface {
	OpenChannel(path string, authenticated bool) Channel
}
