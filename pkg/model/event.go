package model

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// EventType is the kind of a push notification
type EventType string

const (
	EventNewMessage EventType = "new_message"
	EventNewMatch   EventType = "new_match"
)

// PushEvent is a notification received over a persistent channel. Channels never
// carry content; they only tell the client that something changed.
type PushEvent struct {
	Type      EventType `json:"type"`
	MatchID   MatchID   `json:"match_id,omitempty"`
	Agent1ID  AgentID   `json:"agent1_id,omitempty"`
	Agent2ID  AgentID   `json:"agent2_id,omitempty"`
	Timestamp Timestamp `json:"timestamp,omitzero"`
}

// ParsePushEvent decodes a raw channel frame
func ParsePushEvent(data []byte) (*PushEvent, error) {
	var ev PushEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, goerr.Wrap(err, "failed to decode push event", goerr.V("data", string(data)))
	}
	if ev.Type == "" {
		return nil, goerr.New("push event has no type", goerr.V("data", string(data)))
	}
	return &ev, nil
}

// ConnectionState is the lifecycle state of a persistent channel
type ConnectionState int

const (
	StateClosed ConnectionState = iota
	StateConnecting
	StateOpen
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
