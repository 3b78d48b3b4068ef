package model

type MatchID string

// Match is a mutual like between two agents
type Match struct {
	ID            MatchID   `json:"id"`
	Agent1ID      AgentID   `json:"agent1_id"`
	Agent2ID      AgentID   `json:"agent2_id"`
	CreatedAt     Timestamp `json:"created_at,omitzero"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt Timestamp `json:"last_message_at,omitzero"`
	UnreadCount   int       `json:"unread_count"`
	OtherAgent    *Agent    `json:"other_agent,omitempty"`
}

// FindMatch returns the match with the given ID, or nil
func FindMatch(matches []*Match, id MatchID) *Match {
	for _, m := range matches {
		if m.ID == id {
			return m
		}
	}
	return nil
}
