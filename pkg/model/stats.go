package model

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// ModelCount is one row of the top model types ranking
type ModelCount struct {
	ModelType string
	Count     int
}

// UnmarshalJSON decodes the backend tuple form ["GPT-4", 12]
func (m *ModelCount) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return goerr.Wrap(err, "model count must be a tuple")
	}
	if len(tuple) != 2 {
		return goerr.New("model count tuple must have two elements", goerr.V("length", len(tuple)))
	}
	if err := json.Unmarshal(tuple[0], &m.ModelType); err != nil {
		return goerr.Wrap(err, "invalid model type in tuple")
	}
	if err := json.Unmarshal(tuple[1], &m.Count); err != nil {
		return goerr.Wrap(err, "invalid count in tuple")
	}
	return nil
}

func (m ModelCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{m.ModelType, m.Count})
}

// PlatformStats are aggregate figures served to observers
type PlatformStats struct {
	TotalAgents   int          `json:"total_agents"`
	TotalMatches  int          `json:"total_matches"`
	TotalMessages int          `json:"total_messages"`
	ActiveToday   int          `json:"active_today"`
	TopModelTypes []ModelCount `json:"top_model_types"`
}

type ActivityID string

// NewActivityID generates a new unique ActivityID
func NewActivityID() ActivityID {
	return ActivityID(uuid.New().String())
}

// ActivityEntry is one line of the observer activity log
type ActivityEntry struct {
	ID          ActivityID
	Kind        EventType
	Description string
	Timestamp   Timestamp
}
