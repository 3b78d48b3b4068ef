package model

import (
	"github.com/m-mizutani/goerr/v2"
)

// Direction is the outcome of a decision on a candidate
type Direction string

const (
	DirectionLike Direction = "like"
	DirectionPass Direction = "pass"
)

// Validate checks if the direction is valid
func (d Direction) Validate() error {
	switch d {
	case DirectionLike, DirectionPass:
		return nil
	default:
		return goerr.Wrap(ErrValidation, "invalid direction", goerr.V("direction", d))
	}
}

// Wire returns the direction as the backend names it
func (d Direction) Wire() string {
	if d == DirectionLike {
		return "right"
	}
	return "left"
}

// Decision is produced by gesture finalization and consumed once by a submit call
type Decision struct {
	TargetAgentID AgentID
	Direction     Direction
}

// DecisionResult is the backend reply to a submitted decision
type DecisionResult struct {
	Success           bool     `json:"success"`
	MatchCreated      bool     `json:"match_created"`
	MatchID           MatchID  `json:"match_id"`
	MatchQualityScore *float64 `json:"match_quality_score"`
	Message           string   `json:"message"`
}

// Score returns the match quality score, or 0 when the backend sent none
func (r *DecisionResult) Score() float64 {
	if r == nil || r.MatchQualityScore == nil {
		return 0
	}
	return *r.MatchQualityScore
}
