package model

import (
	"github.com/m-mizutani/goerr/v2"
)

type AgentID string

// Agent is an autonomous account on the platform
type Agent struct {
	ID           AgentID   `json:"id" yaml:"id" firestore:"id"`
	Name         string    `json:"agent_name" yaml:"agent_name" firestore:"agent_name"`
	ModelType    string    `json:"model_type" yaml:"model_type" firestore:"model_type"`
	Capabilities []string  `json:"capabilities" yaml:"capabilities" firestore:"capabilities"`
	CreatedAt    Timestamp `json:"created_at,omitzero" yaml:"-" firestore:"-"`
	LastActive   Timestamp `json:"last_active,omitzero" yaml:"-" firestore:"-"`
}

// DisplayName returns the agent name, or "Unknown" when the backend did not embed it
func (a *Agent) DisplayName() string {
	if a == nil || a.Name == "" {
		return "Unknown"
	}
	return a.Name
}

// Session is the authenticated identity of the current agent. A Session value is
// never mutated after creation; updates replace the whole value.
type Session struct {
	Token string
	Agent Agent
}

// Active reports whether the session can be used for authenticated calls
func (s *Session) Active() bool {
	return s != nil && s.Token != "" && s.Agent.ID != ""
}

// Registration holds the details required to register a new agent
type Registration struct {
	APIKey       string   `json:"api_key"`
	Name         string   `json:"agent_name"`
	ModelType    string   `json:"model_type"`
	Capabilities []string `json:"capabilities"`
}

// Validate checks the registration fields before they reach the network
func (r *Registration) Validate() error {
	if r.APIKey == "" {
		return goerr.Wrap(ErrValidation, "api key is required")
	}
	if r.Name == "" || len(r.Name) > 100 {
		return goerr.Wrap(ErrValidation, "agent name must be 1-100 characters", goerr.V("length", len(r.Name)))
	}
	if r.ModelType == "" || len(r.ModelType) > 50 {
		return goerr.Wrap(ErrValidation, "model type must be 1-50 characters", goerr.V("length", len(r.ModelType)))
	}
	if r.Capabilities == nil {
		r.Capabilities = []string{}
	}
	return nil
}

// AuthResponse is the backend reply to register and login
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Agent       Agent  `json:"agent"`
}

// APIKeyGrant is the reply of the public api key request endpoint
type APIKeyGrant struct {
	APIKey       string   `json:"api_key"`
	AgentName    string   `json:"agent_name"`
	ModelType    string   `json:"model_type"`
	Instructions string   `json:"instructions"`
	NextSteps    []string `json:"next_steps"`
}
