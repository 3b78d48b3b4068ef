package adapter

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/interfaces"
	"github.com/m-mizutani/moltender/pkg/model"
)

var _ interfaces.API = (*Client)(nil)
var _ interfaces.ChannelOpener = (*Client)(nil)

func pagination(skip, limit int) url.Values {
	return url.Values{
		"skip":  []string{strconv.Itoa(skip)},
		"limit": []string{strconv.Itoa(limit)},
	}
}

func matchPath(prefix string, id model.MatchID, suffix string) string {
	return prefix + url.PathEscape(string(id)) + suffix
}

func (c *Client) Register(ctx context.Context, reg model.Registration) (*model.AuthResponse, error) {
	var resp model.AuthResponse
	if err := c.Call(ctx, Request{Method: http.MethodPost, Path: "/api/register", Body: reg}, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to register agent", goerr.V("agent_name", reg.Name))
	}
	return &resp, nil
}

func (c *Client) Login(ctx context.Context, apiKey string) (*model.AuthResponse, error) {
	body := map[string]string{"api_key": apiKey}
	var resp model.AuthResponse
	if err := c.Call(ctx, Request{Method: http.MethodPost, Path: "/api/login", Body: body}, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to login")
	}
	return &resp, nil
}

func (c *Client) Me(ctx context.Context) (*model.Agent, error) {
	var agent model.Agent
	if err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/api/me", Authenticated: true}, &agent); err != nil {
		return nil, goerr.Wrap(err, "failed to get current agent")
	}
	return &agent, nil
}

// RequestAPIKey asks the public endpoint for a fresh api key
func (c *Client) RequestAPIKey(ctx context.Context, agentName, modelType, contactEmail string) (*model.APIKeyGrant, error) {
	query := url.Values{
		"agent_name":    []string{agentName},
		"model_type":    []string{modelType},
		"contact_email": []string{contactEmail},
	}
	var grant model.APIKeyGrant
	if err := c.Call(ctx, Request{Method: http.MethodPost, Path: "/api/public/request-api-key", Query: query}, &grant); err != nil {
		return nil, goerr.Wrap(err, "failed to request api key", goerr.V("agent_name", agentName))
	}
	return &grant, nil
}

func (c *Client) GetProfile(ctx context.Context) (*model.Profile, error) {
	var profile model.Profile
	if err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/api/profile", Authenticated: true}, &profile); err != nil {
		return nil, goerr.Wrap(err, "failed to get profile")
	}
	return &profile, nil
}

func (c *Client) UpdateProfile(ctx context.Context, update model.ProfileUpdate) (*model.Profile, error) {
	var profile model.Profile
	if err := c.Call(ctx, Request{Method: http.MethodPut, Path: "/api/profile", Body: update, Authenticated: true}, &profile); err != nil {
		return nil, goerr.Wrap(err, "failed to update profile")
	}
	return &profile, nil
}

func (c *Client) ListProfiles(ctx context.Context, skip, limit int) ([]*model.Profile, error) {
	var profiles []*model.Profile
	req := Request{Method: http.MethodGet, Path: "/api/profiles", Query: pagination(skip, limit), Authenticated: true}
	if err := c.Call(ctx, req, &profiles); err != nil {
		return nil, goerr.Wrap(err, "failed to list profiles", goerr.V("skip", skip), goerr.V("limit", limit))
	}
	return profiles, nil
}

func (c *Client) Swipe(ctx context.Context, decision model.Decision) (*model.DecisionResult, error) {
	body := map[string]string{
		"target_agent_id": string(decision.TargetAgentID),
		"direction":       decision.Direction.Wire(),
	}
	var result model.DecisionResult
	if err := c.Call(ctx, Request{Method: http.MethodPost, Path: "/api/swipe", Body: body, Authenticated: true}, &result); err != nil {
		return nil, goerr.Wrap(err, "failed to submit decision",
			goerr.V("target", decision.TargetAgentID), goerr.V("direction", decision.Direction))
	}
	return &result, nil
}

func (c *Client) ListMatches(ctx context.Context) ([]*model.Match, error) {
	var matches []*model.Match
	if err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/api/matches", Authenticated: true}, &matches); err != nil {
		return nil, goerr.Wrap(err, "failed to list matches")
	}
	return matches, nil
}

func (c *Client) DeleteMatch(ctx context.Context, id model.MatchID) error {
	req := Request{Method: http.MethodDelete, Path: matchPath("/api/matches/", id, ""), Authenticated: true}
	if err := c.Call(ctx, req, nil); err != nil {
		return goerr.Wrap(err, "failed to delete match", goerr.V("match_id", id))
	}
	return nil
}

func (c *Client) ChatHistory(ctx context.Context, id model.MatchID) ([]*model.Message, error) {
	var msgs []*model.Message
	req := Request{Method: http.MethodGet, Path: matchPath("/api/chat/", id, ""), Authenticated: true}
	if err := c.Call(ctx, req, &msgs); err != nil {
		return nil, goerr.Wrap(err, "failed to get chat history", goerr.V("match_id", id))
	}
	return msgs, nil
}

func (c *Client) SendMessage(ctx context.Context, id model.MatchID, text string) (*model.Message, error) {
	body := map[string]string{"message_text": text}
	var msg model.Message
	req := Request{Method: http.MethodPost, Path: matchPath("/api/chat/", id, ""), Body: body, Authenticated: true}
	if err := c.Call(ctx, req, &msg); err != nil {
		return nil, goerr.Wrap(err, "failed to send message", goerr.V("match_id", id))
	}
	return &msg, nil
}

func (c *Client) MarkRead(ctx context.Context, id model.MatchID) error {
	req := Request{Method: http.MethodPost, Path: matchPath("/api/chat/", id, "/read"), Authenticated: true}
	if err := c.Call(ctx, req, nil); err != nil {
		return goerr.Wrap(err, "failed to mark messages read", goerr.V("match_id", id))
	}
	return nil
}

func (c *Client) ObserverProfiles(ctx context.Context, skip, limit int) ([]*model.Profile, error) {
	var profiles []*model.Profile
	if err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/observer/profiles", Query: pagination(skip, limit)}, &profiles); err != nil {
		return nil, goerr.Wrap(err, "failed to list observer profiles")
	}
	return profiles, nil
}

func (c *Client) ObserverMatches(ctx context.Context, skip, limit int) ([]*model.Match, error) {
	var matches []*model.Match
	if err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/observer/matches", Query: pagination(skip, limit)}, &matches); err != nil {
		return nil, goerr.Wrap(err, "failed to list observer matches")
	}
	return matches, nil
}

func (c *Client) ObserverChat(ctx context.Context, id model.MatchID) ([]*model.Message, error) {
	var msgs []*model.Message
	if err := c.Call(ctx, Request{Method: http.MethodGet, Path: matchPath("/observer/chat/", id, "")}, &msgs); err != nil {
		return nil, goerr.Wrap(err, "failed to get observer chat", goerr.V("match_id", id))
	}
	return msgs, nil
}

func (c *Client) ObserverStats(ctx context.Context) (*model.PlatformStats, error) {
	var stats model.PlatformStats
	if err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/observer/stats"}, &stats); err != nil {
		return nil, goerr.Wrap(err, "failed to get observer stats")
	}
	return &stats, nil
}
