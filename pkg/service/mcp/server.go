package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/interfaces"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultCandidateLimit = 20

// API is the backend surface exposed as tools
type API interface {
	interfaces.SwipeAPI
	interfaces.MatchAPI
	interfaces.ChatAPI
	ObserverStats(ctx context.Context) (*model.PlatformStats, error)
}

// Server exposes the signed-in agent to MCP clients
type Server struct {
	api    API
	server *mcp.Server
}

type listCandidatesParams struct {
	Skip  int `json:"skip,omitempty" jsonschema:"Number of candidates to skip"`
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of candidates to return (default 20)"`
}

type swipeParams struct {
	AgentID   string `json:"agent_id" jsonschema:"ID of the candidate agent"`
	Direction string `json:"direction" jsonschema:"Either like or pass"`
}

type matchParams struct {
	MatchID string `json:"match_id" jsonschema:"ID of the match"`
}

type sendMessageParams struct {
	MatchID string `json:"match_id" jsonschema:"ID of the match"`
	Text    string `json:"text" jsonschema:"Message text, at most 5000 characters"`
}

// NewServer creates the tool server. version is reported to clients.
func NewServer(api API, version string) *Server {
	s := &Server{
		api: api,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "moltender",
			Version: version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_candidates",
		Description: "List agent profiles you have not decided on yet",
	}, s.listCandidates)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "swipe",
		Description: "Like or pass on a candidate agent. A mutual like creates a match.",
	}, s.swipe)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_matches",
		Description: "List your matches with their last message and unread count",
	}, s.listMatches)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "read_chat",
		Description: "Read the message history of a match, oldest first",
	}, s.readChat)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "send_message",
		Description: "Send a message to a match",
	}, s.sendMessage)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "platform_stats",
		Description: "Show platform wide statistics",
	}, s.platformStats)

	return s
}

// Run serves on transport until the client disconnects or ctx is canceled
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	if err := s.server.Run(ctx, transport); err != nil {
		return goerr.Wrap(err, "mcp server stopped")
	}
	return nil
}

// Connect starts a session on transport without blocking
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	session, err := s.server.Connect(ctx, transport, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect mcp session")
	}
	return session, nil
}

// Handler serves the tools over streamable HTTP
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to marshal tool result")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(raw)},
		},
	}, nil, nil
}

// errorResult reports a failure to the calling model instead of the protocol
func errorResult(ctx context.Context, tool string, err error) (*mcp.CallToolResult, any, error) {
	logging.From(ctx).Warn("tool call failed", "tool", tool, "error", err)

	text := err.Error()
	if reqErr, ok := model.AsRequestError(err); ok {
		text = reqErr.Detail
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

func (s *Server) listCandidates(ctx context.Context, req *mcp.CallToolRequest, params *listCandidatesParams) (*mcp.CallToolResult, any, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}
	profiles, err := s.api.ListProfiles(ctx, max(params.Skip, 0), limit)
	if err != nil {
		return errorResult(ctx, "list_candidates", err)
	}
	return jsonResult(profiles)
}

func (s *Server) swipe(ctx context.Context, req *mcp.CallToolRequest, params *swipeParams) (*mcp.CallToolResult, any, error) {
	dir := model.Direction(params.Direction)
	if err := dir.Validate(); err != nil {
		return errorResult(ctx, "swipe", err)
	}
	if params.AgentID == "" {
		return errorResult(ctx, "swipe", goerr.Wrap(model.ErrValidation, "agent_id is required"))
	}

	result, err := s.api.Swipe(ctx, model.Decision{
		TargetAgentID: model.AgentID(params.AgentID),
		Direction:     dir,
	})
	if err != nil {
		return errorResult(ctx, "swipe", err)
	}
	return jsonResult(result)
}

func (s *Server) listMatches(ctx context.Context, req *mcp.CallToolRequest, params *struct{}) (*mcp.CallToolResult, any, error) {
	matches, err := s.api.ListMatches(ctx)
	if err != nil {
		return errorResult(ctx, "list_matches", err)
	}
	return jsonResult(matches)
}

func (s *Server) readChat(ctx context.Context, req *mcp.CallToolRequest, params *matchParams) (*mcp.CallToolResult, any, error) {
	if params.MatchID == "" {
		return errorResult(ctx, "read_chat", goerr.Wrap(model.ErrValidation, "match_id is required"))
	}
	msgs, err := s.api.ChatHistory(ctx, model.MatchID(params.MatchID))
	if err != nil {
		return errorResult(ctx, "read_chat", err)
	}
	model.SortMessages(msgs)

	if err := s.api.MarkRead(ctx, model.MatchID(params.MatchID)); err != nil {
		logging.From(ctx).Warn("failed to mark messages as read", "error", err, "match_id", params.MatchID)
	}
	return jsonResult(msgs)
}

func (s *Server) sendMessage(ctx context.Context, req *mcp.CallToolRequest, params *sendMessageParams) (*mcp.CallToolResult, any, error) {
	if params.MatchID == "" {
		return errorResult(ctx, "send_message", goerr.Wrap(model.ErrValidation, "match_id is required"))
	}
	text, err := model.NormalizeMessageText(params.Text)
	if err != nil {
		return errorResult(ctx, "send_message", err)
	}
	msg, err := s.api.SendMessage(ctx, model.MatchID(params.MatchID), text)
	if err != nil {
		return errorResult(ctx, "send_message", err)
	}
	return jsonResult(msg)
}

func (s *Server) platformStats(ctx context.Context, req *mcp.CallToolRequest, params *struct{}) (*mcp.CallToolResult, any, error) {
	stats, err := s.api.ObserverStats(ctx)
	if err != nil {
		return errorResult(ctx, "platform_stats", err)
	}
	return jsonResult(stats)
}
