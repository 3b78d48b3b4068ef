package mcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/service/mcp"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type mockAPI struct {
	mu      sync.Mutex
	skip    int
	limit   int
	swipes  []model.Decision
	sent    []string
	reads   int
	sendErr error
}

func (m *mockAPI) ListProfiles(ctx context.Context, skip, limit int) ([]*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skip, m.limit = skip, limit
	return []*model.Profile{{AgentID: "a1", Bio: "hello"}}, nil
}

func (m *mockAPI) Swipe(ctx context.Context, decision model.Decision) (*model.DecisionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.swipes = append(m.swipes, decision)
	score := 91.0
	return &model.DecisionResult{Success: true, MatchCreated: true, MatchID: "m1", MatchQualityScore: &score}, nil
}

func (m *mockAPI) ListMatches(ctx context.Context) ([]*model.Match, error) {
	return []*model.Match{{ID: "m1", UnreadCount: 2}}, nil
}

func (m *mockAPI) DeleteMatch(ctx context.Context, id model.MatchID) error {
	return nil
}

func (m *mockAPI) ChatHistory(ctx context.Context, id model.MatchID) ([]*model.Message, error) {
	return []*model.Message{
		{ID: "2", Text: "second"},
		{ID: "1", Text: "first"},
	}, nil
}

func (m *mockAPI) SendMessage(ctx context.Context, id model.MatchID, text string) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, text)
	return &model.Message{ID: "3", MatchID: id, Text: text}, nil
}

func (m *mockAPI) MarkRead(ctx context.Context, id model.MatchID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	return nil
}

func (m *mockAPI) ObserverStats(ctx context.Context) (*model.PlatformStats, error) {
	return &model.PlatformStats{TotalAgents: 4, TotalMatches: 2}, nil
}

func connect(t *testing.T, api mcp.API) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	server := mcp.NewServer(api, "test")
	_, err := server.Connect(ctx, serverTransport)
	gt.NoError(t, err)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callText(t *testing.T, session *mcpsdk.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	gt.NoError(t, err)
	gt.A(t, result.Content).Length(1)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	gt.True(t, ok)
	return text.Text, result.IsError
}

func TestListTools(t *testing.T) {
	session := connect(t, &mockAPI{})
	tools, err := session.ListTools(context.Background(), nil)
	gt.NoError(t, err)

	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, name := range []string{"list_candidates", "swipe", "list_matches", "read_chat", "send_message", "platform_stats"} {
		gt.True(t, names[name])
	}
}

func TestListCandidatesDefaults(t *testing.T) {
	api := &mockAPI{}
	session := connect(t, api)

	text, isErr := callText(t, session, "list_candidates", map[string]any{})
	gt.False(t, isErr)
	gt.S(t, text).Contains(`"agent_id": "a1"`)
	gt.Equal(t, api.limit, 20)
	gt.Equal(t, api.skip, 0)

	_, _ = callText(t, session, "list_candidates", map[string]any{"skip": 5, "limit": 3})
	gt.Equal(t, api.skip, 5)
	gt.Equal(t, api.limit, 3)
}

func TestSwipeTool(t *testing.T) {
	api := &mockAPI{}
	session := connect(t, api)

	text, isErr := callText(t, session, "swipe", map[string]any{"agent_id": "a1", "direction": "like"})
	gt.False(t, isErr)

	var result model.DecisionResult
	gt.NoError(t, json.Unmarshal([]byte(text), &result))
	gt.True(t, result.MatchCreated)
	gt.Equal(t, result.Score(), 91.0)
	gt.A(t, api.swipes).Length(1)
	gt.Equal(t, api.swipes[0].Direction, model.DirectionLike)

	_, isErr = callText(t, session, "swipe", map[string]any{"agent_id": "a1", "direction": "right"})
	gt.True(t, isErr)
	gt.A(t, api.swipes).Length(1)
}

func TestReadChatSortsAndMarksRead(t *testing.T) {
	api := &mockAPI{}
	session := connect(t, api)

	text, isErr := callText(t, session, "read_chat", map[string]any{"match_id": "m1"})
	gt.False(t, isErr)

	var msgs []*model.Message
	gt.NoError(t, json.Unmarshal([]byte(text), &msgs))
	gt.Equal(t, msgs[0].Text, "first")
	gt.Equal(t, api.reads, 1)
}

func TestSendMessageTool(t *testing.T) {
	api := &mockAPI{}
	session := connect(t, api)

	_, isErr := callText(t, session, "send_message", map[string]any{"match_id": "m1", "text": "  hi  "})
	gt.False(t, isErr)
	gt.Equal(t, api.sent[0], "hi")

	_, isErr = callText(t, session, "send_message", map[string]any{"match_id": "m1", "text": "   "})
	gt.True(t, isErr)
	gt.A(t, api.sent).Length(1)

	api.sendErr = &model.RequestError{Status: http.StatusNotFound, Detail: "Match not found"}
	text, isErr := callText(t, session, "send_message", map[string]any{"match_id": "gone", "text": "hi"})
	gt.True(t, isErr)
	gt.Equal(t, text, "Match not found")
}

func TestStatsAndMatches(t *testing.T) {
	session := connect(t, &mockAPI{})

	text, isErr := callText(t, session, "platform_stats", map[string]any{})
	gt.False(t, isErr)
	gt.S(t, text).Contains(`"total_agents": 4`)

	text, isErr = callText(t, session, "list_matches", map[string]any{})
	gt.False(t, isErr)
	gt.S(t, text).Contains(`"unread_count": 2`)
}

func TestHTTPHandler(t *testing.T) {
	ctx := context.Background()
	server := mcp.NewServer(&mockAPI{}, "test")
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: ts.URL}, nil)
	gt.NoError(t, err)
	defer session.Close()

	text, isErr := callText(t, session, "platform_stats", map[string]any{})
	gt.False(t, isErr)
	gt.S(t, text).Contains(`"total_matches": 2`)
}
