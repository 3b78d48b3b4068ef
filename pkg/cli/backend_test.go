package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/moltender/pkg/model"
)

const (
	testAPIKey = "key-ava"
	testToken  = "token-ava"
	selfID     = model.AgentID("agent-ava")
)

// fakeBackend serves the REST endpoints of the matching service from memory
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu         sync.Mutex
	token      string
	agent      model.Agent
	profile    model.Profile
	updates    []model.ProfileUpdate
	candidates []*model.Profile
	likedBack  map[model.AgentID]bool
	swipes     []map[string]string
	matches    []*model.Match
	messages   map[model.MatchID][]*model.Message
	deleted    []model.MatchID
	seq        int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		t:     t,
		token: testToken,
		agent: model.Agent{
			ID:           selfID,
			Name:         "Ava",
			ModelType:    "GPT-4",
			Capabilities: []string{"coding"},
		},
		profile: model.Profile{AgentID: selfID, Bio: "curious agent"},
		candidates: []*model.Profile{
			{AgentID: "agent-bob", Bio: "I like Go", Agent: &model.Agent{ID: "agent-bob", Name: "Bob", ModelType: "Claude"}},
			{AgentID: "agent-cid", Bio: "poetry bot", Agent: &model.Agent{ID: "agent-cid", Name: "Cid", ModelType: "Llama"}},
		},
		likedBack: map[model.AgentID]bool{"agent-bob": true},
		messages:  map[model.MatchID][]*model.Message{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", b.register)
	mux.HandleFunc("POST /api/login", b.login)
	mux.HandleFunc("GET /api/me", b.authed(b.me))
	mux.HandleFunc("POST /api/public/request-api-key", b.requestKey)
	mux.HandleFunc("GET /api/profile", b.authed(b.getProfile))
	mux.HandleFunc("PUT /api/profile", b.authed(b.putProfile))
	mux.HandleFunc("GET /api/profiles", b.authed(b.listProfiles))
	mux.HandleFunc("POST /api/swipe", b.authed(b.swipe))
	mux.HandleFunc("GET /api/matches", b.authed(b.listMatches))
	mux.HandleFunc("DELETE /api/matches/{id}", b.authed(b.deleteMatch))
	mux.HandleFunc("GET /api/chat/{id}", b.authed(b.history))
	mux.HandleFunc("POST /api/chat/{id}", b.authed(b.send))
	mux.HandleFunc("POST /api/chat/{id}/read", b.authed(b.markRead))
	mux.HandleFunc("GET /observer/stats", b.stats)
	mux.HandleFunc("GET /observer/profiles", b.observerProfiles)
	mux.HandleFunc("GET /observer/matches", b.observerMatches)
	mux.HandleFunc("GET /observer/chat/{id}", b.history)

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) URL() string { return b.srv.URL }

// revoke makes every token invalid
func (b *fakeBackend) revoke() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = ""
}

func (b *fakeBackend) addMessage(matchID model.MatchID, sender model.AgentID, text string) *model.Message {
	b.seq++
	msg := &model.Message{
		ID:        model.MessageID(fmt.Sprintf("msg-%03d", b.seq)),
		MatchID:   matchID,
		SenderID:  sender,
		Text:      text,
		CreatedAt: model.Timestamp{Time: time.Date(2025, 1, 1, 12, 0, b.seq, 0, time.UTC)},
	}
	b.messages[matchID] = append(b.messages[matchID], msg)
	return msg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (b *fakeBackend) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		token := b.token
		b.mu.Unlock()
		if token == "" || r.Header.Get("Authorization") != "Bearer "+token {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next(w, r)
	}
}

func (b *fakeBackend) auth(w http.ResponseWriter, apiKey string) {
	if apiKey != testAPIKey {
		writeDetail(w, http.StatusUnauthorized, "Invalid API key")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, model.AuthResponse{
		AccessToken: b.token,
		TokenType:   "bearer",
		Agent:       b.agent,
	})
}

func (b *fakeBackend) register(w http.ResponseWriter, r *http.Request) {
	var reg model.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeDetail(w, http.StatusBadRequest, "bad body")
		return
	}
	b.mu.Lock()
	b.agent.Name = reg.Name
	b.agent.ModelType = reg.ModelType
	b.agent.Capabilities = reg.Capabilities
	b.mu.Unlock()
	b.auth(w, reg.APIKey)
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "bad body")
		return
	}
	b.auth(w, body["api_key"])
}

func (b *fakeBackend) me(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, b.agent)
}

func (b *fakeBackend) requestKey(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, model.APIKeyGrant{
		APIKey:       "key-" + q.Get("agent_name"),
		AgentName:    q.Get("agent_name"),
		ModelType:    q.Get("model_type"),
		Instructions: "Keep this key secret.",
		NextSteps:    []string{"Register your agent", "Start swiping"},
	})
}

func (b *fakeBackend) getProfile(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, b.profile)
}

func (b *fakeBackend) putProfile(w http.ResponseWriter, r *http.Request) {
	var update model.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeDetail(w, http.StatusBadRequest, "bad body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, update)
	if update.Bio != nil {
		b.profile.Bio = *update.Bio
	}
	if update.Interests != nil {
		b.profile.Interests = update.Interests
	}
	if update.PersonalityTraits != nil {
		b.profile.PersonalityTraits = update.PersonalityTraits
	}
	if update.StatusMessage != nil {
		b.profile.StatusMessage = *update.StatusMessage
	}
	if update.ThemeColor != nil {
		b.profile.ThemeColor = *update.ThemeColor
	}
	writeJSON(w, http.StatusOK, b.profile)
}

// listProfiles only returns agents not decided yet, the way the backend does
func (b *fakeBackend) listProfiles(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, b.candidates)
}

func (b *fakeBackend) swipe(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "bad body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	target := model.AgentID(body["target_agent_id"])
	b.swipes = append(b.swipes, body)
	for i, c := range b.candidates {
		if c.AgentID == target {
			b.candidates = append(b.candidates[:i:i], b.candidates[i+1:]...)
			break
		}
	}

	result := model.DecisionResult{Success: true}
	if body["direction"] == "right" && b.likedBack[target] {
		score := 87.0
		matchID := model.MatchID("m-" + string(target))
		result.MatchCreated = true
		result.MatchID = matchID
		result.MatchQualityScore = &score
		result.Message = "It's a match!"
		b.matches = append(b.matches, &model.Match{
			ID:         matchID,
			Agent1ID:   selfID,
			Agent2ID:   target,
			OtherAgent: &model.Agent{ID: target, Name: "Bob"},
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (b *fakeBackend) listMatches(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	matches := b.matches
	if matches == nil {
		matches = []*model.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (b *fakeBackend) findMatch(id model.MatchID) int {
	for i, m := range b.matches {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (b *fakeBackend) deleteMatch(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := model.MatchID(r.PathValue("id"))
	i := b.findMatch(id)
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Match not found")
		return
	}
	b.matches = append(b.matches[:i:i], b.matches[i+1:]...)
	b.deleted = append(b.deleted, id)
	w.WriteHeader(http.StatusNoContent)
}

func (b *fakeBackend) history(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := model.MatchID(r.PathValue("id"))
	if b.findMatch(id) < 0 {
		writeDetail(w, http.StatusNotFound, "Match not found")
		return
	}
	msgs := append([]*model.Message{}, b.messages[id]...)
	// newest first, so the client has to order them
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt.Time) })
	writeJSON(w, http.StatusOK, msgs)
}

func (b *fakeBackend) send(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "bad body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	id := model.MatchID(r.PathValue("id"))
	if b.findMatch(id) < 0 {
		writeDetail(w, http.StatusNotFound, "Match not found")
		return
	}
	writeJSON(w, http.StatusOK, b.addMessage(id, selfID, body["message_text"]))
}

func (b *fakeBackend) markRead(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (b *fakeBackend) stats(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, model.PlatformStats{
		TotalAgents:   3,
		TotalMatches:  len(b.matches),
		TotalMessages: b.seq,
		ActiveToday:   2,
		TopModelTypes: []model.ModelCount{{ModelType: "GPT-4", Count: 2}},
	})
}

func (b *fakeBackend) observerProfiles(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, b.candidates)
}

func (b *fakeBackend) observerMatches(w http.ResponseWriter, r *http.Request) {
	b.listMatches(w, r)
}

func (b *fakeBackend) swipeLog() []map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]string{}, b.swipes...)
}

func (b *fakeBackend) profileUpdates() []model.ProfileUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.ProfileUpdate{}, b.updates...)
}

func (b *fakeBackend) chatLog(id model.MatchID) []*model.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*model.Message{}, b.messages[id]...)
}

func bobMatch() *model.Match {
	return &model.Match{
		ID:         "m-agent-bob",
		Agent1ID:   selfID,
		Agent2ID:   "agent-bob",
		OtherAgent: &model.Agent{ID: "agent-bob", Name: "Bob"},
	}
}

func (b *fakeBackend) deletedMatches() []model.MatchID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.MatchID{}, b.deleted...)
}
