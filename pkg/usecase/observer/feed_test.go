package observer_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/usecase/observer"
	"github.com/m-mizutani/moltender/pkg/utils/testtools"
)

type mockObserverAPI struct {
	mu           sync.Mutex
	statsCalls   int
	matchCalls   int
	profileCalls int
	totalMatches int
	statsErr     error
	limits       []int
}

func (m *mockObserverAPI) ObserverProfiles(ctx context.Context, skip, limit int) ([]*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profileCalls++
	m.limits = append(m.limits, limit)
	return []*model.Profile{{AgentID: "a1"}, {AgentID: "a2"}}, nil
}

func (m *mockObserverAPI) ObserverMatches(ctx context.Context, skip, limit int) ([]*model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchCalls++
	matches := make([]*model.Match, 0, m.totalMatches)
	for i := range m.totalMatches {
		matches = append(matches, &model.Match{ID: model.MatchID(fmt.Sprintf("m%d", i))})
	}
	return matches, nil
}

func (m *mockObserverAPI) ObserverChat(ctx context.Context, id model.MatchID) ([]*model.Message, error) {
	return []*model.Message{
		{ID: "2", Text: "later", CreatedAt: model.Timestamp{Time: time.Date(2025, 1, 1, 0, 0, 2, 0, time.UTC)}},
		{ID: "1", Text: "earlier", CreatedAt: model.Timestamp{Time: time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC)}},
	}, nil
}

func (m *mockObserverAPI) ObserverStats(ctx context.Context) (*model.PlatformStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsCalls++
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return &model.PlatformStats{TotalMatches: m.totalMatches}, nil
}

func (m *mockObserverAPI) counts() (stats, matches int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statsCalls, m.matchCalls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition was not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartLoadsEverything(t *testing.T) {
	api := &mockObserverAPI{totalMatches: 2}
	opener := &testtools.Opener{}
	feed := observer.New(api, opener)
	defer feed.Stop()

	gt.NoError(t, feed.Start(context.Background()))

	ch := opener.Last()
	gt.Equal(t, ch.Path, "/ws/observer")
	gt.False(t, ch.Authenticated)
	gt.Equal(t, ch.Connects(), 1)

	snap := feed.Snapshot()
	gt.Equal(t, snap.Stats.TotalMatches, 2)
	gt.A(t, snap.Profiles).Length(2)
	gt.A(t, snap.Matches).Length(2)
	gt.Equal(t, api.limits[0], observer.DefaultPageSize)
}

func TestStartReportsFailedLoad(t *testing.T) {
	api := &mockObserverAPI{statsErr: &model.RequestError{Status: http.StatusInternalServerError, Detail: "db down"}}
	feed := observer.New(api, &testtools.Opener{})
	defer feed.Stop()

	err := feed.Start(context.Background())
	gt.Error(t, err)

	// the other loads still ran
	snap := feed.Snapshot()
	gt.A(t, snap.Profiles).Length(2)
	gt.V(t, snap.Stats).Nil()
}

func TestNewMatchRefreshesAndLogsActivity(t *testing.T) {
	api := &mockObserverAPI{totalMatches: 1}
	opener := &testtools.Opener{}
	feed := observer.New(api, opener)
	defer feed.Stop()

	gt.NoError(t, feed.Start(context.Background()))
	ch := opener.Last()
	ch.SetState(model.StateOpen)

	api.mu.Lock()
	api.totalMatches = 2
	api.mu.Unlock()

	ch.Push(`{"type":"new_match","match_id":"m9","agent1_id":"a","agent2_id":"b","timestamp":"2025-01-02T03:04:05.123456"}`)
	waitFor(t, func() bool {
		stats, matches := api.counts()
		return stats == 2 && matches == 2
	})
	waitFor(t, func() bool {
		snap := feed.Snapshot()
		return len(snap.Matches) == 2 && snap.Stats.TotalMatches == 2
	})

	snap := feed.Snapshot()
	gt.Equal(t, snap.State, model.StateOpen)
	gt.A(t, snap.Activity).Length(1)
	gt.Equal(t, snap.Activity[0].Kind, model.EventNewMatch)
	gt.Equal(t, snap.Activity[0].Timestamp.Year(), 2025)
}

func TestActivityIsCappedMostRecentFirst(t *testing.T) {
	opener := &testtools.Opener{}
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	feed := observer.New(&mockObserverAPI{}, opener,
		observer.WithActivityCap(3),
		observer.WithClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Minute)
		}))
	defer feed.Stop()

	gt.NoError(t, feed.Start(context.Background()))
	ch := opener.Last()
	for range 5 {
		ch.Push(`{"type":"new_match"}`)
	}

	snap := feed.Snapshot()
	gt.A(t, snap.Activity).Length(3)
	gt.Equal(t, snap.Activity[0].Timestamp.Time, base.Add(5*time.Minute))
	gt.Equal(t, snap.Activity[2].Timestamp.Time, base.Add(3*time.Minute))
}

func TestIgnoresOtherEvents(t *testing.T) {
	opener := &testtools.Opener{}
	feed := observer.New(&mockObserverAPI{}, opener)
	defer feed.Stop()

	gt.NoError(t, feed.Start(context.Background()))
	ch := opener.Last()
	ch.Push(`{"type":"new_message"}`)
	ch.Push(`not json`)

	gt.A(t, feed.Snapshot().Activity).Length(0)
}

func TestStopSilencesChannel(t *testing.T) {
	api := &mockObserverAPI{}
	opener := &testtools.Opener{}
	feed := observer.New(api, opener)

	gt.NoError(t, feed.Start(context.Background()))
	ch := opener.Last()

	feed.Stop()
	feed.Stop()
	gt.Equal(t, ch.Closes(), 1)
	gt.Equal(t, feed.Snapshot().State, model.StateClosed)

	ch.Push(`{"type":"new_match"}`)
	ch.SetState(model.StateOpen)
	gt.A(t, feed.Snapshot().Activity).Length(0)
	gt.Equal(t, feed.Snapshot().State, model.StateClosed)

	stats, _ := api.counts()
	gt.Equal(t, stats, 1)
}

func TestTranscriptIsOrdered(t *testing.T) {
	feed := observer.New(&mockObserverAPI{}, &testtools.Opener{})
	msgs, err := feed.Transcript(context.Background(), "m1")
	gt.NoError(t, err)
	gt.Equal(t, msgs[0].Text, "earlier")
	gt.Equal(t, msgs[1].Text, "later")
}

// slowFirstPushAPI holds the stats load of the first push until released
type slowFirstPushAPI struct {
	*mockObserverAPI
	release chan struct{}

	statsMu sync.Mutex
	calls   int
}

func (m *slowFirstPushAPI) ObserverStats(ctx context.Context) (*model.PlatformStats, error) {
	m.statsMu.Lock()
	m.calls++
	n := m.calls
	m.statsMu.Unlock()

	if n == 2 {
		<-m.release
	}
	return &model.PlatformStats{TotalMatches: n - 1}, nil
}

func (m *slowFirstPushAPI) statsCalls() int {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.calls
}

func TestLateStatsDoNotOverwriteNewer(t *testing.T) {
	api := &slowFirstPushAPI{mockObserverAPI: &mockObserverAPI{}, release: make(chan struct{})}
	opener := &testtools.Opener{}
	feed := observer.New(api, opener)
	defer feed.Stop()

	gt.NoError(t, feed.Start(context.Background()))
	ch := opener.Last()

	var mu sync.Mutex
	updates := 0
	feed.Subscribe(func(observer.Snapshot) {
		mu.Lock()
		updates++
		mu.Unlock()
	})

	ch.Push(`{"type":"new_match"}`)
	waitFor(t, func() bool { return api.statsCalls() == 2 })

	ch.Push(`{"type":"new_match"}`)
	waitFor(t, func() bool {
		snap := feed.Snapshot()
		return snap.Stats != nil && snap.Stats.TotalMatches == 2
	})

	close(api.release)
	// activity, stats and matches for each of the two pushes
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return updates == 6
	})
	gt.Equal(t, feed.Snapshot().Stats.TotalMatches, 2)
}
