package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmonteiro/brands-ai/internal/cache"
	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/monitoring"
	"github.com/drmonteiro/brands-ai/internal/store"
	"github.com/drmonteiro/brands-ai/internal/stream"
)

type execFixture struct {
	exec    *Executor
	store   *store.SQLiteStore
	cache   cache.Cache
	metrics *monitoring.Metrics
	first   *funcStage
	middle  *funcStage
	last    *funcStage
}

// newExecFixture builds a registry shaped like the real one:
// first, gate:discovery, middle, gate:persistence, last.
func newExecFixture(t *testing.T) *execFixture {
	t.Helper()
	st := newTestStore(t)
	f := &execFixture{
		store:   st,
		cache:   cache.NewStoreCache(st, 0),
		metrics: monitoring.NewMetrics(prometheus.NewRegistry()),
	}
	f.first = newFuncStage("first", func(_ context.Context, _ *StageContext, s *model.RunState) StageResult {
		s.ExchangeRate = 1.1
		s.SearchQueries = []string{"q1", "q2"}
		return Continue()
	})
	f.middle = newFuncStage("middle", func(_ context.Context, sc *StageContext, s *model.RunState) StageResult {
		sc.Progress("searching %d queries", len(s.SearchQueries))
		s.PotentialBrands = []model.BrandLead{{Name: "Acme", WebsiteURL: "https://acme.com"}}
		return Continue()
	})
	f.last = newFuncStage("last", func(_ context.Context, _ *StageContext, s *model.RunState) StageResult {
		s.VerifiedBrands = s.PotentialBrands
		return Continue()
	})
	reg, err := NewRegistry(f.first, NewDiscoveryGate(), f.middle, NewPersistenceGate(), f.last)
	require.NoError(t, err)
	f.exec = NewExecutor(reg, st, st, f.cache, WithMetrics(f.metrics), WithStreamBuffer(4))
	return f
}

func drain(t *testing.T, s *stream.Stream) []model.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, terminal := s.Drain(ctx)
	require.True(t, terminal, "stream ended without a terminal event: %+v", events)
	return events
}

func lastEvent(events []model.Event) model.Event {
	return events[len(events)-1]
}

func TestStart_BlankCity(t *testing.T) {
	f := newExecFixture(t)
	s, err := f.exec.Start(context.Background(), "   ", StartOptions{})
	assert.Nil(t, s)
	assert.True(t, IsValidation(err))

	runs, err := f.store.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStart_SuspendsAtFirstGate(t *testing.T) {
	f := newExecFixture(t)
	ctx := context.Background()

	s, err := f.exec.Start(ctx, "London", StartOptions{})
	require.NoError(t, err)
	events := drain(t, s)

	require.Len(t, events, 2)
	assert.Equal(t, model.Progress("first done"), events[0])
	wait := events[1]
	assert.Equal(t, model.EventWaitingApproval, wait.Type)
	assert.Equal(t, "discovery", wait.NextNode)
	assert.Equal(t, []string{"q1", "q2"}, wait.Queries)
	assert.Equal(t, 0, int(f.middle.calls.Load()))

	snap, err := f.store.LoadThread(ctx, wait.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.StageIndex)
	assert.Equal(t, "discovery", snap.Gate)
	assert.Equal(t, "London", snap.State.TargetCity)

	run, err := f.store.GetRun(ctx, wait.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusWaitingApproval, run.Status)
	assert.Equal(t, "london", run.City)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RunsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RunsSuspended.WithLabelValues("discovery")))
}

func TestResume_FullRunNeverRepeatsStages(t *testing.T) {
	f := newExecFixture(t)
	ctx := context.Background()

	s, err := f.exec.Start(ctx, "London", StartOptions{})
	require.NoError(t, err)
	threadID := lastEvent(drain(t, s)).ThreadID

	s, err = f.exec.Resume(ctx, ResumeRequest{ThreadID: threadID, Gate: "discovery", Action: "approve"})
	require.NoError(t, err)
	events := drain(t, s)
	require.Len(t, events, 3)
	assert.Equal(t, "searching 2 queries", events[0].Message)
	assert.Equal(t, "middle done", events[1].Message)
	assert.Equal(t, "persistence", events[2].NextNode)
	assert.Equal(t, threadID, events[2].ThreadID)
	require.Len(t, events[2].PotentialBrands, 1)

	s, err = f.exec.Resume(ctx, ResumeRequest{ThreadID: threadID, Gate: "persistence", Action: "approve"})
	require.NoError(t, err)
	events = drain(t, s)
	done := lastEvent(events)
	assert.Equal(t, model.EventComplete, done.Type)
	assert.False(t, done.Cached)
	assert.Equal(t, 1.1, done.ExchangeRate)
	require.Len(t, done.VerifiedBrands, 1)
	assert.Equal(t, "Acme", done.VerifiedBrands[0].Name)

	assert.Equal(t, int32(1), f.first.calls.Load())
	assert.Equal(t, int32(1), f.middle.calls.Load())
	assert.Equal(t, int32(1), f.last.calls.Load())

	run, err := f.store.GetRun(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 5, run.StageIndex)

	res, hit, err := f.cache.Get(ctx, "london")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Len(t, res.Brands, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RunsCompleted))
}

func TestResume_SkipsPersistenceGateWithoutBrands(t *testing.T) {
	f := newExecFixture(t)
	f.middle.fn = func(context.Context, *StageContext, *model.RunState) StageResult {
		return ContinueWith("No candidates passed the content filters")
	}
	ctx := context.Background()

	s, err := f.exec.Start(ctx, "London", StartOptions{})
	require.NoError(t, err)
	threadID := lastEvent(drain(t, s)).ThreadID

	s, err = f.exec.Resume(ctx, ResumeRequest{ThreadID: threadID, Gate: "discovery", Action: "approve"})
	require.NoError(t, err)
	events := drain(t, s)
	require.Len(t, events, 4)
	assert.Equal(t, "No candidates passed the content filters", events[0].Message)
	assert.Equal(t, "No brands to review", events[1].Message)
	assert.Equal(t, "last done", events[2].Message)
	done := events[3]
	assert.Equal(t, model.EventComplete, done.Type)
	assert.Empty(t, done.VerifiedBrands)

	assert.Equal(t, int32(1), f.last.calls.Load())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.RunsSuspended.WithLabelValues("persistence")))
	_, err = f.exec.Resume(ctx, ResumeRequest{ThreadID: threadID, Gate: "persistence", Action: "approve"})
	assert.True(t, IsResumeConflict(err))
}

func TestResume_ModifyOverridesQueries(t *testing.T) {
	f := newExecFixture(t)
	ctx := context.Background()

	s, err := f.exec.Start(ctx, "Paris", StartOptions{})
	require.NoError(t, err)
	threadID := lastEvent(drain(t, s)).ThreadID

	data := json.RawMessage(`{"queries":["only one"]}`)
	s, err = f.exec.Resume(ctx, ResumeRequest{ThreadID: threadID, Gate: "discovery", Action: "modify", Data: data})
	require.NoError(t, err)
	events := drain(t, s)
	assert.Equal(t, "searching 1 queries", events[0].Message)

	snap, err := f.store.LoadThread(ctx, threadID)
	require.NoError(t, err)
	assert.True(t, snap.State.QueriesApproved)
	assert.Equal(t, []string{"only one"}, snap.State.SearchQueries)
}

func TestResume_Reject(t *testing.T) {
	f := newExecFixture(t)
	ctx := context.Background()

	s, err := f.exec.Start(ctx, "Rome", StartOptions{})
	require.NoError(t, err)
	threadID := lastEvent(drain(t, s)).ThreadID

	s, err = f.exec.Resume(ctx, ResumeRequest{ThreadID: threadID, Gate: "discovery", Action: "reject"})
	require.NoError(t, err)
	events := drain(t, s)
	require.Len(t, events, 1)
	assert.Equal(t, model.Failure("run rejected at discovery gate"), events[0])
	assert.Equal(t, int32(0), f.middle.calls.Load())

	run, err := f.store.GetRun(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)

	_, hit, err := f.cache.Get(ctx, "rome")
	require.NoError(t, err)
	assert.False(t, hit)

	_, err = f.exec.Resume(ctx, ResumeRequest{ThreadID: threadID, Gate: "discovery"})
	assert.True(t, IsResumeConflict(err))
}

func TestResume_Conflicts(t *testing.T) {
	f := newExecFixture(t)
	ctx := context.Background()

	_, err := f.exec.Resume(ctx, ResumeRequest{ThreadID: "missing", Gate: "discovery"})
	assert.True(t, IsResumeConflict(err))

	s, err := f.exec.Start(ctx, "Milan", StartOptions{})
	require.NoError(t, err)
	threadID := lastEvent(drain(t, s)).ThreadID

	_, err = f.exec.Resume(ctx, ResumeRequest{ThreadID: threadID, Gate: "persistence"})
	assert.True(t, IsResumeConflict(err))

	// The mismatched attempt must not consume the snapshot.
	_, err = f.store.LoadThread(ctx, threadID)
	require.NoError(t, err)
}

func TestResume_InvalidDecision(t *testing.T) {
	f := newExecFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ResumeRequest
	}{
		{"blank thread", ResumeRequest{Gate: "discovery"}},
		{"unknown gate", ResumeRequest{ThreadID: "t", Gate: "pricing"}},
		{"unknown action", ResumeRequest{ThreadID: "t", Gate: "discovery", Action: "maybe"}},
		{"modify without data", ResumeRequest{ThreadID: "t", Gate: "discovery", Action: "modify"}},
		{"malformed data", ResumeRequest{ThreadID: "t", Gate: "discovery", Data: json.RawMessage(`{"queries":`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := f.exec.Resume(ctx, tt.req)
			assert.Nil(t, s)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}
}

func TestResume_ConcurrentExactlyOnce(t *testing.T) {
	f := newExecFixture(t)
	ctx := context.Background()

	s, err := f.exec.Start(ctx, "Lisbon", StartOptions{})
	require.NoError(t, err)
	threadID := lastEvent(drain(t, s)).ThreadID

	const attempts = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
		streams   []*stream.Stream
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := f.exec.Resume(ctx, ResumeRequest{ThreadID: threadID, Gate: "discovery"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
				streams = append(streams, s)
			case IsResumeConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	for _, s := range streams {
		drain(t, s)
	}

	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, conflicts)
	assert.Equal(t, int32(1), f.middle.calls.Load())
}

func TestStart_CacheHit(t *testing.T) {
	f := newExecFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Put(ctx, "berlin", []model.BrandLead{{Name: "Cached"}}, 1.05))

	s, err := f.exec.Start(ctx, "  Berlin ", StartOptions{})
	require.NoError(t, err)
	events := drain(t, s)

	require.Len(t, events, 2)
	assert.Equal(t, model.EventProgress, events[0].Type)
	done := events[1]
	assert.Equal(t, model.EventComplete, done.Type)
	assert.True(t, done.Cached)
	assert.Equal(t, 1.05, done.ExchangeRate)
	assert.Equal(t, "Cached", done.VerifiedBrands[0].Name)
	assert.Equal(t, int32(0), f.first.calls.Load())

	runs, err := f.store.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheHits))
}

func TestStart_ForceRefreshSkipsReadButWrites(t *testing.T) {
	st := newTestStore(t)
	c := cache.NewStoreCache(st, 0)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "porto", []model.BrandLead{{Name: "Old"}}, 1.0))

	only := newFuncStage("only", func(_ context.Context, _ *StageContext, s *model.RunState) StageResult {
		s.ExchangeRate = 1.2
		s.VerifiedBrands = []model.BrandLead{{Name: "Fresh"}}
		return Continue()
	})
	reg, err := NewRegistry(only)
	require.NoError(t, err)
	exec := NewExecutor(reg, st, st, c)

	s, err := exec.Start(ctx, "Porto", StartOptions{ForceRefresh: true})
	require.NoError(t, err)
	done := lastEvent(drain(t, s))
	assert.False(t, done.Cached)
	assert.Equal(t, "Fresh", done.VerifiedBrands[0].Name)

	res, hit, err := c.Get(ctx, "porto")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "Fresh", res.Brands[0].Name)
	assert.Equal(t, 1.2, res.ExchangeRate)
}

func TestStart_ForceRefreshKeepsCachedBrands(t *testing.T) {
	st := newTestStore(t)
	c := cache.NewStoreCache(st, 0)
	ctx := context.Background()

	discover := newFuncStage("discover", func(_ context.Context, _ *StageContext, s *model.RunState) StageResult {
		s.ExchangeRate = 1.08
		s.PotentialBrands = []model.BrandLead{{Name: "Acme", WebsiteURL: "https://acme.com", StoreCount: 2, AvgSuitPriceEUR: 900}}
		return Continue()
	})
	reg, err := NewRegistry(discover, NewPersistenceStage(st, nil))
	require.NoError(t, err)
	exec := NewExecutor(reg, st, st, c)

	s, err := exec.Start(ctx, "Lisbon", StartOptions{})
	require.NoError(t, err)
	done := lastEvent(drain(t, s))
	require.Len(t, done.VerifiedBrands, 1)

	// The refreshed run finds only brands that are already stored.
	s, err = exec.Start(ctx, "Lisbon", StartOptions{ForceRefresh: true})
	require.NoError(t, err)
	done = lastEvent(drain(t, s))
	assert.Equal(t, model.EventComplete, done.Type)
	assert.False(t, done.Cached)
	assert.Empty(t, done.VerifiedBrands)

	s, err = exec.Start(ctx, "lisbon", StartOptions{})
	require.NoError(t, err)
	done = lastEvent(drain(t, s))
	assert.True(t, done.Cached)
	require.Len(t, done.VerifiedBrands, 1)
	assert.Equal(t, "Acme", done.VerifiedBrands[0].Name)
	assert.InDelta(t, 972.0, done.VerifiedBrands[0].AverageSuitPriceUSD, 0.01)
	assert.Equal(t, int32(2), discover.calls.Load())
}

func TestStart_EmptyResultIsNotCached(t *testing.T) {
	st := newTestStore(t)
	c := cache.NewStoreCache(st, 0)
	ctx := context.Background()

	empty := newFuncStage("empty", func(_ context.Context, _ *StageContext, s *model.RunState) StageResult {
		s.VerifiedBrands = []model.BrandLead{}
		return Continue()
	})
	reg, err := NewRegistry(empty)
	require.NoError(t, err)
	exec := NewExecutor(reg, st, st, c)

	s, err := exec.Start(ctx, "Oslo", StartOptions{})
	require.NoError(t, err)
	drain(t, s)

	_, hit, err := c.Get(ctx, "oslo")
	require.NoError(t, err)
	assert.False(t, hit)

	// An empty entry left behind by an older build is treated as a miss.
	require.NoError(t, c.Put(ctx, "oslo", nil, 1.0))
	s, err = exec.Start(ctx, "Oslo", StartOptions{})
	require.NoError(t, err)
	done := lastEvent(drain(t, s))
	assert.False(t, done.Cached)
	assert.Equal(t, int32(2), empty.calls.Load())
}

func TestMergeBrands(t *testing.T) {
	fresh := []model.BrandLead{{Name: "Acme new", WebsiteURL: "https://acme.com"}}
	prev := []model.BrandLead{
		{Name: "Acme old", WebsiteURL: "https://www.acme.com/"},
		{Name: "Bespoke", WebsiteURL: "https://bespoke.co.uk"},
	}
	got := mergeBrands(fresh, prev)
	require.Len(t, got, 2)
	assert.Equal(t, "Acme new", got[0].Name)
	assert.Equal(t, "Bespoke", got[1].Name)
	assert.Empty(t, mergeBrands(nil, nil))
}

func TestRun_StageFailure(t *testing.T) {
	st := newTestStore(t)
	c := cache.NewStoreCache(st, 0)
	ctx := context.Background()

	failing := newFuncStage("discovery", func(context.Context, *StageContext, *model.RunState) StageResult {
		return Fail(KindNoCandidates, "no candidate websites found for %s", "Nowhere")
	})
	after := newFuncStage("after", nil)
	reg, err := NewRegistry(newFuncStage("init", nil), failing, after)
	require.NoError(t, err)
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	exec := NewExecutor(reg, st, st, c, WithMetrics(m))

	s, err := exec.Start(ctx, "Nowhere", StartOptions{})
	require.NoError(t, err)
	events := drain(t, s)
	require.Len(t, events, 2)
	assert.Equal(t, model.Failure("no candidate websites found for Nowhere"), events[1])
	assert.Equal(t, int32(0), after.calls.Load())

	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, 1, runs[0].StageIndex)

	_, hit, err := c.Get(ctx, "nowhere")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsFailed.WithLabelValues("discovery")))
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	st := newTestStore(t)
	boom := newFuncStage("boom", func(context.Context, *StageContext, *model.RunState) StageResult {
		panic("kaboom")
	})
	reg, err := NewRegistry(boom)
	require.NoError(t, err)
	exec := NewExecutor(reg, st, st, cache.NewStoreCache(st, 0))

	s, err := exec.Start(context.Background(), "Vienna", StartOptions{})
	require.NoError(t, err)
	ev := lastEvent(drain(t, s))
	assert.Equal(t, model.EventError, ev.Type)
	assert.Contains(t, ev.Message, "boom")
}

func TestRun_ContinuesAfterConsumerLeaves(t *testing.T) {
	st := newTestStore(t)
	c := cache.NewStoreCache(st, 0)
	release := make(chan struct{})

	slow := newFuncStage("slow", func(_ context.Context, sc *StageContext, s *model.RunState) StageResult {
		<-release
		for i := range 10 {
			sc.Progress("step %d", i)
		}
		s.VerifiedBrands = []model.BrandLead{{Name: "Kept"}}
		return Continue()
	})
	reg, err := NewRegistry(slow)
	require.NoError(t, err)
	exec := NewExecutor(reg, st, st, c, WithStreamBuffer(1))

	ctx, cancel := context.WithCancel(context.Background())
	s, err := exec.Start(ctx, "Zurich", StartOptions{})
	require.NoError(t, err)

	// The caller disconnects before anything is emitted.
	cancel()
	s.Cancel()
	close(release)
	exec.Wait()

	res, hit, err := c.Get(context.Background(), "zurich")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "Kept", res.Brands[0].Name)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusComplete, runs[0].Status)
}

func TestResume_DisabledGate(t *testing.T) {
	st := newTestStore(t)
	reg, err := NewRegistry(newFuncStage("only", nil))
	require.NoError(t, err)
	exec := NewExecutor(reg, st, st, cache.NewStoreCache(st, 0))

	_, err = exec.Resume(context.Background(), ResumeRequest{ThreadID: "t-1", Gate: "discovery"})
	assert.True(t, IsResumeConflict(err))
}
