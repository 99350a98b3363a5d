package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/approval"
	"github.com/drmonteiro/brands-ai/internal/cache"
	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/monitoring"
	"github.com/drmonteiro/brands-ai/internal/store"
	"github.com/drmonteiro/brands-ai/internal/stream"
)

// StartOptions tune a new run.
type StartOptions struct {
	// ForceRefresh skips the cache read. The result is still cached.
	ForceRefresh bool
}

// ResumeRequest carries a human decision for a suspended run.
type ResumeRequest struct {
	ThreadID string
	Gate     string
	Action   string
	Data     json.RawMessage
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics records run and stage metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithStreamBuffer sets the per-run event buffer.
func WithStreamBuffer(n int) Option {
	return func(e *Executor) { e.buffer = n }
}

// Executor drives runs through the registry, suspending at gates and
// resuming from persisted snapshots.
type Executor struct {
	reg     *Registry
	threads store.ThreadStore
	runs    store.RunStore
	cache   cache.Cache
	metrics *monitoring.Metrics
	buffer  int

	wg sync.WaitGroup
}

// NewExecutor creates an Executor over reg.
func NewExecutor(reg *Registry, threads store.ThreadStore, runs store.RunStore, c cache.Cache, opts ...Option) *Executor {
	e := &Executor{
		reg:     reg,
		threads: threads,
		runs:    runs,
		cache:   c,
		buffer:  stream.DefaultBuffer,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Wait blocks until every run started by e has stopped at a suspend point
// or reached its end.
func (e *Executor) Wait() { e.wg.Wait() }

// Start begins a search for city. A cached result is replayed unless
// opts.ForceRefresh is set; otherwise a new run is created and its stages
// execute in the background.
func (e *Executor) Start(ctx context.Context, city string, opts StartOptions) (*stream.Stream, error) {
	key := cache.NormalizeKey(city)
	if key == "" {
		return nil, &ValidationError{Field: "targetCity", Message: "must not be blank"}
	}
	log := zap.L().With(zap.String("city", key))

	if !opts.ForceRefresh {
		res, hit, err := e.cache.Get(ctx, key)
		if err != nil {
			log.Warn("pipeline: cache read failed, running pipeline", zap.Error(err))
		} else if hit && len(res.Brands) > 0 {
			log.Info("pipeline: cache hit", zap.Int("brands", len(res.Brands)))
			if e.metrics != nil {
				e.metrics.CacheHits.Inc()
			}
			return e.replay(city, res), nil
		}
	}

	now := time.Now().UTC()
	run := model.PipelineRun{
		ID:        uuid.NewString(),
		City:      key,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.runs.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	if e.metrics != nil {
		e.metrics.RunsStarted.Inc()
	}
	log.Info("pipeline: run started", zap.String("thread_id", run.ID), zap.Bool("force_refresh", opts.ForceRefresh))

	state := &model.RunState{TargetCity: strings.TrimSpace(city)}
	return e.launch(ctx, run.ID, state, 0), nil
}

func (e *Executor) replay(city string, res *model.CachedResult) *stream.Stream {
	s := stream.New(e.buffer)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer s.Close()
		ctx := context.Background()
		msg := fmt.Sprintf("Found %d cached brands for %s", len(res.Brands), strings.TrimSpace(city))
		if err := s.Emit(ctx, model.Progress(msg)); err != nil {
			return
		}
		_ = s.Emit(ctx, model.Complete(res.Brands, res.ExchangeRate, true))
	}()
	return s
}

// Resume continues a suspended run with the caller's decision. Exactly one
// of several concurrent resumes for the same thread succeeds; the others
// get a ResumeConflictError.
func (e *Executor) Resume(ctx context.Context, req ResumeRequest) (*stream.Stream, error) {
	if strings.TrimSpace(req.ThreadID) == "" {
		return nil, &ValidationError{Field: "thread_id", Message: "must not be blank"}
	}
	decision, err := approval.ParseDecision(req.Gate, req.Action, req.Data)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	gate, _, ok := e.reg.Gate(req.Gate)
	if !ok {
		return nil, &ResumeConflictError{ThreadID: req.ThreadID, Gate: req.Gate, Reason: "gate is not enabled"}
	}

	snap, err := e.threads.LoadThread(ctx, req.ThreadID)
	if err != nil {
		if eris.Is(err, store.ErrThreadNotFound) {
			return nil, &ResumeConflictError{ThreadID: req.ThreadID, Gate: req.Gate, Reason: "no run is waiting on this thread"}
		}
		return nil, eris.Wrap(err, "pipeline: load thread")
	}
	if snap.Gate != req.Gate {
		return nil, &ResumeConflictError{ThreadID: req.ThreadID, Gate: req.Gate, Reason: "run is waiting at " + snap.Gate}
	}

	snap, err = e.threads.ClaimThread(ctx, req.ThreadID)
	if err != nil {
		if eris.Is(err, store.ErrThreadNotFound) {
			return nil, &ResumeConflictError{ThreadID: req.ThreadID, Gate: req.Gate, Reason: "already resumed"}
		}
		return nil, eris.Wrap(err, "pipeline: claim thread")
	}

	log := zap.L().With(zap.String("thread_id", req.ThreadID), zap.String("gate", req.Gate))
	log.Info("pipeline: resuming", zap.String("action", string(decision.Action)))

	if decision.Rejected() {
		return e.reject(snap), nil
	}

	state := snap.State
	gate.Apply(&state, decision)
	e.updateRun(ctx, req.ThreadID, model.RunStatusRunning, snap.StageIndex, "")
	return e.launch(ctx, req.ThreadID, &state, snap.StageIndex), nil
}

func (e *Executor) reject(snap *model.ThreadSnapshot) *stream.Stream {
	s := stream.New(e.buffer)
	msg := fmt.Sprintf("run rejected at %s gate", snap.Gate)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer s.Close()
		ctx := context.Background()
		e.updateRun(ctx, snap.ThreadID, model.RunStatusFailed, snap.StageIndex, msg)
		if e.metrics != nil {
			e.metrics.RunsFailed.WithLabelValues(gateStageName(snap.Gate)).Inc()
		}
		_ = s.Emit(ctx, model.Failure(msg))
	}()
	return s
}

// launch runs stages from index from on a context that outlives the
// caller's request.
func (e *Executor) launch(ctx context.Context, threadID string, state *model.RunState, from int) *stream.Stream {
	s := stream.New(e.buffer)
	r := &runner{
		exec:     e,
		threadID: threadID,
		stream:   s,
		log:      zap.L().With(zap.String("thread_id", threadID), zap.String("city", state.TargetCity)),
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer s.Close()
		r.run(context.WithoutCancel(ctx), state, from)
	}()
	return s
}

func (e *Executor) updateRun(ctx context.Context, threadID string, status model.RunStatus, idx int, errMsg string) {
	if err := e.runs.UpdateRun(ctx, threadID, status, idx, errMsg); err != nil {
		zap.L().Warn("pipeline: failed to update run",
			zap.String("thread_id", threadID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// runner is the state of one background execution.
type runner struct {
	exec     *Executor
	threadID string
	stream   *stream.Stream
	log      *zap.Logger
	gone     bool
}

// emit forwards ev to the consumer. Once the consumer has left, events are
// dropped and the run carries on.
func (r *runner) emit(ctx context.Context, ev model.Event) {
	if r.gone {
		return
	}
	if err := r.stream.Emit(ctx, ev); err != nil {
		r.gone = true
		r.log.Info("pipeline: consumer gone, continuing without stream", zap.Error(err))
	}
}

func (r *runner) run(ctx context.Context, state *model.RunState, from int) {
	e := r.exec
	for idx := from; idx < e.reg.Len(); idx++ {
		st := e.reg.At(idx)
		res := r.runStage(ctx, st, state)

		switch res.Outcome {
		case OutcomeContinue:
			msg := res.Message
			if msg == "" {
				msg = st.Description()
			}
			r.emit(ctx, model.Progress(msg))
			e.updateRun(ctx, r.threadID, model.RunStatusRunning, idx+1, "")

		case OutcomeSuspend:
			snap := model.ThreadSnapshot{
				ThreadID:   r.threadID,
				Gate:       res.Gate,
				StageIndex: idx + 1,
				State:      *state,
				CreatedAt:  time.Now().UTC(),
			}
			if err := e.threads.SaveThread(ctx, snap); err != nil {
				r.fail(ctx, st.Name(), idx, &StageError{Kind: KindStorage, Message: "could not save suspended run", Err: err})
				return
			}
			e.updateRun(ctx, r.threadID, model.RunStatusWaitingApproval, idx+1, "")
			if e.metrics != nil {
				e.metrics.RunsSuspended.WithLabelValues(res.Gate).Inc()
			}
			r.log.Info("pipeline: suspended", zap.String("gate", res.Gate), zap.Int("stage_index", idx+1))
			r.emit(ctx, approval.WaitingEvent(r.threadID, res.Gate, res.Payload))
			return

		default:
			serr := res.Err
			if serr == nil {
				serr = &StageError{Kind: KindUpstream, Message: "stage failed"}
			}
			r.fail(ctx, st.Name(), idx, serr)
			return
		}
	}

	e.storeResult(ctx, r.log, state)
	e.updateRun(ctx, r.threadID, model.RunStatusComplete, e.reg.Len(), "")
	if e.metrics != nil {
		e.metrics.RunsCompleted.Inc()
	}
	r.log.Info("pipeline: run complete", zap.Int("verified", len(state.VerifiedBrands)))
	r.emit(ctx, model.Complete(state.VerifiedBrands, state.ExchangeRate, false))
}

// storeResult writes the run's verified brands into the city's cache entry.
// VerifiedBrands only holds brands saved by this run, so they are merged
// over the previous entry instead of replacing it. An empty result is never
// written.
func (e *Executor) storeResult(ctx context.Context, log *zap.Logger, state *model.RunState) {
	key := cache.NormalizeKey(state.TargetCity)
	rate := state.ExchangeRate
	var prev []model.BrandLead
	if old, hit, err := e.cache.Get(ctx, key); err != nil {
		log.Warn("pipeline: cache read before write failed", zap.Error(err))
	} else if hit {
		prev = old.Brands
		if rate <= 0 {
			rate = old.ExchangeRate
		}
	}
	brands := mergeBrands(state.VerifiedBrands, prev)
	if len(brands) == 0 {
		log.Info("pipeline: nothing to cache")
		return
	}
	if err := e.cache.Put(ctx, key, brands, rate); err != nil {
		log.Warn("pipeline: cache write failed", zap.Error(err))
	}
}

// mergeBrands returns fresh followed by every brand of prev whose domain
// fresh does not already cover.
func mergeBrands(fresh, prev []model.BrandLead) []model.BrandLead {
	out := make([]model.BrandLead, 0, len(fresh)+len(prev))
	seen := make(map[string]bool, len(fresh)+len(prev))
	for _, list := range [][]model.BrandLead{fresh, prev} {
		for _, b := range list {
			d := b.Domain()
			if d != "" && seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, b)
		}
	}
	return out
}

// runStage executes one stage, converting a panic into a failure.
func (r *runner) runStage(ctx context.Context, st Stage, state *model.RunState) (res StageResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("pipeline: stage panicked",
				zap.String("stage", st.Name()),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			res = Fail(KindPanic, "internal error in %s", st.Name())
		}
		if r.exec.metrics != nil {
			r.exec.metrics.StageDuration.WithLabelValues(st.Name()).Observe(time.Since(start).Seconds())
		}
	}()

	sc := &StageContext{
		ThreadID: r.threadID,
		Log:      r.log.With(zap.String("stage", st.Name())),
		progress: func(msg string) { r.emit(ctx, model.Progress(msg)) },
	}
	return st.Run(ctx, sc, state)
}

func (r *runner) fail(ctx context.Context, stage string, idx int, serr *StageError) {
	serr.Stage = stage
	r.log.Error("pipeline: run failed", zap.String("stage", stage), zap.String("kind", serr.Kind), zap.Error(serr))
	r.exec.updateRun(ctx, r.threadID, model.RunStatusFailed, idx, serr.Message)
	if r.exec.metrics != nil {
		r.exec.metrics.RunsFailed.WithLabelValues(stage).Inc()
	}
	r.emit(ctx, model.Failure(serr.Message))
}
