package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/scrape"
	"github.com/drmonteiro/brands-ai/internal/store"
	"github.com/drmonteiro/brands-ai/pkg/anthropic"
	"github.com/drmonteiro/brands-ai/pkg/jina"
)

// --- Jina Mock ---

type mockJinaClient struct {
	mock.Mock
}

func (m *mockJinaClient) Read(ctx context.Context, targetURL string) (*jina.ReadResponse, error) {
	args := m.Called(ctx, targetURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.ReadResponse), args.Error(1)
}

func (m *mockJinaClient) Search(ctx context.Context, query string, opts ...jina.SearchOption) (*jina.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.SearchResponse), args.Error(1)
}

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Model:   anthropic.DefaultModel,
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

// --- Scraper stub ---

type stubScraper struct {
	pages map[string]string
}

func (s *stubScraper) ScrapeAll(_ context.Context, urls []string) []*scrape.Page {
	out := make([]*scrape.Page, len(urls))
	for i, u := range urls {
		if c, ok := s.pages[u]; ok {
			out[i] = &scrape.Page{URL: u, Content: c, Source: "stub"}
		}
	}
	return out
}

// --- Notifier stub ---

type recordingNotifier struct {
	mu    sync.Mutex
	leads []model.BrandLead
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, lead model.BrandLead, _ model.EmailSource) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.leads = append(n.leads, lead)
	return n.err
}

// --- Fake stages ---

type funcStage struct {
	name  string
	desc  string
	calls atomic.Int32
	fn    func(ctx context.Context, sc *StageContext, state *model.RunState) StageResult
}

func newFuncStage(name string, fn func(ctx context.Context, sc *StageContext, state *model.RunState) StageResult) *funcStage {
	return &funcStage{name: name, desc: name + " done", fn: fn}
}

func (f *funcStage) Name() string        { return f.name }
func (f *funcStage) Description() string { return f.desc }

func (f *funcStage) Run(ctx context.Context, sc *StageContext, state *model.RunState) StageResult {
	f.calls.Add(1)
	if f.fn == nil {
		return Continue()
	}
	return f.fn(ctx, sc, state)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testStageContext() *StageContext {
	return &StageContext{ThreadID: "t-test", Log: zap.NewNop()}
}
