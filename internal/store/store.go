package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/drmonteiro/brands-ai/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrThreadNotFound is returned when no suspended run exists for a thread id,
	// including when it was already claimed by another resume.
	ErrThreadNotFound = eris.New("store: thread not found")
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	City         string          `json:"city,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// ProspectFilter selects stored prospects. Nil bounds are inactive; all
// active bounds must hold. Price bounds are in the canonical currency (USD)
// and, when any is set, prospects with an unknown price are excluded.
type ProspectFilter struct {
	City      string
	Country   string
	MinStores *int
	MaxStores *int
	MinPrice  *float64
	MaxPrice  *float64
	MinScore  *float64
	Status    model.ProspectStatus
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

// PriceFiltered reports whether any price bound is active.
func (f ProspectFilter) PriceFiltered() bool {
	return f.MinPrice != nil || f.MaxPrice != nil
}

// ThreadStore persists suspended runs under their thread id.
type ThreadStore interface {
	// SaveThread stores snap, overwriting any snapshot for the same thread.
	SaveThread(ctx context.Context, snap model.ThreadSnapshot) error
	// LoadThread returns the snapshot or ErrThreadNotFound.
	LoadThread(ctx context.Context, threadID string) (*model.ThreadSnapshot, error)
	// ClaimThread atomically loads and deletes the snapshot. Of several
	// concurrent claims for one thread exactly one succeeds; the others get
	// ErrThreadNotFound.
	ClaimThread(ctx context.Context, threadID string) (*model.ThreadSnapshot, error)
	DeleteThread(ctx context.Context, threadID string) error
	ListThreads(ctx context.Context, olderThan time.Time) ([]model.ThreadSnapshot, error)
	DeleteStaleThreads(ctx context.Context, before time.Time) (int, error)
}

// RunStore tracks the lifecycle of pipeline runs.
type RunStore interface {
	CreateRun(ctx context.Context, run model.PipelineRun) error
	UpdateRun(ctx context.Context, runID string, status model.RunStatus, stageIndex int, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)
}

// ProspectStore persists discovered leads.
type ProspectStore interface {
	// SaveProspect inserts p unless a prospect with the same domain already
	// exists for the city. saved is false for such duplicates.
	SaveProspect(ctx context.Context, p *model.Prospect) (saved bool, err error)
	ExistingDomains(ctx context.Context, city string) (map[string]bool, error)
	ProspectsByCity(ctx context.Context, city string, limit int) ([]model.Prospect, error)
	CountByCity(ctx context.Context, city string) (int, error)
	ListProspects(ctx context.Context, filter ProspectFilter) ([]model.Prospect, int, error)
	GetProspect(ctx context.Context, id string) (*model.Prospect, error)
	UpdateProspectStatus(ctx context.Context, id string, status model.ProspectStatus, notes string) error
	DeleteProspect(ctx context.Context, id string) error
	ListCities(ctx context.Context) ([]model.CitySummary, error)
	CityStats(ctx context.Context, city string) (*model.CityStats, error)
	FilterOptions(ctx context.Context) (*model.FilterOptions, error)
}

// SuppressionStore keeps domains that opted out of outreach.
type SuppressionStore interface {
	IsSuppressed(ctx context.Context, domain string) (bool, error)
	Suppress(ctx context.Context, domain, reason string) error
}

// ResultStore backs the relational result cache.
type ResultStore interface {
	// GetCachedResult returns nil, nil on a miss or an expired entry.
	GetCachedResult(ctx context.Context, key string) (*model.CachedResult, error)
	// SetCachedResult overwrites the entry for res.Key. A ttl <= 0 never expires.
	SetCachedResult(ctx context.Context, res model.CachedResult, ttl time.Duration) error
	DeleteCachedResult(ctx context.Context, key string) error
}

// EmailLogStore records outreach attempts.
type EmailLogStore interface {
	LogEmail(ctx context.Context, entry *model.EmailLog) error
	ListEmailLogs(ctx context.Context, limit int) ([]model.EmailLog, error)
}

// Store defines the persistence interface for the discovery service.
type Store interface {
	ThreadStore
	RunStore
	ProspectStore
	SuppressionStore
	ResultStore
	EmailLogStore

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
