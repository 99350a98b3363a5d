package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning         RunStatus = "running"
	RunStatusWaitingApproval RunStatus = "waiting_approval"
	RunStatusComplete        RunStatus = "complete"
	RunStatusFailed          RunStatus = "failed"
)

// PipelineRun is one execution of the discovery pipeline for one city.
// ID doubles as the thread id handed to callers and stays the same across
// suspend and resume.
type PipelineRun struct {
	ID         string    `json:"id"`
	City       string    `json:"city"`
	StageIndex int       `json:"stage_index"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RunState is the payload accumulated by the stages of a run. It is the
// only thing carried across a suspend point, so every field must survive a
// JSON round trip.
type RunState struct {
	TargetCity        string      `json:"target_city"`
	TargetCountry     string      `json:"target_country"`
	SearchQueries     []string    `json:"search_queries"`
	CandidateURLs     []string    `json:"candidate_urls"`
	PotentialBrands   []BrandLead `json:"potential_brands"`
	VerifiedBrands    []BrandLead `json:"verified_brands"`
	ExchangeRate      float64     `json:"exchange_rate"`
	PriceThresholdEUR float64     `json:"price_threshold_eur"`
	PriceThresholdUSD float64     `json:"price_threshold_usd"`
	MaxStores         int         `json:"max_stores"`
	QueriesApproved   bool        `json:"queries_approved"`
	BrandsApproved    bool        `json:"brands_approved"`
}

// ThreadSnapshot is the persisted form of a suspended run.
// StageIndex is the registry index the run continues from on resume.
type ThreadSnapshot struct {
	ThreadID   string    `json:"thread_id"`
	Gate       string    `json:"gate"`
	StageIndex int       `json:"stage_index"`
	State      RunState  `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
}

// CachedResult is a completed result set stored under a normalized city key.
type CachedResult struct {
	Key          string      `json:"key"`
	Brands       []BrandLead `json:"brands"`
	ExchangeRate float64     `json:"exchange_rate"`
	StoredAt     time.Time   `json:"stored_at"`
}

// EmailSource records what triggered an outreach email.
type EmailSource string

const (
	EmailSourceManual   EmailSource = "manual"
	EmailSourcePipeline EmailSource = "pipeline"
)

// EmailLog is the audit record of one outreach attempt.
type EmailLog struct {
	ID        string      `json:"id"`
	BrandName string      `json:"brand_name"`
	Domain    string      `json:"domain"`
	Recipient string      `json:"recipient"`
	Source    EmailSource `json:"source"`
	Status    string      `json:"status"`
	Error     string      `json:"error,omitempty"`
	SentAt    time.Time   `json:"sent_at"`
}
