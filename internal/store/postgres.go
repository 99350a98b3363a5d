package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/drmonteiro/brands-ai/internal/db"
	"github.com/drmonteiro/brands-ai/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	pgSaveThread = `INSERT INTO threads (thread_id, gate, stage_index, state, created_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (thread_id) DO UPDATE SET gate = EXCLUDED.gate, stage_index = EXCLUDED.stage_index,
			state = EXCLUDED.state, created_at = EXCLUDED.created_at`
	pgLoadThread  = `SELECT thread_id, gate, stage_index, state, created_at FROM threads WHERE thread_id = $1`
	pgClaimThread = `DELETE FROM threads WHERE thread_id = $1 RETURNING thread_id, gate, stage_index, state, created_at`
	pgInsertRun   = `INSERT INTO runs (id, city, stage_index, status, error, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	pgUpdateRun   = `UPDATE runs SET status = $1, stage_index = $2, error = $3, updated_at = $4 WHERE id = $5`
	pgGetRun      = `SELECT id, city, stage_index, status, error, created_at, updated_at FROM runs WHERE id = $1`
	pgInsertProspect = `INSERT INTO prospects (` + prospectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27)
		ON CONFLICT DO NOTHING`
	pgExistingDomains = `SELECT domain FROM prospects WHERE city = $1`
	pgIsSuppressed    = `SELECT EXISTS (SELECT 1 FROM suppression_list WHERE domain = $1)`
	pgGetCached       = `SELECT key, brands, exchange_rate, stored_at, expires_at FROM result_cache WHERE key = $1`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"save_thread":      pgSaveThread,
	"load_thread":      pgLoadThread,
	"claim_thread":     pgClaimThread,
	"insert_run":       pgInsertRun,
	"update_run":       pgUpdateRun,
	"get_run":          pgGetRun,
	"insert_prospect":  pgInsertProspect,
	"existing_domains": pgExistingDomains,
	"is_suppressed":    pgIsSuppressed,
	"get_cached":       pgGetCached,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS threads (
	thread_id   TEXT PRIMARY KEY,
	gate        TEXT NOT NULL,
	stage_index INTEGER NOT NULL,
	state       JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	city        TEXT NOT NULL,
	stage_index INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS prospects (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	website_url          TEXT NOT NULL,
	domain               TEXT NOT NULL,
	city                 TEXT NOT NULL,
	country              TEXT NOT NULL DEFAULT '',
	country_code         TEXT NOT NULL DEFAULT '',
	store_count          INTEGER NOT NULL DEFAULT 0,
	avg_suit_price_eur   DOUBLE PRECISION NOT NULL DEFAULT 0,
	exchange_rate        DOUBLE PRECISION NOT NULL DEFAULT 1,
	brand_style          TEXT NOT NULL DEFAULT '',
	business_model       TEXT NOT NULL DEFAULT '',
	company_overview     TEXT NOT NULL DEFAULT '',
	detailed_description TEXT NOT NULL DEFAULT '',
	store_locations      JSONB NOT NULL DEFAULT '[]',
	material_composition JSONB NOT NULL DEFAULT '[]',
	made_to_measure      BOOLEAN,
	quality_score        INTEGER NOT NULL DEFAULT 0,
	similarity_score     INTEGER NOT NULL DEFAULT 0,
	location_score       INTEGER NOT NULL DEFAULT 0,
	location_quality     TEXT NOT NULL DEFAULT '',
	final_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	fit_score            INTEGER NOT NULL DEFAULT 0,
	status               TEXT NOT NULL DEFAULT 'new',
	notes                TEXT NOT NULL DEFAULT '',
	discovered_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (domain, city)
);

CREATE TABLE IF NOT EXISTS suppression_list (
	domain     TEXT PRIMARY KEY,
	reason     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS result_cache (
	key           TEXT PRIMARY KEY,
	brands        JSONB NOT NULL,
	exchange_rate DOUBLE PRECISION NOT NULL,
	stored_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS email_log (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	brand_name TEXT NOT NULL,
	domain     TEXT NOT NULL,
	recipient  TEXT NOT NULL,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	sent_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_threads_created_at ON threads(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_city ON runs(city);
CREATE INDEX IF NOT EXISTS idx_prospects_city ON prospects(city);
CREATE INDEX IF NOT EXISTS idx_prospects_final_score ON prospects(final_score DESC);
CREATE INDEX IF NOT EXISTS idx_email_log_sent_at ON email_log(sent_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate applies the schema in one transaction so a failed statement
// leaves no partial schema behind.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, postgresMigration)
		return err
	})
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Threads ---

func (s *PostgresStore) SaveThread(ctx context.Context, snap model.ThreadSnapshot) error {
	stateJSON, err := json.Marshal(snap.State)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal thread state")
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, pgSaveThread, snap.ThreadID, snap.Gate, snap.StageIndex, stateJSON, snap.CreatedAt.UTC())
	return eris.Wrapf(err, "postgres: save thread %s", snap.ThreadID)
}

func (s *PostgresStore) LoadThread(ctx context.Context, threadID string) (*model.ThreadSnapshot, error) {
	return pgScanThread(s.pool.QueryRow(ctx, pgLoadThread, threadID), threadID)
}

func (s *PostgresStore) ClaimThread(ctx context.Context, threadID string) (*model.ThreadSnapshot, error) {
	return pgScanThread(s.pool.QueryRow(ctx, pgClaimThread, threadID), threadID)
}

func (s *PostgresStore) DeleteThread(ctx context.Context, threadID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM threads WHERE thread_id = $1`, threadID)
	return eris.Wrapf(err, "postgres: delete thread %s", threadID)
}

func (s *PostgresStore) ListThreads(ctx context.Context, olderThan time.Time) ([]model.ThreadSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT thread_id, gate, stage_index, state, created_at FROM threads
		WHERE created_at < $1 ORDER BY created_at ASC`,
		olderThan.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list threads")
	}
	defer rows.Close()

	var out []model.ThreadSnapshot
	for rows.Next() {
		snap, err := pgScanThread(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list threads iterate")
}

func (s *PostgresStore) DeleteStaleThreads(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM threads WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete stale threads")
	}
	return int(tag.RowsAffected()), nil
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, run model.PipelineRun) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	_, err := s.pool.Exec(ctx, pgInsertRun,
		run.ID, run.City, run.StageIndex, string(run.Status), run.Error, run.CreatedAt.UTC(), now,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) UpdateRun(ctx context.Context, runID string, status model.RunStatus, stageIndex int, errMsg string) error {
	tag, err := s.pool.Exec(ctx, pgUpdateRun, string(status), stageIndex, errMsg, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	var r model.PipelineRun
	err := s.pool.QueryRow(ctx, pgGetRun, runID).
		Scan(&r.ID, &r.City, &r.StageIndex, &r.Status, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	w := runWhere(filter, dollar)
	query := `SELECT id, city, stage_index, status, error, created_at, updated_at FROM runs` +
		w.String() + ` ORDER BY created_at DESC LIMIT ` + w.next(runLimit(filter))
	if filter.Offset > 0 {
		query += ` OFFSET ` + w.next(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		var r model.PipelineRun
		if err := rows.Scan(&r.ID, &r.City, &r.StageIndex, &r.Status, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// --- Prospects ---

func (s *PostgresStore) SaveProspect(ctx context.Context, p *model.Prospect) (bool, error) {
	prepareProspect(p)
	locations, materials, err := marshalLists(p)
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx, pgInsertProspect,
		p.ID, p.Name, p.WebsiteURL, p.Domain, p.City, p.Country, p.CountryCode, p.StoreCount,
		p.AvgSuitPriceEUR, p.ExchangeRate, p.BrandStyle, p.BusinessModel, p.CompanyOverview,
		p.DetailedDescription, locations, materials, p.MadeToMeasure,
		p.QualityScore, p.SimilarityScore, p.LocationScore, p.LocationQuality, p.FinalScore,
		p.FitScore, string(p.Status), p.Notes, p.DiscoveredAt, p.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert prospect %s", p.Domain)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ExistingDomains(ctx context.Context, city string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, pgExistingDomains, model.NormalizeCity(city))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: existing domains")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan domain")
		}
		out[d] = true
	}
	return out, eris.Wrap(rows.Err(), "postgres: existing domains iterate")
}

func (s *PostgresStore) ProspectsByCity(ctx context.Context, city string, limit int) ([]model.Prospect, error) {
	return s.queryProspects(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE city = $1 ORDER BY final_score DESC, id ASC LIMIT $2`,
		model.NormalizeCity(city), positiveOr(limit, 50),
	)
}

func (s *PostgresStore) CountByCity(ctx context.Context, city string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM prospects WHERE city = $1`, model.NormalizeCity(city)).Scan(&n)
	return n, eris.Wrap(err, "postgres: count prospects")
}

func (s *PostgresStore) ListProspects(ctx context.Context, filter ProspectFilter) ([]model.Prospect, int, error) {
	w := prospectWhere(filter, dollar)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM prospects`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count prospects")
	}

	query := `SELECT ` + prospectColumns + ` FROM prospects` + w.String()
	query += orderAndPage(filter, w)
	prospects, err := s.queryProspects(ctx, query, w.args...)
	return prospects, total, err
}

func (s *PostgresStore) GetProspect(ctx context.Context, id string) (*model.Prospect, error) {
	p, err := pgScanProspect(s.pool.QueryRow(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "prospect %s", id)
	}
	return p, err
}

func (s *PostgresStore) UpdateProspectStatus(ctx context.Context, id string, status model.ProspectStatus, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE prospects SET status = $1, notes = COALESCE(NULLIF($2, ''), notes), updated_at = $3 WHERE id = $4`,
		string(status), notes, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update prospect %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "prospect %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteProspect(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM prospects WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete prospect %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "prospect %s", id)
	}
	return nil
}

func (s *PostgresStore) ListCities(ctx context.Context) ([]model.CitySummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT city, COUNT(*), COALESCE(AVG(final_score), 0),
			COALESCE(AVG(avg_suit_price_eur) FILTER (WHERE avg_suit_price_eur > 0), 0),
			MAX(discovered_at)
		FROM prospects GROUP BY city ORDER BY MAX(discovered_at) DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cities")
	}
	defer rows.Close()

	var out []model.CitySummary
	for rows.Next() {
		var c model.CitySummary
		if err := rows.Scan(&c.City, &c.TotalProspects, &c.AvgScore, &c.AvgPriceEUR, &c.LastSearched); err != nil {
			return nil, eris.Wrap(err, "postgres: scan city")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list cities iterate")
}

func (s *PostgresStore) CityStats(ctx context.Context, city string) (*model.CityStats, error) {
	st := model.CityStats{City: model.NormalizeCity(city)}
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(final_score), 0), COALESCE(MAX(final_score), 0),
			COUNT(*) FILTER (WHERE status = 'new'),
			COUNT(*) FILTER (WHERE status = 'contacted'),
			COUNT(*) FILTER (WHERE status = 'converted')
		FROM prospects WHERE city = $1`,
		st.City,
	).Scan(&st.TotalProspects, &st.AvgScore, &st.TopScore, &st.NewCount, &st.ContactedCount, &st.ConvertedCount)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: city stats %s", st.City)
	}
	if st.TotalProspects == 0 {
		return nil, eris.Wrapf(ErrNotFound, "city %s", st.City)
	}
	return &st, nil
}

func (s *PostgresStore) FilterOptions(ctx context.Context) (*model.FilterOptions, error) {
	opts := &model.FilterOptions{}
	err := s.pool.QueryRow(ctx,
		`SELECT
			COALESCE(ARRAY(SELECT DISTINCT status FROM prospects WHERE status <> '' ORDER BY 1), '{}'),
			COALESCE(ARRAY(SELECT DISTINCT brand_style FROM prospects WHERE brand_style <> '' ORDER BY 1), '{}'),
			COALESCE(ARRAY(SELECT DISTINCT country FROM prospects WHERE country <> '' ORDER BY 1), '{}'),
			COALESCE(ARRAY(SELECT DISTINCT city FROM prospects WHERE city <> '' ORDER BY 1), '{}'),
			COALESCE((SELECT MIN(avg_suit_price_eur) FROM prospects WHERE avg_suit_price_eur > 0), 0),
			COALESCE((SELECT MAX(avg_suit_price_eur) FROM prospects), 0),
			COALESCE((SELECT MAX(store_count) FROM prospects), 0)`,
	).Scan(&opts.Statuses, &opts.BrandStyles, &opts.Countries, &opts.Cities,
		&opts.MinPriceEUR, &opts.MaxPriceEUR, &opts.MaxStores)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: filter options")
	}
	return opts, nil
}

func (s *PostgresStore) queryProspects(ctx context.Context, query string, args ...any) ([]model.Prospect, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query prospects")
	}
	defer rows.Close()

	out := []model.Prospect{}
	for rows.Next() {
		p, err := pgScanProspect(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query prospects iterate")
}

// --- Suppression ---

func (s *PostgresStore) IsSuppressed(ctx context.Context, domain string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, pgIsSuppressed, domain).Scan(&ok)
	return ok, eris.Wrapf(err, "postgres: check suppression %s", domain)
}

func (s *PostgresStore) Suppress(ctx context.Context, domain, reason string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO suppression_list (domain, reason, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (domain) DO UPDATE SET reason = EXCLUDED.reason`,
		domain, reason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: suppress %s", domain)
}

// --- Result cache ---

func (s *PostgresStore) GetCachedResult(ctx context.Context, key string) (*model.CachedResult, error) {
	var res model.CachedResult
	var brandsJSON []byte
	var expiresAt *time.Time

	err := s.pool.QueryRow(ctx, pgGetCached, key).
		Scan(&res.Key, &brandsJSON, &res.ExchangeRate, &res.StoredAt, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cached result %s", key)
	}
	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return nil, nil
	}
	if err := json.Unmarshal(brandsJSON, &res.Brands); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached brands")
	}
	return &res, nil
}

func (s *PostgresStore) SetCachedResult(ctx context.Context, res model.CachedResult, ttl time.Duration) error {
	brandsJSON, err := json.Marshal(nonNilBrands(res.Brands))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cached brands")
	}
	now := time.Now().UTC()
	var expiresAt *time.Time
	if ttl > 0 {
		t := now.Add(ttl)
		expiresAt = &t
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO result_cache (key, brands, exchange_rate, stored_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET brands = EXCLUDED.brands, exchange_rate = EXCLUDED.exchange_rate,
			stored_at = EXCLUDED.stored_at, expires_at = EXCLUDED.expires_at`,
		res.Key, brandsJSON, res.ExchangeRate, now, expiresAt,
	)
	return eris.Wrapf(err, "postgres: set cached result %s", res.Key)
}

func (s *PostgresStore) DeleteCachedResult(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM result_cache WHERE key = $1`, key)
	return eris.Wrapf(err, "postgres: delete cached result %s", key)
}

// --- Email log ---

func (s *PostgresStore) LogEmail(ctx context.Context, entry *model.EmailLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO email_log (id, brand_name, domain, recipient, source, status, error, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.BrandName, entry.Domain, entry.Recipient, string(entry.Source),
		entry.Status, entry.Error, entry.SentAt,
	)
	return eris.Wrap(err, "postgres: insert email log")
}

func (s *PostgresStore) ListEmailLogs(ctx context.Context, limit int) ([]model.EmailLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, brand_name, domain, recipient, source, status, error, sent_at
		FROM email_log ORDER BY sent_at DESC LIMIT $1`,
		positiveOr(limit, 100),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list email logs")
	}
	defer rows.Close()

	var out []model.EmailLog
	for rows.Next() {
		var e model.EmailLog
		if err := rows.Scan(&e.ID, &e.BrandName, &e.Domain, &e.Recipient, &e.Source, &e.Status, &e.Error, &e.SentAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan email log")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list email logs iterate")
}

func pgScanThread(row scannable, threadID string) (*model.ThreadSnapshot, error) {
	var snap model.ThreadSnapshot
	var stateJSON []byte
	err := row.Scan(&snap.ThreadID, &snap.Gate, &snap.StageIndex, &stateJSON, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrThreadNotFound, "thread %s", threadID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan thread")
	}
	if err := json.Unmarshal(stateJSON, &snap.State); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal thread state")
	}
	return &snap, nil
}

func pgScanProspect(row scannable) (*model.Prospect, error) {
	var p model.Prospect
	var locations, materials []byte
	err := row.Scan(
		&p.ID, &p.Name, &p.WebsiteURL, &p.Domain, &p.City, &p.Country, &p.CountryCode, &p.StoreCount,
		&p.AvgSuitPriceEUR, &p.ExchangeRate, &p.BrandStyle, &p.BusinessModel, &p.CompanyOverview,
		&p.DetailedDescription, &locations, &materials, &p.MadeToMeasure,
		&p.QualityScore, &p.SimilarityScore, &p.LocationScore, &p.LocationQuality, &p.FinalScore,
		&p.FitScore, &p.Status, &p.Notes, &p.DiscoveredAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan prospect")
	}
	p.StoreLocations = model.ParseFlexStrings(locations)
	p.MaterialComposition = model.ParseFlexStrings(materials)
	p.ConvertPrice()
	return &p, nil
}
