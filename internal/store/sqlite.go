package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/drmonteiro/brands-ai/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", withBusyTimeout(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// withBusyTimeout sets busy_timeout through the DSN so it applies to every
// pooled connection, not only the one the pragmas below run on.
func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)"
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS threads (
	thread_id   TEXT PRIMARY KEY,
	gate        TEXT NOT NULL,
	stage_index INTEGER NOT NULL,
	state       TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	city        TEXT NOT NULL,
	stage_index INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
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
	avg_suit_price_eur   REAL NOT NULL DEFAULT 0,
	exchange_rate        REAL NOT NULL DEFAULT 1,
	brand_style          TEXT NOT NULL DEFAULT '',
	business_model       TEXT NOT NULL DEFAULT '',
	company_overview     TEXT NOT NULL DEFAULT '',
	detailed_description TEXT NOT NULL DEFAULT '',
	store_locations      TEXT NOT NULL DEFAULT '[]',
	material_composition TEXT NOT NULL DEFAULT '[]',
	made_to_measure      INTEGER,
	quality_score        INTEGER NOT NULL DEFAULT 0,
	similarity_score     INTEGER NOT NULL DEFAULT 0,
	location_score       INTEGER NOT NULL DEFAULT 0,
	location_quality     TEXT NOT NULL DEFAULT '',
	final_score          REAL NOT NULL DEFAULT 0,
	fit_score            INTEGER NOT NULL DEFAULT 0,
	status               TEXT NOT NULL DEFAULT 'new',
	notes                TEXT NOT NULL DEFAULT '',
	discovered_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (domain, city)
);

CREATE TABLE IF NOT EXISTS suppression_list (
	domain     TEXT PRIMARY KEY,
	reason     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS result_cache (
	key           TEXT PRIMARY KEY,
	brands        TEXT NOT NULL,
	exchange_rate REAL NOT NULL,
	stored_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at    DATETIME
);

CREATE TABLE IF NOT EXISTS email_log (
	id         TEXT PRIMARY KEY,
	brand_name TEXT NOT NULL,
	domain     TEXT NOT NULL,
	recipient  TEXT NOT NULL,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	sent_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_threads_created_at ON threads(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_city ON runs(city);
CREATE INDEX IF NOT EXISTS idx_prospects_city ON prospects(city);
CREATE INDEX IF NOT EXISTS idx_prospects_final_score ON prospects(final_score);
CREATE INDEX IF NOT EXISTS idx_email_log_sent_at ON email_log(sent_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Threads ---

func (s *SQLiteStore) SaveThread(ctx context.Context, snap model.ThreadSnapshot) error {
	stateJSON, err := json.Marshal(snap.State)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal thread state")
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO threads (thread_id, gate, stage_index, state, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET gate = excluded.gate, stage_index = excluded.stage_index,
			state = excluded.state, created_at = excluded.created_at`,
		snap.ThreadID, snap.Gate, snap.StageIndex, string(stateJSON), snap.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save thread %s", snap.ThreadID)
}

func (s *SQLiteStore) LoadThread(ctx context.Context, threadID string) (*model.ThreadSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT thread_id, gate, stage_index, state, created_at FROM threads WHERE thread_id = ?`,
		threadID,
	)
	return scanThread(row, threadID)
}

func (s *SQLiteStore) ClaimThread(ctx context.Context, threadID string) (*model.ThreadSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM threads WHERE thread_id = ? RETURNING thread_id, gate, stage_index, state, created_at`,
		threadID,
	)
	return scanThread(row, threadID)
}

func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE thread_id = ?`, threadID)
	return eris.Wrapf(err, "sqlite: delete thread %s", threadID)
}

func (s *SQLiteStore) ListThreads(ctx context.Context, olderThan time.Time) ([]model.ThreadSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, gate, stage_index, state, created_at FROM threads
		WHERE created_at < ? ORDER BY created_at ASC`,
		olderThan.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list threads")
	}
	defer rows.Close()

	var out []model.ThreadSnapshot
	for rows.Next() {
		snap, err := scanThread(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list threads iterate")
}

func (s *SQLiteStore) DeleteStaleThreads(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete stale threads")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.PipelineRun) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, city, stage_index, status, error, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.City, run.StageIndex, string(run.Status), run.Error, run.CreatedAt.UTC(), now,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, runID string, status model.RunStatus, stageIndex int, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stage_index = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), stageIndex, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, city, stage_index, status, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	w := runWhere(filter, questionMark)
	query := `SELECT id, city, stage_index, status, error, created_at, updated_at FROM runs` +
		w.String() + ` ORDER BY created_at DESC LIMIT ` + w.next(runLimit(filter))
	if filter.Offset > 0 {
		query += ` OFFSET ` + w.next(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// --- Prospects ---

func (s *SQLiteStore) SaveProspect(ctx context.Context, p *model.Prospect) (bool, error) {
	prepareProspect(p)
	locations, materials, err := marshalLists(p)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO prospects (`+prospectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		p.ID, p.Name, p.WebsiteURL, p.Domain, p.City, p.Country, p.CountryCode, p.StoreCount,
		p.AvgSuitPriceEUR, p.ExchangeRate, p.BrandStyle, p.BusinessModel, p.CompanyOverview,
		p.DetailedDescription, locations, materials, nullableBool(p.MadeToMeasure),
		p.QualityScore, p.SimilarityScore, p.LocationScore, p.LocationQuality, p.FinalScore,
		p.FitScore, string(p.Status), p.Notes, p.DiscoveredAt, p.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert prospect %s", p.Domain)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ExistingDomains(ctx context.Context, city string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain FROM prospects WHERE city = ?`, model.NormalizeCity(city))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: existing domains")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan domain")
		}
		out[d] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: existing domains iterate")
}

func (s *SQLiteStore) ProspectsByCity(ctx context.Context, city string, limit int) ([]model.Prospect, error) {
	return s.queryProspects(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE city = ? ORDER BY final_score DESC, id ASC LIMIT ?`,
		model.NormalizeCity(city), positiveOr(limit, 50),
	)
}

func (s *SQLiteStore) CountByCity(ctx context.Context, city string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prospects WHERE city = ?`, model.NormalizeCity(city)).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count prospects")
}

func (s *SQLiteStore) ListProspects(ctx context.Context, filter ProspectFilter) ([]model.Prospect, int, error) {
	w := prospectWhere(filter, questionMark)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM prospects`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count prospects")
	}

	query := `SELECT ` + prospectColumns + ` FROM prospects` + w.String()
	query += orderAndPage(filter, w)
	prospects, err := s.queryProspects(ctx, query, w.args...)
	return prospects, total, err
}

func (s *SQLiteStore) GetProspect(ctx context.Context, id string) (*model.Prospect, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+prospectColumns+` FROM prospects WHERE id = ?`, id)
	p, err := scanSQLiteProspect(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "prospect %s", id)
	}
	return p, err
}

func (s *SQLiteStore) UpdateProspectStatus(ctx context.Context, id string, status model.ProspectStatus, notes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET status = ?, notes = CASE WHEN ? = '' THEN notes ELSE ? END, updated_at = ? WHERE id = ?`,
		string(status), notes, notes, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update prospect %s", id)
	}
	return checkRowsAffected(res, "prospect", id)
}

func (s *SQLiteStore) DeleteProspect(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prospects WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete prospect %s", id)
	}
	return checkRowsAffected(res, "prospect", id)
}

func (s *SQLiteStore) ListCities(ctx context.Context) ([]model.CitySummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT city, COUNT(*), COALESCE(AVG(final_score), 0),
			COALESCE(AVG(CASE WHEN avg_suit_price_eur > 0 THEN avg_suit_price_eur END), 0),
			MAX(discovered_at)
		FROM prospects GROUP BY city ORDER BY MAX(discovered_at) DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cities")
	}
	defer rows.Close()

	var out []model.CitySummary
	for rows.Next() {
		var c model.CitySummary
		var last sql.NullString
		if err := rows.Scan(&c.City, &c.TotalProspects, &c.AvgScore, &c.AvgPriceEUR, &last); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan city")
		}
		c.LastSearched = parseSQLiteTime(last.String)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list cities iterate")
}

func (s *SQLiteStore) CityStats(ctx context.Context, city string) (*model.CityStats, error) {
	st := model.CityStats{City: model.NormalizeCity(city)}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(final_score), 0), COALESCE(MAX(final_score), 0),
			COALESCE(SUM(CASE WHEN status = 'new' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'contacted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'converted' THEN 1 ELSE 0 END), 0)
		FROM prospects WHERE city = ?`,
		st.City,
	).Scan(&st.TotalProspects, &st.AvgScore, &st.TopScore, &st.NewCount, &st.ContactedCount, &st.ConvertedCount)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: city stats %s", st.City)
	}
	if st.TotalProspects == 0 {
		return nil, eris.Wrapf(ErrNotFound, "city %s", st.City)
	}
	return &st, nil
}

func (s *SQLiteStore) FilterOptions(ctx context.Context) (*model.FilterOptions, error) {
	opts := &model.FilterOptions{}
	var err error
	if opts.Statuses, err = s.distinct(ctx, "status"); err != nil {
		return nil, err
	}
	if opts.BrandStyles, err = s.distinct(ctx, "brand_style"); err != nil {
		return nil, err
	}
	if opts.Countries, err = s.distinct(ctx, "country"); err != nil {
		return nil, err
	}
	if opts.Cities, err = s.distinct(ctx, "city"); err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MIN(CASE WHEN avg_suit_price_eur > 0 THEN avg_suit_price_eur END), 0),
			COALESCE(MAX(avg_suit_price_eur), 0), COALESCE(MAX(store_count), 0) FROM prospects`,
	).Scan(&opts.MinPriceEUR, &opts.MaxPriceEUR, &opts.MaxStores)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: filter ranges")
	}
	return opts, nil
}

// distinct lists non-empty distinct values of a whitelisted prospects column.
func (s *SQLiteStore) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT `+column+` FROM prospects WHERE `+column+` <> '' ORDER BY `+column)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: distinct %s", column)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", column)
		}
		out = append(out, v)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: distinct %s iterate", column)
}

func (s *SQLiteStore) queryProspects(ctx context.Context, query string, args ...any) ([]model.Prospect, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query prospects")
	}
	defer rows.Close()

	out := []model.Prospect{}
	for rows.Next() {
		p, err := scanSQLiteProspect(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query prospects iterate")
}

// --- Suppression ---

func (s *SQLiteStore) IsSuppressed(ctx context.Context, domain string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM suppression_list WHERE domain = ?`, domain).Scan(&n)
	return n > 0, eris.Wrapf(err, "sqlite: check suppression %s", domain)
}

func (s *SQLiteStore) Suppress(ctx context.Context, domain, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suppression_list (domain, reason, created_at) VALUES (?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET reason = excluded.reason`,
		domain, reason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: suppress %s", domain)
}

// --- Result cache ---

func (s *SQLiteStore) GetCachedResult(ctx context.Context, key string) (*model.CachedResult, error) {
	var res model.CachedResult
	var brandsJSON string
	var expiresAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT key, brands, exchange_rate, stored_at, expires_at FROM result_cache WHERE key = ?`,
		key,
	).Scan(&res.Key, &brandsJSON, &res.ExchangeRate, &res.StoredAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cached result %s", key)
	}
	if expiresAt.Valid && !expiresAt.Time.After(time.Now()) {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(brandsJSON), &res.Brands); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached brands")
	}
	return &res, nil
}

func (s *SQLiteStore) SetCachedResult(ctx context.Context, res model.CachedResult, ttl time.Duration) error {
	brandsJSON, err := json.Marshal(nonNilBrands(res.Brands))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cached brands")
	}
	now := time.Now().UTC()
	var expiresAt any
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO result_cache (key, brands, exchange_rate, stored_at, expires_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET brands = excluded.brands, exchange_rate = excluded.exchange_rate,
			stored_at = excluded.stored_at, expires_at = excluded.expires_at`,
		res.Key, string(brandsJSON), res.ExchangeRate, now, expiresAt,
	)
	return eris.Wrapf(err, "sqlite: set cached result %s", res.Key)
}

func (s *SQLiteStore) DeleteCachedResult(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM result_cache WHERE key = ?`, key)
	return eris.Wrapf(err, "sqlite: delete cached result %s", key)
}

// --- Email log ---

func (s *SQLiteStore) LogEmail(ctx context.Context, entry *model.EmailLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_log (id, brand_name, domain, recipient, source, status, error, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.BrandName, entry.Domain, entry.Recipient, string(entry.Source),
		entry.Status, entry.Error, entry.SentAt,
	)
	return eris.Wrap(err, "sqlite: insert email log")
}

func (s *SQLiteStore) ListEmailLogs(ctx context.Context, limit int) ([]model.EmailLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, brand_name, domain, recipient, source, status, error, sent_at
		FROM email_log ORDER BY sent_at DESC LIMIT ?`,
		positiveOr(limit, 100),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list email logs")
	}
	defer rows.Close()

	var out []model.EmailLog
	for rows.Next() {
		var e model.EmailLog
		if err := rows.Scan(&e.ID, &e.BrandName, &e.Domain, &e.Recipient, &e.Source, &e.Status, &e.Error, &e.SentAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan email log")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list email logs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanThread(row scannable, threadID string) (*model.ThreadSnapshot, error) {
	var snap model.ThreadSnapshot
	var stateJSON string
	err := row.Scan(&snap.ThreadID, &snap.Gate, &snap.StageIndex, &stateJSON, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrThreadNotFound, "thread %s", threadID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan thread")
	}
	if err := json.Unmarshal([]byte(stateJSON), &snap.State); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal thread state")
	}
	return &snap, nil
}

func scanRun(row scannable) (*model.PipelineRun, error) {
	var r model.PipelineRun
	err := row.Scan(&r.ID, &r.City, &r.StageIndex, &r.Status, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	return &r, nil
}

func scanSQLiteProspect(row scannable) (*model.Prospect, error) {
	var p model.Prospect
	var locations, materials string
	var mtm sql.NullBool
	err := row.Scan(
		&p.ID, &p.Name, &p.WebsiteURL, &p.Domain, &p.City, &p.Country, &p.CountryCode, &p.StoreCount,
		&p.AvgSuitPriceEUR, &p.ExchangeRate, &p.BrandStyle, &p.BusinessModel, &p.CompanyOverview,
		&p.DetailedDescription, &locations, &materials, &mtm,
		&p.QualityScore, &p.SimilarityScore, &p.LocationScore, &p.LocationQuality, &p.FinalScore,
		&p.FitScore, &p.Status, &p.Notes, &p.DiscoveredAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan prospect")
	}
	p.StoreLocations = model.ParseFlexStrings([]byte(locations))
	p.MaterialComposition = model.ParseFlexStrings([]byte(materials))
	if mtm.Valid {
		p.MadeToMeasure = model.BoolPtr(mtm.Bool)
	}
	p.ConvertPrice()
	return &p, nil
}

// sqliteTimeLayouts covers the encodings aggregate columns come back in,
// since MAX() over a DATETIME column loses the declared type.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseSQLiteTime(s string) time.Time {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
