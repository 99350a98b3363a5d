package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/cache"
	"github.com/drmonteiro/brands-ai/internal/monitoring"
	"github.com/drmonteiro/brands-ai/internal/outreach"
	"github.com/drmonteiro/brands-ai/internal/pipeline"
	"github.com/drmonteiro/brands-ai/internal/scrape"
	"github.com/drmonteiro/brands-ai/internal/store"
	anthropicpkg "github.com/drmonteiro/brands-ai/pkg/anthropic"
	"github.com/drmonteiro/brands-ai/pkg/email"
	"github.com/drmonteiro/brands-ai/pkg/firecrawl"
	"github.com/drmonteiro/brands-ai/pkg/jina"
)

// pipelineEnv holds the store, cache, clients and executor needed by the
// serve, search and resume commands.
type pipelineEnv struct {
	Store    store.Store
	Cache    cache.Cache
	Executor *pipeline.Executor
	Notifier *outreach.Notifier // nil without a Resend key
	Metrics  *monitoring.Metrics
	Registry *prometheus.Registry

	redis *redis.Client
}

// Close waits for in-flight runs and releases resources.
func (pe *pipelineEnv) Close() {
	if pe.Executor != nil {
		pe.Executor.Wait()
	}
	if pe.redis != nil {
		_ = pe.redis.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "brands.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the store for commands that only touch
// persisted data.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initCache builds the result cache. The redis client, when used, is
// returned so the caller can close it.
func initCache(ctx context.Context, st store.Store) (cache.Cache, *redis.Client, error) {
	ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
	switch cfg.Cache.Driver {
	case "redis":
		client, err := cache.DialRedis(ctx, cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		zap.L().Info("result cache using redis", zap.String("addr", cfg.Cache.Redis.Addr))
		return cache.NewRedisCache(client, ttl), client, nil
	default:
		return cache.NewStoreCache(st, ttl), nil, nil
	}
}

// initPipeline sets up the store, cache, API clients and the executor.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	c, rdb, err := initCache(ctx, st)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Cache = c
	env.redis = rdb

	env.Registry = prometheus.NewRegistry()
	env.Metrics = monitoring.NewMetrics(env.Registry)

	jinaOpts := []jina.Option{}
	if cfg.Jina.BaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithBaseURL(cfg.Jina.BaseURL))
	}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)
	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	// Jina reader first, Firecrawl as fallback when a key is configured.
	scrapers := []scrape.Scraper{scrape.NewJinaAdapter(jinaClient)}
	if cfg.Firecrawl.Key != "" {
		fcOpts := []firecrawl.Option{}
		if cfg.Firecrawl.BaseURL != "" {
			fcOpts = append(fcOpts, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
		}
		scrapers = append(scrapers, scrape.NewFirecrawlAdapter(firecrawl.NewClient(cfg.Firecrawl.Key, fcOpts...)))
	} else {
		zap.L().Debug("BRANDS_FIRECRAWL_KEY not set, firecrawl fallback disabled")
	}
	chain := scrape.NewChain(scrape.Options{Concurrency: cfg.Pipeline.ExtractConcurrency}, scrapers...)

	if cfg.Email.ResendKey != "" {
		emailOpts := []email.Option{}
		if cfg.Email.BaseURL != "" {
			emailOpts = append(emailOpts, email.WithBaseURL(cfg.Email.BaseURL))
		}
		env.Notifier = outreach.NewNotifier(email.NewClient(cfg.Email.ResendKey, emailOpts...), st, cfg.Email, env.Metrics)
	} else {
		zap.L().Warn("BRANDS_EMAIL_RESEND_KEY not set, email notifications disabled")
	}

	deps := pipeline.Deps{
		Search:      jinaClient,
		Scraper:     chain,
		Suppression: st,
		LLM:         anthropicClient,
		Prospects:   st,
	}
	if env.Notifier != nil && cfg.Email.NotifyOnPersist {
		deps.Notifier = env.Notifier
	}

	reg, err := pipeline.DefaultRegistry(cfg, deps)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "build pipeline")
	}
	zap.L().Info("pipeline ready", zap.Strings("stages", reg.Names()))

	env.Executor = pipeline.NewExecutor(reg, st, st, c,
		pipeline.WithMetrics(env.Metrics),
		pipeline.WithStreamBuffer(cfg.Pipeline.StreamBuffer),
	)
	return env, nil
}
