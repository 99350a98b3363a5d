package cache

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/store"
)

// StoreCache keeps results in the relational store's result_cache table.
type StoreCache struct {
	results store.ResultStore
	ttl     time.Duration
}

// NewStoreCache creates a StoreCache. A ttl <= 0 keeps entries until they
// are overwritten or invalidated.
func NewStoreCache(results store.ResultStore, ttl time.Duration) *StoreCache {
	return &StoreCache{results: results, ttl: ttl}
}

func (c *StoreCache) Get(ctx context.Context, key string) (*model.CachedResult, bool, error) {
	res, err := c.results.GetCachedResult(ctx, NormalizeKey(key))
	if err != nil {
		return nil, false, eris.Wrap(err, "cache: get")
	}
	return res, res != nil, nil
}

func (c *StoreCache) Put(ctx context.Context, key string, brands []model.BrandLead, rate float64) error {
	return eris.Wrap(c.results.SetCachedResult(ctx, newResult(key, brands, rate), c.ttl), "cache: put")
}

func (c *StoreCache) Invalidate(ctx context.Context, key string) error {
	return eris.Wrap(c.results.DeleteCachedResult(ctx, NormalizeKey(key)), "cache: invalidate")
}
