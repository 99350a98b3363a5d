// Package cache stores completed discovery results per city so repeated
// searches can skip the pipeline.
package cache

import (
	"context"
	"time"

	"github.com/drmonteiro/brands-ai/internal/model"
)

// Cache maps a normalized city key to the last completed result set.
// Implementations are safe for concurrent use on independent keys.
type Cache interface {
	// Get returns the cached result and true on a hit.
	Get(ctx context.Context, key string) (*model.CachedResult, bool, error)
	// Put overwrites any existing entry for key.
	Put(ctx context.Context, key string, brands []model.BrandLead, rate float64) error
	Invalidate(ctx context.Context, key string) error
}

// NormalizeKey maps a city as typed by a user onto its cache key.
func NormalizeKey(city string) string {
	return model.NormalizeCity(city)
}

func newResult(key string, brands []model.BrandLead, rate float64) model.CachedResult {
	if brands == nil {
		brands = []model.BrandLead{}
	}
	return model.CachedResult{
		Key:          NormalizeKey(key),
		Brands:       brands,
		ExchangeRate: rate,
		StoredAt:     time.Now().UTC(),
	}
}
