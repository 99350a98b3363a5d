package pipeline

import (
	"golang.org/x/time/rate"

	"github.com/drmonteiro/brands-ai/internal/config"
	"github.com/drmonteiro/brands-ai/internal/store"
	"github.com/drmonteiro/brands-ai/pkg/anthropic"
	"github.com/drmonteiro/brands-ai/pkg/jina"
)

// Deps are the collaborators of the default stages.
type Deps struct {
	Search      jina.Client
	Scraper     PageScraper
	Suppression store.SuppressionStore
	LLM         anthropic.Client
	Prospects   ProspectWriter
	// Notifier is optional.
	Notifier Notifier
	// Locations defaults to the built-in premium street table.
	Locations LocationTable
}

// DefaultRegistry wires the standard discovery pipeline:
// initialize, gate:discovery, discovery, validation, gate:persistence,
// persistence. Disabled gates are left out.
func DefaultRegistry(cfg *config.Config, d Deps) (*Registry, error) {
	locations := d.Locations
	if locations == nil {
		var err error
		if locations, err = DefaultLocations(); err != nil {
			return nil, err
		}
	}

	var limiter *rate.Limiter
	if cfg.Jina.SearchRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Jina.SearchRPS), 1)
	}

	stages := []Stage{NewInitializeStage(cfg.Pipeline)}
	if cfg.Pipeline.DiscoveryGate {
		stages = append(stages, NewDiscoveryGate())
	}
	stages = append(stages,
		NewDiscoveryStage(d.Search, limiter, cfg.Pipeline.MaxQueries),
		NewValidationStage(d.Scraper, d.Suppression, d.LLM, locations, ValidationOptions{
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
			MaxBrands: cfg.Pipeline.MaxCandidates,
		}),
	)
	if cfg.Pipeline.PersistenceGate {
		stages = append(stages, NewPersistenceGate())
	}
	stages = append(stages, NewPersistenceStage(d.Prospects, d.Notifier))
	return NewRegistry(stages...)
}
