package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/config"
	"github.com/drmonteiro/brands-ai/internal/model"
)

const (
	defaultExchangeRate      = 1.08
	defaultPriceThresholdEUR = 500
	defaultMaxStores         = 20
	defaultCountry           = "USA"
)

// countryKeywords infers a country from words in the city name.
var countryKeywords = []struct {
	country string
	cities  []string
}{
	{"UK", []string{"london", "manchester", "birmingham"}},
	{"France", []string{"paris", "lyon", "marseille"}},
	{"Germany", []string{"berlin", "munich", "hamburg", "frankfurt"}},
	{"Italy", []string{"milan", "rome", "florence", "naples"}},
	{"Spain", []string{"madrid", "barcelona"}},
	{"Portugal", []string{"lisbon", "porto"}},
}

var queryTemplates = []string{
	"%s luxury menswear boutique premium suits",
	"%s bespoke tailor custom suits high end",
	"%s designer men suits store independent",
}

// InitializeStage fixes the run's price constraints and builds the search
// queries for the target city.
type InitializeStage struct {
	cfg config.PipelineConfig
}

// NewInitializeStage creates the first stage of a run.
func NewInitializeStage(cfg config.PipelineConfig) *InitializeStage {
	return &InitializeStage{cfg: cfg}
}

func (s *InitializeStage) Name() string        { return "initialize" }
func (s *InitializeStage) Description() string { return "Generating search queries" }

func (s *InitializeStage) Run(_ context.Context, sc *StageContext, state *model.RunState) StageResult {
	rate := s.cfg.ExchangeRate
	if rate <= 0 {
		rate = defaultExchangeRate
	}
	threshold := s.cfg.PriceThresholdEUR
	if threshold <= 0 {
		threshold = defaultPriceThresholdEUR
	}
	maxStores := s.cfg.MaxStores
	if maxStores <= 0 {
		maxStores = defaultMaxStores
	}

	state.ExchangeRate = rate
	state.PriceThresholdEUR = threshold
	state.PriceThresholdUSD = threshold * rate
	state.MaxStores = maxStores
	if state.TargetCountry == "" {
		state.TargetCountry = inferCountry(state.TargetCity)
	}
	state.SearchQueries = buildQueries(state.TargetCity)

	sc.Log.Info("pipeline: search initialized",
		zap.String("country", state.TargetCountry),
		zap.Float64("threshold_usd", state.PriceThresholdUSD),
		zap.Int("queries", len(state.SearchQueries)),
	)
	sc.Progress("Search started for %s, %s. Target price: $%.0f", state.TargetCity, state.TargetCountry, state.PriceThresholdUSD)
	return Continue()
}

func inferCountry(city string) string {
	c := strings.ToLower(city)
	for _, entry := range countryKeywords {
		for _, name := range entry.cities {
			if strings.Contains(c, name) {
				return entry.country
			}
		}
	}
	return defaultCountry
}

func buildQueries(city string) []string {
	city = strings.TrimSpace(city)
	queries := make([]string, len(queryTemplates))
	for i, tmpl := range queryTemplates {
		queries[i] = fmt.Sprintf(tmpl, city)
	}
	return queries
}
