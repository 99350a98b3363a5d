package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/pkg/jina"
)

const (
	defaultMaxQueries = 3
	resultsPerQuery   = 30
)

// excludedDomains are marketplaces and directories that never sell their
// own tailoring.
var excludedDomains = []string{"amazon.com", "ebay.com", "walmart.com", "target.com", "nordstrom.com", "yelp.com"}

// DiscoveryStage runs the approved queries through web search and collects
// unique candidate URLs.
type DiscoveryStage struct {
	search     jina.Client
	limiter    *rate.Limiter
	maxQueries int
}

// NewDiscoveryStage creates the search stage. A nil limiter means no rate
// limit.
func NewDiscoveryStage(search jina.Client, limiter *rate.Limiter, maxQueries int) *DiscoveryStage {
	if maxQueries <= 0 {
		maxQueries = defaultMaxQueries
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &DiscoveryStage{search: search, limiter: limiter, maxQueries: maxQueries}
}

func (s *DiscoveryStage) Name() string        { return "discovery" }
func (s *DiscoveryStage) Description() string { return "Searching for candidate brands" }

func (s *DiscoveryStage) Run(ctx context.Context, sc *StageContext, state *model.RunState) StageResult {
	queries := state.SearchQueries
	if len(queries) > s.maxQueries {
		queries = queries[:s.maxQueries]
	}

	seen := make(map[string]bool)
	var urls []string
	for i, q := range queries {
		if err := s.limiter.Wait(ctx); err != nil {
			return FailErr(KindUpstream, err, "search rate limiter stopped")
		}
		resp, err := s.search.Search(ctx, q, jina.WithCount(resultsPerQuery))
		if err != nil {
			sc.Log.Warn("pipeline: search query failed", zap.Int("query", i+1), zap.String("q", q), zap.Error(err))
			sc.Progress("Query %d failed", i+1)
			continue
		}

		added := 0
		for _, r := range resp.Data {
			if r.URL == "" || isExcludedDomain(r.URL) {
				continue
			}
			key := model.NormalizeURL(r.URL)
			if seen[key] {
				continue
			}
			seen[key] = true
			urls = append(urls, r.URL)
			added++
		}
		sc.Progress("Query %d: %d results, %d new", i+1, len(resp.Data), added)
	}

	if len(urls) == 0 {
		return Fail(KindNoCandidates, "no candidate websites found for %s", state.TargetCity)
	}
	state.CandidateURLs = urls
	sc.Log.Info("pipeline: discovery complete", zap.Int("candidates", len(urls)))
	sc.Progress("Found %d unique candidate URLs", len(urls))
	return Continue()
}

func isExcludedDomain(rawURL string) bool {
	domain := model.ExtractDomain(rawURL)
	for _, d := range excludedDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
