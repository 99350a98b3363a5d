package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/scrape"
	"github.com/drmonteiro/brands-ai/internal/store"
	"github.com/drmonteiro/brands-ai/pkg/anthropic"
)

const (
	defaultMaxBrands     = 20
	defaultLLMMaxTokens  = 8192
	maxFinalists         = 25
	candidatePromptChars = 8000

	lowPriceSkipEUR     = 300
	minSimilarity       = 45
	minPreScore         = 25
	preScorePriceBonus  = 30
	preScoreBonusAbove  = 500
	similarityPerKwHit  = 10
	similarityWeight    = 0.7
	maxSimilarityPoints = 100
)

// PageScraper fetches page content for many URLs at once. Results keep
// input order and hold nil for pages that could not be read.
type PageScraper interface {
	ScrapeAll(ctx context.Context, urls []string) []*scrape.Page
}

// ValidationOptions tune the selection step.
type ValidationOptions struct {
	Model     string
	MaxTokens int64
	// MaxBrands caps how many brands the model may select.
	MaxBrands int
}

// ValidationStage reads every candidate site, filters out the ones that
// do not look like premium tailoring retailers, and asks the model to pick
// the best partnership opportunities.
type ValidationStage struct {
	scraper     PageScraper
	suppression store.SuppressionStore
	llm         anthropic.Client
	locations   LocationTable
	opts        ValidationOptions
}

// NewValidationStage creates the validation stage.
func NewValidationStage(scraper PageScraper, suppression store.SuppressionStore, llm anthropic.Client, locations LocationTable, opts ValidationOptions) *ValidationStage {
	if opts.Model == "" {
		opts.Model = anthropic.DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultLLMMaxTokens
	}
	if opts.MaxBrands <= 0 {
		opts.MaxBrands = defaultMaxBrands
	}
	return &ValidationStage{
		scraper:     scraper,
		suppression: suppression,
		llm:         llm,
		locations:   locations,
		opts:        opts,
	}
}

func (s *ValidationStage) Name() string        { return "validation" }
func (s *ValidationStage) Description() string { return "Verifying candidates" }

// finalist is a scraped candidate that survived the data filters.
type finalist struct {
	url      string
	content  string
	priceEUR float64
	score    float64
}

func (s *ValidationStage) Run(ctx context.Context, sc *StageContext, state *model.RunState) StageResult {
	urls, err := s.uniqueDomains(ctx, sc, state.CandidateURLs)
	if err != nil {
		return FailErr(KindStorage, err, "could not check suppression list")
	}
	sc.Progress("Processing %d unique sites", len(urls))

	pages := s.scraper.ScrapeAll(ctx, urls)
	extracted := 0
	for _, p := range pages {
		if p != nil && p.Content != "" {
			extracted++
		}
	}
	sc.Progress("Content extracted: %d/%d", extracted, len(urls))

	finalists := preFilter(urls, pages)
	sc.Log.Info("pipeline: candidates pre-filtered",
		zap.Int("candidates", len(urls)),
		zap.Int("extracted", extracted),
		zap.Int("finalists", len(finalists)),
	)

	if len(finalists) == 0 {
		state.PotentialBrands = []model.BrandLead{}
		return ContinueWith("No candidates passed the content filters")
	}
	sc.Progress("Final analysis of %d finalists", len(finalists))

	brands, err := s.selectBrands(ctx, state, finalists)
	if err != nil {
		return FailErr(KindLLM, err, "brand selection failed")
	}
	state.PotentialBrands = brands
	sc.Progress("%d brands selected", len(brands))
	return Continue()
}

// uniqueDomains keeps the first URL per domain and drops suppressed
// domains.
func (s *ValidationStage) uniqueDomains(ctx context.Context, sc *StageContext, candidates []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, u := range candidates {
		domain := model.ExtractDomain(u)
		if domain == "" || seen[domain] {
			continue
		}
		seen[domain] = true
		if s.suppression != nil {
			suppressed, err := s.suppression.IsSuppressed(ctx, domain)
			if err != nil {
				return nil, err
			}
			if suppressed {
				sc.Log.Info("pipeline: skipping suppressed domain", zap.String("domain", domain))
				continue
			}
		}
		out = append(out, u)
	}
	return out, nil
}

// preFilter applies the keyword, price and similarity filters and returns
// the best finalists first.
func preFilter(urls []string, pages []*scrape.Page) []finalist {
	var out []finalist
	for i, p := range pages {
		if p == nil || p.Content == "" || isListingURL(urls[i]) {
			continue
		}
		kw := keywordScore(p.Content)
		if kw < minKeywordScore {
			continue
		}
		price := extractPrice(p.Content)
		if price > 0 && price < lowPriceSkipEUR {
			continue
		}
		sim := math.Min(float64(kw*similarityPerKwHit), maxSimilarityPoints)
		if sim < minSimilarity && price == 0 {
			continue
		}
		score := sim * similarityWeight
		if price > preScoreBonusAbove {
			score += preScorePriceBonus
		}
		if score < minPreScore {
			continue
		}
		out = append(out, finalist{url: urls[i], content: p.Content, priceEUR: price, score: score})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].score > out[b].score })
	if len(out) > maxFinalists {
		out = out[:maxFinalists]
	}
	return out
}

// selection is one brand as returned by the model.
type selection struct {
	Name                string            `json:"name"`
	URL                 string            `json:"url"`
	StoreCount          float64           `json:"storeCount"`
	IsChain             bool              `json:"isChain"`
	AvgPrice            float64           `json:"avgPrice"`
	PriceSource         string            `json:"priceSource"`
	PriceNote           string            `json:"priceNote"`
	WoolPercentage      string            `json:"woolPercentage"`
	MadeToMeasure       *bool             `json:"madeToMeasure"`
	BrandStyle          string            `json:"brandStyle"`
	BusinessModel       string            `json:"businessModel"`
	DetailedDescription string            `json:"detailedDescription"`
	StoreLocations      model.FlexStrings `json:"storeLocations"`
	WhySelected         string            `json:"whySelected"`
	City                string            `json:"city"`
	Country             string            `json:"country"`
	LocationQuality     string            `json:"locationQuality"`
	FitScore            *float64          `json:"fitScore"`
}

const selectionProfile = `You are the final selection agent for Confeções Lança, a Portuguese manufacturer of high-quality men's suits and formal wear.

IDEAL CLIENT PROFILE:
- Boutique menswear retailers, not large department stores
- Premium or luxury segment (suits from EUR 500)
- Fewer than 20 physical stores
- Values quality European manufacturing and long-term manufacturing partners
- Interested in private label or white-label production

WHAT WE OFFER:
- High-quality suits manufactured in Portugal
- Competitive pricing for premium quality
- Flexible minimum order quantities
- Customization and private label options

Real clients typically run 1-4 stores, sell suits around EUR 800, use 100% wool cloth and most offer made-to-measure.`

func (s *ValidationStage) selectBrands(ctx context.Context, state *model.RunState, finalists []finalist) ([]model.BrandLead, error) {
	req := anthropic.MessageRequest{
		Model:     s.opts.Model,
		MaxTokens: s.opts.MaxTokens,
		System:    anthropic.CachedSystem(selectionProfile),
		Messages:  []anthropic.Message{{Role: "user", Content: selectionPrompt(state.TargetCity, s.opts.MaxBrands, finalists)}},
	}
	resp, err := s.llm.CreateMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(s.opts.Model, s.Name())

	var picks []selection
	if err := anthropic.DecodeJSON(resp.Text(), &picks); err != nil {
		return nil, err
	}
	return s.toLeads(state, picks, finalists), nil
}

func selectionPrompt(city string, maxBrands int, finalists []finalist) string {
	var b strings.Builder
	b.WriteString("CANDIDATES TO EVALUATE:\n")
	for i, f := range finalists {
		content := f.content
		if len(content) > candidatePromptChars {
			content = content[:candidatePromptChars]
		}
		fmt.Fprintf(&b, "\n=== CANDIDATE %d ===\nURL: %s\n", i+1, f.url)
		if f.priceEUR > 0 {
			fmt.Fprintf(&b, "EXTRACTED PRICE: EUR %.0f\n", f.priceEUR)
		}
		fmt.Fprintf(&b, "CONTENT: %s\n", content)
	}
	fmt.Fprintf(&b, `
TASK: Return a JSON array of up to %d brands that are good partnership opportunities.
LANGUAGE: Use Portuguese (Portugal) for all descriptive text.
CITY: Each brand must have presence in %s.

RULES:
1. If two candidates are the same brand, return only the best one.
2. Do not include personal names, personal phone numbers or private emails.
3. avgPrice is the average suit price in EUR, 0 when not public.
4. woolPercentage: look for labels like "100%% Wool", "Pure New Wool", "Super 110s".
5. madeToMeasure: true when a made-to-measure, bespoke or custom tailoring service is offered.

FORMAT:
[{"name": "", "url": "", "storeCount": 0, "isChain": false, "avgPrice": 0, "priceSource": "found|not_public",
  "priceNote": "", "woolPercentage": "", "madeToMeasure": false, "brandStyle": "", "businessModel": "",
  "detailedDescription": "", "storeLocations": [], "whySelected": "", "city": "%s", "country": "",
  "locationQuality": "premium|standard", "fitScore": 0}]

Return ONLY JSON.`, maxBrands, city, city)
	return b.String()
}

// toLeads deduplicates the model's picks by domain and by overlapping name,
// then fills in price and location data from the scraped pages.
func (s *ValidationStage) toLeads(state *model.RunState, picks []selection, finalists []finalist) []model.BrandLead {
	byURL := make(map[string]finalist, len(finalists))
	byDomain := make(map[string]finalist, len(finalists))
	for _, f := range finalists {
		byURL[model.NormalizeURL(f.url)] = f
		byDomain[model.ExtractDomain(f.url)] = f
	}

	seenDomains := make(map[string]bool)
	var seenNames []string
	leads := make([]model.BrandLead, 0, len(picks))
	for _, p := range picks {
		if len(leads) >= s.opts.MaxBrands {
			break
		}
		domain := model.ExtractDomain(p.URL)
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if p.URL == "" || domain == "" || seenDomains[domain] || nameTaken(name, seenNames) {
			continue
		}
		seenDomains[domain] = true
		seenNames = append(seenNames, name)

		src, ok := byURL[model.NormalizeURL(p.URL)]
		if !ok {
			src = byDomain[domain]
		}
		leads = append(leads, s.toLead(state, p, src))
	}
	return leads
}

func nameTaken(name string, seen []string) bool {
	if name == "" {
		return false
	}
	for _, s := range seen {
		if strings.Contains(s, name) || strings.Contains(name, s) {
			return true
		}
	}
	return false
}

func (s *ValidationStage) toLead(state *model.RunState, p selection, src finalist) model.BrandLead {
	priceEUR := p.AvgPrice
	priceSource := p.PriceSource
	if priceEUR <= 0 && src.priceEUR > 0 {
		priceEUR = src.priceEUR
		priceSource = "extracted"
	}
	if priceEUR < 0 {
		priceEUR = 0
	}
	stores := int(p.StoreCount)
	if stores <= 0 {
		stores = 1
	}

	quality := p.LocationQuality
	if quality == "" {
		quality = LocationStandard
	}
	locScore := 0
	if street, ok := s.locations.Detect(src.content, state.TargetCity); ok {
		quality = LocationPremium
		locScore = tierScore(street.Tier)
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = "Unknown"
	}
	country := p.Country
	if country == "" {
		country = "International"
	}
	styleOr := func(v, def string) *string {
		if strings.TrimSpace(v) == "" {
			v = def
		}
		return model.StringPtr(v)
	}

	lead := model.BrandLead{
		Name:                name,
		WebsiteURL:          p.URL,
		StoreCount:          stores,
		AvgSuitPriceEUR:     priceEUR,
		AverageSuitPriceUSD: priceEUR * state.ExchangeRate,
		PriceSource:         priceSource,
		City:                state.TargetCity,
		OriginCountry:       country,
		Verified:            p.PriceSource == "found",
		VerificationLog:     []string{},
		PassesConstraints:   hardFilter(priceEUR, stores) == "" && stores <= maxStoresFor(state),
		ClothingTypes:       []string{"suits"},
		StoreLocations:      []string(p.StoreLocations),
		BrandStyle:          styleOr(p.BrandStyle, "Premium"),
		BusinessModel:       styleOr(p.BusinessModel, "Retail"),
		CompanyOverview:     model.StringPtr(p.WhySelected),
		DetailedDescription: model.StringPtr(p.DetailedDescription),
		WoolPercentage:      model.StringPtr(p.WoolPercentage),
		MadeToMeasure:       p.MadeToMeasure,
		LocationQuality:     model.StringPtr(quality),
		LocationScore:       model.IntPtr(locScore),
	}
	if lead.StoreLocations == nil {
		lead.StoreLocations = []string{}
	}
	if p.FitScore != nil {
		lead.FitScore = model.IntPtr(int(math.Round(*p.FitScore)))
	}
	if p.PriceNote != "" {
		lead.Log("price: " + p.PriceNote)
	}
	if priceSource != "" {
		lead.Log("price source: " + priceSource)
	}
	if locScore > 0 {
		lead.Log(fmt.Sprintf("premium street: +%d", locScore))
	}
	return lead
}

func maxStoresFor(state *model.RunState) int {
	if state.MaxStores > 0 {
		return state.MaxStores
	}
	return defaultMaxStores
}
