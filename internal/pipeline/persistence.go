package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/model"
)

// ProspectWriter is the part of the store the persistence stage needs.
type ProspectWriter interface {
	SaveProspect(ctx context.Context, p *model.Prospect) (bool, error)
	ExistingDomains(ctx context.Context, city string) (map[string]bool, error)
}

// Notifier tells the sales team about a newly saved brand.
type Notifier interface {
	Notify(ctx context.Context, lead model.BrandLead, source model.EmailSource) error
}

// PersistenceStage scores the approved brands and saves the ones not
// already known for the city.
type PersistenceStage struct {
	prospects ProspectWriter
	notifier  Notifier
}

// NewPersistenceStage creates the final stage. notifier may be nil.
func NewPersistenceStage(prospects ProspectWriter, notifier Notifier) *PersistenceStage {
	return &PersistenceStage{prospects: prospects, notifier: notifier}
}

func (s *PersistenceStage) Name() string        { return "persistence" }
func (s *PersistenceStage) Description() string { return "Saving verified brands" }

func (s *PersistenceStage) Run(ctx context.Context, sc *StageContext, state *model.RunState) StageResult {
	verified := []model.BrandLead{}
	if len(state.PotentialBrands) == 0 {
		state.VerifiedBrands = verified
		return ContinueWith("No brands to save")
	}

	existing, err := s.prospects.ExistingDomains(ctx, state.TargetCity)
	if err != nil {
		return FailErr(KindStorage, err, "could not load existing prospects")
	}

	saved, duplicates := 0, 0
	for _, lead := range state.PotentialBrands {
		domain := lead.Domain()
		if domain == "" {
			continue
		}
		if existing[domain] {
			duplicates++
			continue
		}

		lead = withEURPrice(lead, state.ExchangeRate)
		p, bd := prospectFromLead(lead, state)
		ok, err := s.prospects.SaveProspect(ctx, p)
		if err != nil {
			sc.Log.Warn("pipeline: failed to save prospect", zap.String("domain", domain), zap.Error(err))
			continue
		}
		if !ok {
			duplicates++
			continue
		}
		existing[domain] = true
		saved++

		lead.AverageSuitPriceUSD = lead.AvgSuitPriceEUR * state.ExchangeRate
		lead.PassesConstraints = bd.Rejection == ""
		lead.Log("score: " + formatScore(bd.Final))
		verified = append(verified, lead)

		if s.notifier != nil {
			if err := s.notifier.Notify(ctx, lead, model.EmailSourcePipeline); err != nil {
				sc.Log.Warn("pipeline: notification failed", zap.String("domain", domain), zap.Error(err))
			}
		}
	}

	state.VerifiedBrands = verified
	sc.Log.Info("pipeline: prospects saved", zap.Int("saved", saved), zap.Int("duplicates", duplicates))
	if duplicates > 0 {
		sc.Progress("Saved %d new brands, skipped %d duplicates", saved, duplicates)
	} else {
		sc.Progress("Saved %d new brands", saved)
	}
	return Continue()
}

// withEURPrice fills the source price of a lead edited by a reviewer who
// only set the USD figure.
func withEURPrice(lead model.BrandLead, rate float64) model.BrandLead {
	if lead.AvgSuitPriceEUR <= 0 && lead.AverageSuitPriceUSD > 0 && rate > 0 {
		lead.AvgSuitPriceEUR = lead.AverageSuitPriceUSD / rate
	}
	return lead
}

func prospectFromLead(lead model.BrandLead, state *model.RunState) (*model.Prospect, ScoreBreakdown) {
	locScore := 0
	if lead.LocationScore != nil {
		locScore = *lead.LocationScore
	}
	bd := computeScore(ScoreInput{
		PriceEUR:       lead.AvgSuitPriceEUR,
		StoreCount:     lead.StoreCount,
		WoolPercentage: model.Deref(lead.WoolPercentage),
		MadeToMeasure:  lead.MadeToMeasure,
		FitScore:       lead.FitScore,
		LocationScore:  locScore,
	})

	p := &model.Prospect{
		Name:                lead.Name,
		WebsiteURL:          lead.WebsiteURL,
		City:                state.TargetCity,
		Country:             lead.OriginCountry,
		CountryCode:         countryCode(state.TargetCountry),
		StoreCount:          lead.StoreCount,
		AvgSuitPriceEUR:     lead.AvgSuitPriceEUR,
		ExchangeRate:        state.ExchangeRate,
		BrandStyle:          model.Deref(lead.BrandStyle),
		BusinessModel:       model.Deref(lead.BusinessModel),
		CompanyOverview:     model.Deref(lead.CompanyOverview),
		DetailedDescription: model.Deref(lead.DetailedDescription),
		StoreLocations:      model.FlexStrings(lead.StoreLocations),
		MadeToMeasure:       lead.MadeToMeasure,
		QualityScore:        bd.Quality(),
		SimilarityScore:     int(bd.Similarity),
		LocationScore:       bd.Location,
		LocationQuality:     model.Deref(lead.LocationQuality),
		FinalScore:          bd.Final,
		Status:              model.ProspectStatusNew,
	}
	if lead.FitScore != nil {
		p.FitScore = *lead.FitScore
	}
	if w := model.Deref(lead.WoolPercentage); w != "" {
		p.MaterialComposition = model.FlexStrings{w}
	}
	return p, bd
}

var countryCodes = map[string]string{
	"uk":       "GB",
	"france":   "FR",
	"germany":  "DE",
	"italy":    "IT",
	"spain":    "ES",
	"portugal": "PT",
	"usa":      "US",
}

func countryCode(country string) string {
	if c, ok := countryCodes[strings.ToLower(country)]; ok {
		return c
	}
	return "XX"
}
