package pipeline

import (
	"math"
	"strconv"
	"strings"
)

// Scoring thresholds, in EUR and store counts.
const (
	idealPriceEUR     = 800
	goodPriceEUR      = 500
	minPriceEUR       = 375
	idealMaxStores    = 4
	maxStoresAccepted = 30
	hardFilterCap     = 40
)

// Hard-filter rejection reasons.
const (
	RejectPriceTooLow   = "price_too_low"
	RejectTooManyStores = "too_many_stores"
)

// ScoreInput is what a prospect is scored on.
type ScoreInput struct {
	PriceEUR       float64
	StoreCount     int
	WoolPercentage string
	MadeToMeasure  *bool
	// FitScore is the model's 0-100 profile match, nil when not given.
	FitScore      *int
	LocationScore int
}

// ScoreBreakdown holds the individual dimension scores and the capped total.
type ScoreBreakdown struct {
	Price      int     `json:"price"`
	Size       int     `json:"size"`
	Wool       int     `json:"wool"`
	MTM        int     `json:"mtm"`
	Similarity float64 `json:"similarity"`
	Location   int     `json:"location"`
	Final      float64 `json:"final"`
	// Rejection is set when a hard filter capped the score.
	Rejection string `json:"rejection,omitempty"`
}

// Quality is the product-side part of the score.
func (b ScoreBreakdown) Quality() int { return b.Price + b.Wool + b.MTM }

// computeScore adds the dimension scores, capped at 100. A prospect failing
// a hard filter is capped at 40.
func computeScore(in ScoreInput) ScoreBreakdown {
	b := ScoreBreakdown{
		Price:      priceScore(in.PriceEUR),
		Size:       sizeScore(in.StoreCount),
		Wool:       woolScore(in.WoolPercentage),
		MTM:        mtmScore(in.MadeToMeasure),
		Similarity: similarityScore(in.FitScore),
		Location:   min(in.LocationScore, 10),
	}
	total := float64(b.Price+b.Size+b.Wool+b.MTM+b.Location) + b.Similarity
	total = math.Min(total, 100)

	if reason := hardFilter(in.PriceEUR, in.StoreCount); reason != "" {
		b.Rejection = reason
		total = math.Min(total, hardFilterCap)
	}
	b.Final = math.Round(total*100) / 100
	return b
}

func hardFilter(priceEUR float64, stores int) string {
	if priceEUR > 0 && priceEUR < minPriceEUR {
		return RejectPriceTooLow
	}
	if stores > maxStoresAccepted {
		return RejectTooManyStores
	}
	return ""
}

// priceScore does not penalize an unknown price.
func priceScore(eur float64) int {
	switch {
	case eur <= 0:
		return 15
	case eur >= idealPriceEUR:
		return 30
	case eur >= goodPriceEUR:
		return 20
	case eur >= minPriceEUR:
		return 10
	default:
		return 0
	}
}

// sizeScore favours independent boutiques. Zero stores is usually a
// wholesale or online-first brand.
func sizeScore(stores int) int {
	switch {
	case stores <= 0:
		return 25
	case stores <= idealMaxStores:
		return 30
	case stores <= 10:
		return 20
	case stores <= 20:
		return 10
	case stores <= maxStoresAccepted:
		return 5
	default:
		return 0
	}
}

func woolScore(wool string) int {
	w := strings.ToLower(wool)
	switch {
	case strings.Contains(w, "100"):
		return 15
	case strings.Contains(w, "wool"), strings.Contains(w, "lã"):
		return 5
	default:
		return 0
	}
}

func mtmScore(mtm *bool) int {
	switch {
	case mtm == nil:
		return 8
	case *mtm:
		return 15
	default:
		return 5
	}
}

func similarityScore(fit *int) float64 {
	if fit == nil || *fit <= 0 {
		return 5
	}
	return math.Min(float64(*fit)*0.1, 10)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
