package model

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// ProspectStatus tracks the outreach lifecycle of a stored prospect.
type ProspectStatus string

const (
	ProspectStatusNew       ProspectStatus = "new"
	ProspectStatusContacted ProspectStatus = "contacted"
	ProspectStatusConverted ProspectStatus = "converted"
	ProspectStatusRejected  ProspectStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s ProspectStatus) Valid() bool {
	switch s {
	case ProspectStatusNew, ProspectStatusContacted, ProspectStatusConverted, ProspectStatusRejected:
		return true
	}
	return false
}

// FlexStrings is a string list that also accepts a JSON-encoded string
// holding the list, a bare string, or null. Unparseable input yields an
// empty list instead of an error.
type FlexStrings []string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	*f = ParseFlexStrings(data)
	return nil
}

// ParseFlexStrings decodes a list leniently; see FlexStrings.
func ParseFlexStrings(data []byte) FlexStrings {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return FlexStrings{}
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		return FlexStrings(list)
	}

	var encoded string
	if err := json.Unmarshal(data, &encoded); err != nil {
		return FlexStrings{}
	}
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return FlexStrings{}
	}
	if strings.HasPrefix(encoded, "[") {
		if err := json.Unmarshal([]byte(encoded), &list); err == nil {
			return FlexStrings(list)
		}
		return FlexStrings{}
	}
	return FlexStrings{encoded}
}

// Prospect is a persisted lead. Prices are stored in the source currency
// (EUR) together with the exchange rate in effect when the lead was saved;
// AverageSuitPriceUSD is derived on read and never stored.
type Prospect struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	WebsiteURL          string         `json:"website_url"`
	Domain              string         `json:"domain"`
	City                string         `json:"city"`
	Country             string         `json:"country"`
	CountryCode         string         `json:"country_code"`
	StoreCount          int            `json:"store_count"`
	AvgSuitPriceEUR     float64        `json:"avg_suit_price_eur"`
	ExchangeRate        float64        `json:"exchange_rate"`
	AverageSuitPriceUSD float64        `json:"average_suit_price_usd"`
	BrandStyle          string         `json:"brand_style"`
	BusinessModel       string         `json:"business_model"`
	CompanyOverview     string         `json:"company_overview"`
	DetailedDescription string         `json:"detailed_description"`
	StoreLocations      FlexStrings    `json:"store_locations"`
	MaterialComposition FlexStrings    `json:"material_composition"`
	MadeToMeasure       *bool          `json:"made_to_measure"`
	QualityScore        int            `json:"quality_score"`
	SimilarityScore     int            `json:"similarity_score"`
	LocationScore       int            `json:"location_score"`
	LocationQuality     string         `json:"location_quality"`
	FinalScore          float64        `json:"final_score"`
	FitScore            int            `json:"fit_score"`
	Status              ProspectStatus `json:"status"`
	Notes               string         `json:"notes,omitempty"`
	DiscoveredAt        time.Time      `json:"discovered_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// ConvertPrice recomputes the canonical price from the stored source price.
func (p *Prospect) ConvertPrice() {
	p.AverageSuitPriceUSD = p.AvgSuitPriceEUR * p.ExchangeRate
}

// ToBrandLead maps a stored prospect onto the caller-facing lead shape,
// converting the price with rate (falls back to the stored rate when rate
// is not positive).
func (p Prospect) ToBrandLead(rate float64) BrandLead {
	if rate <= 0 {
		rate = p.ExchangeRate
	}
	quality := p.LocationQuality
	if quality == "" {
		quality = "standard"
		if p.LocationScore > 0 {
			quality = "premium"
		}
	}

	lead := BrandLead{
		Name:                p.Name,
		WebsiteURL:          p.WebsiteURL,
		StoreCount:          p.StoreCount,
		AverageSuitPriceUSD: p.AvgSuitPriceEUR * rate,
		AvgSuitPriceEUR:     p.AvgSuitPriceEUR,
		City:                p.City,
		OriginCountry:       p.Country,
		Verified:            p.Status != ProspectStatusNew,
		VerificationLog:     []string{},
		PassesConstraints:   p.FinalScore > 40,
		ClothingTypes:       []string{},
		StoreLocations:      []string(p.StoreLocations),
		BrandStyle:          StringPtr(p.BrandStyle),
		BusinessModel:       StringPtr(p.BusinessModel),
		CompanyOverview:     StringPtr(p.CompanyOverview),
		DetailedDescription: StringPtr(p.DetailedDescription),
		MadeToMeasure:       p.MadeToMeasure,
		LocationQuality:     &quality,
		LocationScore:       IntPtr(p.LocationScore),
		FitScore:            IntPtr(p.FitScore),
	}
	if lead.StoreLocations == nil {
		lead.StoreLocations = []string{}
	}
	if len(p.MaterialComposition) > 0 {
		lead.WoolPercentage = StringPtr(p.MaterialComposition[0])
	}
	return lead
}

// CitySummary aggregates stored prospects for one searched city.
type CitySummary struct {
	City           string    `json:"city"`
	TotalProspects int       `json:"total_prospects"`
	AvgScore       float64   `json:"avg_score"`
	AvgPriceEUR    float64   `json:"avg_price_eur"`
	LastSearched   time.Time `json:"last_searched"`
}

// CityStats is the detailed breakdown for a single city.
type CityStats struct {
	City           string  `json:"city"`
	TotalProspects int     `json:"total_prospects"`
	AvgScore       float64 `json:"avg_score"`
	TopScore       float64 `json:"top_score"`
	NewCount       int     `json:"new_count"`
	ContactedCount int     `json:"contacted_count"`
	ConvertedCount int     `json:"converted_count"`
}

// FilterOptions lists the distinct values available to prospect filters.
type FilterOptions struct {
	Statuses    []string `json:"statuses"`
	BrandStyles []string `json:"brand_styles"`
	Countries   []string `json:"countries"`
	Cities      []string `json:"cities"`
	MinPriceEUR float64  `json:"min_price_eur"`
	MaxPriceEUR float64  `json:"max_price_eur"`
	MaxStores   int      `json:"max_stores"`
}

// Suppression marks a domain that must never be surfaced again.
type Suppression struct {
	Domain    string    `json:"domain"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
