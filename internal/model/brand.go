package model

// BrandLead is a candidate menswear retailer as shown to the caller.
//
// Pointer fields are optional: nil means the value was never determined,
// which is different from an empty string or a zero. AverageSuitPriceUSD
// uses 0 for "unknown / price on request".
type BrandLead struct {
	Name                string   `json:"name"`
	WebsiteURL          string   `json:"websiteUrl"`
	StoreCount          int      `json:"storeCount"`
	AverageSuitPriceUSD float64  `json:"averageSuitPriceUSD"`
	City                string   `json:"city"`
	OriginCountry       string   `json:"originCountry"`
	Verified            bool     `json:"verified"`
	VerificationLog     []string `json:"verificationLog"`
	PassesConstraints   bool     `json:"passesConstraints"`
	ClothingTypes       []string `json:"clothingTypes"`
	StoreLocations      []string `json:"storeLocations"`

	Revenue             *string `json:"revenue,omitempty"`
	TargetGender        *string `json:"targetGender,omitempty"`
	BrandStyle          *string `json:"brandStyle,omitempty"`
	BusinessModel       *string `json:"businessModel,omitempty"`
	CompanyOverview     *string `json:"companyOverview,omitempty"`
	DetailedDescription *string `json:"detailedDescription,omitempty"`
	WoolPercentage      *string `json:"woolPercentage,omitempty"`
	MadeToMeasure       *bool   `json:"madeToMeasure,omitempty"`
	LocationQuality     *string `json:"locationQuality,omitempty"`
	LocationScore       *int    `json:"locationScore,omitempty"`
	FitScore            *int    `json:"fitScore,omitempty"`

	// Source-currency price carried between stages so persistence never has
	// to reverse a converted value.
	AvgSuitPriceEUR float64 `json:"avgSuitPriceEUR,omitempty"`
	PriceSource     string  `json:"priceSource,omitempty"`
}

// PriceKnown reports whether the lead has a usable average price.
func (b BrandLead) PriceKnown() bool {
	return b.AverageSuitPriceUSD > 0 || b.AvgSuitPriceEUR > 0
}

// Domain returns the brand's bare website domain.
func (b BrandLead) Domain() string {
	return ExtractDomain(b.WebsiteURL)
}

// Log appends a line to the verification log.
func (b *BrandLead) Log(line string) {
	b.VerificationLog = append(b.VerificationLog, line)
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }

// Deref returns the pointed-to string or "" when absent.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
