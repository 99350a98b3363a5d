package pipeline

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/drmonteiro/brands-ai/internal/model"
)

//go:embed locations.yaml
var locationsYAML []byte

// PremiumStreet is a luxury retail street and its tier (1 best).
type PremiumStreet struct {
	Street string `yaml:"street"`
	Tier   int    `yaml:"tier"`
}

// Location quality labels.
const (
	LocationPremium  = "premium"
	LocationStandard = "standard"
)

var tierScores = map[int]int{1: 10, 2: 7, 3: 4}

// LocationTable maps normalized city names to their premium streets.
type LocationTable map[string][]PremiumStreet

var (
	defaultLocations     LocationTable
	defaultLocationsErr  error
	defaultLocationsOnce sync.Once
)

// DefaultLocations returns the built-in premium street table.
func DefaultLocations() (LocationTable, error) {
	defaultLocationsOnce.Do(func() {
		defaultLocations, defaultLocationsErr = ParseLocations(locationsYAML)
	})
	return defaultLocations, defaultLocationsErr
}

// ParseLocations decodes a city → streets YAML document.
func ParseLocations(data []byte) (LocationTable, error) {
	raw := map[string][]PremiumStreet{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse locations")
	}
	t := make(LocationTable, len(raw))
	for city, streets := range raw {
		for i := range streets {
			streets[i].Street = strings.ToLower(strings.TrimSpace(streets[i].Street))
		}
		t[model.NormalizeCity(city)] = streets
	}
	return t, nil
}

// Detect returns the first premium street of city mentioned in content.
func (t LocationTable) Detect(content, city string) (PremiumStreet, bool) {
	streets, ok := t[model.NormalizeCity(city)]
	if !ok {
		return PremiumStreet{}, false
	}
	lower := strings.ToLower(content)
	for _, s := range streets {
		if strings.Contains(lower, s.Street) {
			return s, true
		}
	}
	return PremiumStreet{}, false
}

// HasCity reports whether the table covers city.
func (t LocationTable) HasCity(city string) bool {
	_, ok := t[model.NormalizeCity(city)]
	return ok
}

// tierScore converts a street tier into 0-10 location points.
func tierScore(tier int) int {
	return tierScores[tier]
}
