// Package query serves read and curation requests over stored prospects.
// It always reads the relational store, never the result cache.
package query

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/store"
)

// Page size bounds.
const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// ValidationError reports a malformed query.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Filters select prospects. Nil bounds are inactive and all active bounds
// must hold. Prices are USD; any price bound excludes unknown prices.
type Filters struct {
	City      string
	Country   string
	MinStores *int     `validate:"omitempty,min=0"`
	MaxStores *int     `validate:"omitempty,min=0"`
	MinPrice  *float64 `validate:"omitempty,min=0"`
	MaxPrice  *float64 `validate:"omitempty,min=0"`
	MinScore  *float64 `validate:"omitempty,min=0,max=100"`
	Status    string   `validate:"omitempty,oneof=new contacted converted rejected"`
	SortBy    string   `validate:"omitempty,oneof=final_score store_count avg_suit_price_eur discovered_at name"`
	SortOrder string   `validate:"omitempty,oneof=asc desc ASC DESC"`
	Limit     int      `validate:"min=1,max=100"`
	Offset    int      `validate:"min=0"`
}

// Page is one page of stored prospects in their persisted snake_case
// shape. Total counts every match, not just this page.
type Page struct {
	Prospects []model.Prospect `json:"prospects"`
	Total     int              `json:"total"`
}

// Service answers prospect queries.
type Service struct {
	prospects   store.ProspectStore
	suppression store.SuppressionStore
	validate    *validator.Validate
}

// NewService creates a Service over the given stores.
func NewService(prospects store.ProspectStore, suppression store.SuppressionStore) *Service {
	return &Service{
		prospects:   prospects,
		suppression: suppression,
		validate:    validator.New(),
	}
}

// ParseFilters reads filters from URL query parameters. Both snake_case
// and camelCase names are accepted.
func ParseFilters(q url.Values) (Filters, error) {
	f := Filters{
		City:      strings.TrimSpace(q.Get("city")),
		Country:   strings.TrimSpace(q.Get("country")),
		Status:    strings.TrimSpace(q.Get("status")),
		SortBy:    strings.TrimSpace(first(q, "sort_by", "sortBy")),
		SortOrder: strings.TrimSpace(first(q, "sort_order", "sortOrder")),
		Limit:     DefaultLimit,
	}

	var err error
	if f.MinStores, err = intParam(q, "min_stores", "minStores"); err != nil {
		return Filters{}, err
	}
	if f.MaxStores, err = intParam(q, "max_stores", "maxStores"); err != nil {
		return Filters{}, err
	}
	if f.MinPrice, err = floatParam(q, "min_price", "minPrice"); err != nil {
		return Filters{}, err
	}
	if f.MaxPrice, err = floatParam(q, "max_price", "maxPrice"); err != nil {
		return Filters{}, err
	}
	if f.MinScore, err = floatParam(q, "min_score", "minScore"); err != nil {
		return Filters{}, err
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		return Filters{}, err
	}
	if limit != nil {
		f.Limit = *limit
	}
	offset, err := intParam(q, "offset")
	if err != nil {
		return Filters{}, err
	}
	if offset != nil {
		f.Offset = *offset
	}
	return f, nil
}

func first(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func intParam(q url.Values, keys ...string) (*int, error) {
	raw := strings.TrimSpace(first(q, keys...))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &ValidationError{Field: keys[0], Message: "must be an integer"}
	}
	return &v, nil
}

func floatParam(q url.Values, keys ...string) (*float64, error) {
	raw := strings.TrimSpace(first(q, keys...))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &ValidationError{Field: keys[0], Message: "must be a number"}
	}
	return &v, nil
}

// Validate checks field ranges and that every min does not exceed its max.
func (s *Service) Validate(f Filters) error {
	if err := s.validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			ve := verrs[0]
			return &ValidationError{Field: toSnake(ve.Field()), Message: "failed " + ve.Tag() + " check"}
		}
		return &ValidationError{Field: "filters", Message: err.Error()}
	}
	if f.MinStores != nil && f.MaxStores != nil && *f.MinStores > *f.MaxStores {
		return &ValidationError{Field: "min_stores", Message: "must not exceed max_stores"}
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return &ValidationError{Field: "min_price", Message: "must not exceed max_price"}
	}
	return nil
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// List returns the stored prospects matching f. average_suit_price_usd is
// derived from the stored EUR price and exchange rate of each row.
func (s *Service) List(ctx context.Context, f Filters) (*Page, error) {
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if err := s.Validate(f); err != nil {
		return nil, err
	}
	rows, total, err := s.prospects.ListProspects(ctx, store.ProspectFilter{
		City:      model.NormalizeCity(f.City),
		Country:   f.Country,
		MinStores: f.MinStores,
		MaxStores: f.MaxStores,
		MinPrice:  f.MinPrice,
		MaxPrice:  f.MaxPrice,
		MinScore:  f.MinScore,
		Status:    model.ProspectStatus(f.Status),
		SortBy:    f.SortBy,
		SortOrder: f.SortOrder,
		Limit:     f.Limit,
		Offset:    f.Offset,
	})
	if err != nil {
		return nil, eris.Wrap(err, "query: list prospects")
	}
	if rows == nil {
		rows = []model.Prospect{}
	}
	for i := range rows {
		rows[i].ConvertPrice()
	}
	return &Page{Prospects: rows, Total: total}, nil
}

// Get returns one stored prospect.
func (s *Service) Get(ctx context.Context, id string) (*model.Prospect, error) {
	p, err := s.prospects.GetProspect(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "query: get prospect %s", id)
	}
	return p, nil
}

// Cities summarizes every searched city.
func (s *Service) Cities(ctx context.Context) ([]model.CitySummary, error) {
	cities, err := s.prospects.ListCities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "query: list cities")
	}
	if cities == nil {
		cities = []model.CitySummary{}
	}
	return cities, nil
}

// CityStats aggregates the prospects of one city.
func (s *Service) CityStats(ctx context.Context, city string) (*model.CityStats, error) {
	key := model.NormalizeCity(city)
	if key == "" {
		return nil, &ValidationError{Field: "city", Message: "must not be blank"}
	}
	stats, err := s.prospects.CityStats(ctx, key)
	if err != nil {
		return nil, eris.Wrapf(err, "query: city stats %s", key)
	}
	return stats, nil
}

// FilterOptions lists the values the filter UI can offer.
func (s *Service) FilterOptions(ctx context.Context) (*model.FilterOptions, error) {
	opts, err := s.prospects.FilterOptions(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "query: filter options")
	}
	return opts, nil
}

// UpdateStatus moves a prospect through the sales funnel.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.ProspectStatus, notes string) error {
	if !status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	if err := s.prospects.UpdateProspectStatus(ctx, id, status, notes); err != nil {
		return eris.Wrapf(err, "query: update status %s", id)
	}
	return nil
}

// Delete removes a prospect.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.prospects.DeleteProspect(ctx, id); err != nil {
		return eris.Wrapf(err, "query: delete prospect %s", id)
	}
	return nil
}

// Suppress opts a domain out of discovery and outreach. A URL is accepted
// and reduced to its domain.
func (s *Service) Suppress(ctx context.Context, domainOrURL, reason string) error {
	domain := model.ExtractDomain(domainOrURL)
	if domain == "" {
		return &ValidationError{Field: "domain", Message: "must not be blank"}
	}
	if err := s.suppression.Suppress(ctx, domain, reason); err != nil {
		return eris.Wrapf(err, "query: suppress %s", domain)
	}
	return nil
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
