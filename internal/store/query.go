package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/drmonteiro/brands-ai/internal/model"
)

// placeholder renders the n-th (1-based) bind parameter for a dialect.
type placeholder func(n int) string

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

const defaultProspectLimit = 25

var sortColumns = map[string]string{
	"final_score":        "final_score",
	"store_count":        "store_count",
	"avg_suit_price_eur": "avg_suit_price_eur",
	"discovered_at":      "discovered_at",
	"name":               "name",
}

// SortColumns returns the columns prospects can be ordered by.
func SortColumns() []string {
	return []string{"final_score", "store_count", "avg_suit_price_eur", "discovered_at", "name"}
}

// whereBuilder accumulates AND-ed conditions with dialect-specific binds.
// Each cond holds one %s per argument.
type whereBuilder struct {
	ph      placeholder
	clauses []string
	args    []any
}

func (w *whereBuilder) add(cond string, args ...any) {
	marks := make([]any, len(args))
	for i := range args {
		marks[i] = w.ph(len(w.args) + i + 1)
	}
	w.clauses = append(w.clauses, fmt.Sprintf(cond, marks...))
	w.args = append(w.args, args...)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// next returns the placeholder for the next argument to be appended.
func (w *whereBuilder) next(arg any) string {
	w.args = append(w.args, arg)
	return w.ph(len(w.args))
}

// prospectWhere translates f into a WHERE clause over the prospects table.
// Suppressed domains never match.
func prospectWhere(f ProspectFilter, ph placeholder) *whereBuilder {
	w := &whereBuilder{ph: ph}
	w.clauses = append(w.clauses, "domain NOT IN (SELECT domain FROM suppression_list)")

	if f.City != "" {
		w.add("city = %s", f.City)
	}
	if f.Country != "" {
		w.add("LOWER(country) = LOWER(%s)", f.Country)
	}
	if f.Status != "" {
		w.add("status = %s", string(f.Status))
	}
	if f.MinStores != nil {
		w.add("store_count >= %s", *f.MinStores)
	}
	if f.MaxStores != nil {
		w.add("store_count <= %s", *f.MaxStores)
	}
	if f.PriceFiltered() {
		w.add("avg_suit_price_eur > 0")
	}
	if f.MinPrice != nil {
		w.add("avg_suit_price_eur * exchange_rate >= %s", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		w.add("avg_suit_price_eur * exchange_rate <= %s", *f.MaxPrice)
	}
	if f.MinScore != nil {
		w.add("final_score >= %s", *f.MinScore)
	}
	return w
}

// orderAndPage appends ORDER BY, LIMIT and OFFSET for f to w's arguments.
func orderAndPage(f ProspectFilter, w *whereBuilder) string {
	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "final_score"
	}
	dir := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		dir = "ASC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultProspectLimit
	}
	clause := fmt.Sprintf(" ORDER BY %s %s, id ASC LIMIT %s", col, dir, w.next(limit))
	if f.Offset > 0 {
		clause += " OFFSET " + w.next(f.Offset)
	}
	return clause
}

const prospectColumns = `id, name, website_url, domain, city, country, country_code, store_count,
	avg_suit_price_eur, exchange_rate, brand_style, business_model, company_overview,
	detailed_description, store_locations, material_composition, made_to_measure,
	quality_score, similarity_score, location_score, location_quality, final_score,
	fit_score, status, notes, discovered_at, updated_at`

func runWhere(f RunFilter, ph placeholder) *whereBuilder {
	w := &whereBuilder{ph: ph}
	if f.Status != "" {
		w.add("status = %s", string(f.Status))
	}
	if f.City != "" {
		w.add("city = %s", model.NormalizeCity(f.City))
	}
	if !f.CreatedAfter.IsZero() {
		w.add("created_at > %s", f.CreatedAfter.UTC())
	}
	return w
}

func runLimit(f RunFilter) int {
	return positiveOr(f.Limit, 100)
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// prepareProspect fills derived and defaulted fields before insert.
func prepareProspect(p *model.Prospect) {
	p.City = model.NormalizeCity(p.City)
	if p.Domain == "" {
		p.Domain = model.ExtractDomain(p.WebsiteURL)
	}
	if p.ID == "" {
		p.ID = model.ProspectID(p.WebsiteURL, p.City)
	}
	if p.Status == "" {
		p.Status = model.ProspectStatusNew
	}
	if p.ExchangeRate <= 0 {
		p.ExchangeRate = 1
	}
	now := time.Now().UTC()
	if p.DiscoveredAt.IsZero() {
		p.DiscoveredAt = now
	}
	p.UpdatedAt = now
	p.ConvertPrice()
}

func marshalLists(p *model.Prospect) (locations, materials string, err error) {
	l, err := json.Marshal(nonNilStrings(p.StoreLocations))
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal store locations")
	}
	m, err := json.Marshal(nonNilStrings(p.MaterialComposition))
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal material composition")
	}
	return string(l), string(m), nil
}

func nonNilStrings(s model.FlexStrings) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilBrands(b []model.BrandLead) []model.BrandLead {
	if b == nil {
		return []model.BrandLead{}
	}
	return b
}
