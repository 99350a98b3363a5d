package query

import (
	"context"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drmonteiro/brands-ai/internal/model"
	"github.com/drmonteiro/brands-ai/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "query.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return NewService(st, st), st
}

func seed(t *testing.T, st *store.SQLiteStore, name, site, city string, stores int, priceEUR float64) {
	t.Helper()
	_, err := st.SaveProspect(context.Background(), &model.Prospect{
		Name:            name,
		WebsiteURL:      site,
		City:            city,
		StoreCount:      stores,
		AvgSuitPriceEUR: priceEUR,
		ExchangeRate:    1.0,
		FinalScore:      float64(stores),
	})
	require.NoError(t, err)
}

func names(p *Page) []string {
	out := make([]string, len(p.Prospects))
	for i, l := range p.Prospects {
		out[i] = l.Name
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func TestParseFilters(t *testing.T) {
	q := url.Values{}
	q.Set("city", " London ")
	q.Set("min_stores", "2")
	q.Set("maxStores", "10")
	q.Set("max_price", "900.5")
	q.Set("sort_by", "name")
	q.Set("limit", "50")

	f, err := ParseFilters(q)
	require.NoError(t, err)
	assert.Equal(t, "London", f.City)
	assert.Equal(t, 2, *f.MinStores)
	assert.Equal(t, 10, *f.MaxStores)
	assert.Nil(t, f.MinPrice)
	assert.Equal(t, 900.5, *f.MaxPrice)
	assert.Equal(t, "name", f.SortBy)
	assert.Equal(t, 50, f.Limit)

	f, err = ParseFilters(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, f.Limit)
}

func TestParseFilters_BadNumbers(t *testing.T) {
	for _, key := range []string{"min_stores", "max_price", "limit", "offset", "min_score"} {
		t.Run(key, func(t *testing.T) {
			q := url.Values{}
			q.Set(key, "lots")
			_, err := ParseFilters(q)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestValidate(t *testing.T) {
	s, _ := newTestService(t)
	tests := []struct {
		name string
		f    Filters
		ok   bool
	}{
		{"defaults", Filters{Limit: 25}, true},
		{"limit too big", Filters{Limit: MaxLimit + 1}, false},
		{"negative offset", Filters{Limit: 10, Offset: -1}, false},
		{"stores inverted", Filters{Limit: 10, MinStores: ptr(5), MaxStores: ptr(2)}, false},
		{"price inverted", Filters{Limit: 10, MinPrice: ptr(900.0), MaxPrice: ptr(100.0)}, false},
		{"equal bounds", Filters{Limit: 10, MinStores: ptr(3), MaxStores: ptr(3)}, true},
		{"bad status", Filters{Limit: 10, Status: "lost"}, false},
		{"bad sort", Filters{Limit: 10, SortBy: "domain"}, false},
		{"score range", Filters{Limit: 10, MinScore: ptr(120.0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.f)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsValidation(err), "got %v", err)
			}
		})
	}
}

func TestList_StoreBoundsAreInclusive(t *testing.T) {
	s, st := newTestService(t)
	seed(t, st, "Four", "https://four.com", "london", 4, 800)
	seed(t, st, "Five", "https://five.com", "london", 5, 800)
	seed(t, st, "Ten", "https://ten.com", "london", 10, 800)
	seed(t, st, "Eleven", "https://eleven.com", "london", 11, 800)
	seed(t, st, "Elsewhere", "https://else.com", "paris", 7, 800)

	page, err := s.List(context.Background(), Filters{City: "London", MinStores: ptr(5), MaxStores: ptr(10), SortBy: "store_count", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Five", "Ten"}, names(page))
	assert.Equal(t, 2, page.Total)
}

func TestList_PriceFilterExcludesUnknown(t *testing.T) {
	s, st := newTestService(t)
	seed(t, st, "Unknown", "https://unknown.com", "london", 2, 0)
	seed(t, st, "Cheap", "https://cheap.com", "london", 2, 300)
	seed(t, st, "Dear", "https://dear.com", "london", 2, 1200)

	page, err := s.List(context.Background(), Filters{City: "london", MaxPrice: ptr(10000.0)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Cheap", "Dear"}, names(page))

	page, err = s.List(context.Background(), Filters{City: "london", MinPrice: ptr(500.0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dear"}, names(page))
	assert.Equal(t, 1200.0, page.Prospects[0].AverageSuitPriceUSD)

	page, err = s.List(context.Background(), Filters{City: "london"})
	require.NoError(t, err)
	assert.Len(t, page.Prospects, 3)
}

func TestList_ReturnsStoredRows(t *testing.T) {
	s, st := newTestService(t)
	seed(t, st, "Acme", "https://acme.com", "london", 2, 900)

	page, err := s.List(context.Background(), Filters{City: "London"})
	require.NoError(t, err)
	require.Len(t, page.Prospects, 1)
	p := page.Prospects[0]
	assert.Equal(t, model.ProspectID("https://acme.com", model.NormalizeCity("london")), p.ID)
	assert.Equal(t, "acme.com", p.Domain)
	assert.Equal(t, 900.0, p.AvgSuitPriceEUR)
	assert.InDelta(t, p.AvgSuitPriceEUR*p.ExchangeRate, p.AverageSuitPriceUSD, 0.001)
	assert.Equal(t, model.ProspectStatusNew, p.Status)

	empty, err := s.List(context.Background(), Filters{City: "nowhere"})
	require.NoError(t, err)
	assert.NotNil(t, empty.Prospects)
	assert.Empty(t, empty.Prospects)
}

func TestList_InvalidFilters(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.List(context.Background(), Filters{MinStores: ptr(10), MaxStores: ptr(1)})
	assert.True(t, IsValidation(err))
}

func TestCuration(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	seed(t, st, "Acme", "https://acme.com", "london", 2, 900)
	seed(t, st, "Beta", "https://beta.com", "london", 3, 700)

	page, err := s.List(ctx, Filters{City: "london"})
	require.NoError(t, err)
	require.Len(t, page.Prospects, 2)
	id := model.ProspectID("https://acme.com", "london")

	err = s.UpdateStatus(ctx, id, "lost", "")
	assert.True(t, IsValidation(err))

	require.NoError(t, s.UpdateStatus(ctx, id, model.ProspectStatusContacted, "called on monday"))
	p, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ProspectStatusContacted, p.Status)
	assert.Equal(t, "called on monday", p.Notes)

	require.NoError(t, s.Suppress(ctx, "https://www.beta.com/about", "opt-out"))
	page, err = s.List(ctx, Filters{City: "london"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme"}, names(page))

	assert.True(t, IsValidation(s.Suppress(ctx, " ", "")))

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCitiesAndStats(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()

	cities, err := s.Cities(ctx)
	require.NoError(t, err)
	assert.NotNil(t, cities)
	assert.Empty(t, cities)

	seed(t, st, "Acme", "https://acme.com", "London", 2, 900)
	seed(t, st, "Beta", "https://beta.com", "Paris", 3, 700)

	cities, err = s.Cities(ctx)
	require.NoError(t, err)
	assert.Len(t, cities, 2)

	stats, err := s.CityStats(ctx, " LONDON ")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalProspects)

	_, err = s.CityStats(ctx, "")
	assert.True(t, IsValidation(err))

	opts, err := s.FilterOptions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"london", "paris"}, opts.Cities)
}
