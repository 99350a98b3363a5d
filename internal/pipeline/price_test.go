package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"899", 899},
		{"1,299", 1299},
		{"1.299", 1299},
		{"1.299,00", 1299},
		{"1,299.00", 1299},
		{"899,50", 899.5},
		{"12.99", 12.99},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parsePrice(tt.in)
			assert.True(t, ok)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float64
	}{
		{"empty", "", 0},
		{"no prices", "Fine tailoring since 1920", 0},
		{"prefix", "Suits from €800 and jackets €600", 700},
		{"suffix", "Fato clássico 950€", 950},
		{"eur text", "Abito 1.200 EUR", 1200},
		{"out of range ignored", "Tie $90, suit $1,500, cufflinks £45", 1500},
		{"upper bound exclusive", "Couture €6.000 and ready-to-wear €900", 900},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, extractPrice(tt.content), 0.01)
		})
	}
}
