package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLocations(t *testing.T) {
	table, err := DefaultLocations()
	require.NoError(t, err)

	assert.True(t, table.HasCity("London"))
	assert.True(t, table.HasCity(" Düsseldorf "))
	assert.False(t, table.HasCity("Atlantis"))

	street, ok := table.Detect("Visit our flagship at 12 Savile Row, Mayfair", "london")
	require.True(t, ok)
	assert.Equal(t, "savile row", street.Street)
	assert.Equal(t, 10, tierScore(street.Tier))

	street, ok = table.Detect("Loja na Avenida da Liberdade 123", "Lisbon")
	require.True(t, ok)
	assert.Equal(t, 1, street.Tier)

	_, ok = table.Detect("Shop in our downtown location", "london")
	assert.False(t, ok)
	_, ok = table.Detect("Savile Row", "Atlantis")
	assert.False(t, ok)
}

func TestParseLocations(t *testing.T) {
	table, err := ParseLocations([]byte("Testville:\n  - {street: Main Street, tier: 2}\n"))
	require.NoError(t, err)
	street, ok := table.Detect("on main street", "testville")
	require.True(t, ok)
	assert.Equal(t, 7, tierScore(street.Tier))

	_, err = ParseLocations([]byte("not: [valid"))
	assert.Error(t, err)
}

func TestTierScore(t *testing.T) {
	assert.Equal(t, 10, tierScore(1))
	assert.Equal(t, 7, tierScore(2))
	assert.Equal(t, 4, tierScore(3))
	assert.Equal(t, 0, tierScore(9))
}
