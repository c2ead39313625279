package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WASIL_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "test-secret", cfg.JWTSecret)
	assert.Equal(t, 20, cfg.Socket.Budget)
	assert.Equal(t, 10.0, cfg.Matching.RadiusKm)
	assert.Equal(t, 2.0, cfg.Matching.CityBoostKm)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WASIL_JWT_SECRET", "test-secret")
	t.Setenv("WASIL_MATCH_RADIUS_KM", "25")
	t.Setenv("WASIL_MATCH_CITY_BOOST_KM", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25.0, cfg.Matching.RadiusKm)
	assert.Equal(t, 5.0, cfg.Matching.CityBoostKm)
}
