package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wasteroute/internal/geo"
	"wasteroute/internal/opt"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	c, err := FromEnv(envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.True(t, c.DBMigrate)
	assert.Equal(t, 10.0, c.RateRPS)
	assert.Equal(t, 20, c.RateBurst)
	assert.Equal(t, 2*time.Second, c.OptimizerTimeout)
	assert.Equal(t, 10, c.WebhookMaxAttempts)
	assert.Nil(t, c.Depot)
	assert.Equal(t, opt.DefaultParams(), c.Optimizer)
}

func TestFromEnvOverrides(t *testing.T) {
	c, err := FromEnv(envOf(map[string]string{
		"PORT":                 "9090",
		"DATABASE_URL":         "postgres://localhost/waste",
		"DB_MIGRATE":           "false",
		"RATE_RPS":             "2.5",
		"RATE_BURST":           "4",
		"OPTIMIZER_TIMEOUT":    "500ms",
		"WEBHOOK_MAX_ATTEMPTS": "3",
		"DEPOT_LAT":            "21.1458",
		"DEPOT_LNG":            "79.0882",
	}))
	require.NoError(t, err)
	assert.Equal(t, "9090", c.Port)
	assert.Equal(t, "postgres://localhost/waste", c.DatabaseURL)
	assert.False(t, c.DBMigrate)
	assert.Equal(t, 2.5, c.RateRPS)
	assert.Equal(t, 4, c.RateBurst)
	assert.Equal(t, 500*time.Millisecond, c.OptimizerTimeout)
	assert.Equal(t, 3, c.WebhookMaxAttempts)
	require.NotNil(t, c.Depot)
	assert.Equal(t, geo.Point{Lat: 21.1458, Lng: 79.0882}, *c.Depot)
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"rps":        {"RATE_RPS": "-1"},
		"timeout":    {"OPTIMIZER_TIMEOUT": "soon"},
		"half depot": {"DEPOT_LAT": "21.1"},
		"bad depot":  {"DEPOT_LAT": "100", "DEPOT_LNG": "0"},
		"migrate":    {"DB_MIGRATE": "maybe"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(envOf(env))
			require.Error(t, err)
		})
	}
}

func TestTuningFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "optimizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hybrid:
  urgency_weight: 0.7
two_opt:
  max_passes: 50
builder:
  average_speed_kmh: 25
depot:
  latitude: 21.1458
  longitude: 79.0882
`), 0o600))

	c, err := FromEnv(envOf(map[string]string{"OPTIMIZER_CONFIG": path}))
	require.NoError(t, err)
	assert.Equal(t, 0.7, c.Optimizer.UrgencyWeight)
	assert.Equal(t, opt.DefaultDistanceWeight, c.Optimizer.DistanceWeight)
	assert.Equal(t, 50, c.Optimizer.TwoOptMaxPasses)
	assert.Equal(t, 25.0, c.Optimizer.AverageSpeedKmh)
	assert.Equal(t, 5.0, c.Optimizer.BaseCollectionMinutes)
	require.NotNil(t, c.Depot)
	assert.Equal(t, 21.1458, c.Depot.Lat)

	// environment depot wins over the file
	c, err = FromEnv(envOf(map[string]string{"OPTIMIZER_CONFIG": path, "DEPOT_LAT": "1", "DEPOT_LNG": "2"}))
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lat: 1, Lng: 2}, *c.Depot)
}

func TestTuningRejectsZeroSpeed(t *testing.T) {
	p := opt.DefaultParams()
	_, err := ParseTuning([]byte("builder:\n  average_speed_kmh: 0\n"), &p)
	require.NoError(t, err)
	assert.Error(t, p.Validate())

	_, err = ParseTuning([]byte("hybrid: [1, 2"), &p)
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)
	defer log.SetFormatter(&log.TextFormatter{})

	SetupLogging("debug", "json")
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	SetupLogging("loud", "text")
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}
