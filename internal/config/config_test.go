package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDatasetURL = "https://services.example.com/arcgis/rest/services/ServiceLines/FeatureServer/0"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATASET_URL", testDatasetURL)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, testDatasetURL, cfg.DatasetURL)
	assert.Equal(t, 10*time.Second, cfg.DatasetTimeout)
	assert.Equal(t, 2000, cfg.MaxRecordCount)

	assert.Empty(t, cfg.OAuthClientID)
	assert.Equal(t, "https://www.arcgis.com/sharing/rest/oauth2", cfg.OAuthProviderURL)
	assert.Equal(t, 5*time.Minute, cfg.VerifierTTL)

	assert.Equal(t, 5*time.Second, cfg.GeocodeTimeout)
	assert.Equal(t, 1000, cfg.GeocodeCacheSize)

	assert.InDelta(t, 42.2407, cfg.DefaultCenterLat, 1e-9)
	assert.InDelta(t, -88.3162, cfg.DefaultCenterLon, 1e-9)
	assert.Equal(t, 13, cfg.DefaultZoom)
	assert.True(t, cfg.ClusterEnabled)

	assert.False(t, cfg.AuditEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.AuditBrokers)
	assert.Equal(t, "portal-audit-events", cfg.AuditTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DATASET_URL", testDatasetURL)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("MAX_RECORD_COUNT", "500")
	t.Setenv("MAP_CENTER_LAT", "41.88")
	t.Setenv("MAP_CENTER_LON", "-87.63")
	t.Setenv("MAP_CLUSTER", "false")
	t.Setenv("AUDIT_ENABLED", "true")
	t.Setenv("AUDIT_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("GEOCODE_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 500, cfg.MaxRecordCount)
	assert.InDelta(t, 41.88, cfg.DefaultCenterLat, 1e-9)
	assert.InDelta(t, -87.63, cfg.DefaultCenterLon, 1e-9)
	assert.False(t, cfg.ClusterEnabled)
	assert.True(t, cfg.AuditEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.AuditBrokers)
	assert.Equal(t, 2*time.Second, cfg.GeocodeTimeout)
}

func TestLoad_RequiresDatasetURL(t *testing.T) {
	t.Setenv("DATASET_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATASET_URL")
}

func TestLoad_ClientIDRequiresRedirect(t *testing.T) {
	t.Setenv("DATASET_URL", testDatasetURL)
	t.Setenv("OAUTH_CLIENT_ID", "abc123")
	t.Setenv("OAUTH_REDIRECT_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OAUTH_REDIRECT_URL")
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("DATASET_URL", testDatasetURL)
	t.Setenv("DATASET_TIMEOUT", "not-a-duration")

	_, err := Load()
	require.Error(t, err)
}
