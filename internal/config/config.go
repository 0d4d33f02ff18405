package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Feature service (the hosted service line inventory layer).
	DatasetURL     string
	DatasetTimeout time.Duration
	MaxRecordCount int

	// Delegated authorization (only needed when the layer is access-restricted).
	OAuthClientID    string
	OAuthProviderURL string
	OAuthRedirectURL string
	OAuthTimeout     time.Duration
	VerifierTTL      time.Duration

	// Address resolution service.
	GeocodeURL       string
	GeocodeTimeout   time.Duration
	GeocodeCacheSize int

	// Map defaults served to the presentation layer.
	DefaultCenterLat float64
	DefaultCenterLon float64
	DefaultZoom      int
	ClusterEnabled   bool
	ClusterRadius    int
	ClusterMaxZoom   int

	// Per-client rate limiting on the public API.
	RateLimitPerSecond float64
	RateLimitBurst     int

	// Audit event publishing (optional).
	AuditEnabled bool
	AuditBrokers []string
	AuditTopic   string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is honored for local
// development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := envDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	datasetTimeout, err := envDuration("DATASET_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	oauthTimeout, err := envDuration("OAUTH_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	verifierTTL, err := envDuration("OAUTH_VERIFIER_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	geocodeTimeout, err := envDuration("GEOCODE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	centerLat, err := envFloat("MAP_CENTER_LAT", 42.2407)
	if err != nil {
		return nil, err
	}
	centerLon, err := envFloat("MAP_CENTER_LON", -88.3162)
	if err != nil {
		return nil, err
	}
	rps, err := envFloat("RATE_LIMIT_PER_SECOND", 10)
	if err != nil {
		return nil, err
	}

	auditEnabled := envOrDefault("AUDIT_ENABLED", "false") == "true"

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatasetURL:     os.Getenv("DATASET_URL"),
		DatasetTimeout: datasetTimeout,
		MaxRecordCount: envInt("MAX_RECORD_COUNT", 2000),

		OAuthClientID:    os.Getenv("OAUTH_CLIENT_ID"),
		OAuthProviderURL: envOrDefault("OAUTH_PROVIDER_URL", "https://www.arcgis.com/sharing/rest/oauth2"),
		OAuthRedirectURL: os.Getenv("OAUTH_REDIRECT_URL"),
		OAuthTimeout:     oauthTimeout,
		VerifierTTL:      verifierTTL,

		GeocodeURL:       envOrDefault("GEOCODE_URL", "https://geocode-api.arcgis.com/arcgis/rest/services/World/GeocodeServer"),
		GeocodeTimeout:   geocodeTimeout,
		GeocodeCacheSize: envInt("GEOCODE_CACHE_SIZE", 1000),

		DefaultCenterLat: centerLat,
		DefaultCenterLon: centerLon,
		DefaultZoom:      envInt("MAP_ZOOM", 13),
		ClusterEnabled:   envOrDefault("MAP_CLUSTER", "true") == "true",
		ClusterRadius:    envInt("MAP_CLUSTER_RADIUS", 50),
		ClusterMaxZoom:   envInt("MAP_CLUSTER_MAX_ZOOM", 15),

		RateLimitPerSecond: rps,
		RateLimitBurst:     envInt("RATE_LIMIT_BURST", 20),

		AuditEnabled: auditEnabled,
		AuditBrokers: splitList(envOrDefault("AUDIT_BROKERS", "localhost:9092")),
		AuditTopic:   envOrDefault("AUDIT_TOPIC", "portal-audit-events"),
	}

	if cfg.DatasetURL == "" {
		return nil, errors.New("DATASET_URL is required")
	}
	if cfg.MaxRecordCount <= 0 {
		return nil, errors.New("MAX_RECORD_COUNT must be positive")
	}
	if cfg.OAuthClientID != "" && cfg.OAuthRedirectURL == "" {
		return nil, errors.New("OAUTH_REDIRECT_URL is required when OAUTH_CLIENT_ID is set")
	}
	if cfg.AuditEnabled && len(cfg.AuditBrokers) == 0 {
		return nil, errors.New("AUDIT_ENABLED is true but AUDIT_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
