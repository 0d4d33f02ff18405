// Package arcgis reads the hosted service line inventory layer through the
// ArcGIS feature service query endpoint.
package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"

	"github.com/jvkenny/CLFleadservice/internal/domain"
	"github.com/jvkenny/CLFleadservice/internal/observability"
)

// TokenSource supplies a bearer token for access-restricted layers. A false
// return means proceed unauthenticated.
type TokenSource interface {
	FreshToken(ctx context.Context) (string, bool)
}

// AnonymousTokens is the TokenSource for public layers.
type AnonymousTokens struct{}

func (AnonymousTokens) FreshToken(context.Context) (string, bool) { return "", false }

// Client implements domain.Inventory against a feature service layer URL.
type Client struct {
	layerURL   string
	maxRecords int
	httpClient *http.Client
	tokens     TokenSource
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a feature service client for the given layer URL
// (".../FeatureServer/0").
func NewClient(layerURL string, maxRecords int, timeout time.Duration, tokens TokenSource, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if tokens == nil {
		tokens = AnonymousTokens{}
	}
	return &Client{
		layerURL:   layerURL,
		maxRecords: maxRecords,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		metrics:    metrics,
		logger:     logger,
	}
}

// Query returns the records matching the selection.
func (c *Client) Query(ctx context.Context, sel domain.FilterSelection) ([]domain.ServiceLine, error) {
	params := c.baseParams(sel.WhereClause())
	params.Set("outFields", "*")
	params.Set("returnGeometry", "true")

	return c.queryLines(ctx, "filter", params)
}

// QueryByID returns the record with the given object ID. Both an empty result
// and a layer failure render as nil: the detail panel shows "not found"
// rather than an error page.
func (c *Client) QueryByID(ctx context.Context, id int64) (*domain.ServiceLine, error) {
	params := c.baseParams(fmt.Sprintf("%s = %d", domain.FieldID, id))
	params.Set("outFields", "*")
	params.Set("returnGeometry", "true")

	lines, err := c.queryLines(ctx, "by_id", params)
	if err != nil {
		c.logger.Warn("by-id query failed, treating as not found", "id", id, "error", err)
		return nil, nil
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return &lines[0], nil
}

// QueryExtent returns matching records intersecting the WGS-84 bound.
func (c *Client) QueryExtent(ctx context.Context, bound orb.Bound, sel domain.FilterSelection) ([]domain.ServiceLine, error) {
	envelope, err := json.Marshal(map[string]any{
		"xmin":             bound.Min.Lon(),
		"ymin":             bound.Min.Lat(),
		"xmax":             bound.Max.Lon(),
		"ymax":             bound.Max.Lat(),
		"spatialReference": map[string]int{"wkid": 4326},
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	params := c.baseParams(sel.WhereClause())
	params.Set("outFields", "*")
	params.Set("returnGeometry", "true")
	params.Set("geometry", string(envelope))
	params.Set("geometryType", "esriGeometryEnvelope")
	params.Set("spatialRel", "esriSpatialRelIntersects")
	params.Set("inSR", "4326")

	return c.queryLines(ctx, "extent", params)
}

// Stats fetches the minimal attribute set for the whole layer and tallies it
// client-side. Failures degrade to zero-valued Stats so the dashboard panel
// renders empty instead of erroring alongside a healthy map.
func (c *Client) Stats(ctx context.Context) (domain.Stats, error) {
	params := c.baseParams("1=1")
	params.Set("outFields", statsFields)
	params.Set("returnGeometry", "false")

	lines, err := c.queryLines(ctx, "stats", params)
	if err != nil {
		c.logger.Warn("stats query failed, returning zero counts", "error", err)
		return domain.Stats{}, nil
	}
	return domain.Tally(lines), nil
}

var statsFields = domain.FieldCustomerMaterial + "," + domain.FieldUtilityMaterial + "," + domain.FieldStatus

func (c *Client) baseParams(where string) url.Values {
	params := url.Values{}
	params.Set("f", "json")
	params.Set("where", where)
	params.Set("outSR", "4326")
	params.Set("resultRecordCount", strconv.Itoa(c.maxRecords))
	return params
}

func (c *Client) queryLines(ctx context.Context, op string, params url.Values) ([]domain.ServiceLine, error) {
	start := time.Now()
	resp, err := c.doQuery(ctx, params)
	c.metrics.DatasetQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.DatasetQueries.WithLabelValues(op, "error").Inc()
		return nil, err
	}

	lines := make([]domain.ServiceLine, 0, len(resp.Features))
	for _, f := range resp.Features {
		lines = append(lines, toServiceLine(f))
	}

	outcome := "success"
	if len(lines) == 0 {
		outcome = "empty"
	}
	c.metrics.DatasetQueries.WithLabelValues(op, outcome).Inc()
	return lines, nil
}

func (c *Client) doQuery(ctx context.Context, params url.Values) (*queryResponse, error) {
	if tok, ok := c.tokens.FreshToken(ctx); ok {
		params.Set("token", tok)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.layerURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feature query request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("feature service: status %d: %s", resp.StatusCode, body)
	}

	var payload queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	// The service reports most failures as an error object in a 200 body.
	if payload.Error != nil {
		return nil, payload.Error
	}
	return &payload, nil
}

func toServiceLine(f feature) domain.ServiceLine {
	line := domain.ServiceLine{
		ID:               f.Attributes.ObjectID,
		Address:          f.Attributes.Address,
		CustomerMaterial: f.Attributes.CustomerMaterial,
		UtilityMaterial:  f.Attributes.UtilityMaterial,
		NotificationSent: f.Attributes.NotificationSent != 0,
		YearBuilt:        f.Attributes.YearBuilt,
		Status:           domain.ParseVerificationStatus(f.Attributes.Status),
	}
	if f.Geometry != nil {
		line.Lon = f.Geometry.X
		line.Lat = f.Geometry.Y
	}
	return line
}

// Feature service response types.

type queryResponse struct {
	Features []feature `json:"features"`
	Error    *apiError `json:"error"`
}

type feature struct {
	Attributes attributes `json:"attributes"`
	Geometry   *geometry  `json:"geometry"`
}

type geometry struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type attributes struct {
	ObjectID         int64  `json:"objectid"`
	Address          string `json:"address"`
	CustomerMaterial string `json:"customer_material"`
	UtilityMaterial  string `json:"utility_material"`
	NotificationSent int    `json:"notification_sent"`
	YearBuilt        int    `json:"year_built"`
	Status           string `json:"verification_status"`
}

type apiError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("feature service: error code %d", e.Code)
	}
	return fmt.Sprintf("feature service: %s (code %d)", e.Message, e.Code)
}
