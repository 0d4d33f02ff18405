// Package geocode resolves free-text addresses against an ArcGIS-style
// locator service (findAddressCandidates / suggest / reverseGeocode).
//
// Every operation is best-effort: address search decorates the map, it never
// gates it, so provider failures degrade to empty results instead of
// propagating. The error returns exist for implementations with harder
// failure modes; this client reserves them for malformed requests.
package geocode

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

const (
	minSearchLen  = 3
	minSuggestLen = 2
	maxCandidates = 10
	maxSuggestion = 8
)

// Client implements domain.Resolver against a locator service base URL.
type Client struct {
	baseURL       string
	defaultCenter orb.Point
	httpClient    *http.Client
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewClient creates a locator client. defaultCenter biases searches that
// carry no explicit bias point toward the utility's service area.
func NewClient(baseURL string, defaultCenter orb.Point, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:       baseURL,
		defaultCenter: defaultCenter,
		httpClient:    &http.Client{Timeout: timeout},
		metrics:       metrics,
		logger:        logger,
	}
}

// Search forward-geocodes text into up to 10 candidates. Text under 3
// characters yields no results and no network call.
func (c *Client) Search(ctx context.Context, text string, bias *orb.Point) ([]domain.GeocodeResult, error) {
	if len(text) < minSearchLen {
		c.metrics.GeocodeRequests.WithLabelValues("search", "skipped").Inc()
		return nil, nil
	}

	params := url.Values{}
	params.Set("f", "json")
	params.Set("singleLine", text)
	params.Set("outFields", "*")
	params.Set("maxLocations", strconv.Itoa(maxCandidates))
	params.Set("location", c.biasParam(bias))

	var payload candidatesResponse
	if err := c.get(ctx, "/findAddressCandidates", params, &payload); err != nil {
		c.logger.Warn("address search failed", "text", text, "error", err)
		c.metrics.GeocodeRequests.WithLabelValues("search", "error").Inc()
		return nil, nil
	}

	results := make([]domain.GeocodeResult, 0, len(payload.Candidates))
	for _, cand := range payload.Candidates {
		results = append(results, cand.toResult())
	}
	c.metrics.GeocodeRequests.WithLabelValues("search", outcomeFor(len(results))).Inc()
	return results, nil
}

// Suggest returns up to 8 typeahead suggestions for text of at least 2
// characters.
func (c *Client) Suggest(ctx context.Context, text string, bias *orb.Point) ([]domain.Suggestion, error) {
	if len(text) < minSuggestLen {
		c.metrics.GeocodeRequests.WithLabelValues("suggest", "skipped").Inc()
		return nil, nil
	}

	params := url.Values{}
	params.Set("f", "json")
	params.Set("text", text)
	params.Set("maxSuggestions", strconv.Itoa(maxSuggestion))
	params.Set("location", c.biasParam(bias))

	var payload suggestResponse
	if err := c.get(ctx, "/suggest", params, &payload); err != nil {
		c.logger.Warn("suggest failed", "text", text, "error", err)
		c.metrics.GeocodeRequests.WithLabelValues("suggest", "error").Inc()
		return nil, nil
	}

	suggestions := make([]domain.Suggestion, 0, len(payload.Suggestions))
	for _, s := range payload.Suggestions {
		suggestions = append(suggestions, domain.Suggestion{
			Text:         s.Text,
			MagicKey:     s.MagicKey,
			IsCollection: s.IsCollection,
		})
	}
	c.metrics.GeocodeRequests.WithLabelValues("suggest", outcomeFor(len(suggestions))).Inc()
	return suggestions, nil
}

// ResolveSuggestion fetches the full candidate behind a suggestion's magic
// key. Returns nil when the key no longer resolves.
func (c *Client) ResolveSuggestion(ctx context.Context, text, magicKey string) (*domain.GeocodeResult, error) {
	params := url.Values{}
	params.Set("f", "json")
	params.Set("singleLine", text)
	params.Set("magicKey", magicKey)
	params.Set("outFields", "*")
	params.Set("maxLocations", "1")

	var payload candidatesResponse
	if err := c.get(ctx, "/findAddressCandidates", params, &payload); err != nil {
		c.logger.Warn("resolve suggestion failed", "magic_key", magicKey, "error", err)
		c.metrics.GeocodeRequests.WithLabelValues("resolve", "error").Inc()
		return nil, nil
	}
	if len(payload.Candidates) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues("resolve", "empty").Inc()
		return nil, nil
	}

	result := payload.Candidates[0].toResult()
	c.metrics.GeocodeRequests.WithLabelValues("resolve", "success").Inc()
	return &result, nil
}

// Reverse returns a display address for a coordinate, or "" when the
// provider has none.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	params := url.Values{}
	params.Set("f", "json")
	params.Set("location", fmt.Sprintf("%.6f,%.6f", lon, lat))

	var payload reverseResponse
	if err := c.get(ctx, "/reverseGeocode", params, &payload); err != nil {
		c.logger.Warn("reverse geocode failed", "lat", lat, "lon", lon, "error", err)
		c.metrics.GeocodeRequests.WithLabelValues("reverse", "error").Inc()
		return "", nil
	}

	c.metrics.GeocodeRequests.WithLabelValues("reverse", outcomeFor(len(payload.Address.MatchAddr))).Inc()
	return payload.Address.MatchAddr, nil
}

// biasParam renders the locator's lon,lat location parameter.
func (c *Client) biasParam(bias *orb.Point) string {
	p := c.defaultCenter
	if bias != nil {
		p = *bias
	}
	return fmt.Sprintf("%.6f,%.6f", p.Lon(), p.Lat())
}

func outcomeFor(n int) string {
	if n == 0 {
		return "empty"
	}
	return "success"
}

func (c *Client) get(ctx context.Context, path string, params url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("locator request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("locator: status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var probe errProbe
	if err := json.Unmarshal(body, &probe); err == nil && probe.Error != nil {
		return fmt.Errorf("locator: %s (code %d)", probe.Error.Message, probe.Error.Code)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Locator response types.

type candidatesResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Address  string `json:"address"`
	Location struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"location"`
	Score      float64        `json:"score"`
	Attributes map[string]any `json:"attributes"`
}

func (c candidate) toResult() domain.GeocodeResult {
	result := domain.GeocodeResult{
		Address: c.Address,
		Lon:     c.Location.X,
		Lat:     c.Location.Y,
		Score:   c.Score,
	}
	if len(c.Attributes) > 0 {
		result.Attributes = make(map[string]string, len(c.Attributes))
		for k, v := range c.Attributes {
			result.Attributes[k] = fmt.Sprint(v)
		}
	}
	return result
}

type suggestResponse struct {
	Suggestions []struct {
		Text         string `json:"text"`
		MagicKey     string `json:"magicKey"`
		IsCollection bool   `json:"isCollection"`
	} `json:"suggestions"`
}

type reverseResponse struct {
	Address struct {
		MatchAddr string `json:"Match_addr"`
	} `json:"address"`
}

type errProbe struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
