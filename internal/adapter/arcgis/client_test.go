package arcgis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvkenny/CLFleadservice/internal/domain"
	"github.com/jvkenny/CLFleadservice/internal/observability"
)

func testClient(layerURL string, tokens TokenSource) *Client {
	return NewClient(layerURL, 2000, 5*time.Second, tokens,
		observability.NewMetricsForTesting(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type staticTokens struct{ token string }

func (s staticTokens) FreshToken(context.Context) (string, bool) { return s.token, s.token != "" }

func featureJSON(id int64, address, cust, util, status string, lon, lat float64) feature {
	return feature{
		Attributes: attributes{
			ObjectID:         id,
			Address:          address,
			CustomerMaterial: cust,
			UtilityMaterial:  util,
			Status:           status,
		},
		Geometry: &geometry{X: lon, Y: lat},
	}
}

func serveFeatures(t *testing.T, features []feature, inspect func(r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(queryResponse{Features: features}))
	}))
}

func TestQuery_Success(t *testing.T) {
	var gotQuery map[string]string
	srv := serveFeatures(t, []feature{
		featureJSON(1, "101 Oak St", "pb", "cu", "verified", -88.31, 42.24),
		featureJSON(2, "204 Elm Ave", "cu", "cu", "assumed", -88.32, 42.25),
	}, func(r *http.Request) {
		gotQuery = map[string]string{
			"f":              r.URL.Query().Get("f"),
			"where":          r.URL.Query().Get("where"),
			"outFields":      r.URL.Query().Get("outFields"),
			"returnGeometry": r.URL.Query().Get("returnGeometry"),
			"outSR":          r.URL.Query().Get("outSR"),
		}
	})
	defer srv.Close()

	c := testClient(srv.URL, nil)
	sel := domain.FilterSelection{Material: domain.FilterLead}

	lines, err := c.Query(context.Background(), sel)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "json", gotQuery["f"])
	assert.Equal(t, sel.WhereClause(), gotQuery["where"])
	assert.Equal(t, "*", gotQuery["outFields"])
	assert.Equal(t, "true", gotQuery["returnGeometry"])
	assert.Equal(t, "4326", gotQuery["outSR"])

	want := domain.ServiceLine{
		ID:               1,
		Address:          "101 Oak St",
		CustomerMaterial: "pb",
		UtilityMaterial:  "cu",
		Status:           domain.StatusVerified,
		Lon:              -88.31,
		Lat:              42.24,
	}
	if diff := cmp.Diff(want, lines[0]); diff != "" {
		t.Fatalf("decoded record mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery_AttachesTokenWhenHeld(t *testing.T) {
	var gotToken string
	srv := serveFeatures(t, nil, func(r *http.Request) {
		gotToken = r.URL.Query().Get("token")
	})
	defer srv.Close()

	c := testClient(srv.URL, staticTokens{token: "bearer-1"})
	_, err := c.Query(context.Background(), domain.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, "bearer-1", gotToken)
}

func TestQuery_NoTokenWhenSignedOut(t *testing.T) {
	var hasToken bool
	srv := serveFeatures(t, nil, func(r *http.Request) {
		hasToken = r.URL.Query().Has("token")
	})
	defer srv.Close()

	c := testClient(srv.URL, nil)
	_, err := c.Query(context.Background(), domain.DefaultFilter())
	require.NoError(t, err)
	assert.False(t, hasToken)
}

func TestQuery_ErrorPayloadIn200Body(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":{"code":498,"message":"Invalid token"}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, nil)
	_, err := c.Query(context.Background(), domain.DefaultFilter())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid token")
}

func TestQuery_TransportFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(srv.URL, nil)
	_, err := c.Query(context.Background(), domain.DefaultFilter())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestQueryByID_Found(t *testing.T) {
	var gotWhere string
	srv := serveFeatures(t, []feature{
		featureJSON(42, "12 Birch Ct", "galv", "cu", "verified", -88.3, 42.2),
	}, func(r *http.Request) {
		gotWhere = r.URL.Query().Get("where")
	})
	defer srv.Close()

	c := testClient(srv.URL, nil)
	line, err := c.QueryByID(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, line)
	assert.Equal(t, "objectid = 42", gotWhere)
	assert.Equal(t, int64(42), line.ID)
}

func TestQueryByID_MissingAndFailedBothRenderNotFound(t *testing.T) {
	empty := serveFeatures(t, nil, nil)
	defer empty.Close()

	c := testClient(empty.URL, nil)
	line, err := c.QueryByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, line)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	c = testClient(failing.URL, nil)
	line, err = c.QueryByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, line)
}

func TestQueryExtent_SendsEnvelope(t *testing.T) {
	var got map[string]string
	srv := serveFeatures(t, nil, func(r *http.Request) {
		got = map[string]string{
			"geometry":     r.URL.Query().Get("geometry"),
			"geometryType": r.URL.Query().Get("geometryType"),
			"spatialRel":   r.URL.Query().Get("spatialRel"),
			"inSR":         r.URL.Query().Get("inSR"),
		}
	})
	defer srv.Close()

	bound := orb.Bound{Min: orb.Point{-88.35, 42.20}, Max: orb.Point{-88.28, 42.28}}

	c := testClient(srv.URL, nil)
	_, err := c.QueryExtent(context.Background(), bound, domain.DefaultFilter())
	require.NoError(t, err)

	assert.Equal(t, "esriGeometryEnvelope", got["geometryType"])
	assert.Equal(t, "esriSpatialRelIntersects", got["spatialRel"])
	assert.Equal(t, "4326", got["inSR"])

	var envelope struct {
		XMin float64 `json:"xmin"`
		YMin float64 `json:"ymin"`
		XMax float64 `json:"xmax"`
		YMax float64 `json:"ymax"`
	}
	require.NoError(t, json.Unmarshal([]byte(got["geometry"]), &envelope))
	assert.InDelta(t, -88.35, envelope.XMin, 1e-9)
	assert.InDelta(t, 42.20, envelope.YMin, 1e-9)
	assert.InDelta(t, -88.28, envelope.XMax, 1e-9)
	assert.InDelta(t, 42.28, envelope.YMax, 1e-9)
}

func TestStats_TalliesClientSide(t *testing.T) {
	var got map[string]string
	srv := serveFeatures(t, []feature{
		{Attributes: attributes{CustomerMaterial: "pb", UtilityMaterial: "cu", Status: "verified"}},
		{Attributes: attributes{CustomerMaterial: "cu", UtilityMaterial: "l", Status: "verified"}},
		{Attributes: attributes{CustomerMaterial: "u", UtilityMaterial: "cu", Status: "unknown"}},
		{Attributes: attributes{CustomerMaterial: "cu", UtilityMaterial: "cu", Status: "assumed"}},
	}, func(r *http.Request) {
		got = map[string]string{
			"outFields":      r.URL.Query().Get("outFields"),
			"returnGeometry": r.URL.Query().Get("returnGeometry"),
			"where":          r.URL.Query().Get("where"),
		}
	})
	defer srv.Close()

	c := testClient(srv.URL, nil)
	stats, err := c.Stats(context.Background())
	require.NoError(t, err)

	// Minimal attribute set, no geometry, whole layer.
	assert.Equal(t, "customer_material,utility_material,verification_status", got["outFields"])
	assert.Equal(t, "false", got["returnGeometry"])
	assert.Equal(t, "1=1", got["where"])

	assert.Equal(t, domain.Stats{Total: 4, Lead: 2, Unknown: 1, Verified: 2, Assumed: 1}, stats)
}

func TestStats_FailureDegradesToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL, nil)
	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{}, stats)
}
