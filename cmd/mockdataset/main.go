// Command mockdataset serves a local stand-in for the hosted inventory layer
// so the portal can be developed without network access to the real feature
// service. It generates a deterministic set of service line records and
// answers /0/query in the feature service JSON format, honoring the where
// clauses, envelope filters, and outFields the portal sends.
//
// Usage:
//
//	go run ./cmd/mockdataset -addr :9090 -count 500 -seed 1
//
// then point the portal at it:
//
//	DATASET_URL=http://localhost:9090/0 go run ./cmd/portal
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/jvkenny/CLFleadservice/internal/domain"
)

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	count := flag.Int("count", 500, "number of records to generate")
	seed := flag.Int64("seed", 1, "random seed for reproducible data")
	flag.Parse()

	lines := generate(*count, *seed)
	log.Printf("generated %d records (seed=%d)", len(lines), *seed)
	printBreakdown(lines)

	http.HandleFunc("/0/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(w, r, lines)
	})

	log.Printf("mock feature service listening on %s (layer URL http://localhost%s/0)", *addr, *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

// --- data generation ---

// Crystal Lake city center; records scatter within roughly a 3 km box.
const (
	centerLat = 42.2407
	centerLon = -88.3162
	spread    = 0.03
)

var streets = []string{
	"Oak St", "Elm Ave", "Maple Rd", "Birch Ct", "Walnut Ln", "Pine St",
	"Cedar Ave", "Willow Way", "Chestnut Blvd", "Dole Ave", "Terra Cotta Ave",
	"Woodstock St", "Lake Shore Dr", "Crystal Lake Ave", "Virginia St",
}

// Raw material codes as they appear in real inventory exports: a mix of
// canonical codes, spelled-out values, and blanks.
var materialCodes = []struct {
	code   string
	weight int
}{
	{"cu", 45}, {"copper", 10},
	{"pb", 5}, {"lead", 2},
	{"galv", 6}, {"galvanized", 2},
	{"u", 12}, {"unknown", 8}, {"", 5},
	{"PVC", 3}, {"HDPE", 2},
}

func pickMaterial(rng *rand.Rand) string {
	total := 0
	for _, m := range materialCodes {
		total += m.weight
	}
	n := rng.Intn(total)
	for _, m := range materialCodes {
		if n < m.weight {
			return m.code
		}
		n -= m.weight
	}
	return "u"
}

func generate(count int, seed int64) []domain.ServiceLine {
	rng := rand.New(rand.NewSource(seed))
	lines := make([]domain.ServiceLine, count)
	for i := range lines {
		status := domain.StatusUnknown
		switch rng.Intn(10) {
		case 0, 1, 2, 3, 4:
			status = domain.StatusVerified
		case 5, 6, 7:
			status = domain.StatusAssumed
		}
		lines[i] = domain.ServiceLine{
			ID:               int64(i + 1),
			Address:          fmt.Sprintf("%d %s", 100+rng.Intn(900), streets[rng.Intn(len(streets))]),
			CustomerMaterial: pickMaterial(rng),
			UtilityMaterial:  pickMaterial(rng),
			NotificationSent: rng.Intn(4) == 0,
			YearBuilt:        1920 + rng.Intn(100),
			Status:           status,
			Lat:              centerLat + (rng.Float64()*2-1)*spread,
			Lon:              centerLon + (rng.Float64()*2-1)*spread,
		}
	}
	return lines
}

func printBreakdown(lines []domain.ServiceLine) {
	stats := domain.Tally(lines)
	log.Printf("breakdown: total=%d lead=%d unknown=%d verified=%d assumed=%d",
		stats.Total, stats.Lead, stats.Unknown, stats.Verified, stats.Assumed)
}

// --- query handling ---

func handleQuery(w http.ResponseWriter, r *http.Request, lines []domain.ServiceLine) {
	q := r.URL.Query()

	pred, err := compileWhere(q.Get("where"))
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}

	var env *envelope
	if g := q.Get("geometry"); g != "" {
		env = &envelope{}
		if err := json.Unmarshal([]byte(g), env); err != nil {
			writeError(w, 400, "invalid geometry")
			return
		}
	}

	limit := len(lines)
	if s := q.Get("resultRecordCount"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	withGeometry := q.Get("returnGeometry") != "false"

	features := make([]featureJSON, 0, 64)
	for _, l := range lines {
		if !pred(l) {
			continue
		}
		if env != nil && !env.contains(l) {
			continue
		}
		features = append(features, toFeature(l, withGeometry))
		if len(features) >= limit {
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"features": features}) //nolint:errcheck
}

// writeError reports failures the way the real service does: an error object
// in a 200 body.
func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
		"error": map[string]any{"code": code, "message": msg, "details": []string{}},
	})
}

type envelope struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
}

func (e *envelope) contains(l domain.ServiceLine) bool {
	return l.Lon >= e.XMin && l.Lon <= e.XMax && l.Lat >= e.YMin && l.Lat <= e.YMax
}

type featureJSON struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   map[string]any `json:"geometry,omitempty"`
}

func toFeature(l domain.ServiceLine, withGeometry bool) featureJSON {
	notif := 0
	if l.NotificationSent {
		notif = 1
	}
	f := featureJSON{Attributes: map[string]any{
		domain.FieldID:               l.ID,
		domain.FieldAddress:          l.Address,
		domain.FieldCustomerMaterial: l.CustomerMaterial,
		domain.FieldUtilityMaterial:  l.UtilityMaterial,
		domain.FieldNotificationSent: notif,
		domain.FieldYearBuilt:        l.YearBuilt,
		domain.FieldStatus:           string(l.Status),
	}}
	if withGeometry {
		f.Geometry = map[string]any{"x": l.Lon, "y": l.Lat}
	}
	return f
}

// --- where clause evaluation ---

// predicate decides whether a record matches the where clause.
type predicate func(domain.ServiceLine) bool

var (
	materialRe = regexp.MustCompile(`^\(customer_material = '([^']*)' OR utility_material = '([^']*)'\)$`)
	sideRe     = regexp.MustCompile(`^(customer_material|utility_material) = '([^']*)'$`)
	statusRe   = regexp.MustCompile(`^verification_status IN \(([^)]*)\)$`)
	idRe       = regexp.MustCompile(`^objectid = (\d+)$`)
)

// compileWhere supports the clause shapes the portal's filter builder emits:
// "1=1", the either-side material test, a status membership test, an object
// ID equality, and AND combinations of those.
func compileWhere(where string) (predicate, error) {
	where = strings.TrimSpace(where)
	if where == "" || where == "1=1" {
		return func(domain.ServiceLine) bool { return true }, nil
	}

	var preds []predicate
	for _, part := range strings.Split(where, " AND ") {
		p, err := compileConjunct(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return func(l domain.ServiceLine) bool {
		for _, p := range preds {
			if !p(l) {
				return false
			}
		}
		return true
	}, nil
}

func compileConjunct(part string) (predicate, error) {
	if part == "1=1" {
		return func(domain.ServiceLine) bool { return true }, nil
	}
	if m := materialRe.FindStringSubmatch(part); m != nil {
		cust, util := m[1], m[2]
		return func(l domain.ServiceLine) bool {
			return l.CustomerMaterial == cust || l.UtilityMaterial == util
		}, nil
	}
	if m := sideRe.FindStringSubmatch(part); m != nil {
		field, val := m[1], m[2]
		return func(l domain.ServiceLine) bool {
			if field == domain.FieldCustomerMaterial {
				return l.CustomerMaterial == val
			}
			return l.UtilityMaterial == val
		}, nil
	}
	if m := statusRe.FindStringSubmatch(part); m != nil {
		allowed := map[string]bool{}
		for _, v := range strings.Split(m[1], ",") {
			allowed[strings.Trim(strings.TrimSpace(v), "'")] = true
		}
		return func(l domain.ServiceLine) bool {
			return allowed[string(l.Status)]
		}, nil
	}
	if m := idRe.FindStringSubmatch(part); m != nil {
		id, _ := strconv.ParseInt(m[1], 10, 64)
		return func(l domain.ServiceLine) bool { return l.ID == id }, nil
	}
	return nil, fmt.Errorf("unsupported where clause: %q", part)
}
