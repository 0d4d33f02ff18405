package domain

import (
	"context"

	"github.com/paulmach/orb"
)

// GeocodeResult is one resolved address candidate. Results are ephemeral:
// produced per search submission, never retained past the current list.
type GeocodeResult struct {
	Address    string            `json:"address"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
	Score      float64           `json:"score"` // provider confidence, 0–100
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Suggestion is a lightweight typeahead candidate. MagicKey is the provider's
// opaque handle for fetching the full candidate later.
type Suggestion struct {
	Text         string `json:"text"`
	MagicKey     string `json:"magic_key"`
	IsCollection bool   `json:"is_collection"`
}

// Resolver turns free-text addresses into coordinates and back. All
// operations are best-effort: implementations degrade to empty results on
// provider failure rather than propagating errors.
type Resolver interface {
	// Search forward-geocodes text into up to 10 candidates, biased toward
	// bias when non-nil, else toward the configured default center. Text
	// under 3 characters yields no results and no network call.
	Search(ctx context.Context, text string, bias *orb.Point) ([]GeocodeResult, error)

	// Suggest returns up to 8 typeahead suggestions for text of at least
	// 2 characters.
	Suggest(ctx context.Context, text string, bias *orb.Point) ([]Suggestion, error)

	// ResolveSuggestion fetches the full candidate behind a suggestion's
	// magic key. Returns nil when not found.
	ResolveSuggestion(ctx context.Context, text, magicKey string) (*GeocodeResult, error)

	// Reverse returns a display address for a coordinate, or "" when none.
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}
