package domain

import (
	"context"

	"github.com/paulmach/orb"
)

// Inventory reads the hosted service line layer.
type Inventory interface {
	// Query returns the records matching the selection, capped at the
	// configured record count. Row order follows the layer and is not
	// relied upon.
	Query(ctx context.Context, sel FilterSelection) ([]ServiceLine, error)

	// QueryByID returns the record with the given object ID, or nil when
	// absent or when the layer errors (a missing detail row renders as
	// "not found", never as a failure page).
	QueryByID(ctx context.Context, id int64) (*ServiceLine, error)

	// QueryExtent returns matching records whose geometry intersects the
	// bound (WGS-84).
	QueryExtent(ctx context.Context, bound orb.Bound, sel FilterSelection) ([]ServiceLine, error)

	// Stats tallies the whole layer client-side. Failures degrade to
	// zero-valued Stats.
	Stats(ctx context.Context) (Stats, error)
}
