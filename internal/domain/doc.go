// Package domain models the public water system's lead service line
// inventory and the value types shared across the portal.
//
// # Data Source
//
// Inventory rows come from the utility's hosted feature service, one point
// record per service connection. The layer is maintained by the utility's GIS
// group to satisfy the federal Lead and Copper Rule Revisions (LCRR) service
// line inventory requirement; this portal only reads it.
//
// # Material Codes
//
// The inventory stores short material codes rather than display names. Codes
// observed in the layer (and their meaning) are:
//
//	"pb", "l"    → lead
//	"cu"         → copper
//	"galv"       → galvanized steel
//	"u", "unk"   → material not yet determined
//	anything else → shown verbatim (e.g. "PVC", "HDPE")
//
// Both sides of the curb stop carry a code: the utility-owned segment and the
// customer-owned segment. A property is "lead-affected" when either side
// classifies as lead, and "unknown" when either side is undetermined. See
// [ClassifyMaterial] and [ServiceLine.HasLead].
//
// # Verification Status
//
// Each row records how the material determination was made:
//
//	verified → confirmed by field inspection or potholing
//	assumed  → inferred from construction year, tap records, or plumbing code
//	unknown  → no determination yet
//
// Any value outside this closed set is treated as unknown on ingest; the set
// is also the only vocabulary accepted by the status filter, which keeps
// caller text out of the where clauses sent upstream. See [FilterSelection].
package domain
