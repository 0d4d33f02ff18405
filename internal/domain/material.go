package domain

import "strings"

// MaterialCategory is the style bucket a classified material falls into.
// The presentation layer keys map symbology off this value.
type MaterialCategory string

const (
	CategoryLead       MaterialCategory = "lead"
	CategoryCopper     MaterialCategory = "copper"
	CategoryGalvanized MaterialCategory = "galvanized"
	CategoryUnknown    MaterialCategory = "unknown"
	CategoryOther      MaterialCategory = "other"
)

// Material is the normalized display form of a raw inventory material code.
type Material struct {
	Label    string           `json:"label"`
	Category MaterialCategory `json:"category"`
}

// ClassifyMaterial maps a raw material code to its display label and style
// category. Matching is case-insensitive against the known short codes; an
// unrecognized non-empty value passes through unchanged as the label with the
// neutral category. Total over all inputs, no error path.
func ClassifyMaterial(raw string) Material {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pb", "l", "lead":
		return Material{Label: "Lead", Category: CategoryLead}
	case "cu", "copper":
		return Material{Label: "Copper", Category: CategoryCopper}
	case "galv", "galvanized":
		return Material{Label: "Galvanized Steel", Category: CategoryGalvanized}
	case "", "u", "unk", "unknown":
		return Material{Label: "Not determined", Category: CategoryUnknown}
	default:
		return Material{Label: raw, Category: CategoryOther}
	}
}
