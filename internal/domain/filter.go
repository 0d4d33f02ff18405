package domain

import (
	"fmt"
	"strings"
)

// Field names of the inventory layer, shared by the clause builder and the
// feature service client's outFields lists.
const (
	FieldID               = "objectid"
	FieldAddress          = "address"
	FieldCustomerMaterial = "customer_material"
	FieldUtilityMaterial  = "utility_material"
	FieldNotificationSent = "notification_sent"
	FieldYearBuilt        = "year_built"
	FieldStatus           = "verification_status"
)

// Canonical stored codes the material clause matches against.
const (
	codeLead    = "pb"
	codeUnknown = "u"
)

// MaterialFilter selects which material population a query covers.
type MaterialFilter string

const (
	FilterAll     MaterialFilter = "all"
	FilterLead    MaterialFilter = "lead"
	FilterUnknown MaterialFilter = "unknown"
)

// ParseMaterialFilter normalizes a raw filter value, defaulting to FilterAll.
func ParseMaterialFilter(raw string) MaterialFilter {
	switch MaterialFilter(strings.ToLower(strings.TrimSpace(raw))) {
	case FilterLead:
		return FilterLead
	case FilterUnknown:
		return FilterUnknown
	default:
		return FilterAll
	}
}

// FilterSelection is the user's current filter state. The side toggles exist
// in the UI but are always both on today; they are carried so the clause
// builder doesn't change shape when the UI grows per-side filtering.
type FilterSelection struct {
	Material         MaterialFilter       `json:"material"`
	ShowCustomerSide bool                 `json:"show_customer_side"`
	ShowUtilitySide  bool                 `json:"show_utility_side"`
	Statuses         []VerificationStatus `json:"statuses,omitempty"`
}

// DefaultFilter is the selection the portal opens with.
func DefaultFilter() FilterSelection {
	return FilterSelection{Material: FilterAll, ShowCustomerSide: true, ShowUtilitySide: true}
}

// WhereClause renders the selection as a feature service predicate. Clauses
// are ANDed; an empty selection yields the universal predicate "1=1".
//
// Only values from the closed material and status vocabularies are ever
// interpolated. Free text from callers must never reach this builder; the
// status list is re-validated here against KnownStatuses as a second line of
// defense against injection into the upstream query language.
func (f FilterSelection) WhereClause() string {
	var clauses []string

	switch f.Material {
	case FilterLead:
		clauses = append(clauses, materialClause(codeLead))
	case FilterUnknown:
		clauses = append(clauses, materialClause(codeUnknown))
	}

	if c := statusClause(f.Statuses); c != "" {
		clauses = append(clauses, c)
	}

	if len(clauses) == 0 {
		return "1=1"
	}
	return strings.Join(clauses, " AND ")
}

// materialClause matches records where either side's stored code equals the
// target value.
func materialClause(code string) string {
	return fmt.Sprintf("(%s = '%s' OR %s = '%s')",
		FieldCustomerMaterial, code, FieldUtilityMaterial, code)
}

// statusClause builds a membership test over the known status set. Values
// outside the closed set are dropped, not quoted.
func statusClause(statuses []VerificationStatus) string {
	var quoted []string
	for _, s := range statuses {
		if !isKnownStatus(s) {
			continue
		}
		quoted = append(quoted, "'"+string(s)+"'")
	}
	if len(quoted) == 0 {
		return ""
	}
	return fmt.Sprintf("%s IN (%s)", FieldStatus, strings.Join(quoted, ","))
}

func isKnownStatus(s VerificationStatus) bool {
	for _, k := range KnownStatuses {
		if s == k {
			return true
		}
	}
	return false
}
