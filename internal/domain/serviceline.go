package domain

import "strings"

// VerificationStatus records how a material determination was made.
type VerificationStatus string

const (
	StatusVerified VerificationStatus = "verified"
	StatusAssumed  VerificationStatus = "assumed"
	StatusUnknown  VerificationStatus = "unknown"
)

// KnownStatuses is the closed vocabulary accepted by status filters.
var KnownStatuses = []VerificationStatus{StatusVerified, StatusAssumed, StatusUnknown}

// ParseVerificationStatus normalizes a raw status value. Anything outside the
// closed set collapses to StatusUnknown.
func ParseVerificationStatus(raw string) VerificationStatus {
	switch VerificationStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusVerified:
		return StatusVerified
	case StatusAssumed:
		return StatusAssumed
	default:
		return StatusUnknown
	}
}

// ServiceLine is one point record from the service line inventory layer,
// rebuilt from scratch on every fetch. The portal never mutates a record
// after construction.
type ServiceLine struct {
	ID               int64              `json:"id"`
	Address          string             `json:"address"`
	CustomerMaterial string             `json:"customer_material"`
	UtilityMaterial  string             `json:"utility_material"`
	NotificationSent bool               `json:"notification_sent"`
	YearBuilt        int                `json:"year_built,omitempty"`
	Status           VerificationStatus `json:"status"`
	Lat              float64            `json:"lat"`
	Lon              float64            `json:"lon"`
}

// HasLead reports whether either side of the connection classifies as lead.
func (s ServiceLine) HasLead() bool {
	return ClassifyMaterial(s.CustomerMaterial).Category == CategoryLead ||
		ClassifyMaterial(s.UtilityMaterial).Category == CategoryLead
}

// HasUnknown reports whether either side's material is still undetermined.
func (s ServiceLine) HasUnknown() bool {
	return ClassifyMaterial(s.CustomerMaterial).Category == CategoryUnknown ||
		ClassifyMaterial(s.UtilityMaterial).Category == CategoryUnknown
}

// Stats summarizes the inventory for the dashboard panel. Counts are taken
// client-side over a full minimal-attribute fetch, so they can drift from a
// concurrently issued list query if the layer changes between calls.
type Stats struct {
	Total    int `json:"total"`
	Lead     int `json:"lead"`
	Unknown  int `json:"unknown"`
	Verified int `json:"verified"`
	Assumed  int `json:"assumed"`
}

// Tally counts a result set into Stats. Lead and Unknown count properties
// where either side matches, so a single record can contribute to both.
func Tally(lines []ServiceLine) Stats {
	var st Stats
	st.Total = len(lines)
	for _, l := range lines {
		if l.HasLead() {
			st.Lead++
		}
		if l.HasUnknown() {
			st.Unknown++
		}
		switch l.Status {
		case StatusVerified:
			st.Verified++
		case StatusAssumed:
			st.Assumed++
		}
	}
	return st
}
