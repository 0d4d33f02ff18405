package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVerificationStatus(t *testing.T) {
	assert.Equal(t, StatusVerified, ParseVerificationStatus("verified"))
	assert.Equal(t, StatusVerified, ParseVerificationStatus(" Verified "))
	assert.Equal(t, StatusAssumed, ParseVerificationStatus("ASSUMED"))
	assert.Equal(t, StatusUnknown, ParseVerificationStatus("unknown"))
	assert.Equal(t, StatusUnknown, ParseVerificationStatus(""))
	assert.Equal(t, StatusUnknown, ParseVerificationStatus("pending review"))
}

func TestServiceLine_SideChecks(t *testing.T) {
	leadCustomer := ServiceLine{CustomerMaterial: "pb", UtilityMaterial: "cu"}
	leadUtility := ServiceLine{CustomerMaterial: "cu", UtilityMaterial: "l"}
	copperBoth := ServiceLine{CustomerMaterial: "cu", UtilityMaterial: "cu"}
	unknownUtility := ServiceLine{CustomerMaterial: "cu", UtilityMaterial: "unk"}

	assert.True(t, leadCustomer.HasLead())
	assert.True(t, leadUtility.HasLead())
	assert.False(t, copperBoth.HasLead())
	assert.False(t, unknownUtility.HasLead())

	assert.True(t, unknownUtility.HasUnknown())
	assert.True(t, ServiceLine{CustomerMaterial: "", UtilityMaterial: "cu"}.HasUnknown())
	assert.False(t, copperBoth.HasUnknown())
}

// Fixture mirrors the dashboard acceptance numbers: 2 lead, 3 unknown,
// 5 verified, 2 assumed out of 10 rows.
func statsFixture() []ServiceLine {
	return []ServiceLine{
		{ID: 1, CustomerMaterial: "pb", UtilityMaterial: "cu", Status: StatusVerified},
		{ID: 2, CustomerMaterial: "cu", UtilityMaterial: "l", Status: StatusVerified},
		{ID: 3, CustomerMaterial: "u", UtilityMaterial: "cu", Status: StatusUnknown},
		{ID: 4, CustomerMaterial: "cu", UtilityMaterial: "unk", Status: StatusUnknown},
		{ID: 5, CustomerMaterial: "", UtilityMaterial: "cu", Status: StatusUnknown},
		{ID: 6, CustomerMaterial: "cu", UtilityMaterial: "cu", Status: StatusVerified},
		{ID: 7, CustomerMaterial: "galv", UtilityMaterial: "cu", Status: StatusVerified},
		{ID: 8, CustomerMaterial: "cu", UtilityMaterial: "cu", Status: StatusVerified},
		{ID: 9, CustomerMaterial: "cu", UtilityMaterial: "cu", Status: StatusAssumed},
		{ID: 10, CustomerMaterial: "cu", UtilityMaterial: "cu", Status: StatusAssumed},
	}
}

func TestTally(t *testing.T) {
	st := Tally(statsFixture())

	assert.Equal(t, 10, st.Total)
	assert.Equal(t, 2, st.Lead)
	assert.Equal(t, 3, st.Unknown)
	assert.Equal(t, 5, st.Verified)
	assert.Equal(t, 2, st.Assumed)
}

func TestTally_OrderIndependent(t *testing.T) {
	fixture := statsFixture()
	reversed := make([]ServiceLine, len(fixture))
	for i, l := range fixture {
		reversed[len(fixture)-1-i] = l
	}
	assert.Equal(t, Tally(fixture), Tally(reversed))
}

func TestTally_Empty(t *testing.T) {
	assert.Equal(t, Stats{}, Tally(nil))
}
