package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhereClause_EmptySelectionIsUniversal(t *testing.T) {
	assert.Equal(t, "1=1", DefaultFilter().WhereClause())
	assert.Equal(t, "1=1", FilterSelection{}.WhereClause())
}

func TestWhereClause_LeadMatchesEitherSide(t *testing.T) {
	sel := FilterSelection{Material: FilterLead, ShowCustomerSide: true, ShowUtilitySide: true}
	assert.Equal(t,
		"(customer_material = 'pb' OR utility_material = 'pb')",
		sel.WhereClause())
}

func TestWhereClause_Unknown(t *testing.T) {
	sel := FilterSelection{Material: FilterUnknown}
	assert.Equal(t,
		"(customer_material = 'u' OR utility_material = 'u')",
		sel.WhereClause())
}

func TestWhereClause_StatusMembership(t *testing.T) {
	sel := FilterSelection{
		Material: FilterAll,
		Statuses: []VerificationStatus{StatusVerified, StatusAssumed},
	}
	assert.Equal(t, "verification_status IN ('verified','assumed')", sel.WhereClause())
}

func TestWhereClause_CombinedClausesAreANDed(t *testing.T) {
	sel := FilterSelection{
		Material: FilterLead,
		Statuses: []VerificationStatus{StatusVerified},
	}
	assert.Equal(t,
		"(customer_material = 'pb' OR utility_material = 'pb') AND verification_status IN ('verified')",
		sel.WhereClause())
}

func TestWhereClause_RejectsValuesOutsideClosedSet(t *testing.T) {
	// A hostile status value must be dropped, never quoted into the clause.
	sel := FilterSelection{
		Statuses: []VerificationStatus{"verified') OR (1=1", StatusAssumed},
	}
	assert.Equal(t, "verification_status IN ('assumed')", sel.WhereClause())

	sel = FilterSelection{Statuses: []VerificationStatus{"'; DROP TABLE--"}}
	assert.Equal(t, "1=1", sel.WhereClause())
}

func TestParseMaterialFilter(t *testing.T) {
	assert.Equal(t, FilterLead, ParseMaterialFilter("lead"))
	assert.Equal(t, FilterLead, ParseMaterialFilter(" LEAD "))
	assert.Equal(t, FilterUnknown, ParseMaterialFilter("unknown"))
	assert.Equal(t, FilterAll, ParseMaterialFilter("all"))
	assert.Equal(t, FilterAll, ParseMaterialFilter(""))
	assert.Equal(t, FilterAll, ParseMaterialFilter("bogus"))
}
