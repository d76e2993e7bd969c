package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationResolveByLocalID(t *testing.T) {
	corr := newCorrelationResolver()
	corr.put(FamilyProducts, "p1", 101)

	local := "p1"
	id, ok := corr.resolve(FamilyProducts, Ref{LocalID: &local})
	require.True(t, ok)
	assert.EqualValues(t, 101, id)

	// Backend id wins when present.
	id, ok = corr.resolve(FamilyProducts, Ref{ID: NewID(55), LocalID: &local})
	require.True(t, ok)
	assert.EqualValues(t, 55, id)

	unknown := "p2"
	_, ok = corr.resolve(FamilyProducts, Ref{LocalID: &unknown})
	assert.False(t, ok)

	_, ok = corr.resolve(FamilyProducts, Ref{})
	assert.False(t, ok)
}

func TestCorrelationTracksUpdatesWithoutLocalID(t *testing.T) {
	corr := newCorrelationResolver()
	corr.put(FamilyInvoices, "", 900) // confirmed update, no local id

	assert.Len(t, corr.writtenIDs(FamilyInvoices), 1)
	assert.Empty(t, corr.mappings().Invoices)
}

func TestCorrelationMappingsStableOrder(t *testing.T) {
	corr := newCorrelationResolver()
	corr.put(FamilyBranches, "b2", 2)
	corr.put(FamilyBranches, "b1", 1)
	corr.put(FamilyBranches, "b3", 3)

	m := corr.mappings().Branches
	require.Len(t, m, 3)
	assert.Equal(t, []IDMapping{
		{LocalID: "b1", BackendID: 1},
		{LocalID: "b2", BackendID: 2},
		{LocalID: "b3", BackendID: 3},
	}, m)
}
