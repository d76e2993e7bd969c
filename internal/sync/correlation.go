package sync

import "sort"

// correlationResolver maps client-local identifiers to durable backend
// ids within one sync call. It doubles as the record of every id written
// by the push phase, which the delta exporter uses for self-echo
// exclusion.
type correlationResolver struct {
	byFamily map[Family]map[string]ID
	written  map[Family][]ID
}

func newCorrelationResolver() *correlationResolver {
	return &correlationResolver{
		byFamily: make(map[Family]map[string]ID),
		written:  make(map[Family][]ID),
	}
}

// put records the backend id assigned or confirmed for localID.
func (c *correlationResolver) put(family Family, localID string, id ID) {
	if localID != "" {
		m, ok := c.byFamily[family]
		if !ok {
			m = make(map[string]ID)
			c.byFamily[family] = m
		}
		m[localID] = id
	}
	c.written[family] = append(c.written[family], id)
}

// resolve turns a reference into a backend id, consulting the
// correlation map when the reference is by localId.
func (c *correlationResolver) resolve(family Family, ref Ref) (ID, bool) {
	if ref.ID != nil {
		return *ref.ID, true
	}
	if ref.LocalID == nil || *ref.LocalID == "" {
		return 0, false
	}
	id, ok := c.byFamily[family][*ref.LocalID]
	return id, ok
}

// writtenIDs returns every id written for the family during this call.
func (c *correlationResolver) writtenIDs(family Family) []ID {
	return c.written[family]
}

// mappings flattens the correlation map for the response, in stable
// localId order.
func (c *correlationResolver) mappings() Mappings {
	return Mappings{
		Branches:          c.familyMappings(FamilyBranches),
		Products:          c.familyMappings(FamilyProducts),
		ThirdParties:      c.familyMappings(FamilyThirdParties),
		Invoices:          c.familyMappings(FamilyInvoices),
		AccountingEntries: c.familyMappings(FamilyAccountingEntries),
	}
}

func (c *correlationResolver) familyMappings(family Family) []IDMapping {
	m := c.byFamily[family]
	if len(m) == 0 {
		return nil
	}
	out := make([]IDMapping, 0, len(m))
	for localID, id := range m {
		out = append(out, IDMapping{LocalID: localID, BackendID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalID < out[j].LocalID })
	return out
}
