package sync

import (
	"context"
	stdsync "sync"
	"time"
)

// mockRepository is an in-memory Repository with transactional rollback
// and a deterministic clock: every write advances the clock by one
// second and stamps the row, mirroring updated_at semantics.
type mockRepository struct {
	mu stdsync.Mutex

	now time.Time

	nextID   int64
	branches map[int64]*branchRow
	products map[int64]*productRow
	parties  map[int64]*partyRow
	invoices map[int64]*invoiceRow
	entries  map[int64]*entryRow

	invoiceLines map[int64][]InvoiceLineRow
	entryLines   map[int64][]EntryLine

	txError error
}

type branchRow struct {
	companyID int64
	rec       BranchRecord
	updatedAt time.Time
}

type productRow struct {
	companyID int64
	rec       ProductRecord
	updatedAt time.Time
}

type partyRow struct {
	companyID int64
	rec       ThirdPartyRecord
	updatedAt time.Time
}

type invoiceRow struct {
	companyID    int64
	rec          InvoiceRecord
	branchID     int64
	thirdPartyID int64
	updatedAt    time.Time
}

type entryRow struct {
	companyID int64
	rec       EntryRecord
	updatedAt time.Time
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		now:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		nextID:       1,
		branches:     make(map[int64]*branchRow),
		products:     make(map[int64]*productRow),
		parties:      make(map[int64]*partyRow),
		invoices:     make(map[int64]*invoiceRow),
		entries:      make(map[int64]*entryRow),
		invoiceLines: make(map[int64][]InvoiceLineRow),
		entryLines:   make(map[int64][]EntryLine),
	}
}

func (m *mockRepository) allocate() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *mockRepository) tick() time.Time {
	m.now = m.now.Add(time.Second)
	return m.now
}

func (m *mockRepository) Now(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now, nil
}

// advance moves the clock without writing, to simulate elapsed time or
// another device's later activity.
func (m *mockRepository) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.clone()
	if err := fn(ctx, &mockTx{repo: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type mockState struct {
	now          time.Time
	nextID       int64
	branches     map[int64]*branchRow
	products     map[int64]*productRow
	parties      map[int64]*partyRow
	invoices     map[int64]*invoiceRow
	entries      map[int64]*entryRow
	invoiceLines map[int64][]InvoiceLineRow
	entryLines   map[int64][]EntryLine
}

func (m *mockRepository) clone() mockState {
	s := mockState{
		now:          m.now,
		nextID:       m.nextID,
		branches:     make(map[int64]*branchRow, len(m.branches)),
		products:     make(map[int64]*productRow, len(m.products)),
		parties:      make(map[int64]*partyRow, len(m.parties)),
		invoices:     make(map[int64]*invoiceRow, len(m.invoices)),
		entries:      make(map[int64]*entryRow, len(m.entries)),
		invoiceLines: make(map[int64][]InvoiceLineRow, len(m.invoiceLines)),
		entryLines:   make(map[int64][]EntryLine, len(m.entryLines)),
	}
	for id, row := range m.branches {
		c := *row
		s.branches[id] = &c
	}
	for id, row := range m.products {
		c := *row
		s.products[id] = &c
	}
	for id, row := range m.parties {
		c := *row
		s.parties[id] = &c
	}
	for id, row := range m.invoices {
		c := *row
		s.invoices[id] = &c
	}
	for id, row := range m.entries {
		c := *row
		s.entries[id] = &c
	}
	for id, lines := range m.invoiceLines {
		s.invoiceLines[id] = append([]InvoiceLineRow(nil), lines...)
	}
	for id, lines := range m.entryLines {
		s.entryLines[id] = append([]EntryLine(nil), lines...)
	}
	return s
}

func (m *mockRepository) restore(s mockState) {
	m.now = s.now
	m.nextID = s.nextID
	m.branches = s.branches
	m.products = s.products
	m.parties = s.parties
	m.invoices = s.invoices
	m.entries = s.entries
	m.invoiceLines = s.invoiceLines
	m.entryLines = s.entryLines
}

// mockTx applies writes directly; rollback is handled by WithTx.
type mockTx struct {
	repo *mockRepository
}

func (m *mockRepository) ownsBranch(tenant, id int64) bool {
	row, ok := m.branches[id]
	return ok && row.companyID == tenant
}

func (m *mockRepository) ownsProduct(tenant, id int64) bool {
	row, ok := m.products[id]
	return ok && row.companyID == tenant
}

func (m *mockRepository) ownsParty(tenant, id int64) bool {
	row, ok := m.parties[id]
	return ok && row.companyID == tenant
}

func (t *mockTx) InsertBranch(ctx context.Context, tenant int64, r BranchRecord) (int64, error) {
	id := t.repo.allocate()
	t.repo.branches[id] = &branchRow{companyID: tenant, rec: r, updatedAt: t.repo.tick()}
	return id, nil
}

func (t *mockTx) UpdateBranch(ctx context.Context, tenant, id int64, r BranchRecord) (int64, error) {
	row, ok := t.repo.branches[id]
	if !ok || row.companyID != tenant {
		return 0, nil
	}
	row.rec = r
	row.updatedAt = t.repo.tick()
	return 1, nil
}

func (t *mockTx) InsertProduct(ctx context.Context, tenant int64, r ProductRecord) (int64, error) {
	// Mirrors UNIQUE (company_id, code) on products.
	for _, row := range t.repo.products {
		if row.companyID == tenant && row.rec.Code == r.Code {
			return 0, ErrDuplicateKey
		}
	}
	id := t.repo.allocate()
	t.repo.products[id] = &productRow{companyID: tenant, rec: r, updatedAt: t.repo.tick()}
	return id, nil
}

func (t *mockTx) UpdateProduct(ctx context.Context, tenant, id int64, r ProductRecord) (int64, error) {
	row, ok := t.repo.products[id]
	if !ok || row.companyID != tenant {
		return 0, nil
	}
	row.rec = r
	row.updatedAt = t.repo.tick()
	return 1, nil
}

func (t *mockTx) InsertThirdParty(ctx context.Context, tenant int64, r ThirdPartyRecord) (int64, error) {
	id := t.repo.allocate()
	t.repo.parties[id] = &partyRow{companyID: tenant, rec: r, updatedAt: t.repo.tick()}
	return id, nil
}

func (t *mockTx) UpdateThirdParty(ctx context.Context, tenant, id int64, r ThirdPartyRecord) (int64, error) {
	row, ok := t.repo.parties[id]
	if !ok || row.companyID != tenant {
		return 0, nil
	}
	row.rec = r
	row.updatedAt = t.repo.tick()
	return 1, nil
}

// Invoice writes mirror the repository's reference guards: a branch,
// third party, or product id owned by another tenant aborts the write.

func (t *mockTx) InsertInvoice(ctx context.Context, tenant int64, r InvoiceRecord, branchID, thirdPartyID int64) (int64, error) {
	if !t.repo.ownsBranch(tenant, branchID) || !t.repo.ownsParty(tenant, thirdPartyID) {
		return 0, ErrForeignTenant
	}
	id := t.repo.allocate()
	t.repo.invoices[id] = &invoiceRow{companyID: tenant, rec: r, branchID: branchID, thirdPartyID: thirdPartyID, updatedAt: t.repo.tick()}
	return id, nil
}

func (t *mockTx) UpdateInvoice(ctx context.Context, tenant, id int64, r InvoiceRecord, branchID, thirdPartyID int64) (int64, error) {
	row, ok := t.repo.invoices[id]
	if !ok || row.companyID != tenant {
		return 0, nil
	}
	if !t.repo.ownsBranch(tenant, branchID) || !t.repo.ownsParty(tenant, thirdPartyID) {
		return 0, nil
	}
	row.rec = r
	row.branchID = branchID
	row.thirdPartyID = thirdPartyID
	row.updatedAt = t.repo.tick()
	return 1, nil
}

func (t *mockTx) ReplaceInvoiceLines(ctx context.Context, tenant, invoiceID int64, lines []InvoiceLineRow) error {
	for _, line := range lines {
		if !t.repo.ownsProduct(tenant, line.ProductID) {
			return ErrForeignTenant
		}
	}
	t.repo.invoiceLines[invoiceID] = append([]InvoiceLineRow(nil), lines...)
	return nil
}

func (t *mockTx) InsertEntry(ctx context.Context, tenant int64, r EntryRecord) (int64, error) {
	id := t.repo.allocate()
	t.repo.entries[id] = &entryRow{companyID: tenant, rec: r, updatedAt: t.repo.tick()}
	return id, nil
}

func (t *mockTx) UpdateEntry(ctx context.Context, tenant, id int64, r EntryRecord) (int64, error) {
	row, ok := t.repo.entries[id]
	if !ok || row.companyID != tenant {
		return 0, nil
	}
	row.rec = r
	row.updatedAt = t.repo.tick()
	return 1, nil
}

func (t *mockTx) ReplaceEntryLines(ctx context.Context, tenant, entryID int64, lines []EntryLine) error {
	t.repo.entryLines[entryID] = append([]EntryLine(nil), lines...)
	return nil
}

func inWindow(updatedAt, since, until time.Time) bool {
	return updatedAt.After(since) && !updatedAt.After(until)
}

func excluded(id int64, exclude []int64) bool {
	for _, e := range exclude {
		if e == id {
			return true
		}
	}
	return false
}

func (m *mockRepository) BranchesChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]BranchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BranchRecord
	for id, row := range m.branches {
		if row.companyID != tenant || !inWindow(row.updatedAt, since, until) || excluded(id, exclude) {
			continue
		}
		rec := row.rec
		rec.BackendID = NewID(id)
		rec.UpdatedAt = row.updatedAt
		out = append(out, rec)
	}
	sortByWatermark(out, func(r BranchRecord) (time.Time, int64) { return r.UpdatedAt, r.BackendID.Int64() })
	return out, nil
}

func (m *mockRepository) ProductsChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]ProductRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ProductRecord
	for id, row := range m.products {
		if row.companyID != tenant || !inWindow(row.updatedAt, since, until) || excluded(id, exclude) {
			continue
		}
		rec := row.rec
		rec.BackendID = NewID(id)
		rec.UpdatedAt = row.updatedAt
		out = append(out, rec)
	}
	sortByWatermark(out, func(r ProductRecord) (time.Time, int64) { return r.UpdatedAt, r.BackendID.Int64() })
	return out, nil
}

func (m *mockRepository) ThirdPartiesChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]ThirdPartyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ThirdPartyRecord
	for id, row := range m.parties {
		if row.companyID != tenant || !inWindow(row.updatedAt, since, until) || excluded(id, exclude) {
			continue
		}
		rec := row.rec
		rec.BackendID = NewID(id)
		rec.UpdatedAt = row.updatedAt
		out = append(out, rec)
	}
	sortByWatermark(out, func(r ThirdPartyRecord) (time.Time, int64) { return r.UpdatedAt, r.BackendID.Int64() })
	return out, nil
}

func (m *mockRepository) InvoicesChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]InvoiceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []InvoiceRecord
	for id, row := range m.invoices {
		if row.companyID != tenant || !inWindow(row.updatedAt, since, until) || excluded(id, exclude) {
			continue
		}
		rec := row.rec
		rec.BackendID = NewID(id)
		rec.UpdatedAt = row.updatedAt
		rec.Branch = Ref{ID: NewID(row.branchID)}
		rec.ThirdParty = Ref{ID: NewID(row.thirdPartyID)}
		rec.Lines = nil
		for _, line := range m.invoiceLines[id] {
			rec.Lines = append(rec.Lines, InvoiceLine{
				Product:            Ref{ID: NewID(line.ProductID)},
				Description:        line.Description,
				Quantity:           line.Quantity,
				UnitPrice:          line.UnitPrice,
				VATRate:            line.VATRate,
				NetAmountExclTax:   line.NetAmountExclTax,
				VATAmount:          line.VATAmount,
				TotalAmountInclTax: line.TotalAmountInclTax,
			})
		}
		out = append(out, rec)
	}
	sortByWatermark(out, func(r InvoiceRecord) (time.Time, int64) { return r.UpdatedAt, r.BackendID.Int64() })
	return out, nil
}

func (m *mockRepository) EntriesChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]EntryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EntryRecord
	for id, row := range m.entries {
		if row.companyID != tenant || !inWindow(row.updatedAt, since, until) || excluded(id, exclude) {
			continue
		}
		rec := row.rec
		rec.BackendID = NewID(id)
		rec.UpdatedAt = row.updatedAt
		rec.Lines = append([]EntryLine(nil), m.entryLines[id]...)
		out = append(out, rec)
	}
	sortByWatermark(out, func(r EntryRecord) (time.Time, int64) { return r.UpdatedAt, r.BackendID.Int64() })
	return out, nil
}

func sortByWatermark[T any](rows []T, key func(T) (time.Time, int64)) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0; j-- {
			tj, ij := key(rows[j])
			tp, ip := key(rows[j-1])
			if tj.Before(tp) || (tj.Equal(tp) && ij < ip) {
				rows[j], rows[j-1] = rows[j-1], rows[j]
			} else {
				break
			}
		}
	}
}
