package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository provides PostgreSQL backed persistence for the sync engine.
// Writes happen through WithTx so one push is one atomic transaction;
// delta reads run against the pool after the push commits.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Now(ctx context.Context) (time.Time, error)

	BranchesChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]BranchRecord, error)
	ProductsChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]ProductRecord, error)
	ThirdPartiesChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]ThirdPartyRecord, error)
	InvoicesChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]InvoiceRecord, error)
	EntriesChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]EntryRecord, error)
}

// TxRepository exposes the write operations available inside one push
// transaction. Every statement is scoped to the tenant; updates report
// the number of rows affected so callers can reject foreign-tenant ids.
type TxRepository interface {
	InsertBranch(ctx context.Context, tenant int64, r BranchRecord) (int64, error)
	UpdateBranch(ctx context.Context, tenant, id int64, r BranchRecord) (int64, error)

	InsertProduct(ctx context.Context, tenant int64, r ProductRecord) (int64, error)
	UpdateProduct(ctx context.Context, tenant, id int64, r ProductRecord) (int64, error)

	InsertThirdParty(ctx context.Context, tenant int64, r ThirdPartyRecord) (int64, error)
	UpdateThirdParty(ctx context.Context, tenant, id int64, r ThirdPartyRecord) (int64, error)

	InsertInvoice(ctx context.Context, tenant int64, r InvoiceRecord, branchID, thirdPartyID int64) (int64, error)
	UpdateInvoice(ctx context.Context, tenant, id int64, r InvoiceRecord, branchID, thirdPartyID int64) (int64, error)
	ReplaceInvoiceLines(ctx context.Context, tenant, invoiceID int64, lines []InvoiceLineRow) error

	InsertEntry(ctx context.Context, tenant int64, r EntryRecord) (int64, error)
	UpdateEntry(ctx context.Context, tenant, id int64, r EntryRecord) (int64, error)
	ReplaceEntryLines(ctx context.Context, tenant, entryID int64, lines []EntryLine) error
}

// InvoiceLineRow is an invoice line with its product reference resolved
// to a durable id.
type InvoiceLineRow struct {
	ProductID          int64
	Description        *string
	Quantity           decimal.Decimal
	UnitPrice          decimal.Decimal
	VATRate            decimal.Decimal
	NetAmountExclTax   decimal.Decimal
	VATAmount          decimal.Decimal
	TotalAmountInclTax decimal.Decimal
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("sync: begin tx: %w", err)
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("sync: commit tx: %w", err)
	}
	return nil
}

// Now reads the database clock. The push watermark comes from here, not
// from the application host, so it is never behind a row's updated_at.
func (r *repository) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := r.pool.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("sync: read clock: %w", err)
	}
	return now, nil
}

// ============================================================================
// WRITES
// ============================================================================

func (t *txRepo) InsertBranch(ctx context.Context, tenant int64, r BranchRecord) (int64, error) {
	const query = `INSERT INTO branches (company_id, code, name, address, phone, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now()) RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query, tenant, r.Code, r.Name, r.Address, r.Phone, r.IsActive).Scan(&id)
	return id, writeErr(err)
}

func (t *txRepo) UpdateBranch(ctx context.Context, tenant, id int64, r BranchRecord) (int64, error) {
	const query = `UPDATE branches SET code = $3, name = $4, address = $5, phone = $6, is_active = $7, updated_at = now()
		WHERE id = $1 AND company_id = $2`
	tag, err := t.tx.Exec(ctx, query, id, tenant, r.Code, r.Name, r.Address, r.Phone, r.IsActive)
	if err != nil {
		return 0, writeErr(err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) InsertProduct(ctx context.Context, tenant int64, r ProductRecord) (int64, error) {
	const query = `INSERT INTO products (company_id, code, name, barcode, unit_price, purchase_price, vat_rate, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now()) RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query, tenant, r.Code, r.Name, r.Barcode, r.UnitPrice, r.PurchasePrice, r.VATRate, r.IsActive).Scan(&id)
	return id, writeErr(err)
}

func (t *txRepo) UpdateProduct(ctx context.Context, tenant, id int64, r ProductRecord) (int64, error) {
	const query = `UPDATE products SET code = $3, name = $4, barcode = $5, unit_price = $6, purchase_price = $7, vat_rate = $8, is_active = $9, updated_at = now()
		WHERE id = $1 AND company_id = $2`
	tag, err := t.tx.Exec(ctx, query, id, tenant, r.Code, r.Name, r.Barcode, r.UnitPrice, r.PurchasePrice, r.VATRate, r.IsActive)
	if err != nil {
		return 0, writeErr(err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) InsertThirdParty(ctx context.Context, tenant int64, r ThirdPartyRecord) (int64, error) {
	const query = `INSERT INTO third_parties (company_id, code, name, kind, tax_id, email, phone, address, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now()) RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query, tenant, r.Code, r.Name, string(r.Kind), r.TaxID, r.Email, r.Phone, r.Address, r.IsActive).Scan(&id)
	return id, writeErr(err)
}

func (t *txRepo) UpdateThirdParty(ctx context.Context, tenant, id int64, r ThirdPartyRecord) (int64, error) {
	const query = `UPDATE third_parties SET code = $3, name = $4, kind = $5, tax_id = $6, email = $7, phone = $8, address = $9, is_active = $10, updated_at = now()
		WHERE id = $1 AND company_id = $2`
	tag, err := t.tx.Exec(ctx, query, id, tenant, r.Code, r.Name, string(r.Kind), r.TaxID, r.Email, r.Phone, r.Address, r.IsActive)
	if err != nil {
		return 0, writeErr(err)
	}
	return tag.RowsAffected(), nil
}

// Invoice writes guard every cross-family reference with a tenant-scoped
// EXISTS. A branch, third party, or product id owned by another tenant
// makes the statement touch zero rows, which surfaces as
// ErrForeignTenant instead of silently adopting the foreign row.

func (t *txRepo) InsertInvoice(ctx context.Context, tenant int64, r InvoiceRecord, branchID, thirdPartyID int64) (int64, error) {
	const query = `INSERT INTO invoices (company_id, branch_id, third_party_id, number, invoice_date, status, net_amount_excl_tax, vat_amount, total_amount_incl_tax, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now()
		WHERE EXISTS (SELECT 1 FROM branches WHERE id = $2 AND company_id = $1)
		  AND EXISTS (SELECT 1 FROM third_parties WHERE id = $3 AND company_id = $1)
		RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query, tenant, branchID, thirdPartyID, r.Number, r.InvoiceDate, r.Status,
		r.NetAmountExclTax, r.VATAmount, r.TotalAmountInclTax).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrForeignTenant
	}
	return id, writeErr(err)
}

func (t *txRepo) UpdateInvoice(ctx context.Context, tenant, id int64, r InvoiceRecord, branchID, thirdPartyID int64) (int64, error) {
	const query = `UPDATE invoices SET branch_id = $3, third_party_id = $4, number = $5, invoice_date = $6, status = $7, net_amount_excl_tax = $8, vat_amount = $9, total_amount_incl_tax = $10, updated_at = now()
		WHERE id = $1 AND company_id = $2
		  AND EXISTS (SELECT 1 FROM branches WHERE id = $3 AND company_id = $2)
		  AND EXISTS (SELECT 1 FROM third_parties WHERE id = $4 AND company_id = $2)`
	tag, err := t.tx.Exec(ctx, query, id, tenant, branchID, thirdPartyID, r.Number, r.InvoiceDate, r.Status,
		r.NetAmountExclTax, r.VATAmount, r.TotalAmountInclTax)
	if err != nil {
		return 0, writeErr(err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) ReplaceInvoiceLines(ctx context.Context, tenant, invoiceID int64, lines []InvoiceLineRow) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1 AND company_id = $2`, invoiceID, tenant); err != nil {
		return err
	}
	const query = `INSERT INTO invoice_lines (company_id, invoice_id, line_no, product_id, description, quantity, unit_price, vat_rate, net_amount_excl_tax, vat_amount, total_amount_incl_tax)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		WHERE EXISTS (SELECT 1 FROM products WHERE id = $4 AND company_id = $1)`
	for i, line := range lines {
		tag, err := t.tx.Exec(ctx, query, tenant, invoiceID, i+1, line.ProductID, line.Description,
			line.Quantity, line.UnitPrice, line.VATRate, line.NetAmountExclTax, line.VATAmount, line.TotalAmountInclTax)
		if err != nil {
			return writeErr(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrForeignTenant
		}
	}
	return nil
}

func (t *txRepo) InsertEntry(ctx context.Context, tenant int64, r EntryRecord) (int64, error) {
	const query = `INSERT INTO accounting_entries (company_id, journal_code, entry_date, reference, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now()) RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query, tenant, r.JournalCode, r.EntryDate, r.Reference, r.Description).Scan(&id)
	return id, writeErr(err)
}

func (t *txRepo) UpdateEntry(ctx context.Context, tenant, id int64, r EntryRecord) (int64, error) {
	const query = `UPDATE accounting_entries SET journal_code = $3, entry_date = $4, reference = $5, description = $6, updated_at = now()
		WHERE id = $1 AND company_id = $2`
	tag, err := t.tx.Exec(ctx, query, id, tenant, r.JournalCode, r.EntryDate, r.Reference, r.Description)
	if err != nil {
		return 0, writeErr(err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) ReplaceEntryLines(ctx context.Context, tenant, entryID int64, lines []EntryLine) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM accounting_entry_lines WHERE entry_id = $1 AND company_id = $2`, entryID, tenant); err != nil {
		return err
	}
	const query = `INSERT INTO accounting_entry_lines (company_id, entry_id, line_no, account_code, label, debit, credit)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i, line := range lines {
		if _, err := t.tx.Exec(ctx, query, tenant, entryID, i+1, line.AccountCode, line.Label, line.Debit, line.Credit); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// DELTA READS
// ============================================================================

// deltaWindow is the shared WHERE clause for delta queries: rows owned
// by the tenant, changed inside (since, until], minus just-written ids.
const deltaWindow = `company_id = $1 AND updated_at > $2 AND updated_at <= $3 AND NOT (id = ANY($4))`

func (r *repository) BranchesChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]BranchRecord, error) {
	query := `SELECT id, code, name, address, phone, is_active, updated_at FROM branches WHERE ` + deltaWindow + ` ORDER BY updated_at, id`
	rows, err := r.pool.Query(ctx, query, tenant, since, until, emptyable(exclude))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BranchRecord
	for rows.Next() {
		var b BranchRecord
		var id int64
		if err := rows.Scan(&id, &b.Code, &b.Name, &b.Address, &b.Phone, &b.IsActive, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.BackendID = NewID(id)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) ProductsChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]ProductRecord, error) {
	query := `SELECT id, code, name, barcode, unit_price, purchase_price, vat_rate, is_active, updated_at FROM products WHERE ` + deltaWindow + ` ORDER BY updated_at, id`
	rows, err := r.pool.Query(ctx, query, tenant, since, until, emptyable(exclude))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductRecord
	for rows.Next() {
		var p ProductRecord
		var id int64
		if err := rows.Scan(&id, &p.Code, &p.Name, &p.Barcode, &p.UnitPrice, &p.PurchasePrice, &p.VATRate, &p.IsActive, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.BackendID = NewID(id)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) ThirdPartiesChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]ThirdPartyRecord, error) {
	query := `SELECT id, code, name, kind, tax_id, email, phone, address, is_active, updated_at FROM third_parties WHERE ` + deltaWindow + ` ORDER BY updated_at, id`
	rows, err := r.pool.Query(ctx, query, tenant, since, until, emptyable(exclude))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ThirdPartyRecord
	for rows.Next() {
		var tp ThirdPartyRecord
		var id int64
		var kind string
		if err := rows.Scan(&id, &tp.Code, &tp.Name, &kind, &tp.TaxID, &tp.Email, &tp.Phone, &tp.Address, &tp.IsActive, &tp.UpdatedAt); err != nil {
			return nil, err
		}
		tp.BackendID = NewID(id)
		tp.Kind = ThirdPartyKind(kind)
		out = append(out, tp)
	}
	return out, rows.Err()
}

func (r *repository) InvoicesChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]InvoiceRecord, error) {
	query := `SELECT id, branch_id, third_party_id, number, invoice_date, status, net_amount_excl_tax, vat_amount, total_amount_incl_tax, updated_at
		FROM invoices WHERE ` + deltaWindow + ` ORDER BY updated_at, id`
	rows, err := r.pool.Query(ctx, query, tenant, since, until, emptyable(exclude))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InvoiceRecord
	var ids []int64
	for rows.Next() {
		var inv InvoiceRecord
		var id, branchID, thirdPartyID int64
		if err := rows.Scan(&id, &branchID, &thirdPartyID, &inv.Number, &inv.InvoiceDate, &inv.Status,
			&inv.NetAmountExclTax, &inv.VATAmount, &inv.TotalAmountInclTax, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		inv.BackendID = NewID(id)
		inv.Branch = Ref{ID: NewID(branchID)}
		inv.ThirdParty = Ref{ID: NewID(thirdPartyID)}
		out = append(out, inv)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	lines, err := r.invoiceLines(ctx, tenant, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].BackendID.Int64()]
		if out[i].Lines == nil {
			out[i].Lines = []InvoiceLine{}
		}
	}
	return out, nil
}

func (r *repository) invoiceLines(ctx context.Context, tenant int64, invoiceIDs []int64) (map[int64][]InvoiceLine, error) {
	const query = `SELECT invoice_id, product_id, description, quantity, unit_price, vat_rate, net_amount_excl_tax, vat_amount, total_amount_incl_tax
		FROM invoice_lines WHERE company_id = $1 AND invoice_id = ANY($2) ORDER BY invoice_id, line_no`
	rows, err := r.pool.Query(ctx, query, tenant, invoiceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byInvoice := make(map[int64][]InvoiceLine)
	for rows.Next() {
		var invoiceID, productID int64
		var line InvoiceLine
		if err := rows.Scan(&invoiceID, &productID, &line.Description, &line.Quantity, &line.UnitPrice, &line.VATRate,
			&line.NetAmountExclTax, &line.VATAmount, &line.TotalAmountInclTax); err != nil {
			return nil, err
		}
		line.Product = Ref{ID: NewID(productID)}
		byInvoice[invoiceID] = append(byInvoice[invoiceID], line)
	}
	return byInvoice, rows.Err()
}

func (r *repository) EntriesChangedSince(ctx context.Context, tenant int64, since, until time.Time, exclude []int64) ([]EntryRecord, error) {
	query := `SELECT id, journal_code, entry_date, reference, description, updated_at
		FROM accounting_entries WHERE ` + deltaWindow + ` ORDER BY updated_at, id`
	rows, err := r.pool.Query(ctx, query, tenant, since, until, emptyable(exclude))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EntryRecord
	var ids []int64
	for rows.Next() {
		var e EntryRecord
		var id int64
		if err := rows.Scan(&id, &e.JournalCode, &e.EntryDate, &e.Reference, &e.Description, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.BackendID = NewID(id)
		out = append(out, e)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	lines, err := r.entryLines(ctx, tenant, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].BackendID.Int64()]
		if out[i].Lines == nil {
			out[i].Lines = []EntryLine{}
		}
	}
	return out, nil
}

func (r *repository) entryLines(ctx context.Context, tenant int64, entryIDs []int64) (map[int64][]EntryLine, error) {
	const query = `SELECT entry_id, account_code, label, debit, credit
		FROM accounting_entry_lines WHERE company_id = $1 AND entry_id = ANY($2) ORDER BY entry_id, line_no`
	rows, err := r.pool.Query(ctx, query, tenant, entryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byEntry := make(map[int64][]EntryLine)
	for rows.Next() {
		var entryID int64
		var line EntryLine
		if err := rows.Scan(&entryID, &line.AccountCode, &line.Label, &line.Debit, &line.Credit); err != nil {
			return nil, err
		}
		byEntry[entryID] = append(byEntry[entryID], line)
	}
	return byEntry, rows.Err()
}

// writeErr maps tenant-scoped unique violations to ErrDuplicateKey so
// the push layer can report them as record-level conflicts instead of
// opaque driver errors.
func writeErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, pgErr.ConstraintName)
	}
	return err
}

// emptyable keeps ANY($n) well-typed when the exclusion set is empty.
func emptyable(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
