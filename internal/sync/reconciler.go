package sync

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Each family has a reconciler applying the shared create-or-update
// rule: no backendId means INSERT scoped to the tenant, a backendId
// means UPDATE where id and tenant both match. An update touching zero
// rows is a hard error, never a silent no-op; the id either does not
// exist or belongs to another tenant, and both cases must abort the
// push.

func reconcileWrite(backendID *ID,
	insert func() (int64, error),
	update func(int64) (int64, error),
) (ID, error) {
	if backendID == nil {
		id, err := insert()
		if err != nil {
			return 0, err
		}
		return ID(id), nil
	}
	affected, err := update(backendID.Int64())
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrForeignTenant
	}
	return *backendID, nil
}

type branchReconciler struct{}

func (branchReconciler) validate(r BranchRecord) error {
	if strings.TrimSpace(r.Code) == "" {
		return invalidRecord(FamilyBranches, r.LocalID, "code", "required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return invalidRecord(FamilyBranches, r.LocalID, "name", "required")
	}
	return nil
}

func (rc branchReconciler) reconcile(ctx context.Context, tx TxRepository, tenant int64, r BranchRecord) (ID, error) {
	if err := rc.validate(r); err != nil {
		return 0, err
	}
	return reconcileWrite(r.BackendID,
		func() (int64, error) { return tx.InsertBranch(ctx, tenant, r) },
		func(id int64) (int64, error) { return tx.UpdateBranch(ctx, tenant, id, r) },
	)
}

type productReconciler struct{}

func (productReconciler) validate(r ProductRecord) error {
	if strings.TrimSpace(r.Code) == "" {
		return invalidRecord(FamilyProducts, r.LocalID, "code", "required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return invalidRecord(FamilyProducts, r.LocalID, "name", "required")
	}
	if r.UnitPrice.IsNegative() {
		return invalidRecord(FamilyProducts, r.LocalID, "unitPrice", "must not be negative")
	}
	if r.PurchasePrice.IsNegative() {
		return invalidRecord(FamilyProducts, r.LocalID, "purchasePrice", "must not be negative")
	}
	if r.VATRate.IsNegative() {
		return invalidRecord(FamilyProducts, r.LocalID, "vatRate", "must not be negative")
	}
	return nil
}

func (rc productReconciler) reconcile(ctx context.Context, tx TxRepository, tenant int64, r ProductRecord) (ID, error) {
	if err := rc.validate(r); err != nil {
		return 0, err
	}
	return reconcileWrite(r.BackendID,
		func() (int64, error) { return tx.InsertProduct(ctx, tenant, r) },
		func(id int64) (int64, error) { return tx.UpdateProduct(ctx, tenant, id, r) },
	)
}

type thirdPartyReconciler struct{}

func (thirdPartyReconciler) validate(r ThirdPartyRecord) error {
	if strings.TrimSpace(r.Code) == "" {
		return invalidRecord(FamilyThirdParties, r.LocalID, "code", "required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return invalidRecord(FamilyThirdParties, r.LocalID, "name", "required")
	}
	switch r.Kind {
	case ThirdPartyCustomer, ThirdPartySupplier:
	default:
		return invalidRecord(FamilyThirdParties, r.LocalID, "kind", "must be CUSTOMER or SUPPLIER")
	}
	return nil
}

func (rc thirdPartyReconciler) reconcile(ctx context.Context, tx TxRepository, tenant int64, r ThirdPartyRecord) (ID, error) {
	if err := rc.validate(r); err != nil {
		return 0, err
	}
	return reconcileWrite(r.BackendID,
		func() (int64, error) { return tx.InsertThirdParty(ctx, tenant, r) },
		func(id int64) (int64, error) { return tx.UpdateThirdParty(ctx, tenant, id, r) },
	)
}

type invoiceReconciler struct {
	corr *correlationResolver
}

func (rc invoiceReconciler) validate(r InvoiceRecord) error {
	if strings.TrimSpace(r.Number) == "" {
		return invalidRecord(FamilyInvoices, r.LocalID, "number", "required")
	}
	if r.InvoiceDate.IsZero() {
		return invalidRecord(FamilyInvoices, r.LocalID, "invoiceDate", "required")
	}
	if r.Branch.IsZero() {
		return invalidRecord(FamilyInvoices, r.LocalID, "branch", "required")
	}
	if r.ThirdParty.IsZero() {
		return invalidRecord(FamilyInvoices, r.LocalID, "thirdParty", "required")
	}
	if len(r.Lines) == 0 {
		return invalidRecord(FamilyInvoices, r.LocalID, "lines", "at least one line required")
	}
	for i, line := range r.Lines {
		if line.Product.IsZero() {
			return invalidRecord(FamilyInvoices, r.LocalID, lineField(i, "product"), "required")
		}
		if !line.Quantity.IsPositive() {
			return invalidRecord(FamilyInvoices, r.LocalID, lineField(i, "quantity"), "must be positive")
		}
		if line.UnitPrice.IsNegative() {
			return invalidRecord(FamilyInvoices, r.LocalID, lineField(i, "unitPrice"), "must not be negative")
		}
	}
	// VAT totals must reconcile to the unit; exact decimal compare.
	var net, vat decimal.Decimal
	for _, line := range r.Lines {
		net = net.Add(line.NetAmountExclTax)
		vat = vat.Add(line.VATAmount)
	}
	if !net.Equal(r.NetAmountExclTax) {
		return invalidRecord(FamilyInvoices, r.LocalID, "netAmountExclTax", "does not match sum of lines")
	}
	if !vat.Equal(r.VATAmount) {
		return invalidRecord(FamilyInvoices, r.LocalID, "vatAmount", "does not match sum of lines")
	}
	if !net.Add(vat).Equal(r.TotalAmountInclTax) {
		return invalidRecord(FamilyInvoices, r.LocalID, "totalAmountInclTax", "does not equal net plus vat")
	}
	return nil
}

func (rc invoiceReconciler) reconcile(ctx context.Context, tx TxRepository, tenant int64, r InvoiceRecord) (ID, error) {
	if err := rc.validate(r); err != nil {
		return 0, err
	}
	branchID, ok := rc.corr.resolve(FamilyBranches, r.Branch)
	if !ok {
		return 0, invalidRecord(FamilyInvoices, r.LocalID, "branch", "unresolvable reference")
	}
	thirdPartyID, ok := rc.corr.resolve(FamilyThirdParties, r.ThirdParty)
	if !ok {
		return 0, invalidRecord(FamilyInvoices, r.LocalID, "thirdParty", "unresolvable reference")
	}
	lines := make([]InvoiceLineRow, 0, len(r.Lines))
	for i, line := range r.Lines {
		productID, ok := rc.corr.resolve(FamilyProducts, line.Product)
		if !ok {
			return 0, invalidRecord(FamilyInvoices, r.LocalID, lineField(i, "product"), "unresolvable reference")
		}
		lines = append(lines, InvoiceLineRow{
			ProductID:          productID.Int64(),
			Description:        line.Description,
			Quantity:           line.Quantity,
			UnitPrice:          line.UnitPrice,
			VATRate:            line.VATRate,
			NetAmountExclTax:   line.NetAmountExclTax,
			VATAmount:          line.VATAmount,
			TotalAmountInclTax: line.TotalAmountInclTax,
		})
	}

	id, err := reconcileWrite(r.BackendID,
		func() (int64, error) {
			return tx.InsertInvoice(ctx, tenant, r, branchID.Int64(), thirdPartyID.Int64())
		},
		func(id int64) (int64, error) {
			return tx.UpdateInvoice(ctx, tenant, id, r, branchID.Int64(), thirdPartyID.Int64())
		},
	)
	if err != nil {
		return 0, err
	}
	if err := tx.ReplaceInvoiceLines(ctx, tenant, id.Int64(), lines); err != nil {
		return 0, err
	}
	return id, nil
}

type entryReconciler struct{}

func (entryReconciler) validate(r EntryRecord) error {
	if strings.TrimSpace(r.JournalCode) == "" {
		return invalidRecord(FamilyAccountingEntries, r.LocalID, "journalCode", "required")
	}
	if r.EntryDate.IsZero() {
		return invalidRecord(FamilyAccountingEntries, r.LocalID, "entryDate", "required")
	}
	if len(r.Lines) == 0 {
		return invalidRecord(FamilyAccountingEntries, r.LocalID, "lines", "at least one line required")
	}
	var debit, credit decimal.Decimal
	for i, line := range r.Lines {
		if strings.TrimSpace(line.AccountCode) == "" {
			return invalidRecord(FamilyAccountingEntries, r.LocalID, lineField(i, "accountCode"), "required")
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return invalidRecord(FamilyAccountingEntries, r.LocalID, lineField(i, "debit"), "amounts must not be negative")
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return invalidRecord(FamilyAccountingEntries, r.LocalID, "lines", "entry is not balanced")
	}
	return nil
}

func (rc entryReconciler) reconcile(ctx context.Context, tx TxRepository, tenant int64, r EntryRecord) (ID, error) {
	if err := rc.validate(r); err != nil {
		return 0, err
	}
	id, err := reconcileWrite(r.BackendID,
		func() (int64, error) { return tx.InsertEntry(ctx, tenant, r) },
		func(id int64) (int64, error) { return tx.UpdateEntry(ctx, tenant, id, r) },
	)
	if err != nil {
		return 0, err
	}
	if err := tx.ReplaceEntryLines(ctx, tenant, id.Int64(), r.Lines); err != nil {
		return 0, err
	}
	return id, nil
}

func lineField(i int, field string) string {
	return "lines[" + strconv.Itoa(i) + "]." + field
}
