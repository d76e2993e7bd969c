package sync

import (
	"context"
	"errors"
)

// pushCoordinator runs every reconciler for one batch inside a single
// transaction, in the fixed family order. Any failure rolls the whole
// push back; the client resubmits the identical payload, which is safe
// because backendIds only become stable after a successful sync.
type pushCoordinator struct {
	repo Repository
}

// push applies the batch atomically and returns the correlation state
// for the response mappings and the delta exclusion set.
func (p *pushCoordinator) push(ctx context.Context, tenant int64, batch Batch) (*correlationResolver, error) {
	corr := newCorrelationResolver()
	err := p.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, r := range batch.Branches {
			id, err := branchReconciler{}.reconcile(ctx, tx, tenant, r)
			if err != nil {
				return wrapPushErr(FamilyBranches, r.LocalID, err)
			}
			corr.put(FamilyBranches, r.LocalID, id)
		}
		for _, r := range batch.Products {
			id, err := productReconciler{}.reconcile(ctx, tx, tenant, r)
			if err != nil {
				return wrapPushErr(FamilyProducts, r.LocalID, err)
			}
			corr.put(FamilyProducts, r.LocalID, id)
		}
		for _, r := range batch.ThirdParties {
			id, err := thirdPartyReconciler{}.reconcile(ctx, tx, tenant, r)
			if err != nil {
				return wrapPushErr(FamilyThirdParties, r.LocalID, err)
			}
			corr.put(FamilyThirdParties, r.LocalID, id)
		}
		for _, r := range batch.Invoices {
			id, err := invoiceReconciler{corr: corr}.reconcile(ctx, tx, tenant, r)
			if err != nil {
				return wrapPushErr(FamilyInvoices, r.LocalID, err)
			}
			corr.put(FamilyInvoices, r.LocalID, id)
		}
		for _, r := range batch.AccountingEntries {
			id, err := entryReconciler{}.reconcile(ctx, tx, tenant, r)
			if err != nil {
				return wrapPushErr(FamilyAccountingEntries, r.LocalID, err)
			}
			corr.put(FamilyAccountingEntries, r.LocalID, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return corr, nil
}

// wrapPushErr keeps InvalidRecordError intact and wraps everything else
// in a PushError carrying the failing record's coordinates.
func wrapPushErr(family Family, localID string, err error) error {
	var invalid *InvalidRecordError
	if errors.As(err, &invalid) {
		return err
	}
	return &PushError{Family: family, LocalID: localID, Cause: err}
}
