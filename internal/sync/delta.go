package sync

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// deltaExporter computes, per family, the rows changed for the tenant
// inside (since, until], excluding rows just written by the same call.
// Families are read in parallel; any failure discards the whole export
// so the watermark/data pairing stays consistent.
type deltaExporter struct {
	repo Repository
}

func (d *deltaExporter) export(ctx context.Context, tenant int64, since, until time.Time, corr *correlationResolver) (Batch, error) {
	var batch Batch
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := d.repo.BranchesChangedSince(ctx, tenant, since, until, exclusion(corr, FamilyBranches))
		batch.Branches = rows
		return err
	})
	g.Go(func() error {
		rows, err := d.repo.ProductsChangedSince(ctx, tenant, since, until, exclusion(corr, FamilyProducts))
		batch.Products = rows
		return err
	})
	g.Go(func() error {
		rows, err := d.repo.ThirdPartiesChangedSince(ctx, tenant, since, until, exclusion(corr, FamilyThirdParties))
		batch.ThirdParties = rows
		return err
	})
	g.Go(func() error {
		rows, err := d.repo.InvoicesChangedSince(ctx, tenant, since, until, exclusion(corr, FamilyInvoices))
		batch.Invoices = rows
		return err
	})
	g.Go(func() error {
		rows, err := d.repo.EntriesChangedSince(ctx, tenant, since, until, exclusion(corr, FamilyAccountingEntries))
		batch.AccountingEntries = rows
		return err
	})

	if err := g.Wait(); err != nil {
		return Batch{}, err
	}
	return batch, nil
}

func exclusion(corr *correlationResolver, family Family) []int64 {
	if corr == nil {
		return nil
	}
	written := corr.writtenIDs(family)
	out := make([]int64, 0, len(written))
	for _, id := range written {
		out = append(out, id.Int64())
	}
	return out
}
