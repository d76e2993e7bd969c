package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBranchValidation(t *testing.T) {
	cases := []struct {
		name   string
		record BranchRecord
		field  string
	}{
		{"missing code", BranchRecord{LocalID: "b1", Name: "Main"}, "code"},
		{"blank name", BranchRecord{LocalID: "b1", Code: "B01", Name: "   "}, "name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := branchReconciler{}.validate(tc.record)
			var invalid *InvalidRecordError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tc.field, invalid.Field)
			assert.Equal(t, "b1", invalid.LocalID)
		})
	}
}

func TestProductValidation(t *testing.T) {
	err := productReconciler{}.validate(ProductRecord{
		LocalID:   "p1",
		Code:      "P01",
		Name:      "Sucre",
		UnitPrice: dec("-1.50"),
	})
	var invalid *InvalidRecordError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "unitPrice", invalid.Field)
}

func TestThirdPartyKindValidation(t *testing.T) {
	err := thirdPartyReconciler{}.validate(ThirdPartyRecord{
		LocalID: "c1",
		Code:    "C01",
		Name:    "Client",
		Kind:    "PROSPECT",
	})
	var invalid *InvalidRecordError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "kind", invalid.Field)
}

func TestInvoiceTotalsMustReconcile(t *testing.T) {
	rec := invoiceBatch("i1").Invoices[0]
	rec.VATAmount = dec("0.55") // off by one cent against the lines

	err := invoiceReconciler{}.validate(rec)
	var invalid *InvalidRecordError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "vatAmount", invalid.Field)
}

func TestInvoiceRequiresLines(t *testing.T) {
	rec := invoiceBatch("i1").Invoices[0]
	rec.Lines = nil

	err := invoiceReconciler{}.validate(rec)
	var invalid *InvalidRecordError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "lines", invalid.Field)
}

func TestInvoiceUnresolvableReference(t *testing.T) {
	repo := newMockRepository()
	corr := newCorrelationResolver()
	rec := invoiceBatch("i1").Invoices[0] // references b1/c1/p1, none resolved

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		_, err := invoiceReconciler{corr: corr}.reconcile(ctx, tx, 1, rec)
		return err
	})
	var invalid *InvalidRecordError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "branch", invalid.Field)
}

func TestEntryMustBalance(t *testing.T) {
	err := entryReconciler{}.validate(EntryRecord{
		LocalID:     "e1",
		JournalCode: "VE",
		EntryDate:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Lines: []EntryLine{
			{AccountCode: "701", Credit: dec("10.00")},
			{AccountCode: "411", Debit: dec("9.99")},
		},
	})
	var invalid *InvalidRecordError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "lines", invalid.Field)
}

func TestReconcileUpdateZeroRowsIsHardError(t *testing.T) {
	repo := newMockRepository()

	err := repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		_, err := branchReconciler{}.reconcile(ctx, tx, 1, BranchRecord{
			LocalID:   "b1",
			BackendID: NewID(9999),
			Code:      "B01",
			Name:      "Main",
		})
		return err
	})
	require.ErrorIs(t, err, ErrForeignTenant)
}

func TestReconcileCreateThenUpdate(t *testing.T) {
	repo := newMockRepository()
	ctx := context.Background()

	var id ID
	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = branchReconciler{}.reconcile(ctx, tx, 1, BranchRecord{LocalID: "b1", Code: "B01", Name: "Main"})
		return err
	}))
	require.NotZero(t, id)

	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		confirmed, err := branchReconciler{}.reconcile(ctx, tx, 1, BranchRecord{LocalID: "b1", BackendID: &id, Code: "B01", Name: "Magasin Central"})
		require.NoError(t, err)
		assert.Equal(t, id, confirmed)
		return nil
	}))
	assert.Equal(t, "Magasin Central", repo.branches[id.Int64()].rec.Name)
}
