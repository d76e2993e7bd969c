package sync

import (
	"time"

	"github.com/shopspring/decimal"
)

// Family identifies one of the synchronized entity families.
type Family string

const (
	FamilyBranches          Family = "branches"
	FamilyProducts          Family = "products"
	FamilyThirdParties      Family = "thirdParties"
	FamilyInvoices          Family = "invoices"
	FamilyAccountingEntries Family = "accountingEntries"
)

// Envelope is the sync request body. LastSyncTime stays a raw string
// until the service validates it into a watermark.
type Envelope struct {
	LastSyncTime string `json:"lastSyncTime" validate:"required"`
	CompanyID    int64  `json:"companyId" validate:"required,gt=0"`
	Data         Batch  `json:"data"`
}

// Batch groups client records per family. All sequences are optional.
type Batch struct {
	Branches          []BranchRecord     `json:"branches,omitempty"`
	Products          []ProductRecord    `json:"products,omitempty"`
	ThirdParties      []ThirdPartyRecord `json:"thirdParties,omitempty"`
	Invoices          []InvoiceRecord    `json:"invoices,omitempty"`
	AccountingEntries []EntryRecord      `json:"accountingEntries,omitempty"`
}

// Size returns the number of records in the batch, lines included.
func (b Batch) Size() int {
	n := len(b.Branches) + len(b.Products) + len(b.ThirdParties)
	for _, inv := range b.Invoices {
		n += 1 + len(inv.Lines)
	}
	for _, e := range b.AccountingEntries {
		n += 1 + len(e.Lines)
	}
	return n
}

// Result is the sync response body. ServerTime is the new watermark the
// client persists after applying Deltas. Mappings report the backend id
// assigned or confirmed for every record in the pushed batch.
type Result struct {
	ServerTime time.Time `json:"serverTime"`
	Deltas     Batch     `json:"deltas"`
	Mappings   Mappings  `json:"mappings"`
}

// IDMapping pairs a client-local identifier with its durable backend id.
type IDMapping struct {
	LocalID   string `json:"localId"`
	BackendID ID     `json:"backendId"`
}

// Mappings carries per-family id correlations back to the client.
type Mappings struct {
	Branches          []IDMapping `json:"branches,omitempty"`
	Products          []IDMapping `json:"products,omitempty"`
	ThirdParties      []IDMapping `json:"thirdParties,omitempty"`
	Invoices          []IDMapping `json:"invoices,omitempty"`
	AccountingEntries []IDMapping `json:"accountingEntries,omitempty"`
}

// BranchRecord is a point-of-sale branch.
type BranchRecord struct {
	LocalID   string    `json:"localId,omitempty"`
	BackendID *ID       `json:"backendId,omitempty"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   *string   `json:"address,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	IsActive  bool      `json:"isActive"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// ProductRecord is a sellable product.
type ProductRecord struct {
	LocalID       string          `json:"localId,omitempty"`
	BackendID     *ID             `json:"backendId,omitempty"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Barcode       *string         `json:"barcode,omitempty"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	VATRate       decimal.Decimal `json:"vatRate"`
	IsActive      bool            `json:"isActive"`
	UpdatedAt     time.Time       `json:"updatedAt,omitzero"`
}

// ThirdPartyKind distinguishes customers from suppliers.
type ThirdPartyKind string

const (
	ThirdPartyCustomer ThirdPartyKind = "CUSTOMER"
	ThirdPartySupplier ThirdPartyKind = "SUPPLIER"
)

// ThirdPartyRecord is a customer or supplier.
type ThirdPartyRecord struct {
	LocalID   string         `json:"localId,omitempty"`
	BackendID *ID            `json:"backendId,omitempty"`
	Code      string         `json:"code"`
	Name      string         `json:"name"`
	Kind      ThirdPartyKind `json:"kind"`
	TaxID     *string        `json:"taxId,omitempty"`
	Email     *string        `json:"email,omitempty"`
	Phone     *string        `json:"phone,omitempty"`
	Address   *string        `json:"address,omitempty"`
	IsActive  bool           `json:"isActive"`
	UpdatedAt time.Time      `json:"updatedAt,omitzero"`
}

// Ref points at a row in another family: either a durable backend id or
// the localId of a record created earlier in the same batch.
type Ref struct {
	ID      *ID     `json:"id,omitempty"`
	LocalID *string `json:"localId,omitempty"`
}

// IsZero reports whether the reference is empty.
func (r Ref) IsZero() bool {
	return r.ID == nil && (r.LocalID == nil || *r.LocalID == "")
}

// InvoiceRecord is an invoice with its embedded lines. Parent and lines
// are written as one unit.
type InvoiceRecord struct {
	LocalID            string          `json:"localId,omitempty"`
	BackendID          *ID             `json:"backendId,omitempty"`
	Number             string          `json:"number"`
	Branch             Ref             `json:"branch"`
	ThirdParty         Ref             `json:"thirdParty"`
	InvoiceDate        time.Time       `json:"invoiceDate"`
	Status             string          `json:"status"`
	NetAmountExclTax   decimal.Decimal `json:"netAmountExclTax"`
	VATAmount          decimal.Decimal `json:"vatAmount"`
	TotalAmountInclTax decimal.Decimal `json:"totalAmountInclTax"`
	Lines              []InvoiceLine   `json:"lines"`
	UpdatedAt          time.Time       `json:"updatedAt,omitzero"`
}

// InvoiceLine is one line of an invoice. Lines never carry a usable
// backend id across calls; they are fully replaced with their parent.
type InvoiceLine struct {
	Product            Ref             `json:"product"`
	Description        *string         `json:"description,omitempty"`
	Quantity           decimal.Decimal `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	VATRate            decimal.Decimal `json:"vatRate"`
	NetAmountExclTax   decimal.Decimal `json:"netAmountExclTax"`
	VATAmount          decimal.Decimal `json:"vatAmount"`
	TotalAmountInclTax decimal.Decimal `json:"totalAmountInclTax"`
}

// EntryRecord is an accounting entry with its embedded lines.
type EntryRecord struct {
	LocalID     string      `json:"localId,omitempty"`
	BackendID   *ID         `json:"backendId,omitempty"`
	JournalCode string      `json:"journalCode"`
	EntryDate   time.Time   `json:"entryDate"`
	Reference   string      `json:"reference"`
	Description *string     `json:"description,omitempty"`
	Lines       []EntryLine `json:"lines"`
	UpdatedAt   time.Time   `json:"updatedAt,omitzero"`
}

// EntryLine is one line of an accounting entry.
type EntryLine struct {
	AccountCode string          `json:"accountCode"`
	Label       *string         `json:"label,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}
