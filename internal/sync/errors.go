package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantMismatch indicates the envelope tenant does not match the
	// authenticated session. Rejected before any write.
	ErrTenantMismatch = errors.New("envelope tenant does not match session")
	// ErrInvalidWatermark indicates a malformed or implausible lastSyncTime.
	ErrInvalidWatermark = errors.New("invalid last sync time")
	// ErrBatchTooLarge indicates the payload exceeds the configured cap.
	ErrBatchTooLarge = errors.New("batch exceeds size limit")
	// ErrForeignTenant indicates a backendId targeting a row outside the
	// caller's tenant, or a row that does not exist. The caller cannot
	// tell the two apart; both abort the push.
	ErrForeignTenant = errors.New("backend id not found for tenant")
	// ErrDuplicateKey indicates a tenant-scoped unique constraint hit,
	// such as two branches sharing a code or two invoices one number.
	ErrDuplicateKey = errors.New("duplicate key for tenant")
)

// InvalidRecordError reports a record failing shape or type validation.
// It aborts the entire push transaction.
type InvalidRecordError struct {
	Family  Family
	LocalID string
	Field   string
	Reason  string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("sync: invalid record %s/%s field %q: %s", e.Family, e.LocalID, e.Field, e.Reason)
}

func invalidRecord(family Family, localID, field, reason string) error {
	return &InvalidRecordError{Family: family, LocalID: localID, Field: field, Reason: reason}
}

// PushError wraps any write failure during the push phase. The whole
// transaction is rolled back; no partial success is ever reported.
type PushError struct {
	Family  Family
	LocalID string
	Cause   error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("sync: push failed at %s/%s: %v", e.Family, e.LocalID, e.Cause)
}

func (e *PushError) Unwrap() error {
	return e.Cause
}
