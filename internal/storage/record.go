package storage

import (
	"context"
	"time"

	"github.com/adverant/nexus/sirim-worker/internal/errors"
	"github.com/adverant/nexus/sirim-worker/internal/processor"
	"github.com/google/uuid"
)

// SyncState tracks whether the remote store holds the record's current version
type SyncState string

const (
	SyncStateUnsynced SyncState = "unsynced"
	SyncStateSynced   SyncState = "synced"
)

// ValidationStatus is "validated" only when the fields passed every rule
type ValidationStatus string

const (
	ValidationPending   ValidationStatus = "pending"
	ValidationValidated ValidationStatus = "validated"
)

// Record is the durable form of a captured label
type Record struct {
	ID string `json:"id"`
	processor.FieldSet
	ImageRef         *string          `json:"imageRef,omitempty"`
	Confidence       float64          `json:"confidenceScore"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	SyncState        SyncState        `json:"syncState"`
	SyncTimestamp    *time.Time       `json:"syncTimestamp,omitempty"`
	OwnerID          string           `json:"ownerId,omitempty"`
	ValidationStatus ValidationStatus `json:"validationStatus"`
}

// NewRecord builds an unsynced record with a fresh id
func NewRecord(ownerID string, fields processor.FieldSet, confidence float64, validation processor.ValidationOutcome, imageRef *string, now time.Time) Record {
	return Record{
		ID:               uuid.New().String(),
		FieldSet:         fields,
		ImageRef:         imageRef,
		Confidence:       confidence,
		CreatedAt:        now,
		UpdatedAt:        now,
		SyncState:        SyncStateUnsynced,
		OwnerID:          ownerID,
		ValidationStatus: StatusFor(validation),
	}
}

// StatusFor maps a validation outcome to the record's status
func StatusFor(validation processor.ValidationOutcome) ValidationStatus {
	if validation.IsValid {
		return ValidationValidated
	}
	return ValidationPending
}

// Validate checks the record's structural invariants
func (r Record) Validate() error {
	if r.ID == "" {
		return errors.NewInvalidRecordError("", "record id is required")
	}
	if r.CreatedAt.IsZero() || r.UpdatedAt.IsZero() {
		return errors.NewInvalidRecordError(r.ID, "timestamps are required")
	}
	if r.UpdatedAt.Before(r.CreatedAt) {
		return errors.NewInvalidRecordError(r.ID, "updated time precedes creation time")
	}
	switch r.SyncState {
	case SyncStateUnsynced, SyncStateSynced:
	default:
		return errors.NewInvalidRecordError(r.ID, "unknown sync state")
	}
	return nil
}

// RecordStore is local durable storage of records. Every write is atomic
// per record.
type RecordStore interface {
	// Insert stores rec, replacing any record with the same id
	Insert(ctx context.Context, rec Record) error
	// Update replaces an existing record; errors.ErrRecordNotFound otherwise
	Update(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
	// ListByOwner returns the owner's records, newest first
	ListByOwner(ctx context.Context, ownerID string) ([]Record, error)
	ListUnsynced(ctx context.Context) ([]Record, error)
	// MarkSynced flips a record to synced if its stored UpdatedAt still
	// equals version. It reports whether the record was marked.
	MarkSynced(ctx context.Context, id string, version time.Time, at time.Time) (bool, error)
	// ReplaceIfVersion writes rec only while the stored copy's UpdatedAt
	// equals *expected, or, with a nil expected, only while no record with
	// rec.ID exists. It reports whether rec was written.
	ReplaceIfVersion(ctx context.Context, expected *time.Time, rec Record) (bool, error)
}
