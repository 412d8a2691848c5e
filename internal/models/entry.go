package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Kind identifies the type of field capture.
type Kind string

const (
	KindScan       Kind = "scan"
	KindInspection Kind = "inspection"
	KindMovement   Kind = "movement"
)

// SyncState tracks an entry's upload status. Only the synchronizer
// transitions it after creation.
type SyncState string

const (
	StatePending SyncState = "pending"
	StateSynced  SyncState = "synced"
	StateFailed  SyncState = "failed"
)

// Condition grades recorded by inspections.
const (
	ConditionGood     = "good"
	ConditionFair     = "fair"
	ConditionPoor     = "poor"
	ConditionCritical = "critical"
)

// Payload carries the kind-specific data of a capture.
type Payload struct {
	Location  string            `json:"location,omitempty"`
	Condition string            `json:"condition,omitempty" validate:"omitempty,oneof=good fair poor critical"`
	Notes     string            `json:"notes,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TrackingEntry is a unit of field-captured data awaiting sync.
type TrackingEntry struct {
	ID        string    `json:"id" validate:"required,uuid4"`
	Kind      Kind      `json:"kind" validate:"required,oneof=scan inspection movement"`
	SubjectID string    `json:"subject_id" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Payload   Payload   `json:"payload"`
	SyncState SyncState `json:"sync_state" validate:"required,oneof=pending synced failed"`
	SyncError string    `json:"sync_error,omitempty"`
}

var validate = validator.New()

// NewEntry creates a pending entry with a fresh ID and timestamp.
func NewEntry(kind Kind, subjectID string, payload Payload) *TrackingEntry {
	return &TrackingEntry{
		ID:        uuid.NewString(),
		Kind:      kind,
		SubjectID: subjectID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		SyncState: StatePending,
	}
}

// Validate checks structural and kind-specific rules. Entries that fail
// validation must never enter the sync queue.
func (e *TrackingEntry) Validate() error {
	if err := validate.Struct(e); err != nil {
		return &ValidationError{Reason: "invalid entry", Err: err}
	}

	switch e.Kind {
	case KindInspection:
		if e.Payload.Condition == "" {
			return &ValidationError{Field: "payload.condition", Reason: "inspection requires a condition grade"}
		}
	case KindMovement:
		if e.Payload.Location == "" {
			return &ValidationError{Field: "payload.location", Reason: "movement requires a destination location"}
		}
	}

	if e.Timestamp.After(time.Now().Add(time.Minute)) {
		return &ValidationError{Field: "timestamp", Reason: "timestamp is in the future"}
	}

	return nil
}

// MarkSynced records a confirmed multi-endpoint sync.
func (e *TrackingEntry) MarkSynced() {
	e.SyncState = StateSynced
	e.SyncError = ""
}

// MarkFailed records a terminal sync failure.
func (e *TrackingEntry) MarkFailed(reason string) {
	e.SyncState = StateFailed
	e.SyncError = reason
}

// Clone returns a deep copy of the entry.
func (e *TrackingEntry) Clone() *TrackingEntry {
	clone := *e
	if e.Payload.Metadata != nil {
		clone.Payload.Metadata = make(map[string]string, len(e.Payload.Metadata))
		for k, v := range e.Payload.Metadata {
			clone.Payload.Metadata[k] = v
		}
	}
	return &clone
}

// EncodeEntry serializes an entry for durable storage or upload.
func EncodeEntry(e *TrackingEntry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, &ValidationError{Reason: "encode entry", Err: err}
	}
	return data, nil
}

// DecodeEntry parses stored bytes back into an entry. Unknown fields and
// structural violations fail with ValidationError rather than being
// silently coerced.
func DecodeEntry(data []byte) (*TrackingEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var entry TrackingEntry
	if err := dec.Decode(&entry); err != nil {
		return nil, &ValidationError{Reason: "decode entry", Err: err}
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}

	return &entry, nil
}
