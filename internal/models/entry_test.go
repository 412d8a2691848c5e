package models_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railfield/tracksync/internal/models"
)

func TestNewEntry(t *testing.T) {
	entry := models.NewEntry(models.KindScan, "FIT-0042", models.Payload{
		Location: "km 12+340",
	})

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, models.KindScan, entry.Kind)
	assert.Equal(t, "FIT-0042", entry.SubjectID)
	assert.Equal(t, models.StatePending, entry.SyncState)
	assert.WithinDuration(t, time.Now().UTC(), entry.Timestamp, 5*time.Second)

	require.NoError(t, entry.Validate())
}

func TestEntryValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.TrackingEntry)
		wantErr bool
	}{
		{
			name:   "valid scan",
			mutate: func(e *models.TrackingEntry) {},
		},
		{
			name:    "missing subject",
			mutate:  func(e *models.TrackingEntry) { e.SubjectID = "" },
			wantErr: true,
		},
		{
			name:    "unknown kind",
			mutate:  func(e *models.TrackingEntry) { e.Kind = "photo" },
			wantErr: true,
		},
		{
			name:    "invalid sync state",
			mutate:  func(e *models.TrackingEntry) { e.SyncState = "uploading" },
			wantErr: true,
		},
		{
			name:    "non-uuid id",
			mutate:  func(e *models.TrackingEntry) { e.ID = "entry-1" },
			wantErr: true,
		},
		{
			name:    "future timestamp",
			mutate:  func(e *models.TrackingEntry) { e.Timestamp = time.Now().Add(time.Hour) },
			wantErr: true,
		},
		{
			name:    "bad condition grade",
			mutate:  func(e *models.TrackingEntry) { e.Payload.Condition = "excellent" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := models.NewEntry(models.KindScan, "FIT-0001", models.Payload{})
			tt.mutate(entry)

			err := entry.Validate()
			if tt.wantErr {
				var verr *models.ValidationError
				require.Error(t, err)
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKindSpecificValidation(t *testing.T) {
	t.Run("inspection requires condition", func(t *testing.T) {
		entry := models.NewEntry(models.KindInspection, "FIT-7", models.Payload{Notes: "loose clip"})
		err := entry.Validate()
		require.Error(t, err)

		entry.Payload.Condition = models.ConditionPoor
		assert.NoError(t, entry.Validate())
	})

	t.Run("movement requires location", func(t *testing.T) {
		entry := models.NewEntry(models.KindMovement, "FIT-7", models.Payload{})
		err := entry.Validate()
		require.Error(t, err)

		entry.Payload.Location = "depot B"
		assert.NoError(t, entry.Validate())
	})
}

func TestEntryRoundTrip(t *testing.T) {
	entry := models.NewEntry(models.KindInspection, "FIT-0042", models.Payload{
		Location:  "km 3+120",
		Condition: models.ConditionFair,
		Notes:     "surface rust on base plate",
		Metadata:  map[string]string{"inspector": "m.kovacs"},
	})

	data, err := models.EncodeEntry(entry)
	require.NoError(t, err)

	decoded, err := models.DecodeEntry(data)
	require.NoError(t, err)

	assert.Equal(t, entry.ID, decoded.ID)
	assert.Equal(t, entry.Payload, decoded.Payload)
	assert.True(t, entry.Timestamp.Equal(decoded.Timestamp))
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := models.DecodeEntry([]byte(`{"id":"x","kind":"scan","rogue":true}`))
	require.Error(t, err)

	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestClone(t *testing.T) {
	entry := models.NewEntry(models.KindScan, "FIT-1", models.Payload{
		Metadata: map[string]string{"a": "1"},
	})

	clone := entry.Clone()
	clone.Payload.Metadata["a"] = "2"
	clone.MarkFailed("boom")

	assert.Equal(t, "1", entry.Payload.Metadata["a"])
	assert.Equal(t, models.StatePending, entry.SyncState)
	assert.Equal(t, models.StateFailed, clone.SyncState)
	assert.Equal(t, "boom", clone.SyncError)
}

func TestErrorClassification(t *testing.T) {
	transient := &models.TransientNetworkError{Endpoint: "portal-a", Err: errors.New("timeout")}
	rejection := &models.RemoteRejection{Endpoint: "portal-b", StatusCode: 422, Message: "bad payload"}
	fault := &models.StorageFault{Op: "set", Key: "entry/1", Err: errors.New("disk full")}

	assert.True(t, models.IsTransient(transient))
	assert.False(t, models.IsTransient(rejection))

	assert.True(t, models.IsRejection(rejection))
	assert.False(t, models.IsRejection(transient))

	assert.True(t, models.IsStorageFault(fault))

	// Wrapped errors still classify.
	wrapped := fmt.Errorf("cycle 3: %w", transient)
	assert.True(t, models.IsTransient(wrapped))
}
