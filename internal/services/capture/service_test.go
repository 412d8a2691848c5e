package capture

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railfield/tracksync/internal/cache"
	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/kvstore"
	"github.com/railfield/tracksync/internal/models"
	"github.com/railfield/tracksync/internal/qr"
	"github.com/railfield/tracksync/internal/queue"
)

func testLogger(t *testing.T) *events.Logger {
	t.Helper()
	return events.NewTestLogger(events.ErrorLevel, "json", &bytes.Buffer{})
}

func newTestService(t *testing.T) (*Service, *kvstore.MemoryStore) {
	t.Helper()

	store := kvstore.NewMemoryStore()
	logger := testLogger(t)
	entries := cache.NewEntryCache(store, logger)
	q := queue.New(store, []string{"inventory"}, logger)

	return NewService(entries, q, cache.NewTTLCache(logger), logger), store
}

func TestCaptureScan(t *testing.T) {
	service, _ := newTestService(t)

	payload := qr.Encode(&qr.Tag{
		SubjectID:   uuid.NewString(),
		FittingType: "CLIP",
		Zone:        "ZN-04",
		Version:     1,
	})

	entry, err := service.CaptureScan(context.Background(), payload, "depot-7")
	require.NoError(t, err)

	assert.Equal(t, models.KindScan, entry.Kind)
	assert.Equal(t, models.StatePending, entry.SyncState)
	assert.Equal(t, "depot-7", entry.Payload.Location)
	assert.Equal(t, "CLIP", entry.Payload.Metadata["fitting_type"])
	assert.NotEmpty(t, entry.ID)
	assert.WithinDuration(t, time.Now(), entry.Timestamp, time.Second)

	// Entry is retrievable and queued.
	got, err := service.Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.SubjectID, got.SubjectID)
	assert.Equal(t, 1, service.Pending())
}

func TestCaptureScanRejectsBadPayload(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.CaptureScan(context.Background(), "not-a-tag", "depot-7")
	require.Error(t, err)
	assert.ErrorIs(t, err, qr.ErrInvalidFormat)
	assert.Equal(t, 0, service.Pending())
}

func TestCaptureInspection(t *testing.T) {
	service, _ := newTestService(t)

	entry, err := service.CaptureInspection(context.Background(), uuid.NewString(), models.ConditionPoor, "rust on base plate")
	require.NoError(t, err)

	assert.Equal(t, models.KindInspection, entry.Kind)
	assert.Equal(t, models.ConditionPoor, entry.Payload.Condition)
	assert.Equal(t, 1, service.Pending())
}

func TestCaptureInspectionRequiresCondition(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.CaptureInspection(context.Background(), uuid.NewString(), "", "looks fine")
	require.Error(t, err)

	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, service.Pending())
}

func TestCaptureMovement(t *testing.T) {
	service, _ := newTestService(t)

	entry, err := service.CaptureMovement(context.Background(), uuid.NewString(), "siding-12", "")
	require.NoError(t, err)

	assert.Equal(t, models.KindMovement, entry.Kind)
	assert.Equal(t, "siding-12", entry.Payload.Location)
}

func TestCaptureMovementRequiresLocation(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.CaptureMovement(context.Background(), uuid.NewString(), "", "")
	require.Error(t, err)
	assert.Equal(t, 0, service.Pending())
}

func TestCaptureSurvivesStorageFault(t *testing.T) {
	service, store := newTestService(t)
	store.SetError = assert.AnError

	entry, err := service.CaptureMovement(context.Background(), uuid.NewString(), "siding-12", "")
	require.NoError(t, err)

	// Capture degrades to memory-only rather than failing.
	got, getErr := service.Get(entry.ID)
	require.NoError(t, getErr)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, 1, service.Pending())
}

func TestDiscard(t *testing.T) {
	service, _ := newTestService(t)

	entry, err := service.CaptureMovement(context.Background(), uuid.NewString(), "siding-12", "")
	require.NoError(t, err)

	require.NoError(t, service.Discard(entry.ID))

	_, err = service.Get(entry.ID)
	assert.ErrorIs(t, err, models.ErrEntryNotFound)
	assert.Equal(t, 0, service.Pending())
}

func TestDiscardUnknownEntry(t *testing.T) {
	service, _ := newTestService(t)

	err := service.Discard(uuid.NewString())
	assert.ErrorIs(t, err, models.ErrEntryNotFound)
}

func TestClearAll(t *testing.T) {
	service, _ := newTestService(t)

	for i := 0; i < 3; i++ {
		_, err := service.CaptureMovement(context.Background(), uuid.NewString(), "siding-12", "")
		require.NoError(t, err)
	}
	require.Equal(t, 3, service.Pending())

	require.NoError(t, service.ClearAll())
	assert.Equal(t, 0, service.Pending())
	assert.Empty(t, service.List())
}

func TestListOrdering(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.CaptureMovement(context.Background(), uuid.NewString(), "siding-1", "")
	require.NoError(t, err)
	_, err = service.CaptureMovement(context.Background(), uuid.NewString(), "siding-2", "")
	require.NoError(t, err)

	listed := service.List()
	require.Len(t, listed, 2)
}
