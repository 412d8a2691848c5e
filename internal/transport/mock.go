package transport

import (
	"context"
	"sync"
	"time"

	"github.com/railfield/tracksync/internal/models"
)

// MockEndpoint provides a scriptable endpoint for testing.
type MockEndpoint struct {
	mu sync.Mutex

	// Configuration
	EndpointName string
	IsRequired   bool

	// Scripted responses keyed by entry ID; the default applies when no
	// script matches.
	Scripts      map[string][]error
	DefaultError error
	ServerIDs    map[string]string
	PingError    error

	// Delay, when set, is applied before each upload resolves. Honors
	// context cancellation.
	Delay time.Duration

	// Request tracking
	Uploads []string
	Pings   int
}

// NewMockEndpoint creates a mock that succeeds by default.
func NewMockEndpoint(name string, required bool) *MockEndpoint {
	return &MockEndpoint{
		EndpointName: name,
		IsRequired:   required,
		Scripts:      make(map[string][]error),
		ServerIDs:    make(map[string]string),
	}
}

// Name identifies the endpoint.
func (m *MockEndpoint) Name() string { return m.EndpointName }

// Required reports the configured requirement.
func (m *MockEndpoint) Required() bool { return m.IsRequired }

// Script queues outcomes for an entry ID, consumed one per upload.
func (m *MockEndpoint) Script(entryID string, outcomes ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scripts[entryID] = append(m.Scripts[entryID], outcomes...)
}

// Upload consumes the next scripted outcome for the entry.
func (m *MockEndpoint) Upload(ctx context.Context, entry *models.TrackingEntry) (*UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &models.TransientNetworkError{Endpoint: m.EndpointName, Err: err}
	}

	m.mu.Lock()
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &models.TransientNetworkError{Endpoint: m.EndpointName, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Uploads = append(m.Uploads, entry.ID)

	if queued, ok := m.Scripts[entry.ID]; ok && len(queued) > 0 {
		next := queued[0]
		m.Scripts[entry.ID] = queued[1:]
		if next != nil {
			return nil, next
		}
	} else if m.DefaultError != nil {
		return nil, m.DefaultError
	}

	serverID := m.ServerIDs[entry.ID]
	if serverID == "" {
		serverID = "srv-" + entry.ID
	}
	return &UploadResult{ServerID: serverID}, nil
}

// Ping returns the configured reachability state.
func (m *MockEndpoint) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Pings++
	return m.PingError
}

// UploadCount reports how many uploads were attempted for an entry.
func (m *MockEndpoint) UploadCount(entryID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, id := range m.Uploads {
		if id == entryID {
			count++
		}
	}
	return count
}
