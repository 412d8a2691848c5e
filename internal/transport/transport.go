package transport

import (
	"context"

	"github.com/railfield/tracksync/internal/models"
)

// Endpoint is one remote upload target. The synchronizer treats all
// endpoints symmetrically and independently.
type Endpoint interface {
	// Name identifies the endpoint in queue bookkeeping and logs.
	Name() string

	// Required reports whether this endpoint's acknowledgment is
	// mandatory before an entry counts as synced.
	Required() bool

	// Upload sends one entry. Errors are either TransientNetworkError
	// (retry) or RemoteRejection (terminal).
	Upload(ctx context.Context, entry *models.TrackingEntry) (*UploadResult, error)

	// Ping is a lightweight reachability check for the network probe.
	Ping(ctx context.Context) error
}

// UploadResult is a successful upload acknowledgment.
type UploadResult struct {
	ServerID string `json:"server_id,omitempty"`
}

// AuthProvider supplies request headers for endpoint calls. The auth
// service implements it; tests use a static stub.
type AuthProvider interface {
	Headers(ctx context.Context) (map[string]string, error)
}

// StaticAuth is an AuthProvider with fixed headers.
type StaticAuth map[string]string

// Headers returns the fixed header set.
func (a StaticAuth) Headers(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out, nil
}
