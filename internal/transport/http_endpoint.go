package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/railfield/tracksync/internal/config"
	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/models"
)

// HTTPEndpoint uploads entries to one portal over HTTPS.
type HTTPEndpoint struct {
	client    *http.Client
	name      string
	baseURL   string
	required  bool
	userAgent string
	auth      AuthProvider
	logger    *events.Logger

	// Retry configuration
	maxRetries int
	retryBase  time.Duration
	retryCap   time.Duration
}

const (
	uploadPath = "/api/v1/entries"
	healthPath = "/api/v1/health"
)

// NewHTTPEndpoint creates an endpoint client from config.
func NewHTTPEndpoint(cfg *config.EndpointConfig, retry config.SyncConfig, auth AuthProvider, logger *events.Logger) *HTTPEndpoint {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPEndpoint{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		required:   cfg.Required,
		userAgent:  cfg.UserAgent,
		auth:       auth,
		maxRetries: cfg.MaxRetries,
		retryBase:  retry.RetryBase,
		retryCap:   retry.RetryCap,
		logger:     logger.WithField("endpoint", cfg.Name),
	}
}

// Name identifies the endpoint.
func (e *HTTPEndpoint) Name() string { return e.name }

// Required reports whether acknowledgment is mandatory.
func (e *HTTPEndpoint) Required() bool { return e.required }

// Upload sends one entry as JSON. Transient failures are retried with
// exponential backoff; a 4xx response is a terminal RemoteRejection.
func (e *HTTPEndpoint) Upload(ctx context.Context, entry *models.TrackingEntry) (*UploadResult, error) {
	body, err := models.EncodeEntry(entry)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(map[string]interface{}{
		"entry_id": entry.ID,
		"kind":     entry.Kind,
		"size":     len(body),
	}).Debug("Uploading entry")

	var result *UploadResult
	err = e.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+uploadPath, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if e.userAgent != "" {
			req.Header.Set("User-Agent", e.userAgent)
		}
		if e.auth != nil {
			headers, err := e.auth.Headers(ctx)
			if err != nil {
				return &models.TransientNetworkError{Endpoint: e.name, Err: fmt.Errorf("auth headers: %w", err)}
			}
			for k, v := range headers {
				req.Header.Set(k, v)
			}
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return &models.TransientNetworkError{Endpoint: e.name, Err: err}
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			var ack UploadResult
			if len(respBody) > 0 {
				// Acks without a body are still successes.
				_ = json.Unmarshal(respBody, &ack)
			}
			result = &ack
			return nil

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &models.TransientNetworkError{
				Endpoint: e.name,
				Err:      fmt.Errorf("server error %d: %s", resp.StatusCode, respBody),
			}

		default:
			return &models.RemoteRejection{
				Endpoint:   e.name,
				StatusCode: resp.StatusCode,
				Message:    string(respBody),
			}
		}
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(map[string]interface{}{
		"entry_id":  entry.ID,
		"server_id": result.ServerID,
	}).Debug("Upload acknowledged")

	return result, nil
}

// Ping checks reachability with a cheap GET.
func (e *HTTPEndpoint) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return &models.TransientNetworkError{Endpoint: e.name, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return &models.TransientNetworkError{
			Endpoint: e.name,
			Err:      fmt.Errorf("health check returned %d", resp.StatusCode),
		}
	}

	return nil
}

// retry executes fn with exponential backoff and jitter. Only transient
// errors are retried; rejections surface immediately.
func (e *HTTPEndpoint) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := e.retryBase

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			jittered := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
			e.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   jittered,
			}).Debug("Retrying upload")

			select {
			case <-time.After(jittered):
			case <-ctx.Done():
				return &models.TransientNetworkError{Endpoint: e.name, Err: ctx.Err()}
			}

			delay *= 2
			if delay > e.retryCap {
				delay = e.retryCap
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if !models.IsTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}

	return lastErr
}
