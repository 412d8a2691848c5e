package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/railfield/tracksync/internal/config"
	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/models"
)

// Token holds a portal bearer token.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Email     string    `json:"email"`
}

// IsExpired reports whether the token needs refreshing.
func (t *Token) IsExpired() bool {
	return t == nil || t.Token == "" || time.Now().After(t.ExpiresAt)
}

// Service handles portal authentication and supplies bearer headers to
// endpoint clients.
type Service struct {
	client    *http.Client
	baseURL   string
	tokenFile string
	logger    *events.Logger

	token *Token
}

const loginPath = "/api/v1/auth/login"

// NewService creates an auth service.
func NewService(cfg *config.AuthConfig, logger *events.Logger) *Service {
	s := &Service{
		client:    &http.Client{Timeout: 15 * time.Second},
		baseURL:   cfg.BaseURL,
		tokenFile: cfg.TokenFile,
		logger:    logger.WithField("service", "auth"),
	}

	if token, err := s.loadToken(); err == nil {
		s.token = token
	}

	return s
}

// Login authenticates with the portal and stores the token durably.
func (s *Service) Login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("email and password required")
	}

	s.logger.WithField("email", email).Info("Logging in")

	payload, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &models.TransientNetworkError{Endpoint: "auth", Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return &models.TransientNetworkError{
				Endpoint: "auth",
				Err:      fmt.Errorf("login returned %d", resp.StatusCode),
			}
		}
		return fmt.Errorf("%w: login returned %d: %s", models.ErrNotAuthenticated, resp.StatusCode, body)
	}

	var parsed struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Token == "" {
		return fmt.Errorf("invalid login response: missing token")
	}

	if parsed.ExpiresAt.IsZero() {
		parsed.ExpiresAt = time.Now().Add(24 * time.Hour)
	}

	s.token = &Token{
		Token:     parsed.Token,
		ExpiresAt: parsed.ExpiresAt,
		Email:     email,
	}

	if err := s.saveToken(); err != nil {
		s.logger.WithError(err).Warn("Failed to save token")
	}

	s.logger.Info("Login successful")
	return nil
}

// Logout clears the stored token.
func (s *Service) Logout() error {
	s.logger.Info("Logging out")
	s.token = nil

	if s.tokenFile != "" {
		if err := os.Remove(s.tokenFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove token file: %w", err)
		}
	}
	return nil
}

// EnsureAuthenticated verifies a usable token is present.
func (s *Service) EnsureAuthenticated(ctx context.Context) error {
	if s.token.IsExpired() {
		return models.ErrNotAuthenticated
	}
	return nil
}

// CurrentToken returns the active token, if any.
func (s *Service) CurrentToken() *Token {
	return s.token
}

// Headers implements transport.AuthProvider.
func (s *Service) Headers(ctx context.Context) (map[string]string, error) {
	if s.token.IsExpired() {
		return nil, models.ErrNotAuthenticated
	}

	return map[string]string{
		"Authorization": "Bearer " + s.token.Token,
	}, nil
}

// SetHTTPClient replaces the HTTP client. Test hook.
func (s *Service) SetHTTPClient(client *http.Client) {
	s.client = client
}

// SetBaseURL replaces the login base URL. Test hook.
func (s *Service) SetBaseURL(url string) {
	s.baseURL = url
}

func (s *Service) loadToken() (*Token, error) {
	if s.tokenFile == "" {
		return nil, os.ErrNotExist
	}

	data, err := os.ReadFile(s.tokenFile)
	if err != nil {
		return nil, err
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}

	return &token, nil
}

func (s *Service) saveToken() error {
	if s.tokenFile == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.tokenFile), 0700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}

	data, err := json.MarshalIndent(s.token, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	if err := os.WriteFile(s.tokenFile, data, 0600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}

	return nil
}
