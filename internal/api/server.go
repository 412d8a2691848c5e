// Package api serves local state to the presentation layer. It only
// serializes what the services already know; no sync or capture logic
// lives here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/models"
	"github.com/railfield/tracksync/internal/probe"
	"github.com/railfield/tracksync/internal/queue"
	"github.com/railfield/tracksync/internal/report"
	"github.com/railfield/tracksync/internal/services/capture"
	syncsvc "github.com/railfield/tracksync/internal/services/sync"
)

// Server is the local status HTTP server.
type Server struct {
	capture *capture.Service
	sync    *syncsvc.Service
	report  *report.Service
	queue   *queue.Queue
	probe   *probe.Probe
	logger  *events.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer creates the status API server.
func NewServer(
	listen string,
	captureService *capture.Service,
	syncService *syncsvc.Service,
	reportService *report.Service,
	q *queue.Queue,
	netProbe *probe.Probe,
	logger *events.Logger,
) *Server {
	s := &Server{
		capture: captureService,
		sync:    syncService,
		report:  reportService,
		queue:   q,
		probe:   netProbe,
		logger:  logger.WithField("component", "api"),
		upgrader: websocket.Upgrader{
			// Local UI only; the listener binds loopback.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // websocket streams stay open
	}

	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/v1/dashboard", s.handleDashboard).Methods("GET")
	r.HandleFunc("/api/v1/entries", s.handleListEntries).Methods("GET")
	r.HandleFunc("/api/v1/entries", s.handleClearEntries).Methods("DELETE")
	r.HandleFunc("/api/v1/entries/{id}", s.handleGetEntry).Methods("GET")
	r.HandleFunc("/api/v1/entries/{id}", s.handleDiscardEntry).Methods("DELETE")
	r.HandleFunc("/api/v1/sync", s.handleTriggerSync).Methods("POST")
	r.HandleFunc("/api/v1/events", s.handleEvents).Methods("GET")

	return r
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.logger.WithField("listen", s.httpServer.Addr).Info("Status API listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Online  bool              `json:"online"`
	Syncing bool              `json:"syncing"`
	Queue   queue.Counts      `json:"queue"`
	Cycle   *syncsvc.Progress `json:"cycle,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	engine := s.sync.Engine()
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Online:  s.probe.Online(),
		Syncing: engine.Syncing(),
		Queue:   s.queue.Summarize(),
		Cycle:   engine.GetProgress(),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.report.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dashboard)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries := s.capture.List()

	if state := r.URL.Query().Get("state"); state != "" {
		filtered := entries[:0]
		for _, entry := range entries {
			if string(entry.SyncState) == state {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.capture.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, s.statusFor(err), err)
		return
	}

	// Queue bookkeeping beside the entry, when still queued.
	item, _ := s.queue.Get(entry.ID)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entry": entry,
		"queue": item,
	})
}

func (s *Server) handleDiscardEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.capture.Discard(mux.Vars(r)["id"]); err != nil {
		s.writeError(w, s.statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

func (s *Server) handleClearEntries(w http.ResponseWriter, r *http.Request) {
	if err := s.capture.ClearAll(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if !s.probe.Online() {
		s.writeError(w, http.StatusConflict, models.ErrOffline)
		return
	}

	s.sync.TriggerSync()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync requested"})
}

// eventMessage is the websocket wire form of a synchronizer event.
type eventMessage struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	EntryID   string            `json:"entry_id,omitempty"`
	Error     string            `json:"error,omitempty"`
	Progress  *syncsvc.Progress `json:"progress,omitempty"`
}

// handleEvents streams synchronizer events over a websocket.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.sync.Subscribe()
	logger := s.logger.WithField("remote", r.RemoteAddr)
	logger.Debug("Event stream connected")

	// Drain client frames so close handshakes are noticed.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-disconnected:
			logger.Debug("Event stream disconnected")
			return

		case event := <-sub:
			msg := eventMessage{
				Type:      string(event.Type),
				Timestamp: event.Timestamp,
				EntryID:   event.EntryID,
				Progress:  event.Progress,
			}
			if event.Error != nil {
				msg.Error = event.Error.Error()
			}

			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				logger.WithError(err).Debug("Event stream write failed")
				return
			}
		}
	}
}

func (s *Server) statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrEntryNotFound):
		return http.StatusNotFound
	case models.IsStorageFault(err):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Warn("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
