// Package report computes the dashboard aggregates the UI polls for.
// Aggregates are derived entirely from local state, so they are available
// offline, and memoized through the TTL cache so frequent polling does
// not rescan the store.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/railfield/tracksync/internal/cache"
	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/models"
	"github.com/railfield/tracksync/internal/queue"
)

// dashboardKey is the TTL cache slot for the full dashboard report.
const dashboardKey = "dashboard"

// conditionScores are the grading weights for inspection verdicts.
// Higher is worse.
var conditionScores = map[string]int{
	models.ConditionGood:     0,
	models.ConditionFair:     1,
	models.ConditionPoor:     2,
	models.ConditionCritical: 3,
}

// worstLimit bounds the worst-fittings list.
const worstLimit = 5

// Report is the computed dashboard snapshot.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`

	TotalEntries int            `json:"total_entries"`
	ByKind       map[string]int `json:"by_kind"`
	ByState      map[string]int `json:"by_state"`
	ByCondition  map[string]int `json:"by_condition"`

	Queue queue.Counts `json:"queue"`

	WorstFittings []FittingGrade `json:"worst_fittings"`
}

// FittingGrade is one subject's latest inspection verdict.
type FittingGrade struct {
	SubjectID   string    `json:"subject_id"`
	Condition   string    `json:"condition"`
	Score       int       `json:"score"`
	InspectedAt time.Time `json:"inspected_at"`
	Notes       string    `json:"notes,omitempty"`
}

// Service computes reports over the local entry set.
type Service struct {
	entries *cache.EntryCache
	queue   *queue.Queue
	ttl     *cache.TTLCache
	maxAge  time.Duration
	logger  *events.Logger
}

// NewService creates a report service. maxAge bounds how stale a cached
// dashboard may be.
func NewService(entries *cache.EntryCache, q *queue.Queue, ttl *cache.TTLCache, maxAge time.Duration, logger *events.Logger) *Service {
	return &Service{
		entries: entries,
		queue:   q,
		ttl:     ttl,
		maxAge:  maxAge,
		logger:  logger.WithField("service", "report"),
	}
}

// Dashboard returns the dashboard report, recomputing it at most once per
// TTL window. Concurrent callers during a recompute share one result.
func (s *Service) Dashboard(ctx context.Context) (*Report, error) {
	value, err := s.ttl.GetOrCompute(ctx, dashboardKey, s.maxAge, func(ctx context.Context) (interface{}, error) {
		return s.compute(), nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Report), nil
}

// compute scans all local entries and builds the aggregates.
func (s *Service) compute() *Report {
	start := time.Now()
	entries := s.entries.ListAll()

	report := &Report{
		GeneratedAt:  time.Now().UTC(),
		TotalEntries: len(entries),
		ByKind:       make(map[string]int),
		ByState:      make(map[string]int),
		ByCondition:  make(map[string]int),
		Queue:        s.queue.Summarize(),
	}

	// Latest inspection per subject determines its grade.
	latest := make(map[string]*models.TrackingEntry)
	for _, entry := range entries {
		report.ByKind[string(entry.Kind)]++
		report.ByState[string(entry.SyncState)]++

		if entry.Kind != models.KindInspection {
			continue
		}
		report.ByCondition[entry.Payload.Condition]++

		prev, ok := latest[entry.SubjectID]
		if !ok || entry.Timestamp.After(prev.Timestamp) {
			latest[entry.SubjectID] = entry
		}
	}

	grades := make([]FittingGrade, 0, len(latest))
	for _, entry := range latest {
		grades = append(grades, FittingGrade{
			SubjectID:   entry.SubjectID,
			Condition:   entry.Payload.Condition,
			Score:       conditionScores[entry.Payload.Condition],
			InspectedAt: entry.Timestamp,
			Notes:       entry.Payload.Notes,
		})
	}

	// Worst first; recency breaks score ties, subject ID keeps the order
	// deterministic.
	sort.Slice(grades, func(i, j int) bool {
		if grades[i].Score != grades[j].Score {
			return grades[i].Score > grades[j].Score
		}
		if !grades[i].InspectedAt.Equal(grades[j].InspectedAt) {
			return grades[i].InspectedAt.After(grades[j].InspectedAt)
		}
		return grades[i].SubjectID < grades[j].SubjectID
	})
	if len(grades) > worstLimit {
		grades = grades[:worstLimit]
	}
	report.WorstFittings = grades

	s.logger.WithFields(map[string]interface{}{
		"entries":  len(entries),
		"duration": time.Since(start).String(),
	}).Debug("Computed dashboard report")

	return report
}
