package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/paid-chapter-feed/internal/crawler"
)

// ErrRunNotFound is returned when no run matches the lookup.
var ErrRunNotFound = crawler.ErrRunNotFound

const defaultRunHistory = 50

// RunStore keeps the most recent run summaries.
type RunStore struct {
	mu    sync.RWMutex
	limit int
	order []string
	runs  map[string]crawler.RunSummary
}

// NewRunStore constructs a RunStore that remembers up to limit runs.
func NewRunStore(limit int) *RunStore {
	if limit <= 0 {
		limit = defaultRunHistory
	}
	return &RunStore{
		limit: limit,
		runs:  make(map[string]crawler.RunSummary),
	}
}

// SaveRun inserts or updates a run. New runs evict the oldest beyond the limit.
func (s *RunStore) SaveRun(_ context.Context, run crawler.RunSummary) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
		if len(s.order) > s.limit {
			evicted := s.order[0]
			s.order = s.order[1:]
			delete(s.runs, evicted)
		}
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id string) (crawler.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return crawler.RunSummary{}, ErrRunNotFound
	}
	return copyRun(run), nil
}

// LatestRun returns the most recently started run.
func (s *RunStore) LatestRun(_ context.Context) (crawler.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return crawler.RunSummary{}, ErrRunNotFound
	}
	return copyRun(s.runs[s.order[len(s.order)-1]]), nil
}

func copyRun(run crawler.RunSummary) crawler.RunSummary {
	if run.FinishedAt != nil {
		finished := *run.FinishedAt
		run.FinishedAt = &finished
	}
	return run
}
