package service

import (
	"context"
	"time"

	"iot-telemetry/internal/domain"
	"iot-telemetry/internal/repository"
)

// DefaultRecentWindow is the number of readings returned by RecentWindow
const DefaultRecentWindow = 30

// QueryService serves the recent-window read path
type QueryService struct {
	repo   repository.ReadingRepository
	window int
	now    func() time.Time
}

// NewQueryService window <= 0 selects DefaultRecentWindow
func NewQueryService(repo repository.ReadingRepository, window int) *QueryService {
	if window <= 0 {
		window = DefaultRecentWindow
	}
	return &QueryService{repo: repo, window: window, now: time.Now}
}

// RecentWindow returns the configured window, oldest first, normalized
func (s *QueryService) RecentWindow(ctx context.Context) ([]domain.ReadingView, error) {
	return s.Recent(ctx, s.window)
}

// Recent returns at most limit normalized readings ordered by id ascending.
// Repository failures are returned as domain.ErrQuery.
func (s *QueryService) Recent(ctx context.Context, limit int) ([]domain.ReadingView, error) {
	readings, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, domain.QueryError("load recent readings", err)
	}

	now := s.now()
	views := make([]domain.ReadingView, 0, len(readings))
	for _, r := range readings {
		views = append(views, r.View(now))
	}
	return views, nil
}

// Count returns the number of stored readings
func (s *QueryService) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, domain.QueryError("count readings", err)
	}
	return n, nil
}

// Window returns the configured window size
func (s *QueryService) Window() int {
	return s.window
}
