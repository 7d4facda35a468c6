package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mesa-ayuda/helpdesk-service/internal/repository"
	apperrors "github.com/mesa-ayuda/helpdesk-service/pkg/util"
)

const (
	statsCacheKey = "helpdesk:ticket_stats"
	statsCacheTTL = 30 * time.Second
)

// StatsService serves dashboard counters, caching them briefly in Redis so
// board refreshes do not hammer the aggregate query.
type StatsService struct {
	tickets repository.TicketRepository
	cache   *redis.Client
	clock   Clock
	logger  *zap.Logger
}

// NewStatsService constructs the service. The cache client may be nil, in
// which case every call hits the database.
func NewStatsService(tickets repository.TicketRepository, cache *redis.Client, clock Clock, logger *zap.Logger) *StatsService {
	if clock == nil {
		clock = SystemClock()
	}
	return &StatsService{tickets: tickets, cache: cache, clock: clock, logger: logger}
}

// Snapshot returns the current ticket counters.
func (s *StatsService) Snapshot(ctx context.Context) (*repository.TicketStats, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, statsCacheKey).Bytes(); err == nil {
			var stats repository.TicketStats
			if err := json.Unmarshal(cached, &stats); err == nil {
				return &stats, nil
			}
			s.logger.Warn("discarding malformed stats cache entry")
		}
	}

	stats, err := s.tickets.Stats(ctx, s.clock.Now())
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, statsCacheKey, encoded, statsCacheTTL).Err(); err != nil {
				s.logger.Warn("unable to cache ticket stats", zap.Error(err))
			}
		}
	}
	return stats, nil
}

// Invalidate drops the cached counters, used after bulk mutations.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statsCacheKey).Err(); err != nil {
		s.logger.Warn("unable to invalidate stats cache", zap.Error(err))
	}
}
