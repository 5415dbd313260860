package service

import (
	"context"

	"github.com/xtrafr/chatvercel/internal/config"
	"github.com/xtrafr/chatvercel/internal/repository"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

type RateLimitService interface {
	Allow(ctx context.Context, key string) (bool, int, error)
	Limit() int
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	cfg           config.RateLimitConfig
	metrics       *Metrics
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, cfg config.RateLimitConfig, metrics *Metrics, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		cfg:           cfg,
		metrics:       metrics,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, key string) (bool, int, error) {
	allowed, remaining, err := s.rateLimitRepo.Allow(ctx, key, s.cfg.Requests, s.cfg.Window)
	if err != nil {
		return false, 0, err
	}
	if !allowed {
		s.metrics.RateLimited()
		s.log.Debug("Rate limit exceeded", "key", key)
	}
	return allowed, remaining, nil
}

func (s *rateLimitService) Limit() int {
	return s.cfg.Requests
}
