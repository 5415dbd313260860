package service

import (
	"fmt"

	"github.com/xtrafr/chatvercel/internal/config"
	"github.com/xtrafr/chatvercel/internal/repository"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

type Services struct {
	Chat      ChatService
	Hub       *Hub
	Tokens    TokenService
	RateLimit RateLimitService
	Audit     AuditService
	Blobs     BlobStore
	Sweeper   *Sweeper
	Metrics   *Metrics
}

func NewServices(repos *repository.Repositories, cfg *config.Config, metrics *Metrics, log logger.Logger) (*Services, error) {
	hub := NewHub(cfg.Chat.PushBuffer, metrics, log.With("component", "hub"))
	audit := NewAuditService(repos.Audit, log)
	chat := NewChatService(repos, hub, audit, cfg.Chat, log.With("component", "chat"), WithMetrics(metrics))

	blobs, err := NewLocalBlobStore(cfg.Upload, log)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}

	services := &Services{
		Chat:      chat,
		Hub:       hub,
		Tokens:    NewTokenService(cfg.JWT),
		RateLimit: NewRateLimitService(repos.RateLimit, cfg.RateLimit, metrics, log),
		Audit:     audit,
		Blobs:     blobs,
		Sweeper:   NewSweeper(chat, cfg.Chat.SweepInterval, log),
		Metrics:   metrics,
	}

	log.Info("Services initialized", "ban_policy", cfg.Chat.BanPolicy, "history_limit", cfg.Chat.HistoryLimit)
	return services, nil
}
