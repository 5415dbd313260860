package service

import (
	"context"
	"time"

	"github.com/xtrafr/chatvercel/pkg/logger"
)

// Sweeper периодически вызывает ChatService.Sweep
type Sweeper struct {
	chat     ChatService
	interval time.Duration
	log      logger.Logger
}

func NewSweeper(chat ChatService, interval time.Duration, log logger.Logger) *Sweeper {
	return &Sweeper{chat: chat, interval: interval, log: log}
}

// Run блокируется до отмены ctx
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("Liveness sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Liveness sweeper stopped")
			return
		case now := <-ticker.C:
			s.chat.Sweep(now)
		}
	}
}
