package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/xtrafr/chatvercel/internal/config"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

type Repositories struct {
	Identity   IdentityRepository
	MessageLog MessageLogRepository
	ReplyIndex ReplyIndexRepository
	Typing     TypingRepository
	Ban        BanRepository
	Audit      AuditRepository
	RateLimit  RateLimitRepository
}

// NewRepositories собирает хранилища. db и redis могут быть nil: тогда аудит
// пишется в лог, а rate limit считается в памяти процесса.
func NewRepositories(cfg config.ChatConfig, db *pgxpool.Pool, redis *redis.Client, log logger.Logger) *Repositories {
	repos := &Repositories{
		Identity:   NewIdentityRepository(log),
		MessageLog: NewMessageLogRepository(cfg.HistoryLimit, log),
		ReplyIndex: NewReplyIndexRepository(),
		Typing:     NewTypingRepository(),
		Ban:        NewBanRepository(),
	}

	if db != nil {
		repos.Audit = NewAuditRepository(db, log)
		log.Info("Audit repository initialized", "backend", "postgres")
	} else {
		repos.Audit = NewLogAuditRepository(log)
		log.Warn("Audit repository falls back to log output")
	}

	if redis != nil {
		repos.RateLimit = NewRateLimitRepository(redis, log)
		log.Info("RateLimit repository initialized", "backend", "redis")
	} else {
		repos.RateLimit = NewMemoryRateLimitRepository()
		log.Info("RateLimit repository initialized", "backend", "memory")
	}

	return repos
}
