package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

type AuditRepository interface {
	CreateLog(ctx context.Context, log *domain.AuditLog) error
}

const auditSchema = `
	CREATE TABLE IF NOT EXISTS chat_audit_log (
		id               BIGSERIAL PRIMARY KEY,
		event_time       TIMESTAMPTZ NOT NULL,
		actor_session_id UUID NOT NULL,
		actor_name       TEXT NOT NULL,
		event_type       TEXT NOT NULL,
		target           TEXT NOT NULL DEFAULT '',
		payload          JSONB NOT NULL DEFAULT '{}'::jsonb
	)
`

type auditRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewAuditRepository(db *pgxpool.Pool, log logger.Logger) AuditRepository {
	return &auditRepository{db: db, log: log}
}

// EnsureAuditSchema создает таблицу журнала модерации, если ее нет
func EnsureAuditSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, auditSchema); err != nil {
		return fmt.Errorf("create chat_audit_log: %w", err)
	}
	return nil
}

func (r *auditRepository) CreateLog(ctx context.Context, auditLog *domain.AuditLog) error {
	query := `
		INSERT INTO chat_audit_log (event_time, actor_session_id, actor_name, event_type, target, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	payload, err := json.Marshal(auditLog.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	err = r.db.QueryRow(ctx, query,
		auditLog.EventTime, auditLog.ActorSessionID, auditLog.ActorName,
		auditLog.EventType, auditLog.Target, payload,
	).Scan(&auditLog.ID)

	if err != nil {
		r.log.Error("Failed to create audit log", "error", err)
		return err
	}

	return nil
}

type logAuditRepository struct {
	seq atomic.Int64
	log logger.Logger
}

// NewLogAuditRepository пишет журнал модерации только в лог, когда Postgres не настроен
func NewLogAuditRepository(log logger.Logger) AuditRepository {
	return &logAuditRepository{log: log}
}

func (r *logAuditRepository) CreateLog(_ context.Context, auditLog *domain.AuditLog) error {
	auditLog.ID = r.seq.Add(1)
	r.log.Info("Audit",
		"id", auditLog.ID,
		"event_type", auditLog.EventType,
		"actor", auditLog.ActorName,
		"actor_session_id", auditLog.ActorSessionID,
		"target", auditLog.Target,
		"payload", auditLog.Payload,
	)
	return nil
}
