package service

import (
	"context"
	"time"

	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/internal/repository"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

type AuditService interface {
	LogEvent(ctx context.Context, actor domain.Identity, eventType, target string, payload map[string]interface{}) error
}

type auditService struct {
	auditRepo repository.AuditRepository
	log       logger.Logger
}

func NewAuditService(auditRepo repository.AuditRepository, log logger.Logger) AuditService {
	return &auditService{
		auditRepo: auditRepo,
		log:       log,
	}
}

func (s *auditService) LogEvent(ctx context.Context, actor domain.Identity, eventType, target string, payload map[string]interface{}) error {
	if payload == nil {
		payload = make(map[string]interface{})
	}

	auditLog := &domain.AuditLog{
		EventTime:      time.Now(),
		ActorSessionID: actor.SessionID,
		ActorName:      actor.DisplayName,
		EventType:      eventType,
		Target:         target,
		Payload:        payload,
	}

	return s.auditRepo.CreateLog(ctx, auditLog)
}
