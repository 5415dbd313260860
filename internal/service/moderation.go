package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xtrafr/chatvercel/internal/config"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/pkg/errors"
)

func (s *chatService) ClearChat(ctx context.Context, actorID uuid.UUID) error {
	s.mu.Lock()
	actor, err := s.adminLocked(actorID)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	removed := s.messages.Clear()
	s.replies.Clear()
	s.metrics.logCleared()

	marker, err := s.appendLocked(domain.Message{
		Kind:    domain.MessageKindSystem,
		Content: "Chat cleared by admin",
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.publishLocked(domain.Event{Type: domain.EventCleared, Message: &marker, Name: actor.DisplayName})
	s.metrics.moderated("clear")
	s.mu.Unlock()

	s.log.Info("Chat cleared", "admin", actor.DisplayName, "removed", removed)
	s.recordAudit(ctx, actor, domain.EventTypeChatCleared, "", map[string]interface{}{"removed": removed})
	return nil
}

func (s *chatService) BanUser(ctx context.Context, actorID uuid.UUID, targetName string) error {
	name := strings.TrimSpace(targetName)
	if name == "" {
		return fmt.Errorf("ban target is required: %w", errors.ErrValidation)
	}

	s.mu.Lock()
	actor, err := s.adminLocked(actorID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if name == actor.DisplayName {
		s.mu.Unlock()
		return fmt.Errorf("admin cannot ban themself: %w", errors.ErrValidation)
	}

	target, err := s.identities.FindByName(name)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if _, err := s.identities.Delete(target.SessionID); err != nil {
		s.mu.Unlock()
		return err
	}
	s.typing.Drop(target.SessionID)

	now := s.now()
	s.bans.BanSession(target.SessionID, now)
	blocked := ""
	switch s.cfg.BanPolicy {
	case config.BanPolicyName:
		s.bans.BlockName(target.DisplayName)
		blocked = target.DisplayName
	case config.BanPolicyOrigin:
		if target.Origin != "" {
			s.bans.BlockOrigin(target.Origin)
			blocked = target.Origin
		}
	}

	msg, err := s.appendLocked(domain.Message{
		Kind:    domain.MessageKindSystem,
		Content: target.DisplayName + " has been banned by admin",
	})
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.eventSeq++
	s.hub.Kick(target.SessionID, domain.Event{
		Seq:    s.eventSeq,
		Type:   domain.EventBanned,
		Name:   target.DisplayName,
		Reason: "You have been banned by admin",
		At:     now,
	}, CloseReasonBanned)

	s.publishLocked(domain.Event{
		Type:    domain.EventLeave,
		Message: &msg,
		Name:    target.DisplayName,
		Reason:  domain.LeaveReasonBanned,
		Online:  s.onlineLocked(now),
	})
	s.metrics.left(domain.LeaveReasonBanned)
	s.metrics.moderated("ban")
	s.mu.Unlock()

	s.log.Info("User banned", "admin", actor.DisplayName, "username", target.DisplayName, "policy", s.cfg.BanPolicy)
	s.recordAudit(ctx, actor, domain.EventTypeUserBanned, target.DisplayName, map[string]interface{}{
		"session_id": target.SessionID.String(),
		"policy":     s.cfg.BanPolicy,
		"blocked":    blocked,
	})
	return nil
}

// UnbanUser снимает блокировку имени или адреса
func (s *chatService) UnbanUser(ctx context.Context, actorID uuid.UUID, target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return fmt.Errorf("unban target is required: %w", errors.ErrValidation)
	}

	s.mu.Lock()
	actor, err := s.adminLocked(actorID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.bans.Unblock(target) {
		s.mu.Unlock()
		return fmt.Errorf("no ban for %q: %w", target, errors.ErrNotFound)
	}
	s.metrics.moderated("unban")
	s.mu.Unlock()

	s.log.Info("Ban lifted", "admin", actor.DisplayName, "target", target)
	s.recordAudit(ctx, actor, domain.EventTypeUserUnbanned, target, nil)
	return nil
}

func (s *chatService) adminLocked(actorID uuid.UUID) (domain.Identity, error) {
	actor, err := s.authorizeLocked(actorID)
	if err != nil {
		return domain.Identity{}, err
	}
	if !actor.IsAdmin {
		s.log.Warn("Moderation attempt by non-admin", "username", actor.DisplayName)
		return domain.Identity{}, errors.ErrUnauthorized
	}
	return actor, nil
}

// recordAudit вызывается вне блокировки, ошибка журнала не откатывает действие
func (s *chatService) recordAudit(ctx context.Context, actor domain.Identity, eventType, target string, payload map[string]interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, actor, eventType, target, payload); err != nil {
		s.log.Error("Failed to record audit event", "event_type", eventType, "error", err)
	}
}
