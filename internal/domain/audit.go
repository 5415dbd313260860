package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID             int64                  `json:"id"`
	EventTime      time.Time              `json:"event_time"`
	ActorSessionID uuid.UUID              `json:"actor_session_id"`
	ActorName      string                 `json:"actor_name"`
	EventType      string                 `json:"event_type"`
	Target         string                 `json:"target,omitempty"`
	Payload        map[string]interface{} `json:"payload"`
}

const (
	EventTypeChatCleared  = "CHAT_CLEARED"
	EventTypeUserBanned   = "USER_BANNED"
	EventTypeUserUnbanned = "USER_UNBANNED"
)
