package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventMessage  EventType = "message"
	EventJoin     EventType = "join"
	EventLeave    EventType = "leave"
	EventTyping   EventType = "typing"
	EventCleared  EventType = "cleared"
	EventBanned   EventType = "banned"
	EventPresence EventType = "presence"
)

// Leave reasons
const (
	LeaveReasonLogout       = "logout"
	LeaveReasonDisconnected = "disconnected"
	LeaveReasonExpired      = "expired"
	LeaveReasonBanned       = "banned"
)

// Event - единица push-доставки. Seq задается под блокировкой записи,
// поэтому все подписчики видят один и тот же глобальный порядок.
type Event struct {
	Seq     uint64          `json:"seq"`
	Type    EventType       `json:"type"`
	Message *Message        `json:"message,omitempty"`
	Name    string          `json:"username,omitempty"`
	Typing  bool            `json:"is_typing,omitempty"`
	Online  []PresenceEntry `json:"users"`
	Reason  string          `json:"reason,omitempty"`
	At      time.Time       `json:"at"`

	// Exclude - сессия-источник, которой событие не отправляется
	Exclude uuid.UUID `json:"-"`
}
