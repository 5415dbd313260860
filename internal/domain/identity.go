package domain

import (
	"time"

	"github.com/google/uuid"
)

// Identity - участник чата. IsAdmin вычисляется один раз при создании.
type Identity struct {
	SessionID    uuid.UUID `json:"session_id"`
	DisplayName  string    `json:"username"`
	IsAdmin      bool      `json:"is_admin"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Connected    bool      `json:"connected"`
	Origin       string    `json:"-"`
}

type PresenceEntry struct {
	DisplayName string       `json:"username"`
	IsAdmin     bool         `json:"is_admin"`
	Online      bool         `json:"online"`
	State       SessionState `json:"state"`
}

type SessionState string

const (
	SessionStateActive SessionState = "active"
	// держит push-канал, но молчит дольше окна онлайна
	SessionStateIdle SessionState = "idle"
)
