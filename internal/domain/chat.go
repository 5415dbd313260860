package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindImage  MessageKind = "image"
	MessageKindFile   MessageKind = "file"
	MessageKindSystem MessageKind = "system"
)

// IsUserKind - виды, которые может отправлять клиент
func (k MessageKind) IsUserKind() bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindFile:
		return true
	}
	return false
}

// Message неизменяемо после добавления в лог
type Message struct {
	ID            string         `json:"id"`
	Seq           uint64         `json:"seq"`
	Author        string         `json:"username,omitempty"`
	Content       string         `json:"content"`
	Kind          MessageKind    `json:"type"`
	CreatedAt     time.Time      `json:"timestamp"`
	ReplyTo       string         `json:"reply_to,omitempty"`
	ReplySnapshot *ReplySnapshot `json:"reply_snapshot,omitempty"`
}

// ReplySnapshot - замороженная копия цитируемого сообщения на момент ответа
type ReplySnapshot struct {
	Author  string      `json:"username"`
	Content string      `json:"content"`
	Kind    MessageKind `json:"type"`
}

// Thread - сообщение и ответы на него, которые еще есть в логе
type Thread struct {
	Parent  Message   `json:"parent"`
	Replies []Message `json:"replies"`
}

// Snapshot - ответ на один poll: дельта сообщений плюс свежие typing/presence
type Snapshot struct {
	Messages []Message       `json:"messages"`
	Typing   []string        `json:"typing"`
	Online   []PresenceEntry `json:"users"`
	Cursor   string          `json:"cursor"`
	Reset    bool            `json:"reset"`
}

type TypingState struct {
	SessionID   uuid.UUID `json:"-"`
	DisplayName string    `json:"username"`
	IsTyping    bool      `json:"is_typing"`
	UpdatedAt   time.Time `json:"updated_at"`
}
