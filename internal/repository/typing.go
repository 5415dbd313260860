package repository

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/internal/presence"
)

// TypingRepository - одна запись на участника, последняя запись побеждает
type TypingRepository interface {
	Set(sessionID uuid.UUID, name string, isTyping bool, now time.Time) bool
	Drop(sessionID uuid.UUID) bool
	Names(exclude uuid.UUID, now time.Time, quiet time.Duration) []string
	Purge(now time.Time, quiet time.Duration) []domain.TypingState
	Clear()
}

type typingRepository struct {
	mu     sync.Mutex
	states map[uuid.UUID]domain.TypingState
}

func NewTypingRepository() TypingRepository {
	return &typingRepository{states: make(map[uuid.UUID]domain.TypingState)}
}

// Set возвращает true, если видимое состояние поменялось
func (r *typingRepository) Set(sessionID uuid.UUID, name string, isTyping bool, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, had := r.states[sessionID]
	if !isTyping {
		delete(r.states, sessionID)
		return had
	}
	r.states[sessionID] = domain.TypingState{
		SessionID:   sessionID,
		DisplayName: name,
		IsTyping:    true,
		UpdatedAt:   now,
	}
	return !had || !prev.IsTyping
}

func (r *typingRepository) Drop(sessionID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, had := r.states[sessionID]
	delete(r.states, sessionID)
	return had
}

// Names только фильтрует по now. Удаляет записи Purge, чтобы push-подписчики
// получили остановку набора.
func (r *typingRepository) Names(exclude uuid.UUID, now time.Time, quiet time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make([]domain.TypingState, 0, len(r.states))
	for _, st := range r.states {
		states = append(states, st)
	}
	return presence.ActiveTyping(states, exclude, now, quiet)
}

func (r *typingRepository) Purge(now time.Time, quiet time.Duration) []domain.TypingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.purgeLocked(now, quiet)
}

func (r *typingRepository) purgeLocked(now time.Time, quiet time.Duration) []domain.TypingState {
	var expired []domain.TypingState
	for sid, st := range r.states {
		if presence.TypingExpired(st, now, quiet) {
			expired = append(expired, st)
			delete(r.states, sid)
		}
	}
	return expired
}

func (r *typingRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = make(map[uuid.UUID]domain.TypingState)
}
