package repository

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// BanRepository хранит заблокированные сессии, имена и адреса до конца жизни процесса
type BanRepository interface {
	BanSession(sessionID uuid.UUID, at time.Time)
	IsSessionBanned(sessionID uuid.UUID) bool
	BlockName(name string)
	BlockOrigin(origin string)
	IsNameBlocked(name string) bool
	IsOriginBlocked(origin string) bool
	Unblock(target string) bool
}

type banRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]time.Time
	names    map[string]struct{}
	origins  map[string]struct{}
}

func NewBanRepository() BanRepository {
	return &banRepository{
		sessions: make(map[uuid.UUID]time.Time),
		names:    make(map[string]struct{}),
		origins:  make(map[string]struct{}),
	}
}

func (r *banRepository) BanSession(sessionID uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = at
}

func (r *banRepository) IsSessionBanned(sessionID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sessionID]
	return ok
}

func (r *banRepository) BlockName(name string) {
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[name] = struct{}{}
}

func (r *banRepository) BlockOrigin(origin string) {
	if origin == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.origins[origin] = struct{}{}
}

func (r *banRepository) IsNameBlocked(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

func (r *banRepository) IsOriginBlocked(origin string) bool {
	if origin == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.origins[origin]
	return ok
}

// Unblock снимает блокировку имени или адреса. Забаненные сессии не восстанавливаются.
func (r *banRepository) Unblock(target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, byName := r.names[target]
	_, byOrigin := r.origins[target]
	delete(r.names, target)
	delete(r.origins, target)
	return byName || byOrigin
}
