package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/pkg/errors"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

// IdentityRepository - реестр участников. Имена уникальны среди зарегистрированных.
type IdentityRepository interface {
	Create(identity domain.Identity) error
	Get(sessionID uuid.UUID) (domain.Identity, error)
	FindByName(name string) (domain.Identity, error)
	Touch(sessionID uuid.UUID, now time.Time) error
	SetConnected(sessionID uuid.UUID, connected bool) error
	Delete(sessionID uuid.UUID) (domain.Identity, error)
	List() []domain.Identity
}

type identityRepository struct {
	mu     sync.RWMutex
	bySID  map[uuid.UUID]*domain.Identity
	byName map[string]uuid.UUID
	log    logger.Logger
}

func NewIdentityRepository(log logger.Logger) IdentityRepository {
	return &identityRepository{
		bySID:  make(map[uuid.UUID]*domain.Identity),
		byName: make(map[string]uuid.UUID),
		log:    log,
	}
}

func (r *identityRepository) Create(identity domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[identity.DisplayName]; taken {
		return fmt.Errorf("name %q: %w", identity.DisplayName, errors.ErrNameTaken)
	}
	if _, exists := r.bySID[identity.SessionID]; exists {
		return fmt.Errorf("session %s already registered: %w", identity.SessionID, errors.ErrValidation)
	}

	stored := identity
	r.bySID[identity.SessionID] = &stored
	r.byName[identity.DisplayName] = identity.SessionID

	r.log.Debug("Identity registered", "session_id", identity.SessionID, "username", identity.DisplayName)
	return nil
}

func (r *identityRepository) Get(sessionID uuid.UUID) (domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.bySID[sessionID]
	if !ok {
		return domain.Identity{}, errors.ErrSessionNotFound
	}
	return *identity, nil
}

func (r *identityRepository) FindByName(name string) (domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sid, ok := r.byName[name]
	if !ok {
		return domain.Identity{}, fmt.Errorf("user %q: %w", name, errors.ErrNotFound)
	}
	return *r.bySID[sid], nil
}

func (r *identityRepository) Touch(sessionID uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.bySID[sessionID]
	if !ok {
		return errors.ErrSessionNotFound
	}
	if now.After(identity.LastActiveAt) {
		identity.LastActiveAt = now
	}
	return nil
}

func (r *identityRepository) SetConnected(sessionID uuid.UUID, connected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.bySID[sessionID]
	if !ok {
		return errors.ErrSessionNotFound
	}
	identity.Connected = connected
	return nil
}

// Delete освобождает имя. Возвращает удаленную запись.
func (r *identityRepository) Delete(sessionID uuid.UUID) (domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.bySID[sessionID]
	if !ok {
		return domain.Identity{}, errors.ErrSessionNotFound
	}
	delete(r.bySID, sessionID)
	delete(r.byName, identity.DisplayName)

	r.log.Debug("Identity removed", "session_id", sessionID, "username", identity.DisplayName)
	return *identity, nil
}

func (r *identityRepository) List() []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identities := make([]domain.Identity, 0, len(r.bySID))
	for _, identity := range r.bySID {
		identities = append(identities, *identity)
	}
	sort.Slice(identities, func(i, j int) bool {
		return identities[i].DisplayName < identities[j].DisplayName
	})
	return identities
}
