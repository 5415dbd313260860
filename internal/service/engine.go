package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xtrafr/chatvercel/internal/config"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/internal/presence"
	"github.com/xtrafr/chatvercel/internal/repository"
	"github.com/xtrafr/chatvercel/pkg/errors"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

// ChatService - общее ядро для push и pull. Все мутации сериализуются одной
// блокировкой записи и публикуются в хаб внутри нее.
type ChatService interface {
	Join(ctx context.Context, displayName, origin string) (*JoinResult, error)
	Leave(ctx context.Context, sessionID uuid.UUID) error
	Authorize(ctx context.Context, sessionID uuid.UUID) (domain.Identity, error)
	Send(ctx context.Context, sessionID uuid.UUID, in SendInput) (domain.Message, error)
	SetTyping(ctx context.Context, sessionID uuid.UUID, isTyping bool) error
	Fetch(ctx context.Context, sessionID uuid.UUID, cursor string) (*domain.Snapshot, error)
	Online(ctx context.Context) []domain.PresenceEntry
	Thread(ctx context.Context, messageID string) (*domain.Thread, error)

	ClearChat(ctx context.Context, actorID uuid.UUID) error
	BanUser(ctx context.Context, actorID uuid.UUID, targetName string) error
	UnbanUser(ctx context.Context, actorID uuid.UUID, target string) error

	Connect(ctx context.Context, sessionID uuid.UUID) (*Subscription, error)
	Disconnect(sub *Subscription)
	Sweep(now time.Time)
}

type JoinResult struct {
	Identity domain.Identity        `json:"identity"`
	Messages []domain.Message       `json:"messages"`
	Online   []domain.PresenceEntry `json:"online_users"`
	Cursor   string                 `json:"cursor"`
}

type SendInput struct {
	Content string             `json:"content"`
	Kind    domain.MessageKind `json:"type"`
	ReplyTo string             `json:"reply_to,omitempty"`
}

type Option func(*chatService)

// WithClock подменяет часы, используется в тестах присутствия
func WithClock(now func() time.Time) Option {
	return func(s *chatService) { s.now = now }
}

func WithMetrics(m *Metrics) Option {
	return func(s *chatService) { s.metrics = m }
}

type chatService struct {
	mu sync.RWMutex

	identities repository.IdentityRepository
	messages   repository.MessageLogRepository
	replies    repository.ReplyIndexRepository
	typing     repository.TypingRepository
	bans       repository.BanRepository

	hub     *Hub
	audit   AuditService
	metrics *Metrics
	cfg     config.ChatConfig
	now     func() time.Time
	log     logger.Logger

	// под mu
	eventSeq   uint64
	lastOnline []domain.PresenceEntry
}

func NewChatService(repos *repository.Repositories, hub *Hub, audit AuditService, cfg config.ChatConfig, log logger.Logger, opts ...Option) ChatService {
	s := &chatService{
		identities: repos.Identity,
		messages:   repos.MessageLog,
		replies:    repos.ReplyIndex,
		typing:     repos.Typing,
		bans:       repos.Ban,
		hub:        hub,
		audit:      audit,
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *chatService) Join(ctx context.Context, displayName, origin string) (*JoinResult, error) {
	name, err := s.validateName(displayName)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bans.IsNameBlocked(name) || s.bans.IsOriginBlocked(origin) {
		s.log.Info("Rejected join from banned user", "username", name, "origin", origin)
		return nil, fmt.Errorf("join %q: %w", name, errors.ErrBanned)
	}

	now := s.now()
	identity := domain.Identity{
		SessionID:    uuid.New(),
		DisplayName:  name,
		IsAdmin:      name == s.cfg.AdminName,
		JoinedAt:     now,
		LastActiveAt: now,
		Origin:       origin,
	}
	if err := s.identities.Create(identity); err != nil {
		return nil, err
	}

	msg, err := s.appendLocked(domain.Message{
		Kind:    domain.MessageKindSystem,
		Content: name + " joined the chat",
	})
	if err != nil {
		_, _ = s.identities.Delete(identity.SessionID)
		return nil, err
	}

	online := s.onlineLocked(now)
	s.publishLocked(domain.Event{
		Type:    domain.EventJoin,
		Message: &msg,
		Name:    name,
		Online:  online,
	})
	s.metrics.joined()

	s.log.Info("User joined", "username", name, "session_id", identity.SessionID, "is_admin", identity.IsAdmin)

	tail := s.messages.Tail(s.cfg.BootstrapLimit)
	return &JoinResult{
		Identity: identity,
		Messages: tail,
		Online:   online,
		Cursor:   lastID(tail),
	}, nil
}

func (s *chatService) Leave(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bans.IsSessionBanned(sessionID) {
		return errors.ErrBanned
	}
	if _, err := s.leaveLocked(sessionID, domain.LeaveReasonLogout); err != nil {
		return err
	}
	s.hub.Close(sessionID, CloseReasonLogout)
	return nil
}

func (s *chatService) Authorize(ctx context.Context, sessionID uuid.UUID) (domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authorizeLocked(sessionID)
}

func (s *chatService) Send(ctx context.Context, sessionID uuid.UUID, in SendInput) (domain.Message, error) {
	kind := in.Kind
	if kind == "" {
		kind = domain.MessageKindText
	}
	if !kind.IsUserKind() {
		return domain.Message{}, fmt.Errorf("message type %q: %w", kind, errors.ErrValidation)
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return domain.Message{}, fmt.Errorf("empty message: %w", errors.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	author, err := s.authorizeLocked(sessionID)
	if err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		Author:  author.DisplayName,
		Content: content,
		Kind:    kind,
	}
	if in.ReplyTo != "" {
		parent, ok := s.messages.Get(in.ReplyTo)
		if !ok {
			return domain.Message{}, fmt.Errorf("reply target %s: %w", in.ReplyTo, errors.ErrNotFound)
		}
		msg.ReplyTo = parent.ID
		msg.ReplySnapshot = &domain.ReplySnapshot{
			Author:  parent.Author,
			Content: parent.Content,
			Kind:    parent.Kind,
		}
	}

	stored, err := s.appendLocked(msg)
	if err != nil {
		return domain.Message{}, err
	}

	if s.typing.Drop(sessionID) {
		s.publishLocked(domain.Event{
			Type:    domain.EventTyping,
			Name:    author.DisplayName,
			Typing:  false,
			Exclude: sessionID,
		})
	}
	s.publishLocked(domain.Event{Type: domain.EventMessage, Message: &stored})

	return stored, nil
}

func (s *chatService) SetTyping(ctx context.Context, sessionID uuid.UUID, isTyping bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, err := s.authorizeLocked(sessionID)
	if err != nil {
		return err
	}

	if s.typing.Set(sessionID, identity.DisplayName, isTyping, s.now()) {
		s.publishLocked(domain.Event{
			Type:    domain.EventTyping,
			Name:    identity.DisplayName,
			Typing:  isTyping,
			Exclude: sessionID,
		})
	}
	return nil
}

// Fetch - один атомарный снимок для pull-клиента
func (s *chatService) Fetch(ctx context.Context, sessionID uuid.UUID, cursor string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.authorizeLocked(sessionID); err != nil {
		return nil, err
	}

	now := s.now()
	msgs, found := s.messages.Since(cursor, s.cfg.BootstrapLimit)
	next := lastID(msgs)
	if next == "" && found {
		next = cursor
	}
	s.metrics.polled(found)

	return &domain.Snapshot{
		Messages: msgs,
		Typing:   s.typing.Names(sessionID, now, s.cfg.TypingQuiet),
		Online:   s.onlineLocked(now),
		Cursor:   next,
		Reset:    !found,
	}, nil
}

func (s *chatService) Online(ctx context.Context) []domain.PresenceEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onlineLocked(s.now())
}

func (s *chatService) Thread(ctx context.Context, messageID string) (*domain.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parent, ok := s.messages.Get(messageID)
	if !ok {
		return nil, fmt.Errorf("message %s: %w", messageID, errors.ErrNotFound)
	}

	ids := s.replies.Replies(messageID)
	replies := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := s.messages.Get(id); ok {
			replies = append(replies, msg)
		}
	}
	return &domain.Thread{Parent: parent, Replies: replies}, nil
}

// Connect открывает push-канал. Сессия должна быть зарегистрирована через Join.
func (s *chatService) Connect(ctx context.Context, sessionID uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, err := s.authorizeLocked(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.identities.SetConnected(sessionID, true); err != nil {
		return nil, err
	}

	sub := s.hub.Subscribe(sessionID, identity.DisplayName)
	s.publishLocked(domain.Event{
		Type:   domain.EventPresence,
		Online: s.onlineLocked(s.now()),
	})

	s.log.Debug("Push channel opened", "session_id", sessionID, "username", identity.DisplayName)
	return sub, nil
}

// Disconnect вызывается транспортом при закрытии канала
func (s *chatService) Disconnect(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hub.Unsubscribe(sub) {
		// бан, logout и новое подключение уже все сделали сами,
		// отставшего подписчика хаб только отключил
		if sub.Reason() != CloseReasonSlow || s.hub.Subscribed(sub.SessionID) {
			return
		}
	}

	if s.cfg.LeaveOnDisconnect {
		if _, err := s.leaveLocked(sub.SessionID, domain.LeaveReasonDisconnected); err != nil {
			s.log.Debug("Disconnect of unknown session", "session_id", sub.SessionID, "error", err)
		}
		return
	}

	if err := s.identities.SetConnected(sub.SessionID, false); err != nil {
		return
	}
	_ = s.identities.Touch(sub.SessionID, s.now())
	s.typing.Drop(sub.SessionID)
	s.publishLocked(domain.Event{
		Type:   domain.EventPresence,
		Online: s.onlineLocked(s.now()),
	})
}

// Sweep убирает истекшие "печатает..." и, если включено, давно неактивных участников
func (s *chatService) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.typing.Purge(now, s.cfg.TypingQuiet) {
		s.publishLocked(domain.Event{
			Type:    domain.EventTyping,
			Name:    st.DisplayName,
			Typing:  false,
			Exclude: st.SessionID,
			At:      now,
		})
	}

	if s.cfg.IdleEvictAfter > 0 {
		for _, identity := range s.identities.List() {
			if presence.Idle(identity, now, s.cfg.IdleEvictAfter) {
				s.log.Info("Evicting idle user", "username", identity.DisplayName, "last_active_at", identity.LastActiveAt)
				_, _ = s.leaveLocked(identity.SessionID, domain.LeaveReasonExpired)
			}
		}
	}

	online := presence.Online(s.identities.List(), now, s.cfg.OnlineTimeout)
	if !presence.SameNames(online, s.lastOnline) {
		s.publishLocked(domain.Event{Type: domain.EventPresence, Online: online, At: now})
	}
}

func (s *chatService) validateName(displayName string) (string, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return "", fmt.Errorf("username is required: %w", errors.ErrValidation)
	}
	if utf8.RuneCountInString(name) > s.cfg.MaxNameLength {
		return "", fmt.Errorf("username longer than %d characters: %w", s.cfg.MaxNameLength, errors.ErrValidation)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("username contains control characters: %w", errors.ErrValidation)
		}
	}
	return name, nil
}

// authorizeLocked требует mu (чтение или запись). Обновляет LastActiveAt.
func (s *chatService) authorizeLocked(sessionID uuid.UUID) (domain.Identity, error) {
	if s.bans.IsSessionBanned(sessionID) {
		return domain.Identity{}, errors.ErrBanned
	}
	identity, err := s.identities.Get(sessionID)
	if err != nil {
		return domain.Identity{}, err
	}
	now := s.now()
	if err := s.identities.Touch(sessionID, now); err != nil {
		return domain.Identity{}, err
	}
	identity.LastActiveAt = now
	return identity, nil
}

func (s *chatService) appendLocked(msg domain.Message) (domain.Message, error) {
	msg.CreatedAt = s.now()
	stored, evicted, err := s.messages.Append(msg)
	if err != nil {
		return domain.Message{}, err
	}
	s.replies.Evict(evicted)
	if stored.ReplyTo != "" {
		s.replies.Add(stored.ReplyTo, stored.ID)
	}
	s.metrics.messageAppended(string(stored.Kind), s.messages.Len())
	return stored, nil
}

func (s *chatService) leaveLocked(sessionID uuid.UUID, reason string) (domain.Identity, error) {
	identity, err := s.identities.Delete(sessionID)
	if err != nil {
		return domain.Identity{}, err
	}
	s.typing.Drop(sessionID)

	msg, err := s.appendLocked(domain.Message{
		Kind:    domain.MessageKindSystem,
		Content: identity.DisplayName + " left the chat",
	})
	if err != nil {
		return identity, err
	}
	s.publishLocked(domain.Event{
		Type:    domain.EventLeave,
		Message: &msg,
		Name:    identity.DisplayName,
		Reason:  reason,
		Online:  s.onlineLocked(s.now()),
	})
	s.metrics.left(reason)

	s.log.Info("User left", "username", identity.DisplayName, "session_id", sessionID, "reason", reason)
	return identity, nil
}

func (s *chatService) onlineLocked(now time.Time) []domain.PresenceEntry {
	online := presence.Online(s.identities.List(), now, s.cfg.OnlineTimeout)
	s.metrics.setOnline(len(online))
	return online
}

// publishLocked назначает глобальный Seq события. Требует s.mu на запись.
func (s *chatService) publishLocked(ev domain.Event) {
	s.eventSeq++
	ev.Seq = s.eventSeq
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	if ev.Online != nil {
		s.lastOnline = ev.Online
	}
	s.hub.Publish(ev)
}

func lastID(msgs []domain.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].ID
}
