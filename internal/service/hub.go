package service

import (
	"sync"

	"github.com/google/uuid"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

// Close reasons
const (
	CloseReasonBanned   = "banned"
	CloseReasonLogout   = "logout"
	CloseReasonReplaced = "replaced"
	CloseReasonSlow     = "slow_consumer"
	CloseReasonShutdown = "shutdown"
)

// Subscription - push-канал одной сессии. Канал Events закрывается хабом,
// после закрытия Reason объясняет причину.
type Subscription struct {
	SessionID uuid.UUID
	Name      string

	events chan domain.Event
	reason string
	closed bool
}

func (s *Subscription) Events() <-chan domain.Event {
	return s.events
}

// Reason можно читать только после закрытия Events
func (s *Subscription) Reason() string {
	return s.reason
}

// Hub рассылает события подписчикам. Publish никогда не блокируется:
// подписчик с переполненным буфером отключается.
type Hub struct {
	mu      sync.Mutex
	subs    map[uuid.UUID]*Subscription
	buffer  int
	metrics *Metrics
	log     logger.Logger
}

func NewHub(buffer int, metrics *Metrics, log logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:    make(map[uuid.UUID]*Subscription),
		buffer:  buffer,
		metrics: metrics,
		log:     log,
	}
}

// Subscribe заменяет предыдущую подписку той же сессии
func (h *Hub) Subscribe(sessionID uuid.UUID, name string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.subs[sessionID]; ok {
		h.closeLocked(old, CloseReasonReplaced)
	}
	sub := &Subscription{
		SessionID: sessionID,
		Name:      name,
		events:    make(chan domain.Event, h.buffer),
	}
	h.subs[sessionID] = sub
	h.metrics.setSubscribers(len(h.subs))
	return sub
}

// Unsubscribe возвращает true, если sub была текущей подпиской сессии
func (h *Hub) Unsubscribe(sub *Subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.subs[sub.SessionID]
	if !ok || current != sub {
		return false
	}
	h.closeLocked(sub, "")
	return true
}

func (h *Hub) Publish(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sid, sub := range h.subs {
		if sid == ev.Exclude {
			continue
		}
		h.deliverLocked(sub, ev)
	}
}

// Subscribed - есть ли у сессии открытый push-канал
func (h *Hub) Subscribed(sessionID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[sessionID]
	return ok
}

// Kick отправляет финальное событие и закрывает подписку
func (h *Hub) Kick(sessionID uuid.UUID, ev domain.Event, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.subs[sessionID]
	if !ok {
		return
	}
	select {
	case sub.events <- ev:
	default:
		// буфер полон, финальное событие заменяет самое старое
		select {
		case <-sub.events:
		default:
		}
		select {
		case sub.events <- ev:
		default:
		}
	}
	h.closeLocked(sub, reason)
}

// Close закрывает подписку сессии без финального события
func (h *Hub) Close(sessionID uuid.UUID, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subs[sessionID]; ok {
		h.closeLocked(sub, reason)
	}
}

func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		h.closeLocked(sub, reason)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) deliverLocked(sub *Subscription, ev domain.Event) {
	select {
	case sub.events <- ev:
	default:
		h.log.Warn("Dropping slow subscriber", "session_id", sub.SessionID, "username", sub.Name)
		h.metrics.subscriberDropped()
		h.closeLocked(sub, CloseReasonSlow)
	}
}

func (h *Hub) closeLocked(sub *Subscription, reason string) {
	if sub.closed {
		return
	}
	sub.closed = true
	sub.reason = reason
	close(sub.events)
	if current, ok := h.subs[sub.SessionID]; ok && current == sub {
		delete(h.subs, sub.SessionID)
	}
	h.metrics.setSubscribers(len(h.subs))
}
