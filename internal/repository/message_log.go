package repository

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/pkg/errors"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

// MessageLogRepository - ограниченный журнал сообщений. Старые вытесняются первыми.
type MessageLogRepository interface {
	Append(msg domain.Message) (domain.Message, []domain.Message, error)
	Tail(limit int) []domain.Message
	Since(cursorID string, bootstrap int) ([]domain.Message, bool)
	Get(id string) (domain.Message, bool)
	Clear() int
	Len() int
}

type messageLogRepository struct {
	mu    sync.RWMutex
	buf   []domain.Message
	head  int // индекс самого старого
	size  int
	seq   uint64 // не сбрасывается при Clear
	index map[string]uint64
	now   func() time.Time
	log   logger.Logger
}

func NewMessageLogRepository(capacity int, log logger.Logger) MessageLogRepository {
	return newMessageLog(capacity, time.Now, log)
}

func newMessageLog(capacity int, now func() time.Time, log logger.Logger) *messageLogRepository {
	if capacity <= 0 {
		capacity = 1
	}
	return &messageLogRepository{
		buf:   make([]domain.Message, capacity),
		index: make(map[string]uint64, capacity),
		now:   now,
		log:   log,
	}
}

// Append назначает ID, Seq и время. Возвращает сохраненное сообщение и вытесненные.
func (r *messageLogRepository) Append(msg domain.Message) (domain.Message, []domain.Message, error) {
	if msg.Kind == "" {
		msg.Kind = domain.MessageKindText
	}
	if msg.Kind != domain.MessageKindSystem && strings.TrimSpace(msg.Content) == "" {
		return domain.Message{}, nil, fmt.Errorf("empty message content: %w", errors.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, dup := r.index[msg.ID]; dup {
		return domain.Message{}, nil, fmt.Errorf("message %s already in log: %w", msg.ID, errors.ErrValidation)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}
	r.seq++
	msg.Seq = r.seq

	var evicted []domain.Message
	capacity := len(r.buf)
	if r.size == capacity {
		old := r.buf[r.head]
		delete(r.index, old.ID)
		evicted = append(evicted, old)
		r.buf[r.head] = domain.Message{}
		r.head = (r.head + 1) % capacity
		r.size--
	}

	r.buf[(r.head+r.size)%capacity] = msg
	r.size++
	r.index[msg.ID] = msg.Seq

	return msg, evicted, nil
}

// Tail - последние limit сообщений, от старых к новым
func (r *messageLogRepository) Tail(limit int) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tailLocked(limit)
}

func (r *messageLogRepository) tailLocked(limit int) []domain.Message {
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	return r.rangeLocked(r.size-limit, r.size)
}

// Since - сообщения строго после курсора. Для пустого или неизвестного курсора
// возвращает tail(bootstrap) и found=false.
func (r *messageLogRepository) Since(cursorID string, bootstrap int) ([]domain.Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seq, ok := r.index[cursorID]
	if cursorID == "" || !ok {
		return r.tailLocked(bootstrap), false
	}

	oldest := r.buf[r.head].Seq
	offset := int(seq-oldest) + 1
	return r.rangeLocked(offset, r.size), true
}

// rangeLocked копирует позиции [from, to) в порядке добавления
func (r *messageLogRepository) rangeLocked(from, to int) []domain.Message {
	if from < 0 {
		from = 0
	}
	out := make([]domain.Message, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

func (r *messageLogRepository) Get(id string) (domain.Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seq, ok := r.index[id]
	if !ok {
		return domain.Message{}, false
	}
	oldest := r.buf[r.head].Seq
	return r.buf[(r.head+int(seq-oldest))%len(r.buf)], true
}

// Clear очищает журнал, возвращает число удаленных сообщений
func (r *messageLogRepository) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.size
	for i := range r.buf {
		r.buf[i] = domain.Message{}
	}
	r.head, r.size = 0, 0
	r.index = make(map[string]uint64, len(r.buf))

	r.log.Debug("Message log cleared", "removed", removed)
	return removed
}

func (r *messageLogRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}
