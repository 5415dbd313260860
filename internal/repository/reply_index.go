package repository

import (
	"sync"

	"github.com/xtrafr/chatvercel/internal/domain"
)

// ReplyIndexRepository - вторичный индекс parentID -> ответы в порядке добавления
type ReplyIndexRepository interface {
	Add(parentID, replyID string)
	Replies(parentID string) []string
	Evict(msgs []domain.Message)
	Clear()
}

type replyIndexRepository struct {
	mu      sync.RWMutex
	replies map[string][]string
}

func NewReplyIndexRepository() ReplyIndexRepository {
	return &replyIndexRepository{replies: make(map[string][]string)}
}

func (r *replyIndexRepository) Add(parentID, replyID string) {
	if parentID == "" || replyID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[parentID] = append(r.replies[parentID], replyID)
}

func (r *replyIndexRepository) Replies(parentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.replies[parentID]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// Evict убирает вытесненные из журнала сообщения, как родителей, так и ответы
func (r *replyIndexRepository) Evict(msgs []domain.Message) {
	if len(msgs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, msg := range msgs {
		delete(r.replies, msg.ID)
		if msg.ReplyTo == "" {
			continue
		}
		ids := r.replies[msg.ReplyTo]
		for i, id := range ids {
			if id == msg.ID {
				ids = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(ids) == 0 {
			delete(r.replies, msg.ReplyTo)
		} else {
			r.replies[msg.ReplyTo] = ids
		}
	}
}

func (r *replyIndexRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = make(map[string][]string)
}
