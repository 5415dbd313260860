// Package presence вычисляет онлайн и "печатает..." как чистые функции от
// (now, окно, записи). Часы передаются снаружи.
package presence

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xtrafr/chatvercel/internal/domain"
)

// IsOnline: открытый push-канал или активность не старше timeout
func IsOnline(identity domain.Identity, now time.Time, timeout time.Duration) bool {
	if identity.Connected {
		return true
	}
	return now.Sub(identity.LastActiveAt) <= timeout
}

// StateOf: active - была активность в окне, иначе idle
func StateOf(identity domain.Identity, now time.Time, timeout time.Duration) domain.SessionState {
	if now.Sub(identity.LastActiveAt) <= timeout {
		return domain.SessionStateActive
	}
	return domain.SessionStateIdle
}

// Online - онлайн-участники, отсортированные по имени
func Online(identities []domain.Identity, now time.Time, timeout time.Duration) []domain.PresenceEntry {
	out := make([]domain.PresenceEntry, 0, len(identities))
	for _, identity := range identities {
		if !IsOnline(identity, now, timeout) {
			continue
		}
		out = append(out, domain.PresenceEntry{
			DisplayName: identity.DisplayName,
			IsAdmin:     identity.IsAdmin,
			Online:      true,
			State:       StateOf(identity, now, timeout),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}

// SameNames сравнивает два списка Online по именам
func SameNames(a, b []domain.PresenceEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].DisplayName != b[i].DisplayName {
			return false
		}
	}
	return true
}

// Idle - участник без push-канала, неактивный дольше after. after <= 0 отключает.
func Idle(identity domain.Identity, now time.Time, after time.Duration) bool {
	if after <= 0 || identity.Connected {
		return false
	}
	return now.Sub(identity.LastActiveAt) > after
}

func TypingExpired(state domain.TypingState, now time.Time, quiet time.Duration) bool {
	return !state.IsTyping || now.Sub(state.UpdatedAt) > quiet
}

// ActiveTyping - имена печатающих, кроме exclude, по алфавиту
func ActiveTyping(states []domain.TypingState, exclude uuid.UUID, now time.Time, quiet time.Duration) []string {
	names := make([]string, 0, len(states))
	for _, st := range states {
		if st.SessionID == exclude || TypingExpired(st, now, quiet) {
			continue
		}
		names = append(names, st.DisplayName)
	}
	sort.Strings(names)
	return names
}
