package repository

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/pkg/errors"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

func newIdentity(name string) domain.Identity {
	now := time.Now()
	return domain.Identity{SessionID: uuid.New(), DisplayName: name, JoinedAt: now, LastActiveAt: now}
}

func TestIdentityRepository_UniqueNames(t *testing.T) {
	r := NewIdentityRepository(logger.Nop())

	alice := newIdentity("alice")
	require.NoError(t, r.Create(alice))
	require.ErrorIs(t, r.Create(newIdentity("alice")), errors.ErrNameTaken)
	require.NoError(t, r.Create(newIdentity("Alice")), "names are case-sensitive")

	removed, err := r.Delete(alice.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "alice", removed.DisplayName)

	require.NoError(t, r.Create(newIdentity("alice")))
	assert.Len(t, r.List(), 2)
}

func TestIdentityRepository_GetReturnsCopy(t *testing.T) {
	r := NewIdentityRepository(logger.Nop())
	alice := newIdentity("alice")
	require.NoError(t, r.Create(alice))

	got, err := r.Get(alice.SessionID)
	require.NoError(t, err)
	got.DisplayName = "mallory"

	again, err := r.Get(alice.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "alice", again.DisplayName)

	_, err = r.Get(uuid.New())
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)

	_, err = r.FindByName("nobody")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestIdentityRepository_TouchAndConnected(t *testing.T) {
	r := NewIdentityRepository(logger.Nop())
	alice := newIdentity("alice")
	require.NoError(t, r.Create(alice))

	later := alice.LastActiveAt.Add(5 * time.Second)
	require.NoError(t, r.Touch(alice.SessionID, later))
	require.NoError(t, r.Touch(alice.SessionID, alice.LastActiveAt), "touch never moves backwards")
	require.NoError(t, r.SetConnected(alice.SessionID, true))

	got, err := r.Get(alice.SessionID)
	require.NoError(t, err)
	assert.Equal(t, later, got.LastActiveAt)
	assert.True(t, got.Connected)

	assert.ErrorIs(t, r.Touch(uuid.New(), later), errors.ErrSessionNotFound)
}

func TestIdentityRepository_ConcurrentJoinSameName(t *testing.T) {
	r := NewIdentityRepository(logger.Nop())

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Create(newIdentity("bob")) == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Len(t, r.List(), 1)
}
