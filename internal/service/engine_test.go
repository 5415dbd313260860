package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrafr/chatvercel/internal/config"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/internal/repository"
	"github.com/xtrafr/chatvercel/pkg/errors"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAudit) LogEvent(_ context.Context, _ domain.Identity, eventType, target string, _ map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, eventType+":"+target)
	return nil
}

type testEngine struct {
	ChatService
	hub   *Hub
	clock *fakeClock
	audit *recordingAudit
}

func newTestEngine(t *testing.T, mutate ...func(*config.ChatConfig)) *testEngine {
	t.Helper()
	cfg := config.DefaultChatConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	require.NoError(t, cfg.Validate())

	log := logger.Nop()
	repos := repository.NewRepositories(cfg, nil, nil, log)
	hub := NewHub(cfg.PushBuffer, nil, log)
	clock := newFakeClock()
	audit := &recordingAudit{}

	return &testEngine{
		ChatService: NewChatService(repos, hub, audit, cfg, log, WithClock(clock.Now)),
		hub:         hub,
		clock:       clock,
		audit:       audit,
	}
}

func (e *testEngine) join(t *testing.T, name string) domain.Identity {
	t.Helper()
	res, err := e.Join(context.Background(), name, "")
	require.NoError(t, err)
	return res.Identity
}

func bodies(msgs []domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func drain(sub *Subscription) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestJoin_NameUniqueness(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.join(t, "alice")
	_, err := e.Join(ctx, "alice", "")
	require.ErrorIs(t, err, errors.ErrNameTaken)

	_, err = e.Join(ctx, "  alice ", "")
	require.ErrorIs(t, err, errors.ErrNameTaken, "names are trimmed before comparison")

	require.NoError(t, e.Leave(ctx, alice.SessionID))
	again := e.join(t, "alice")
	assert.NotEqual(t, alice.SessionID, again.SessionID)
}

func TestJoin_Validation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for _, name := range []string{"", "   ", strings.Repeat("x", 33), "bad\nname"} {
		_, err := e.Join(ctx, name, "")
		assert.ErrorIs(t, err, errors.ErrValidation, "name %q", name)
	}
	assert.Empty(t, e.Online(ctx))
}

func TestJoin_AdminFlagAndNotification(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.join(t, "alice")
	sub, err := e.Connect(ctx, alice.SessionID)
	require.NoError(t, err)
	drain(sub)

	res, err := e.Join(ctx, "admin", "")
	require.NoError(t, err)
	assert.True(t, res.Identity.IsAdmin)
	assert.False(t, alice.IsAdmin)

	other, err := e.Join(ctx, "Admin", "")
	require.NoError(t, err)
	assert.False(t, other.Identity.IsAdmin, "admin name is matched exactly")

	events := drain(sub)
	require.Len(t, events, 2, "one event per join")
	for _, ev := range events {
		assert.Equal(t, domain.EventJoin, ev.Type)
		require.NotNil(t, ev.Message)
		assert.Equal(t, domain.MessageKindSystem, ev.Message.Kind)
	}
	assert.Equal(t, "admin joined the chat", events[0].Message.Content)

	online := e.Online(ctx)
	require.Len(t, online, 3)
	for _, entry := range online {
		assert.Equal(t, entry.DisplayName == "admin", entry.IsAdmin, entry.DisplayName)
	}
}

func TestScenario_ReplySnapshot(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	alice := e.join(t, "alice")
	admin := e.join(t, "admin")

	hi, err := e.Send(ctx, admin.SessionID, SendInput{Content: "hi"})
	require.NoError(t, err)

	snap, err := e.Fetch(ctx, alice.SessionID, "")
	require.NoError(t, err)
	assert.True(t, snap.Reset)
	assert.Equal(t, []string{"alice joined the chat", "admin joined the chat", "hi"}, bodies(snap.Messages))
	assert.Equal(t, hi.ID, snap.Cursor)

	yo, err := e.Send(ctx, alice.SessionID, SendInput{Content: "yo", ReplyTo: hi.ID})
	require.NoError(t, err)

	delta, err := e.Fetch(ctx, alice.SessionID, hi.ID)
	require.NoError(t, err)
	assert.False(t, delta.Reset)
	require.Len(t, delta.Messages, 1)
	got := delta.Messages[0]
	assert.Equal(t, "yo", got.Content)
	assert.Equal(t, hi.ID, got.ReplyTo)
	require.NotNil(t, got.ReplySnapshot)
	assert.Equal(t, domain.ReplySnapshot{Author: "admin", Content: "hi", Kind: domain.MessageKindText}, *got.ReplySnapshot)

	thread, err := e.Thread(ctx, hi.ID)
	require.NoError(t, err)
	require.Len(t, thread.Replies, 1)
	assert.Equal(t, yo.ID, thread.Replies[0].ID)

	// снимок переживает очистку журнала
	require.NoError(t, e.ClearChat(ctx, admin.SessionID))
	assert.Equal(t, "hi", yo.ReplySnapshot.Content)
	_, err = e.Thread(ctx, hi.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSend_Validation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	alice := e.join(t, "alice")

	_, err := e.Send(ctx, alice.SessionID, SendInput{Content: "  "})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = e.Send(ctx, alice.SessionID, SendInput{Content: "x", Kind: domain.MessageKindSystem})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = e.Send(ctx, alice.SessionID, SendInput{Content: "x", ReplyTo: "missing"})
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = e.Send(ctx, uuid.New(), SendInput{Content: "x"})
	assert.ErrorIs(t, err, errors.ErrSessionNotFound)

	img, err := e.Send(ctx, alice.SessionID, SendInput{Content: "/uploads/a.png", Kind: domain.MessageKindImage})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageKindImage, img.Kind)
}

func TestFetch_IdempotentCursor(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	alice := e.join(t, "alice")

	m1, err := e.Send(ctx, alice.SessionID, SendInput{Content: "one"})
	require.NoError(t, err)
	_, err = e.Send(ctx, alice.SessionID, SendInput{Content: "two"})
	require.NoError(t, err)

	first, err := e.Fetch(ctx, alice.SessionID, m1.ID)
	require.NoError(t, err)
	second, err := e.Fetch(ctx, alice.SessionID, m1.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Messages, second.Messages)
	assert.Equal(t, []string{"two"}, bodies(first.Messages))

	empty, err := e.Fetch(ctx, alice.SessionID, first.Cursor)
	require.NoError(t, err)
	assert.Empty(t, empty.Messages)
	assert.Equal(t, first.Cursor, empty.Cursor, "cursor stays put when nothing is new")
}

func TestTyping_ExpiryAndStop(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	alice := e.join(t, "alice")
	bob := e.join(t, "bob")

	require.NoError(t, e.SetTyping(ctx, alice.SessionID, true))

	snap, err := e.Fetch(ctx, bob.SessionID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, snap.Typing)

	own, err := e.Fetch(ctx, alice.SessionID, "")
	require.NoError(t, err)
	assert.Empty(t, own.Typing, "requester is excluded")

	e.clock.Advance(3*time.Second + time.Millisecond)
	snap, err = e.Fetch(ctx, bob.SessionID, "")
	require.NoError(t, err)
	assert.Empty(t, snap.Typing)

	require.NoError(t, e.SetTyping(ctx, alice.SessionID, true))
	require.NoError(t, e.SetTyping(ctx, alice.SessionID, false))
	snap, err = e.Fetch(ctx, bob.SessionID, "")
	require.NoError(t, err)
	assert.Empty(t, snap.Typing, "stop removes immediately")
}

func TestOnline_Expiry(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	alice := e.join(t, "alice")
	e.join(t, "bob")

	e.clock.Advance(8 * time.Second)
	_, err := e.Authorize(ctx, alice.SessionID)
	require.NoError(t, err)

	e.clock.Advance(3 * time.Second)
	online := e.Online(ctx)
	require.Len(t, online, 1)
	assert.Equal(t, "alice", online[0].DisplayName)

	// истечение не освобождает имя
	_, err = e.Join(ctx, "bob", "")
	assert.ErrorIs(t, err, errors.ErrNameTaken)
}

func TestBan_SessionPolicy(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := e.join(t, "admin")
	bob := e.join(t, "bob")
	alice := e.join(t, "alice")

	assert.ErrorIs(t, e.BanUser(ctx, alice.SessionID, "bob"), errors.ErrUnauthorized)
	assert.ErrorIs(t, e.BanUser(ctx, admin.SessionID, "nobody"), errors.ErrNotFound)
	assert.ErrorIs(t, e.BanUser(ctx, admin.SessionID, "admin"), errors.ErrValidation)

	require.NoError(t, e.BanUser(ctx, admin.SessionID, "bob"))

	for _, p := range e.Online(ctx) {
		assert.NotEqual(t, "bob", p.DisplayName)
	}

	_, err := e.Fetch(ctx, bob.SessionID, "")
	assert.ErrorIs(t, err, errors.ErrBanned)
	_, err = e.Send(ctx, bob.SessionID, SendInput{Content: "still here?"})
	assert.ErrorIs(t, err, errors.ErrBanned)
	assert.ErrorIs(t, e.Leave(ctx, bob.SessionID), errors.ErrBanned)

	rejoined := e.join(t, "bob")
	assert.NotEqual(t, bob.SessionID, rejoined.SessionID)

	snap, err := e.Fetch(ctx, alice.SessionID, "")
	require.NoError(t, err)
	assert.Contains(t, bodies(snap.Messages), "bob has been banned by admin")

	assert.Equal(t, []string{domain.EventTypeUserBanned + ":bob"}, e.audit.events)
}

func TestBan_NamePolicyAndUnban(t *testing.T) {
	e := newTestEngine(t, func(c *config.ChatConfig) { c.BanPolicy = config.BanPolicyName })
	ctx := context.Background()
	admin := e.join(t, "admin")
	e.join(t, "bob")

	require.NoError(t, e.BanUser(ctx, admin.SessionID, "bob"))
	_, err := e.Join(ctx, "bob", "")
	assert.ErrorIs(t, err, errors.ErrBanned)

	assert.ErrorIs(t, e.UnbanUser(ctx, admin.SessionID, "carol"), errors.ErrNotFound)
	require.NoError(t, e.UnbanUser(ctx, admin.SessionID, "bob"))
	e.join(t, "bob")
}

func TestBan_OriginPolicy(t *testing.T) {
	e := newTestEngine(t, func(c *config.ChatConfig) { c.BanPolicy = config.BanPolicyOrigin })
	ctx := context.Background()
	admin := e.join(t, "admin")
	_, err := e.Join(ctx, "bob", "10.0.0.7")
	require.NoError(t, err)

	require.NoError(t, e.BanUser(ctx, admin.SessionID, "bob"))

	_, err = e.Join(ctx, "robert", "10.0.0.7")
	assert.ErrorIs(t, err, errors.ErrBanned, "same origin under a new name")
	_, err = e.Join(ctx, "bob", "10.0.0.8")
	assert.NoError(t, err)
}

func TestClearChat_ResetsCursors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := e.join(t, "admin")
	alice := e.join(t, "alice")

	msg, err := e.Send(ctx, alice.SessionID, SendInput{Content: "before"})
	require.NoError(t, err)

	assert.ErrorIs(t, e.ClearChat(ctx, alice.SessionID), errors.ErrUnauthorized)
	require.NoError(t, e.ClearChat(ctx, admin.SessionID))

	snap, err := e.Fetch(ctx, alice.SessionID, msg.ID)
	require.NoError(t, err)
	assert.True(t, snap.Reset, "pre-clear cursor cannot be fetched again")
	assert.Equal(t, []string{"Chat cleared by admin"}, bodies(snap.Messages))
	assert.Equal(t, []string{domain.EventTypeChatCleared + ":"}, e.audit.events)
}

func TestClearChat_ConcurrentAppend(t *testing.T) {
	for i := 0; i < 50; i++ {
		e := newTestEngine(t)
		ctx := context.Background()
		admin := e.join(t, "admin")
		alice := e.join(t, "alice")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.ClearChat(ctx, admin.SessionID))
		}()
		go func() {
			defer wg.Done()
			_, err := e.Send(ctx, alice.SessionID, SendInput{Content: "msg1"})
			assert.NoError(t, err)
		}()
		wg.Wait()

		snap, err := e.Fetch(ctx, alice.SessionID, "")
		require.NoError(t, err)
		got := bodies(snap.Messages)
		if len(got) == 1 {
			// msg1 до очистки, очистка его стерла
			assert.Equal(t, []string{"Chat cleared by admin"}, got)
		} else {
			assert.Equal(t, []string{"Chat cleared by admin", "msg1"}, got)
		}
	}
}

func TestPush_GlobalOrderAndTypingExclusion(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	alice := e.join(t, "alice")
	bob := e.join(t, "bob")

	subA, err := e.Connect(ctx, alice.SessionID)
	require.NoError(t, err)
	subB, err := e.Connect(ctx, bob.SessionID)
	require.NoError(t, err)
	drain(subA)
	drain(subB)

	var wg sync.WaitGroup
	for _, sid := range []uuid.UUID{alice.SessionID, bob.SessionID} {
		wg.Add(1)
		go func(sid uuid.UUID) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := e.Send(ctx, sid, SendInput{Content: "m"})
				assert.NoError(t, err)
			}
		}(sid)
	}
	wg.Wait()

	evA, evB := drain(subA), drain(subB)
	require.Len(t, evA, 20)
	require.Len(t, evB, 20)
	for i := range evA {
		assert.Equal(t, evA[i].Seq, evB[i].Seq)
		assert.Equal(t, evA[i].Message.ID, evB[i].Message.ID)
		if i > 0 {
			assert.Less(t, evA[i-1].Seq, evA[i].Seq)
		}
	}

	require.NoError(t, e.SetTyping(ctx, alice.SessionID, true))
	assert.Empty(t, drain(subA), "typing is not echoed to its origin")
	typing := drain(subB)
	require.Len(t, typing, 1)
	assert.Equal(t, domain.EventTyping, typing[0].Type)
	assert.True(t, typing[0].Typing)
	assert.Equal(t, "alice", typing[0].Name)
}

func TestPush_BanIsTerminal(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	admin := e.join(t, "admin")
	bob := e.join(t, "bob")

	subAdmin, err := e.Connect(ctx, admin.SessionID)
	require.NoError(t, err)
	subBob, err := e.Connect(ctx, bob.SessionID)
	require.NoError(t, err)
	drain(subAdmin)
	drain(subBob)

	require.NoError(t, e.BanUser(ctx, admin.SessionID, "bob"))

	ev, ok := <-subBob.Events()
	require.True(t, ok)
	assert.Equal(t, domain.EventBanned, ev.Type)
	_, ok = <-subBob.Events()
	assert.False(t, ok, "channel closed after the terminal event")
	assert.Equal(t, CloseReasonBanned, subBob.Reason())

	leave := drain(subAdmin)
	require.Len(t, leave, 1)
	assert.Equal(t, domain.EventLeave, leave[0].Type)
	assert.Equal(t, domain.LeaveReasonBanned, leave[0].Reason)

	// транспорт закрывает сокет и зовет Disconnect, это не должно порождать leave
	e.Disconnect(subBob)
	assert.Empty(t, drain(subAdmin))

	_, err = e.Connect(ctx, bob.SessionID)
	assert.ErrorIs(t, err, errors.ErrBanned)
}

func TestDisconnect_Policies(t *testing.T) {
	ctx := context.Background()

	t.Run("leave on disconnect", func(t *testing.T) {
		e := newTestEngine(t)
		alice := e.join(t, "alice")
		sub, err := e.Connect(ctx, alice.SessionID)
		require.NoError(t, err)
		require.NoError(t, e.SetTyping(ctx, alice.SessionID, true))

		e.Disconnect(sub)
		assert.Empty(t, e.Online(ctx))
		e.join(t, "alice")
	})

	t.Run("keep identity", func(t *testing.T) {
		e := newTestEngine(t, func(c *config.ChatConfig) { c.LeaveOnDisconnect = false })
		alice := e.join(t, "alice")
		bob := e.join(t, "bob")
		sub, err := e.Connect(ctx, alice.SessionID)
		require.NoError(t, err)
		require.NoError(t, e.SetTyping(ctx, alice.SessionID, true))

		e.Disconnect(sub)
		snap, err := e.Fetch(ctx, bob.SessionID, "")
		require.NoError(t, err)
		assert.Empty(t, snap.Typing, "no ghost typing after disconnect")

		e.clock.Advance(11 * time.Second)
		_, err = e.Authorize(ctx, bob.SessionID)
		require.NoError(t, err)
		online := e.Online(ctx)
		require.Len(t, online, 1)
		assert.Equal(t, "bob", online[0].DisplayName)
	})
}

func TestSweep(t *testing.T) {
	e := newTestEngine(t, func(c *config.ChatConfig) { c.IdleEvictAfter = time.Minute })
	ctx := context.Background()
	alice := e.join(t, "alice")
	bob := e.join(t, "bob")
	sub, err := e.Connect(ctx, bob.SessionID)
	require.NoError(t, err)

	require.NoError(t, e.SetTyping(ctx, alice.SessionID, true))
	drain(sub)

	e.clock.Advance(4 * time.Second)
	e.Sweep(e.clock.Now())
	events := drain(sub)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventTyping, events[0].Type)
	assert.False(t, events[0].Typing)

	e.clock.Advance(2 * time.Minute)
	e.Sweep(e.clock.Now())

	// alice простаивала, bob держит push-канал
	online := e.Online(ctx)
	require.Len(t, online, 1)
	assert.Equal(t, "bob", online[0].DisplayName)
	e.join(t, "alice")
}

func TestDisconnect_AfterSlowDrop(t *testing.T) {
	ctx := context.Background()
	for _, leave := range []bool{true, false} {
		t.Run(map[bool]string{true: "leave", false: "keep identity"}[leave], func(t *testing.T) {
			e := newTestEngine(t, func(c *config.ChatConfig) {
				c.PushBuffer = 1
				c.LeaveOnDisconnect = leave
			})
			alice := e.join(t, "alice")
			bob := e.join(t, "bob")

			sub, err := e.Connect(ctx, bob.SessionID)
			require.NoError(t, err)
			// bob не читает, буфер уже занят presence-событием
			for i := 0; i < 5; i++ {
				_, err := e.Send(ctx, alice.SessionID, SendInput{Content: "spam"})
				require.NoError(t, err)
			}
			drain(sub)
			require.Equal(t, CloseReasonSlow, sub.Reason())

			e.Disconnect(sub)
			e.clock.Advance(time.Hour)
			_, err = e.Authorize(ctx, alice.SessionID)
			require.NoError(t, err)

			names := make([]string, 0)
			for _, p := range e.Online(ctx) {
				names = append(names, p.DisplayName)
			}
			assert.Equal(t, []string{"alice"}, names)
		})
	}
}

func TestDisconnect_AfterSlowDropWithNewSocket(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, func(c *config.ChatConfig) { c.PushBuffer = 1 })
	alice := e.join(t, "alice")
	bob := e.join(t, "bob")

	old, err := e.Connect(ctx, bob.SessionID)
	require.NoError(t, err)
	_, err = e.Send(ctx, alice.SessionID, SendInput{Content: "spam"})
	require.NoError(t, err)
	drain(old)
	require.Equal(t, CloseReasonSlow, old.Reason())

	// клиент успел переподключиться до того, как транспорт закрыл старый сокет
	_, err = e.Connect(ctx, bob.SessionID)
	require.NoError(t, err)
	e.Disconnect(old)

	_, err = e.Authorize(ctx, bob.SessionID)
	assert.NoError(t, err)
	assert.True(t, e.hub.Subscribed(bob.SessionID))
}

func TestTyping_PullReadDoesNotHideStopFromPush(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	alice := e.join(t, "alice")
	bob := e.join(t, "bob")

	sub, err := e.Connect(ctx, bob.SessionID)
	require.NoError(t, err)
	require.NoError(t, e.SetTyping(ctx, alice.SessionID, true))

	e.clock.Advance(5 * time.Second)
	snap, err := e.Fetch(ctx, alice.SessionID, "")
	require.NoError(t, err)
	assert.Empty(t, snap.Typing)
	snap, err = e.Fetch(ctx, bob.SessionID, "")
	require.NoError(t, err)
	assert.Empty(t, snap.Typing)

	e.Sweep(e.clock.Now())

	var typing []bool
	for _, ev := range drain(sub) {
		if ev.Type == domain.EventTyping && ev.Name == "alice" {
			typing = append(typing, ev.Typing)
		}
	}
	assert.Equal(t, []bool{true, false}, typing)
}
