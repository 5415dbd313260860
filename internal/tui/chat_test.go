package tui

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/pkg/client"
)

type fakeAPI struct {
	mu      sync.Mutex
	polls   []string
	sent    []client.SendRequest
	typing  []bool
	banned  []string
	cleared int
	snap    *domain.Snapshot
	pollErr error
	logout  bool
}

func (f *fakeAPI) Poll(_ context.Context, cursor string) (*domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls = append(f.polls, cursor)
	return f.snap, f.pollErr
}

func (f *fakeAPI) Send(_ context.Context, req client.SendRequest) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return &domain.Message{Content: req.Content}, nil
}

func (f *fakeAPI) SetTyping(_ context.Context, isTyping bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, isTyping)
	return nil
}

func (f *fakeAPI) Logout(context.Context) error {
	f.logout = true
	return nil
}

func (f *fakeAPI) ClearChat(context.Context) error {
	f.cleared++
	return nil
}

func (f *fakeAPI) BanUser(_ context.Context, username string) error {
	f.banned = append(f.banned, username)
	return nil
}

func (f *fakeAPI) UnbanUser(context.Context, string) error { return nil }

func msgAt(seq uint64, id, author, content string) domain.Message {
	return domain.Message{
		ID:        id,
		Seq:       seq,
		Author:    author,
		Content:   content,
		Kind:      domain.MessageKindText,
		CreatedAt: time.Date(2026, 1, 1, 12, 0, int(seq), 0, time.UTC),
	}
}

func newTestModel(api *fakeAPI, admin bool) Model {
	return New(api, &client.LoginResponse{
		Username:       "alice",
		IsAdmin:        admin,
		Cursor:         "m1",
		PollIntervalMs: 100,
		Messages:       []domain.Message{msgAt(1, "m1", "bob", "hello alice")},
	})
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func typeString(t *testing.T, m Model, s string) Model {
	t.Helper()
	for _, r := range s {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestNew_RendersBootstrap(t *testing.T) {
	m := newTestModel(&fakeAPI{}, false)
	view := m.View()
	assert.Contains(t, view, "bob")
	assert.Contains(t, view, "hello alice")
	assert.Equal(t, 100*time.Millisecond, m.pollEvery)
}

func TestPollResult_AppendsAndAdvancesCursor(t *testing.T) {
	m := newTestModel(&fakeAPI{}, false)

	snap := &domain.Snapshot{
		Messages: []domain.Message{msgAt(2, "m2", "bob", "second")},
		Typing:   []string{"bob", "alice"},
		Online:   []domain.PresenceEntry{{DisplayName: "alice", Online: true}, {DisplayName: "bob", Online: true}},
		Cursor:   "m2",
	}
	m, cmd := update(t, m, pollResultMsg{snap: snap})
	assert.NotNil(t, cmd, "regular poll schedules the next tick")
	assert.Len(t, m.messages, 2)
	assert.Equal(t, "m2", m.cursor)

	// повторная доставка того же ответа ничего не дублирует
	m, _ = update(t, m, pollResultMsg{snap: snap, immediate: true})
	assert.Len(t, m.messages, 2)

	view := m.View()
	assert.Contains(t, view, "bob typing...")
	assert.NotContains(t, view, "alice typing")
}

func TestPollResult_ResetReplacesHistory(t *testing.T) {
	m := newTestModel(&fakeAPI{}, false)
	m, _ = update(t, m, pollResultMsg{snap: &domain.Snapshot{
		Messages: []domain.Message{{ID: "m9", Seq: 9, Kind: domain.MessageKindSystem, Content: "Chat cleared by admin"}},
		Cursor:   "m9",
		Reset:    true,
	}})
	require.Len(t, m.messages, 1)
	assert.Equal(t, "m9", m.cursor)
	assert.NotContains(t, m.View(), "hello alice")
}

func TestPollResult_ImmediateDoesNotReschedule(t *testing.T) {
	m := newTestModel(&fakeAPI{}, false)
	_, cmd := update(t, m, pollResultMsg{snap: &domain.Snapshot{Cursor: "m1"}, immediate: true})
	assert.Nil(t, cmd)
}

func TestPollResult_TerminalStopsPolling(t *testing.T) {
	m := newTestModel(&fakeAPI{}, false)
	banned := &client.HTTPError{StatusCode: http.StatusGone, Code: "banned", Message: "banned"}

	m, cmd := update(t, m, pollResultMsg{err: banned})
	assert.Nil(t, cmd)
	assert.True(t, m.terminated)
	assert.Contains(t, m.View(), "session ended")

	_, cmd = update(t, m, pollTickMsg(time.Now()))
	assert.Nil(t, cmd)
}

func TestPollResult_TransientKeepsPolling(t *testing.T) {
	m := newTestModel(&fakeAPI{}, false)
	m, cmd := update(t, m, pollResultMsg{err: &client.HTTPError{StatusCode: http.StatusServiceUnavailable, Message: "busy"}})
	assert.NotNil(t, cmd)
	assert.False(t, m.terminated)
}

func TestTyping_SentOnlyOnChange(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(api, false)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("h")})
	require.NotNil(t, cmd)
	cmd()
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("i")})
	assert.Nil(t, cmd)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	require.NotNil(t, cmd)
	cmd()

	assert.Equal(t, []bool{true, false}, api.typing)
}

func TestSubmit_SendsThenPollsImmediately(t *testing.T) {
	api := &fakeAPI{snap: &domain.Snapshot{Cursor: "m1"}}
	m := newTestModel(api, false)
	m = typeString(t, m, "/reply m1 hi bob")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Empty(t, m.input)

	res := cmd()
	require.IsType(t, sentMsg{}, res)
	require.Len(t, api.sent, 1)
	assert.Equal(t, "hi bob", api.sent[0].Content)
	assert.Equal(t, "m1", api.sent[0].ReplyTo)

	_, cmd = update(t, m, res)
	require.NotNil(t, cmd)
	poll, ok := cmd().(pollResultMsg)
	require.True(t, ok)
	assert.True(t, poll.immediate)
	assert.Equal(t, []string{"m1"}, api.polls)
}

func TestSubmit_ReplyUnknownTarget(t *testing.T) {
	m := newTestModel(&fakeAPI{}, false)
	m = typeString(t, m, "/reply zz text")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Contains(t, m.status, "no message matches")
}

func TestSubmit_AdminCommands(t *testing.T) {
	api := &fakeAPI{}

	m := newTestModel(api, false)
	m = typeString(t, m, "/ban bob")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Contains(t, m.status, "admin only")

	m = newTestModel(api, true)
	m = typeString(t, m, "/ban bob")
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	assert.Equal(t, []string{"bob"}, api.banned)
	assert.Equal(t, "banned bob", m.status)

	m = typeString(t, m, "/clear")
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, api.cleared)
}

func TestQuit_LogsOut(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(api, false)
	m = typeString(t, m, "/quit")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	res := cmd()
	assert.True(t, api.logout)

	_, cmd = update(t, m, res)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestView_ShowsReplyQuote(t *testing.T) {
	m := newTestModel(&fakeAPI{}, false)
	reply := msgAt(2, "m2", "alice", "indeed")
	reply.ReplyTo = "m1"
	reply.ReplySnapshot = &domain.ReplySnapshot{Author: "bob", Content: "hello alice", Kind: domain.MessageKindText}
	m, _ = update(t, m, pollResultMsg{snap: &domain.Snapshot{Messages: []domain.Message{reply}, Cursor: "m2"}})

	view := m.View()
	assert.True(t, strings.Contains(view, "↳ bob: hello alice"), view)
}
