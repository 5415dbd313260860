// Package tui - терминальный pull-клиент чата.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/pkg/client"
)

const (
	maxKeptMessages = 500
	maxInputLen     = 2000
	shortIDLen      = 6
	requestTimeout  = 5 * time.Second
)

// API - то, что модели нужно от клиента
type API interface {
	Poll(ctx context.Context, cursor string) (*domain.Snapshot, error)
	Send(ctx context.Context, req client.SendRequest) (*domain.Message, error)
	SetTyping(ctx context.Context, isTyping bool) error
	Logout(ctx context.Context) error
	ClearChat(ctx context.Context) error
	BanUser(ctx context.Context, username string) error
	UnbanUser(ctx context.Context, target string) error
}

type pollTickMsg time.Time

type pollResultMsg struct {
	snap *domain.Snapshot
	err  error
	// внеплановый опрос после отправки, тик не перезапускает
	immediate bool
}

type sentMsg struct{}

type actionResultMsg struct {
	status string
	err    error
}

type logoutMsg struct{}

// Model - состояние экрана чата
type Model struct {
	api        API
	me         string
	isAdmin    bool
	pollEvery  time.Duration
	messages   []domain.Message
	cursor     string
	typing     []string
	online     []domain.PresenceEntry
	input      string
	typingSent bool
	status     string
	err        string
	terminated bool
	width      int
	height     int
}

// New строит модель из ответа на login
func New(api API, login *client.LoginResponse) Model {
	m := Model{
		api:       api,
		me:        login.Username,
		isAdmin:   login.IsAdmin,
		pollEvery: login.PollInterval(),
		cursor:    login.Cursor,
		online:    login.OnlineUsers,
		width:     80,
		height:    24,
	}
	m.appendMessages(login.Messages)
	return m
}

func (m Model) Init() tea.Cmd {
	return m.pollTick()
}

func (m Model) pollTick() tea.Cmd {
	return tea.Tick(m.pollEvery, func(t time.Time) tea.Msg {
		return pollTickMsg(t)
	})
}

func (m Model) poll(immediate bool) tea.Cmd {
	api, cursor := m.api, m.cursor
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		snap, err := api.Poll(ctx, cursor)
		return pollResultMsg{snap: snap, err: err, immediate: immediate}
	}
}

func (m Model) next(msg pollResultMsg) tea.Cmd {
	if msg.immediate {
		return nil
	}
	return m.pollTick()
}

func (m Model) do(status string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return actionResultMsg{status: status, err: fn(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case pollTickMsg:
		if m.terminated {
			return m, nil
		}
		return m, m.poll(false)

	case pollResultMsg:
		if msg.err != nil {
			if client.IsTerminal(msg.err) {
				m.terminate(msg.err)
				return m, nil
			}
			// временные ошибки не останавливают опрос
			m.err = msg.err.Error()
			return m, m.next(msg)
		}
		m.err = ""
		m.applySnapshot(msg.snap)
		return m, m.next(msg)

	case sentMsg:
		m.status = ""
		return m, m.poll(true)

	case actionResultMsg:
		if msg.err != nil {
			if client.IsTerminal(msg.err) {
				m.terminate(msg.err)
				return m, nil
			}
			m.status = "error: " + msg.err.Error()
			return m, nil
		}
		m.status = msg.status
		return m, nil

	case logoutMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) terminate(err error) {
	m.terminated = true
	m.err = "session ended: " + err.Error()
}

func (m *Model) applySnapshot(snap *domain.Snapshot) {
	if snap == nil {
		return
	}
	if snap.Reset {
		m.messages = nil
	}
	m.appendMessages(snap.Messages)
	// курсор берем по последнему известному сообщению, ответы могут прийти не по порядку
	if n := len(m.messages); n > 0 {
		m.cursor = m.messages[n-1].ID
	} else {
		m.cursor = snap.Cursor
	}
	m.typing = snap.Typing
	m.online = snap.Online
}

func (m *Model) appendMessages(msgs []domain.Message) {
	var last uint64
	if n := len(m.messages); n > 0 {
		last = m.messages[n-1].Seq
	}
	for _, msg := range msgs {
		// повтор того же курсора не должен дублировать сообщения
		if msg.Seq != 0 && msg.Seq <= last {
			continue
		}
		m.messages = append(m.messages, msg)
		last = msg.Seq
	}
	if len(m.messages) > maxKeptMessages {
		m.messages = append([]domain.Message(nil), m.messages[len(m.messages)-maxKeptMessages:]...)
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, m.logout()
	case tea.KeyEnter:
		line := strings.TrimSpace(m.input)
		m.input = ""
		m.typingSent = false
		if line == "" {
			return m, nil
		}
		return m.submit(line)
	case tea.KeyBackspace:
		if m.input != "" {
			r := []rune(m.input)
			m.input = string(r[:len(r)-1])
		}
		cmd := m.typingCmd()
		return m, cmd
	case tea.KeySpace:
		return m.typeText(" ")
	case tea.KeyRunes:
		return m.typeText(string(msg.Runes))
	}
	return m, nil
}

func (m Model) typeText(s string) (tea.Model, tea.Cmd) {
	if m.terminated || utf8.RuneCountInString(m.input)+utf8.RuneCountInString(s) > maxInputLen {
		return m, nil
	}
	m.input += s
	cmd := m.typingCmd()
	return m, cmd
}

// typingCmd шлет индикатор только при смене состояния
func (m *Model) typingCmd() tea.Cmd {
	if m.terminated || strings.HasPrefix(m.input, "/") {
		return nil
	}
	want := m.input != ""
	if want == m.typingSent {
		return nil
	}
	m.typingSent = want
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := api.SetTyping(ctx, want); err != nil {
			return actionResultMsg{err: err}
		}
		return nil
	}
}

func (m Model) submit(line string) (tea.Model, tea.Cmd) {
	if !strings.HasPrefix(line, "/") {
		if m.terminated {
			return m, nil
		}
		return m, m.send(client.SendRequest{Content: line, Kind: domain.MessageKindText})
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return m, m.logout()
	}
	if m.terminated {
		m.status = "session ended, /quit to exit"
		return m, nil
	}

	switch cmd {
	case "/reply":
		ref, text, _ := strings.Cut(arg, " ")
		target, ok := m.findByPrefix(ref)
		if !ok {
			m.status = "no message matches " + ref
			return m, nil
		}
		text = strings.TrimSpace(text)
		if text == "" {
			m.status = "usage: /reply <id> <text>"
			return m, nil
		}
		return m, m.send(client.SendRequest{Content: text, Kind: domain.MessageKindText, ReplyTo: target.ID})
	case "/clear":
		if !m.isAdmin {
			m.status = "admin only"
			return m, nil
		}
		api := m.api
		return m, m.do("chat cleared", api.ClearChat)
	case "/ban":
		if !m.isAdmin || arg == "" {
			m.status = "usage: /ban <username> (admin only)"
			return m, nil
		}
		api := m.api
		return m, m.do("banned "+arg, func(ctx context.Context) error { return api.BanUser(ctx, arg) })
	case "/unban":
		if !m.isAdmin || arg == "" {
			m.status = "usage: /unban <username|origin> (admin only)"
			return m, nil
		}
		api := m.api
		return m, m.do("unbanned "+arg, func(ctx context.Context) error { return api.UnbanUser(ctx, arg) })
	}
	m.status = "unknown command " + cmd
	return m, nil
}

func (m Model) send(req client.SendRequest) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if _, err := api.Send(ctx, req); err != nil {
			return actionResultMsg{err: err}
		}
		return sentMsg{}
	}
}

func (m Model) logout() tea.Cmd {
	if m.terminated {
		return tea.Quit
	}
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_ = api.Logout(ctx) //nolint:errcheck // выходим в любом случае
		return logoutMsg{}
	}
}

func (m Model) findByPrefix(ref string) (domain.Message, bool) {
	if ref == "" {
		return domain.Message{}, false
	}
	for i := len(m.messages) - 1; i >= 0; i-- {
		if strings.HasPrefix(m.messages[i].ID, ref) {
			return m.messages[i], true
		}
	}
	return domain.Message{}, false
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

func (m Model) View() string {
	var b strings.Builder

	names := make([]string, 0, len(m.online))
	for _, p := range m.online {
		names = append(names, p.DisplayName)
	}
	header := fmt.Sprintf("chat · %s · online %d", m.me, len(m.online))
	if m.isAdmin {
		header += " · admin"
	}
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")
	if len(names) > 0 {
		b.WriteString(dimStyle.Render(strings.Join(names, ", ")))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	lines := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		lines = append(lines, m.renderMessage(msg))
	}
	// шапка, typing, статус и поле ввода
	budget := m.height - 7
	if budget > 0 && len(lines) > budget {
		lines = lines[len(lines)-budget:]
	}
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")

	if typing := m.othersTyping(); len(typing) > 0 {
		b.WriteString(dimStyle.Render(strings.Join(typing, ", ") + " typing..."))
	}
	b.WriteString("\n")

	switch {
	case m.err != "":
		b.WriteString(errStyle.Render(m.err))
	case m.status != "":
		b.WriteString(dimStyle.Render(m.status))
	}
	b.WriteString("\n")

	b.WriteString(inputStyle.Width(m.width).Render("> " + m.input + "█"))
	return b.String()
}

func (m Model) renderMessage(msg domain.Message) string {
	ts := dimStyle.Render(msg.CreatedAt.Local().Format("15:04:05"))
	if msg.Kind == domain.MessageKindSystem {
		return ts + " " + systemStyle.Render(msg.Content)
	}

	author := authorStyle.Render(msg.Author)
	if msg.Author == m.me {
		author = selfStyle.Render(msg.Author)
	} else if m.isOnlineAdmin(msg.Author) {
		author = adminStyle.Render(msg.Author)
	}

	content := msg.Content
	switch msg.Kind {
	case domain.MessageKindImage:
		content = "[image] " + content
	case domain.MessageKindFile:
		content = "[file] " + content
	}

	line := fmt.Sprintf("%s %s %s: %s", ts, dimStyle.Render(shortID(msg.ID)), author, content)
	if rs := msg.ReplySnapshot; rs != nil {
		line = quoteStyle.Render("↳ "+rs.Author+": "+truncate(rs.Content, 60)) + "\n" + line
	}
	return line
}

func (m Model) isOnlineAdmin(name string) bool {
	for _, p := range m.online {
		if p.DisplayName == name {
			return p.IsAdmin
		}
	}
	return false
}

func (m Model) othersTyping() []string {
	out := make([]string, 0, len(m.typing))
	for _, name := range m.typing {
		if name != m.me {
			out = append(out, name)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
