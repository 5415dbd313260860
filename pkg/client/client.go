// Package client - HTTP-клиент pull-протокола чата.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/xtrafr/chatvercel/internal/domain"
)

// LoginResponse - ответ на успешный вход
type LoginResponse struct {
	SessionID      string                 `json:"session_id"`
	Token          string                 `json:"token"`
	Username       string                 `json:"username"`
	IsAdmin        bool                   `json:"is_admin"`
	Messages       []domain.Message       `json:"messages"`
	OnlineUsers    []domain.PresenceEntry `json:"online_users"`
	Cursor         string                 `json:"cursor"`
	PollIntervalMs int64                  `json:"poll_interval_ms"`
}

// PollInterval - интервал опроса, который советует сервер
func (r *LoginResponse) PollInterval() time.Duration {
	if r.PollIntervalMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(r.PollIntervalMs) * time.Millisecond
}

type SendRequest struct {
	Content string             `json:"content"`
	Kind    domain.MessageKind `json:"type,omitempty"`
	ReplyTo string             `json:"reply_to,omitempty"`
}

// Client не потокобезопасен для Login, остальные вызовы можно делать параллельно
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New создает клиент, token может быть пустым до Login
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Token() string {
	return c.token
}

// Login входит в чат и запоминает токен сессии
func (c *Client) Login(ctx context.Context, username string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.post(ctx, "/api/login", map[string]string{"username": username}, &resp); err != nil {
		return nil, fmt.Errorf("client.Login: %w", err)
	}
	c.token = resp.Token
	return &resp, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.post(ctx, "/api/logout", nil, nil); err != nil {
		return fmt.Errorf("client.Logout: %w", err)
	}
	c.token = ""
	return nil
}

// Poll забирает все после cursor вместе с typing и присутствием
func (c *Client) Poll(ctx context.Context, cursor string) (*domain.Snapshot, error) {
	params := url.Values{}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	path := "/api/messages"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var snap domain.Snapshot
	if err := c.get(ctx, path, &snap); err != nil {
		return nil, fmt.Errorf("client.Poll: %w", err)
	}
	return &snap, nil
}

func (c *Client) Send(ctx context.Context, req SendRequest) (*domain.Message, error) {
	var msg domain.Message
	if err := c.post(ctx, "/api/send-message", req, &msg); err != nil {
		return nil, fmt.Errorf("client.Send: %w", err)
	}
	return &msg, nil
}

func (c *Client) SetTyping(ctx context.Context, isTyping bool) error {
	if err := c.post(ctx, "/api/typing", map[string]bool{"is_typing": isTyping}, nil); err != nil {
		return fmt.Errorf("client.SetTyping: %w", err)
	}
	return nil
}

func (c *Client) Users(ctx context.Context) ([]domain.PresenceEntry, error) {
	var resp struct {
		Users []domain.PresenceEntry `json:"users"`
	}
	if err := c.get(ctx, "/api/users", &resp); err != nil {
		return nil, fmt.Errorf("client.Users: %w", err)
	}
	return resp.Users, nil
}

// Replies - сообщение и ответы на него, еще живущие в логе
func (c *Client) Replies(ctx context.Context, messageID string) (*domain.Thread, error) {
	var thread domain.Thread
	if err := c.get(ctx, "/api/messages/"+url.PathEscape(messageID)+"/replies", &thread); err != nil {
		return nil, fmt.Errorf("client.Replies: %w", err)
	}
	return &thread, nil
}

// ClearChat доступен только админу
func (c *Client) ClearChat(ctx context.Context) error {
	if err := c.post(ctx, "/api/admin/clear-chat", nil, nil); err != nil {
		return fmt.Errorf("client.ClearChat: %w", err)
	}
	return nil
}

func (c *Client) BanUser(ctx context.Context, username string) error {
	if err := c.post(ctx, "/api/admin/ban-user", map[string]string{"username": username}, nil); err != nil {
		return fmt.Errorf("client.BanUser: %w", err)
	}
	return nil
}

// UnbanUser снимает блокировку имени или адреса
func (c *Client) UnbanUser(ctx context.Context, target string) error {
	if err := c.post(ctx, "/api/admin/unban", map[string]string{"target": target}, nil); err != nil {
		return fmt.Errorf("client.UnbanUser: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Error}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
