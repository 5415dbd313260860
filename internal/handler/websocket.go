package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/internal/middleware"
	"github.com/xtrafr/chatvercel/internal/service"
	"github.com/xtrafr/chatvercel/pkg/errors"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameSize  = 64 * 1024
	closeBanned   = 4001
	closeResync   = 4002
	closeReplaced = 4003
	frameError    = "error"
	framePong     = "pong"
)

// Inbound frame types
const (
	frameMessage    = "message"
	frameTyping     = "typing"
	frameStopTyping = "stop_typing"
	frameClearChat  = "clear_chat"
	frameBanUser    = "ban_user"
	frameUnbanUser  = "unban_user"
	frameLogout     = "logout"
	framePing       = "ping"
)

type inboundFrame struct {
	Type     string             `json:"type"`
	Content  string             `json:"content,omitempty"`
	Kind     domain.MessageKind `json:"kind,omitempty"`
	ReplyTo  string             `json:"reply_to,omitempty"`
	Username string             `json:"username,omitempty"`
	Target   string             `json:"target,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// WebSocketHandler - push-адаптер: события хаба в сокет, кадры из сокета в ChatService
type WebSocketHandler struct {
	chatService service.ChatService
	upgrader    websocket.Upgrader
	log         logger.Logger
}

func NewWebSocketHandler(chatService service.ChatService, allowedOrigins []string, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		chatService: chatService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// conn сериализует запись: gorilla допускает только одного писателя
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *conn) closeWith(code int, text string) {
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	_ = c.ws.Close()
}

// HandleChat требует middleware.RequireSession перед собой
func (h *WebSocketHandler) HandleChat(c *gin.Context) {
	sessionID := middleware.SessionID(c)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}
	wc := &conn{ws: ws}

	// контекст запроса gin отменяется после возврата хендлера
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := h.chatService.Connect(ctx, sessionID)
	if err != nil {
		h.writeError(wc, err)
		code := websocket.ClosePolicyViolation
		if errors.IsTerminal(err) {
			code = closeBanned
		}
		wc.closeWith(code, errors.CodeFromError(err))
		return
	}

	log := h.log.With("session_id", sessionID, "username", sub.Name)
	log.Info("WebSocket connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(wc, sub, log)
	}()

	h.readPump(ctx, wc, sessionID, log)

	h.chatService.Disconnect(sub)
	_ = ws.Close()
	<-done
	log.Info("WebSocket disconnected", "reason", sub.Reason())
}

func (h *WebSocketHandler) writePump(wc *conn, sub *service.Subscription, log logger.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				code, text := closeCodeFor(sub.Reason())
				wc.closeWith(code, text)
				return
			}
			if err := wc.writeJSON(ev); err != nil {
				log.Debug("Write failed", "error", err)
				_ = wc.ws.Close()
				return
			}
		case <-ticker.C:
			if err := wc.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = wc.ws.Close()
				return
			}
		}
	}
}

func (h *WebSocketHandler) readPump(ctx context.Context, wc *conn, sessionID uuid.UUID, log logger.Logger) {
	ws := wc.ws
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Unexpected close", "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.writeError(wc, fmt.Errorf("malformed frame: %w", errors.ErrValidation))
			continue
		}

		if err := h.dispatch(ctx, wc, sessionID, frame); err != nil {
			h.writeError(wc, err)
			if errors.IsTerminal(err) || errors.HTTPStatusFromError(err) == http.StatusUnauthorized {
				wc.closeWith(closeCodeForError(err), errors.CodeFromError(err))
				return
			}
		}
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, wc *conn, sessionID uuid.UUID, frame inboundFrame) error {
	switch frame.Type {
	case frameMessage:
		_, err := h.chatService.Send(ctx, sessionID, service.SendInput{
			Content: frame.Content,
			Kind:    frame.Kind,
			ReplyTo: frame.ReplyTo,
		})
		return err
	case frameTyping:
		return h.chatService.SetTyping(ctx, sessionID, true)
	case frameStopTyping:
		return h.chatService.SetTyping(ctx, sessionID, false)
	case frameClearChat:
		return h.chatService.ClearChat(ctx, sessionID)
	case frameBanUser:
		return h.chatService.BanUser(ctx, sessionID, frame.Username)
	case frameUnbanUser:
		return h.chatService.UnbanUser(ctx, sessionID, frame.Target)
	case frameLogout:
		return h.chatService.Leave(ctx, sessionID)
	case framePing:
		if _, err := h.chatService.Authorize(ctx, sessionID); err != nil {
			return err
		}
		return wc.writeJSON(gin.H{"type": framePong})
	default:
		return fmt.Errorf("unknown frame type %q: %w", frame.Type, errors.ErrValidation)
	}
}

func (h *WebSocketHandler) writeError(wc *conn, err error) {
	apiErr := errors.ToAPIError(err)
	if werr := wc.writeJSON(errorFrame{Type: frameError, Code: apiErr.Code, Error: apiErr.Message}); werr != nil {
		h.log.Debug("Failed to write error frame", "error", werr)
	}
}

func closeCodeFor(reason string) (int, string) {
	switch reason {
	case service.CloseReasonBanned:
		return closeBanned, reason
	case service.CloseReasonSlow:
		return closeResync, reason
	case service.CloseReasonReplaced:
		return closeReplaced, reason
	case service.CloseReasonShutdown:
		return websocket.CloseGoingAway, reason
	default:
		return websocket.CloseNormalClosure, reason
	}
}

func closeCodeForError(err error) int {
	if errors.IsTerminal(err) {
		return closeBanned
	}
	return websocket.ClosePolicyViolation
}
