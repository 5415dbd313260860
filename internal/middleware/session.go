package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/internal/service"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

const (
	SessionIDKey = "session_id"
	IdentityKey  = "identity"
)

type SessionMiddleware struct {
	tokens service.TokenService
	chat   service.ChatService
	log    logger.Logger
}

func NewSessionMiddleware(tokens service.TokenService, chat service.ChatService, log logger.Logger) *SessionMiddleware {
	return &SessionMiddleware{tokens: tokens, chat: chat, log: log}
}

// RequireSession разбирает токен сессии и обновляет ее активность.
// Токен берется из Authorization: Bearer или из ?token= (для WebSocket).
func (m *SessionMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := m.tokens.Parse(TokenFromRequest(c))
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		identity, err := m.chat.Authorize(c.Request.Context(), sessionID)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}

		c.Set(SessionIDKey, sessionID)
		c.Set(IdentityKey, identity)
		c.Next()
	}
}

func TokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return c.Query("token")
}

// SessionID доступен после RequireSession
func SessionID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(SessionIDKey); ok {
		if sid, ok := v.(uuid.UUID); ok {
			return sid
		}
	}
	return uuid.Nil
}

func Identity(c *gin.Context) domain.Identity {
	if v, ok := c.Get(IdentityKey); ok {
		if identity, ok := v.(domain.Identity); ok {
			return identity
		}
	}
	return domain.Identity{}
}
