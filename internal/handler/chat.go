package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/internal/middleware"
	"github.com/xtrafr/chatvercel/internal/service"
	"github.com/xtrafr/chatvercel/pkg/errors"
	"github.com/xtrafr/chatvercel/pkg/logger"
)

// ChatHandler - pull-протокол поверх REST
type ChatHandler struct {
	chatService  service.ChatService
	tokens       service.TokenService
	pollInterval int64
	log          logger.Logger
}

func NewChatHandler(chatService service.ChatService, tokens service.TokenService, pollIntervalMs int64, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService:  chatService,
		tokens:       tokens,
		pollInterval: pollIntervalMs,
		log:          log,
	}
}

type LoginRequest struct {
	Username string `json:"username"`
}

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

func (h *ChatHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(fmt.Errorf("invalid request body: %w", errors.ErrValidation))
		return
	}

	res, err := h.chatService.Join(c.Request.Context(), req.Username, c.ClientIP())
	if err != nil {
		c.Error(err)
		return
	}

	token, err := h.tokens.Issue(res.Identity)
	if err != nil {
		// личность уже создана, без токена она никому не нужна
		_ = h.chatService.Leave(c.Request.Context(), res.Identity.SessionID)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		SessionID:      res.Identity.SessionID.String(),
		Token:          token,
		Username:       res.Identity.DisplayName,
		IsAdmin:        res.Identity.IsAdmin,
		Messages:       res.Messages,
		OnlineUsers:    res.Online,
		Cursor:         res.Cursor,
		PollIntervalMs: h.pollInterval,
	})
}

func (h *ChatHandler) Logout(c *gin.Context) {
	if err := h.chatService.Leave(c.Request.Context(), middleware.SessionID(c)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetMessages - один poll: дельта после cursor плюс typing и online
func (h *ChatHandler) GetMessages(c *gin.Context) {
	snap, err := h.chatService.Fetch(c.Request.Context(), middleware.SessionID(c), c.Query("cursor"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *ChatHandler) GetReplies(c *gin.Context) {
	thread, err := h.chatService.Thread(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req service.SendInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(fmt.Errorf("invalid request body: %w", errors.ErrValidation))
		return
	}

	msg, err := h.chatService.Send(c.Request.Context(), middleware.SessionID(c), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

type TypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

func (h *ChatHandler) Typing(c *gin.Context) {
	var req TypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(fmt.Errorf("invalid request body: %w", errors.ErrValidation))
		return
	}

	if err := h.chatService.SetTyping(c.Request.Context(), middleware.SessionID(c), req.IsTyping); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ChatHandler) Users(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.chatService.Online(c.Request.Context())})
}

func (h *ChatHandler) ClearChat(c *gin.Context) {
	if err := h.chatService.ClearChat(c.Request.Context(), middleware.SessionID(c)); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type BanRequest struct {
	Username string `json:"username"`
}

func (h *ChatHandler) BanUser(c *gin.Context) {
	var req BanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(fmt.Errorf("invalid request body: %w", errors.ErrValidation))
		return
	}

	if err := h.chatService.BanUser(c.Request.Context(), middleware.SessionID(c), req.Username); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type UnbanRequest struct {
	Target string `json:"target"`
}

func (h *ChatHandler) UnbanUser(c *gin.Context) {
	var req UnbanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(fmt.Errorf("invalid request body: %w", errors.ErrValidation))
		return
	}

	if err := h.chatService.UnbanUser(c.Request.Context(), middleware.SessionID(c), req.Target); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
