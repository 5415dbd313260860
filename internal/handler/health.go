package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xtrafr/chatvercel/internal/service"
)

type HealthHandler struct {
	chat    service.ChatService
	hub     *service.Hub
	started time.Time
	metrics http.Handler
}

func NewHealthHandler(chat service.ChatService, hub *service.Hub, gatherer prometheus.Gatherer) *HealthHandler {
	return &HealthHandler{
		chat:    chat,
		hub:     hub,
		started: time.Now(),
		metrics: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     "chatvercel",
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"online":      len(h.chat.Online(c.Request.Context())),
		"subscribers": h.hub.Len(),
	})
}

func (h *HealthHandler) Metrics(c *gin.Context) {
	h.metrics.ServeHTTP(c.Writer, c.Request)
}
