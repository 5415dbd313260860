package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "admin", cfg.Chat.AdminName)
	assert.Equal(t, 200, cfg.Chat.HistoryLimit)
	assert.Equal(t, 50, cfg.Chat.BootstrapLimit)
	assert.Equal(t, 10*time.Second, cfg.Chat.OnlineTimeout)
	assert.Equal(t, 3*time.Second, cfg.Chat.TypingQuiet)
	assert.Equal(t, BanPolicySession, cfg.Chat.BanPolicy)
	assert.Equal(t, 5, cfg.Upload.MaxFiles)
	assert.Equal(t, int64(5_000_000), cfg.Upload.MaxBytes)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("CHAT_BAN_POLICY", "Origin")
	t.Setenv("CHAT_HISTORY_LIMIT", "10")
	t.Setenv("CHAT_BOOTSTRAP_LIMIT", "5")
	t.Setenv("CHAT_LEAVE_ON_DISCONNECT", "off")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BanPolicyOrigin, cfg.Chat.BanPolicy)
	assert.Equal(t, 10, cfg.Chat.HistoryLimit)
	assert.False(t, cfg.Chat.LeaveOnDisconnect)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_InvalidIsRejected(t *testing.T) {
	t.Setenv("CHAT_BAN_POLICY", "forever")
	_, err := Load()
	assert.Error(t, err)
}

func TestChatConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ChatConfig)
	}{
		{"bootstrap above history", func(c *ChatConfig) { c.BootstrapLimit = c.HistoryLimit + 1 }},
		{"typing not shorter than online", func(c *ChatConfig) { c.TypingQuiet = c.OnlineTimeout }},
		{"empty admin", func(c *ChatConfig) { c.AdminName = " " }},
		{"zero push buffer", func(c *ChatConfig) { c.PushBuffer = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultChatConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, DefaultChatConfig().Validate())
}
