package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/xtrafr/chatvercel/internal/tui"
	"github.com/xtrafr/chatvercel/pkg/client"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load() //nolint:errcheck // .env необязателен

	apiURL := os.Getenv("CHAT_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:3000"
	}

	username := os.Getenv("CHAT_USERNAME")
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "help", "--help", "-h":
			fmt.Println("usage: chat-tui <username>")
			fmt.Println("env: CHAT_API_URL (default http://localhost:3000), CHAT_USERNAME")
			return nil
		}
		username = os.Args[1]
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required: chat-tui <username>")
	}

	c := client.New(strings.TrimRight(apiURL, "/"), "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	login, err := c.Login(ctx, username)
	cancel()
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	p := tea.NewProgram(tui.New(c, login), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}
