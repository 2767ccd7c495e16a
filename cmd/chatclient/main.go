// chatclient: терминальный клиент чата одной поездки.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/cwrk-planet/tripchat/internal/logger"
	"github.com/cwrk-planet/tripchat/pkg/chatclient"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "base URL of the tripchat server")
	tripID := flag.String("trip", "", "trip id to open")
	token := flag.String("token", "dev", "bearer token")
	userID := flag.String("user", "", "user id (header auth mode)")
	logPath := flag.String("log", "", "write debug log to this file")
	flag.Parse()

	if strings.TrimSpace(*tripID) == "" {
		fmt.Fprintln(os.Stderr, "-trip is required")
		os.Exit(2)
	}

	// stdout занят интерфейсом
	var out io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("open log: %v", err)
		}
		defer f.Close()
		out = f
	}
	logger.Init(logger.Config{
		Service: "tripchat-client",
		Env:     logger.EnvDev,
		Backend: logger.BackendStd,
		Level:   slog.LevelDebug,
		Out:     out,
	})

	wsURL, err := toWebSocketURL(*server)
	if err != nil {
		log.Fatalf("server url: %v", err)
	}

	h := http.Header{}
	if *token != "" {
		h.Set("Authorization", "Bearer "+*token)
	}
	if *userID != "" {
		h.Set("X-User-ID", *userID)
	}

	sess := chatclient.NewSession(chatclient.NewWSTransport(wsURL, h), chatclient.SessionConfig{
		TripID: *tripID,
		Logger: logger.L(),
	})
	hist := chatclient.NewHistoryClient(*server, *token, *userID, nil)

	m := newModel(sess, hist, *tripID, *userID)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		sess.Close()
		log.Fatalf("chatclient: %v", err)
	}
}

// toWebSocketURL превращает http(s)://host в ws(s)://host/ws.
func toWebSocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}
