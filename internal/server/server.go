// Package server hosts the Feishu event callback endpoint. Each inbound
// event is processed on its own goroutine so the webhook responder never
// blocks on command handling.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wanzibot/wanzi/internal/command"
	"github.com/wanzibot/wanzi/internal/metrics"
)

// ChatSender delivers a reply into a chat; *notify.FeishuApp satisfies it.
type ChatSender interface {
	SendTextToChat(ctx context.Context, chatID, text string) error
}

// Server is the callback HTTP surface.
type Server struct {
	commands    *command.Handler
	sender      ChatSender
	verifyToken string

	// async is disabled in tests so handling is observable inline.
	async bool
}

// New wires the callback server. An empty verifyToken accepts all events.
func New(commands *command.Handler, sender ChatSender, verifyToken string) *Server {
	return &Server{commands: commands, sender: sender, verifyToken: verifyToken, async: true}
}

// Routes builds the handler: the callback plus health and metrics.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /feishu/callback", s.handleCallback)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type callbackPayload struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Token     string `json:"token"`
	Header    struct {
		Token string `json:"token"`
	} `json:"header"`
	Event struct {
		Type    string `json:"type"`
		Message struct {
			MessageType string `json:"message_type"`
			ChatID      string `json:"chat_id"`
			Content     string `json:"content"`
		} `json:"message"`
	} `json:"event"`
}

// verified checks the event token from the v2 header or the flat field.
func (s *Server) verified(p callbackPayload) bool {
	if s.verifyToken == "" {
		return true
	}
	token := p.Header.Token
	if token == "" {
		token = p.Token
	}
	return token == s.verifyToken
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, map[string]string{"error": "read failed"}, http.StatusBadRequest)
		return
	}
	var payload callbackPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			writeJSON(w, map[string]string{"error": "invalid json"}, http.StatusBadRequest)
			return
		}
	}

	if payload.Type == "url_verification" {
		if !s.verified(payload) {
			writeJSON(w, map[string]string{"error": "invalid token"}, http.StatusForbidden)
			return
		}
		writeJSON(w, map[string]string{"challenge": payload.Challenge}, http.StatusOK)
		return
	}

	if !s.verified(payload) {
		writeJSON(w, map[string]string{"error": "invalid token"}, http.StatusForbidden)
		return
	}

	metrics.WebhookEvents.Inc()
	if s.async {
		go s.handleEvent(payload)
	} else {
		s.handleEvent(payload)
	}
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// handleEvent processes one message event end to end: filter, parse,
// reply. It never returns an error to the webhook caller.
func (s *Server) handleEvent(p callbackPayload) {
	msg := p.Event.Message
	if msg.MessageType != "text" {
		slog.Debug("server: ignored non-text event",
			slog.String("message_type", msg.MessageType), slog.String("event_type", p.Event.Type))
		return
	}
	if msg.ChatID == "" {
		slog.Debug("server: missing chat_id")
		return
	}

	var content struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal([]byte(msg.Content), &content)
	if content.Text == "" {
		slog.Debug("server: empty text", slog.String("event_type", p.Event.Type))
		return
	}

	reply, ok := s.commands.Handle(context.Background(), content.Text)
	if !ok || reply == "" {
		slog.Debug("server: message not addressed to the bot")
		return
	}
	if err := s.sender.SendTextToChat(context.Background(), msg.ChatID, reply); err != nil {
		slog.Error("server: reply failed",
			slog.String("chat_id", msg.ChatID), slog.Any("error", err))
	}
}
