package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"quiz-runner/internal/devbackend"
	"quiz-runner/internal/domain"
)

// Handler exposes the devbackend over the same HTTP contract the quiz
// client consumes, plus a websocket leaderboard stream.
type Handler struct {
	service  *devbackend.Service
	upgrader websocket.Upgrader
}

func NewHandler(service *devbackend.Service) *Handler {
	return &Handler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register wires all routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/question/user/", h.handleQuestions)
	mux.HandleFunc("/api/submit/", h.handleSubmit)
	mux.HandleFunc("/api/leaderboard/", h.handleLeaderboard)
	mux.HandleFunc("/ws", h.serveWS)
}

func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/api/question/user/")
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	questions, err := h.service.Questions(r.Context(), userID, r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, map[string]any{"unansweredQuestions": questions})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/api/submit/")
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	var sub domain.AnswerSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.QuestionID == "" {
		http.Error(w, "invalid submission payload", http.StatusBadRequest)
		return
	}
	if err := h.service.Submit(r.Context(), userID, sub); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, map[string]any{"recorded": true})
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimPrefix(r.URL.Path, "/api/leaderboard/")
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	lb := h.service.Leaderboard(r.Context(), userID)
	writeData(w, map[string]any{
		"leaderboard": lb.Entries,
		"user":        map[string]any{"rank": lb.UserRank},
	})
}

type outboundMessage struct {
	Type    string             `json:"type"`
	Payload domain.Leaderboard `json:"payload"`
}

// serveWS streams ranked leaderboard snapshots to spectators as scores
// change.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.service.Subscribe()
	defer cancel()

	// Reader pump: we never expect inbound frames, but reading is what
	// detects the peer going away.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case lb, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage{Type: "leaderboard", Payload: lb}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-disconnected:
			return
		}
	}
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": data}); err != nil {
		log.Printf("encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrQuestionSetNotFound), errors.Is(err, domain.ErrQuestionNotFound):
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}
