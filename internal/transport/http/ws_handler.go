package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"context-hunter/internal/domain"
	"context-hunter/internal/game"
	"github.com/gorilla/websocket"
)

// WSHandler drives one play session per websocket connection.
type WSHandler struct {
	service  *game.Service
	upgrader websocket.Upgrader
}

func NewWSHandler(service *game.Service) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Text string `json:"text"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ServeWS upgrades the request and runs the session protocol. The session's
// mode, difficulty, category, and bearer token arrive as query parameters;
// the session itself lives exactly as long as the connection.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	mode := domain.Mode(r.URL.Query().Get("mode"))
	if !mode.Valid() {
		http.Error(w, "missing or unknown mode", http.StatusBadRequest)
		return
	}
	difficulty, err := strconv.Atoi(r.URL.Query().Get("difficulty"))
	if err != nil || difficulty < 1 {
		http.Error(w, "missing or invalid difficulty", http.StatusBadRequest)
		return
	}
	category := r.URL.Query().Get("category")
	creds := domain.Credentials{Token: r.URL.Query().Get("token")}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sessionID := newSessionID()
	if _, err := h.service.Start(r.Context(), sessionID, creds, mode, difficulty, category); err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.service.Abandon(sessionID)

	views, cancel, err := h.service.Subscribe(sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	viewsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// Forward every state change; the asynchronous challenge game-over
	// arrives here too, not just direct command responses.
	go func() {
		defer close(viewsDone)
		for {
			select {
			case view, ok := <-views:
				if !ok {
					return
				}
				msgs := []outboundMessage[any]{{Type: "state", Payload: view}}
				if view.Phase == game.PhaseTerminated && view.Summary != nil {
					msgs = append(msgs, outboundMessage[any]{Type: "gameOver", Payload: view.Summary})
				}
				for _, msg := range msgs {
					select {
					case send <- msg:
					case <-closeSignals:
						return
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			if _, err := h.service.Submit(r.Context(), sessionID, payload.Text); err != nil {
				if msg, ok := describeGameError(err); ok {
					send <- outboundMessage[any]{Type: "error", Payload: msg}
				}
			}
		case "next":
			if _, err := h.service.Advance(r.Context(), sessionID); err != nil {
				if msg, ok := describeGameError(err); ok {
					send <- outboundMessage[any]{Type: "error", Payload: msg}
				}
			}
		case "quit":
			h.service.Abandon(sessionID)
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
		if inbound.Type == "quit" {
			break
		}
	}

	close(closeSignals)
	<-viewsDone
	close(send)
	<-writerDone
}

// describeGameError maps service errors onto user-visible payloads. Empty
// input and out-of-phase commands are silently ignored per the game rules.
func describeGameError(err error) (errorPayload, bool) {
	switch {
	case errors.Is(err, domain.ErrEmptyAnswer),
		errors.Is(err, domain.ErrNotAcceptingAnswers),
		errors.Is(err, domain.ErrNotShowingFeedback):
		return errorPayload{}, false
	case errors.Is(err, domain.ErrVerificationFailed):
		return errorPayload{Message: "could not check your answer, please try again", Retryable: true}, true
	case errors.Is(err, domain.ErrQuestionReplenish):
		return errorPayload{Message: "could not load more questions, please try again", Retryable: true}, true
	default:
		return errorPayload{Message: err.Error()}, true
	}
}

func newSessionID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "session-fallback"
	}
	return hex.EncodeToString(buf[:])
}
