package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/room"
)

type WSHandler struct {
	service  *app.RoomService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.RoomService) *WSHandler {
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

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Context string `json:"context,omitempty"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the room
// use cases. The host connects the same way participants do; host-only
// actions are authorized inside the room worker.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomKey := r.URL.Query().Get("room")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if roomKey == "" || userID == "" {
		http.Error(w, "missing room or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	connID := uuid.NewString()

	participantID, isHost, _, err := h.service.Join(r.Context(), roomKey, userID, displayName, connID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: string(room.EventError), Payload: errorFor(err, "join")})
		return
	}

	events, cancel, snapshot, err := h.service.Subscribe(r.Context(), roomKey, participantID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: string(room.EventError), Payload: errorFor(err, "subscribe")})
		return
	}
	defer cancel()
	defer h.service.Detach(roomKey, connID)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// One writer goroutine per connection; gorilla connections do not allow
	// concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("conn_id", connID).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(ev.Type), Payload: ev.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// Snapshot replay first so a joining or reconnecting client is never
	// missing context.
	send <- outboundMessage[any]{Type: string(room.EventRoomSnapshot), Payload: snapshot}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, roomKey, userID, participantID, connID, isHost, inbound, send)
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, roomKey, userID, participantID, connID string, isHost bool, inbound inboundMessage, send chan<- outboundMessage[any]) {
	ctx := r.Context()
	switch inbound.Type {
	case "start":
		if err := h.service.StartRoom(ctx, roomKey, userID); err != nil {
			send <- outboundMessage[any]{Type: string(room.EventError), Payload: errorFor(err, "start")}
		}
	case "next":
		if err := h.service.NextQuestion(ctx, roomKey, userID); err != nil {
			send <- outboundMessage[any]{Type: string(room.EventError), Payload: errorFor(err, "next")}
		}
	case "end":
		if err := h.service.EndRoom(ctx, roomKey, userID); err != nil {
			send <- outboundMessage[any]{Type: string(room.EventError), Payload: errorFor(err, "end")}
		}
	case "answer":
		if isHost {
			send <- outboundMessage[any]{Type: string(room.EventError), Payload: errorPayload{Kind: "unauthorized", Context: "host cannot answer"}}
			return
		}
		var sub domain.AnswerSubmission
		if err := json.Unmarshal(inbound.Payload, &sub); err != nil {
			send <- outboundMessage[any]{Type: string(room.EventError), Payload: errorPayload{Kind: "badPayload", Context: "answer"}}
			return
		}
		_, err := h.service.SubmitAnswer(ctx, roomKey, participantID, sub)
		switch {
		case err == nil:
			// Scored result arrives as a targeted answerAck event.
		case errors.Is(err, domain.ErrDuplicateSubmission), errors.Is(err, domain.ErrStaleAction):
			// Expected races with auto-advance; already acknowledged as
			// no-ops through the event stream.
		default:
			send <- outboundMessage[any]{Type: string(room.EventError), Payload: errorFor(err, "answer")}
		}
	case "heartbeat":
		h.service.Heartbeat(roomKey, connID)
	default:
		send <- outboundMessage[any]{Type: string(room.EventError), Payload: errorPayload{Kind: "badPayload", Context: "unsupported message type"}}
	}
}

func errorFor(err error, context string) errorPayload {
	return errorPayload{Kind: errorKind(err), Context: context}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return "roomNotFound"
	case errors.Is(err, domain.ErrRoomNotActive):
		return "roomNotActive"
	case errors.Is(err, domain.ErrDuplicateSubmission):
		return "duplicateSubmission"
	case errors.Is(err, domain.ErrStaleAction):
		return "staleAction"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrParticipantNotFound):
		return "participantNotFound"
	case errors.Is(err, domain.ErrQuizNotFound):
		return "quizNotFound"
	default:
		return "internal"
	}
}
