package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// RoomsHandler exposes the non-websocket room surface: creation by the host
// and snapshot reads.
type RoomsHandler struct {
	service *app.RoomService
}

func NewRoomsHandler(service *app.RoomService) *RoomsHandler {
	return &RoomsHandler{service: service}
}

type createRoomRequest struct {
	QuizID  string          `json:"quizId"`
	HostID  string          `json:"hostId"`
	Options app.RoomOptions `json:"options"`
}

// ServeRooms handles POST /rooms (create) and GET /rooms/{idOrCode}
// (snapshot).
func (h *RoomsHandler) ServeRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.snapshot(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RoomsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.QuizID == "" || req.HostID == "" {
		http.Error(w, "missing quizId or hostId", http.StatusBadRequest)
		return
	}

	info, err := h.service.CreateRoom(r.Context(), req.QuizID, req.HostID, req.Options)
	if err != nil {
		if errors.Is(err, domain.ErrQuizNotFound) {
			http.Error(w, "quiz not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("quiz_id", req.QuizID).Msg("room creation failed")
		http.Error(w, "room creation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(info)
}

func (h *RoomsHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	idOrCode := strings.TrimPrefix(r.URL.Path, "/rooms/")
	if idOrCode == "" || strings.Contains(idOrCode, "/") {
		http.Error(w, "missing room id or code", http.StatusBadRequest)
		return
	}

	machine, err := h.service.Resolve(idOrCode)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(machine.Snapshot())
}
