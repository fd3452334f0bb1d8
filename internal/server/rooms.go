package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/wager-quiz/internal/auth/jwt"
	"github.com/gokatarajesh/wager-quiz/internal/match"
	"github.com/gokatarajesh/wager-quiz/internal/roomstore"
	httperrors "github.com/gokatarajesh/wager-quiz/pkg/http/errors"
)

// RoomHandlers exposes the room store over REST and hands out room tokens.
type RoomHandlers struct {
	store  roomstore.Store
	tokens *jwt.Manager
	logger zerolog.Logger
}

func NewRoomHandlers(store roomstore.Store, tokens *jwt.Manager, logger zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		store:  store,
		tokens: tokens,
		logger: logger.With().Str("component", "room_handlers").Logger(),
	}
}

// Create handles POST /v1/rooms
func (h *RoomHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req roomstore.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}

	code, err := match.NormalizeRoomCode(req.RoomCode)
	if err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeInvalidRoomCode, err.Error(), "room_code")
		return
	}
	if strings.TrimSpace(req.Host.ID) == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "host id is required", "host.id")
		return
	}
	if err := req.Settings.Validate(); err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, err.Error(), "settings")
		return
	}

	room, err := h.store.CreateRoom(r.Context(), code, req.Host, req.Settings)
	if err != nil {
		if errors.Is(err, roomstore.ErrDuplicateCode) {
			httperrors.RespondConflict(w, httperrors.ErrCodeDuplicateRoomCode, "Room code already in use")
			return
		}
		h.logger.Error().Err(err).Str("room_code", code).Msg("create room failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeRoomCreationFailed, "Could not create room")
		return
	}

	h.respondWithToken(w, http.StatusCreated, room, req.Host.ID)
}

// Join handles POST /v1/rooms/{code}/players
func (h *RoomHandlers) Join(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCodeParam(w, r)
	if !ok {
		return
	}

	var req roomstore.JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Player.ID) == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "player id is required", "player.id")
		return
	}

	room, err := h.store.JoinRoom(r.Context(), code, req.Player)
	if err != nil {
		if errors.Is(err, roomstore.ErrRoomNotFound) {
			httperrors.RespondNotFound(w, httperrors.ErrCodeRoomNotFound, "Room not found")
			return
		}
		h.logger.Error().Err(err).Str("room_code", code).Msg("join room failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeJoinFailed, "Could not join room")
		return
	}

	h.respondWithToken(w, http.StatusOK, room, req.Player.ID)
}

// Get handles GET /v1/rooms/{code}
func (h *RoomHandlers) Get(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCodeParam(w, r)
	if !ok {
		return
	}

	room, err := h.store.FetchRoomState(r.Context(), code)
	if err != nil {
		h.respondStoreError(w, err, code, httperrors.ErrCodeRoomFetchFailed)
		return
	}
	writeJSON(w, http.StatusOK, roomstore.RoomResponse{Room: room})
}

// Leave handles DELETE /v1/rooms/{code}/players/{playerID}. Players may only remove themselves.
func (h *RoomHandlers) Leave(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCodeParam(w, r)
	if !ok {
		return
	}
	playerID := chi.URLParam(r, "playerID")
	if claims, ok := claimsFrom(r.Context()); !ok || claims.PlayerID != playerID {
		httperrors.RespondForbidden(w, httperrors.ErrCodeNotRoomMember, "Players can only leave for themselves")
		return
	}

	if err := h.store.LeaveRoom(r.Context(), code, playerID); err != nil {
		h.respondStoreError(w, err, code, httperrors.ErrCodeLeaveFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdatePlayer handles PATCH /v1/rooms/{code}/players/{playerID}
func (h *RoomHandlers) UpdatePlayer(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCodeParam(w, r)
	if !ok {
		return
	}

	var patch match.PlayerPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}

	if err := h.store.UpdatePlayerState(r.Context(), code, chi.URLParam(r, "playerID"), patch); err != nil {
		h.respondStoreError(w, err, code, httperrors.ErrCodeRoomUpdateFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateRoom handles PATCH /v1/rooms/{code}
func (h *RoomHandlers) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCodeParam(w, r)
	if !ok {
		return
	}

	var patch match.RoomPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	if patch.Settings != nil {
		if err := patch.Settings.Validate(); err != nil {
			httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, err.Error(), "settings")
			return
		}
	}
	if patch.Phase != nil && !patch.Phase.Valid() {
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "unknown room phase", "phase")
		return
	}

	if err := h.store.UpdateRoom(r.Context(), code, patch); err != nil {
		h.respondStoreError(w, err, code, httperrors.ErrCodeRoomUpdateFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandlers) respondWithToken(w http.ResponseWriter, status int, room *match.Room, playerID string) {
	token, err := h.tokens.Issue(room.RoomCode, playerID)
	if err != nil {
		h.logger.Error().Err(err).Str("room_code", room.RoomCode).Msg("issue room token failed")
		httperrors.RespondInternalError(w, "Could not issue room token")
		return
	}
	writeJSON(w, status, roomstore.RoomResponse{Room: room, Token: token})
}

func (h *RoomHandlers) respondStoreError(w http.ResponseWriter, err error, code, fallback string) {
	switch {
	case errors.Is(err, roomstore.ErrRoomNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeRoomNotFound, "Room not found")
	case errors.Is(err, match.ErrPlayerNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodePlayerNotFound, "Player not found")
	default:
		h.logger.Error().Err(err).Str("room_code", code).Str("error_code", fallback).Msg("room store call failed")
		httperrors.RespondError(w, http.StatusInternalServerError, fallback, "Room store unavailable")
	}
}

func roomCodeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	code, err := match.NormalizeRoomCode(chi.URLParam(r, "code"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRoomCode, err.Error())
		return "", false
	}
	return code, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
