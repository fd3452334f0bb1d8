package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/wager-quiz/internal/roomstore"
	httperrors "github.com/gokatarajesh/wager-quiz/pkg/http/errors"
	ws "github.com/gokatarajesh/wager-quiz/pkg/http/ws"
)

// FeedHandler upgrades GET /ws/rooms/{code} and registers the socket with the hub.
// Sockets only receive payload-less change signals; clients refetch the room.
type FeedHandler struct {
	store    roomstore.Store
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewFeedHandler(store roomstore.Store, hub *ws.Hub, allowedOrigins []string, logger zerolog.Logger) *FeedHandler {
	return &FeedHandler{
		store: store,
		hub:   hub,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With().Str("component", "room_feed").Logger(),
	}
}

func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code, ok := roomCodeParam(w, r)
	if !ok {
		return
	}
	if _, err := h.store.FetchRoomState(r.Context(), code); err != nil {
		if errors.Is(err, roomstore.ErrRoomNotFound) {
			httperrors.RespondNotFound(w, httperrors.ErrCodeRoomNotFound, "Room not found")
			return
		}
		h.logger.Error().Err(err).Str("room_code", code).Msg("room lookup failed")
		httperrors.RespondError(w, http.StatusServiceUnavailable, httperrors.ErrCodeServiceUnavailable, "Room store unavailable")
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("room_code", code).Msg("websocket upgrade failed")
		return
	}

	conn := ws.NewConnection(raw, h.logger)
	h.hub.Register(code, conn)
	feedConnections.Inc()
	defer func() {
		h.hub.Unregister(code, conn)
		feedConnections.Dec()
	}()

	go conn.WritePump()
	conn.ReadPump(func(msg ws.Message) error {
		switch msg.Type {
		case ws.TypePing:
			pong, _ := ws.NewMessage(ws.TypePong, nil)
			pong.RequestID = msg.RequestID
			return conn.Send(pong)
		default:
			reply, err := ws.NewMessage(ws.TypeError, ws.ErrorPayload{
				Code:    httperrors.ErrCodeUnknownMessageType,
				Message: "unsupported message type " + msg.Type,
			})
			if err != nil {
				return err
			}
			reply.RequestID = msg.RequestID
			return conn.Send(reply)
		}
	})
}

// originChecker accepts requests without an Origin header (native clients) and
// browser requests from an allowed origin. "*" allows every origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
