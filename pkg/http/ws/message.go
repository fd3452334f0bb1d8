package ws

import "encoding/json"

// MessageType constants for WebSocket protocol.
const (
	// Client -> Server
	TypePing = "ping"

	// Server -> Client
	TypeRoomChanged = "room_changed"
	TypePong        = "pong"
	TypeError       = "error"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// RoomChangedPayload carries no room data: receivers refetch the room.
type RoomChangedPayload struct {
	RoomCode string `json:"room_code"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage marshals payload into a typed message. A nil payload is omitted.
func NewMessage(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	msg.Payload = raw
	return msg, nil
}

// RoomChanged builds the change signal for a room.
func RoomChanged(code string) Message {
	raw, _ := json.Marshal(RoomChangedPayload{RoomCode: code})
	return Message{Type: TypeRoomChanged, Payload: raw}
}
