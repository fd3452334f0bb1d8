package errors

// Error codes carried in the "error" field of every error response.
const (
	// Room membership
	ErrCodeUnauthorized  = "unauthorized"
	ErrCodeInvalidToken  = "invalid_token"
	ErrCodeTokenExpired  = "token_expired"
	ErrCodeRoomMismatch  = "room_mismatch"
	ErrCodeNotRoomMember = "not_room_member"

	// Validation
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"
	ErrCodeInvalidRoomCode  = "invalid_room_code"

	// Rooms
	ErrCodeRoomNotFound       = "room_not_found"
	ErrCodeDuplicateRoomCode  = "duplicate_room_code"
	ErrCodePlayerNotFound     = "player_not_found"
	ErrCodeRoomCreationFailed = "room_creation_failed"
	ErrCodeJoinFailed         = "join_failed"
	ErrCodeRoomFetchFailed    = "room_fetch_failed"
	ErrCodeRoomUpdateFailed   = "room_update_failed"
	ErrCodeLeaveFailed        = "leave_failed"

	// Questions
	ErrCodeGenerationFailed = "generation_failed"

	// WebSocket
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Server
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
)
