package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondHelpersWriteEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		want   ErrorResponse
	}{
		{
			name:   "not found",
			write:  func(w http.ResponseWriter) { RespondNotFound(w, ErrCodeRoomNotFound, "Room not found") },
			status: http.StatusNotFound,
			want:   ErrorResponse{Error: ErrCodeRoomNotFound, Message: "Room not found"},
		},
		{
			name:   "validation",
			write:  func(w http.ResponseWriter) { RespondValidationError(w, ErrCodeMissingField, "host id is required", "host.id") },
			status: http.StatusBadRequest,
			want:   ErrorResponse{Error: ErrCodeMissingField, Message: "host id is required", Field: "host.id"},
		},
		{
			name:   "provider",
			write:  func(w http.ResponseWriter) { RespondProviderError(w, http.StatusTooManyRequests, "quota exhausted", "QUOTA_EXCEEDED") },
			status: http.StatusTooManyRequests,
			want:   ErrorResponse{Error: ErrCodeGenerationFailed, Message: "quota exhausted", Code: "QUOTA_EXCEEDED"},
		},
		{
			name:   "internal",
			write:  func(w http.ResponseWriter) { RespondInternalError(w, "boom") },
			status: http.StatusInternalServerError,
			want:   ErrorResponse{Error: ErrCodeInternalError, Message: "boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var got ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondConflict(rec, ErrCodeDuplicateRoomCode, "Room code already in use")

	resp := Decode(rec.Code, rec.Body)
	assert.Equal(t, ErrCodeDuplicateRoomCode, resp.Error)
	assert.Equal(t, "Room code already in use", resp.Message)

	resp = Decode(http.StatusBadGateway, strings.NewReader("upstream connect error"))
	assert.Equal(t, "http_502", resp.Error)
	assert.Equal(t, "upstream connect error", resp.Message)

	resp = Decode(http.StatusTeapot, strings.NewReader(`{"message":"no code"}`))
	assert.Equal(t, "http_418", resp.Error)
}
