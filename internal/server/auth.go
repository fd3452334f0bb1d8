package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/wager-quiz/internal/auth/jwt"
	"github.com/gokatarajesh/wager-quiz/internal/match"
	httperrors "github.com/gokatarajesh/wager-quiz/pkg/http/errors"
)

type claimsKey struct{}

// RequireRoomToken validates the bearer room token and checks that it was issued
// for the room named in the path.
func RequireRoomToken(tokens *jwt.Manager, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeUnauthorized, "Room token required")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid authorization header")
				return
			}

			claims, err := tokens.Validate(parts[1])
			if err != nil {
				if errors.Is(err, jwt.ErrExpiredToken) {
					httperrors.RespondUnauthorized(w, httperrors.ErrCodeTokenExpired, "Room token expired")
					return
				}
				logger.Warn().Err(err).Msg("room token validation failed")
				httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid room token")
				return
			}

			code, err := match.NormalizeRoomCode(chi.URLParam(r, "code"))
			if err != nil || code != claims.RoomCode {
				httperrors.RespondForbidden(w, httperrors.ErrCodeRoomMismatch, "Token was issued for another room")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFrom(ctx context.Context) (*jwt.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*jwt.Claims)
	return claims, ok && claims != nil
}
