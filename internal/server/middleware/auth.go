package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/keywitness/internal/server/handlers"
	"github.com/iudanet/keywitness/pkg/api"
)

// sendUnauthorized отвечает 401 в единой для API форме {"error": "<текст>"}
func sendUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: message})
}

// SessionAuthMiddleware создает middleware для проверки сессионного JWT
// Используется только на session endpoint'е: все остальные защищенные
// операции ходят через подписанные запросы
func SessionAuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Извлекаем токен из заголовка Authorization
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header")
				sendUnauthorized(w, "missing token")
				return
			}

			// Ожидаем формат: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("Invalid Authorization header format")
				sendUnauthorized(w, "invalid token format")
				return
			}

			claims, err := handlers.ValidateAccessToken(jwtConfig, parts[1])
			if err != nil {
				logger.Warn("Invalid access token", "error", err)
				sendUnauthorized(w, "invalid token")
				return
			}

			// Добавляем claims в контекст для handler'а
			ctx := context.WithValue(r.Context(), handlers.SessionClaimsKey, claims)

			logger.Debug("Session authenticated",
				"account_id", claims.AccountID,
				"device_kid", claims.DeviceKID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
