package authn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/iudanet/keywitness/pkg/api"
)

type contextKey string

const identityKey contextKey = "authn.identity"

// IdentityFromContext возвращает личность, положенную middleware
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	return identity, ok
}

// ContextWithIdentity кладет identity в контекст вручную (для тестов handler'ов)
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// Middleware аутентифицирует подписанный запрос и кладет Identity в контекст.
// Тело запроса читается целиком (с лимитом 64 KiB) для подсчета хеша
// и восстанавливается для следующего handler'а
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				a.reject(w, r, &AuthError{
					Status:  http.StatusBadRequest,
					Message: "request body too large",
					Reason:  "body exceeds 64 KiB limit",
				})
				return
			}
			a.reject(w, r, &AuthError{
				Status:  http.StatusBadRequest,
				Message: "failed to read request body",
				Reason:  err.Error(),
			})
			return
		}

		identity, authErr := a.Authenticate(r.Context(), r.Method, r.URL.Path, body, r.Header)
		if authErr != nil {
			a.reject(w, r, authErr)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, authErr *AuthError) {
	// Причина отказа - только в логи, клиенту уходит единый текст
	a.logger.WarnContext(r.Context(), "request authentication failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", authErr.Status),
		slog.String("reason", authErr.Reason),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(authErr.Status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: authErr.Message})
}
