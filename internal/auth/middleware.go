package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/tripchat/internal/logger"
)

// Middleware пропускает дальше только запросы с известным пользователем
// и кладёт его id в контекст.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := a.Authenticate(r.Context(), FromRequest(r))
			if err != nil {
				logger.FromContext(r.Context()).Debug("unauthenticated request", slog.Any("err", err))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{"code": "unauthorized", "message": "authentication required"},
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
