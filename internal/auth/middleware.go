package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Middleware authenticates bearer tokens and stores the identity on the request context.
type Middleware struct {
	secret []byte
	logger *slog.Logger
}

// NewMiddleware constructs the middleware.
func NewMiddleware(secret []byte, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{secret: secret, logger: logger}
}

// Wrap rejects requests without a valid token with 401.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		claims, err := ParseToken(token, m.secret)
		if err != nil {
			m.logger.Debug("reject bearer token", slog.Any("error", err))
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		ctx := shared.ContextWithIdentity(r.Context(), claims.Identity())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
