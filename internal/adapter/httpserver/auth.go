package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type ctxKey string

const teamKey ctxKey = "auth.team"

// BearerAuth authorizes internal callers against a static token map
// (token -> team). Anything without a valid token gets 403; the team lands
// in the request context for audit logging.
func BearerAuth(tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				writeJSON(w, http.StatusForbidden, errorEnvelope{Error: apiError{Code: "FORBIDDEN", Message: "missing bearer token"}})
				return
			}
			team, ok := tokens[strings.TrimPrefix(h, "Bearer ")]
			if !ok {
				slog.Warn("internal api token rejected", slog.String("path", r.URL.Path))
				writeJSON(w, http.StatusForbidden, errorEnvelope{Error: apiError{Code: "FORBIDDEN", Message: "invalid token"}})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), teamKey, team)))
		})
	}
}

// CallerTeam returns the team of the authenticated caller, empty when the
// request skipped auth.
func CallerTeam(ctx context.Context) string {
	team, _ := ctx.Value(teamKey).(string)
	return team
}
