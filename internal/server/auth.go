package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docqa-go/internal/logging"
)

// bearerChallenge is sent with every 401.
const bearerChallenge = `Bearer realm="docqa"`

// requireAPIKey guards next with "Authorization: Bearer <apiKey>". An empty
// apiKey leaves next unguarded; New refuses to expose ingestion that way.
// Rejections use the API's JSON error body and never log the token.
func requireAPIKey(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, present := bearerToken(r)
		if present && subtle.ConstantTimeCompare([]byte(token), want) == 1 {
			next.ServeHTTP(w, r)
			return
		}

		challenge, msg := bearerChallenge, "authorization required"
		if present {
			challenge, msg = bearerChallenge+` error="invalid_token"`, "invalid token"
		}
		logging.FromContext(r.Context()).Warn("auth: request rejected",
			slog.String("path", r.URL.Path),
			slog.Bool("token_present", present),
		)
		w.Header().Set("WWW-Authenticate", challenge)
		writeError(w, http.StatusUnauthorized, msg)
	})
}

// bearerToken extracts the token of a Bearer Authorization header. present is
// false when the header is absent, uses another scheme or is empty.
func bearerToken(r *http.Request) (token string, present bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
