package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequireAPIKey(t *testing.T) {
	t.Parallel()

	reached := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name      string
		apiKey    string
		header    string
		want      int
		challenge string
		body      string
	}{
		{"open without key", "", "", http.StatusNoContent, "", ""},
		{"missing header", "s3cret", "", http.StatusUnauthorized, `Bearer realm="docqa"`, `{"error":"authorization required"}`},
		{"basic scheme", "s3cret", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, `Bearer realm="docqa"`, `{"error":"authorization required"}`},
		{"empty token", "s3cret", "Bearer   ", http.StatusUnauthorized, `Bearer realm="docqa"`, `{"error":"authorization required"}`},
		{"wrong token", "s3cret", "Bearer guess", http.StatusUnauthorized, `Bearer realm="docqa" error="invalid_token"`, `{"error":"invalid token"}`},
		{"prefix of key", "s3cret", "Bearer s3cre", http.StatusUnauthorized, `Bearer realm="docqa" error="invalid_token"`, `{"error":"invalid token"}`},
		{"correct token", "s3cret", "Bearer s3cret", http.StatusNoContent, "", ""},
		{"lowercase scheme", "s3cret", "bearer s3cret", http.StatusNoContent, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := postJSON("/api/query", `{"question":"q"}`)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			requireAPIKey(tc.apiKey, reached).ServeHTTP(w, req)

			assert.Equal(t, tc.want, w.Code)
			assert.Equal(t, tc.challenge, w.Header().Get("WWW-Authenticate"))
			if tc.body != "" {
				assert.JSONEq(t, tc.body, w.Body.String())
			}
		})
	}
}

func TestRoutes_IngestRejectsMissingToken(t *testing.T) {
	t.Parallel()
	ing := &fakeIngester{}
	s, _ := newRoutedServer(t, "s3cret", ing)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, postJSON("/api/ingest", `{"sources":["a.pdf"]}`))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, ing.sources)
}
