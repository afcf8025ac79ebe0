package drillapi

import (
	"context"
	"crypto/rand"
	"net/http"
)

type ctxKey int

const requestIDKey ctxKey = 1

var ridAlphabet = []byte("abcdefghijklmnopqrstuvwxyz0123456789")

func newRequestID() string {
	raw := make([]byte, 10)
	_, _ = rand.Read(raw)
	out := make([]byte, len(raw))
	for i, b := range raw {
		out[i] = ridAlphabet[int(b)%len(ridAlphabet)]
	}
	return string(out)
}

// RequestID tags each request with an id, honoring a well-formed one
// supplied by the client.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if len(rid) != 10 {
			rid = newRequestID()
		}
		w.Header().Set("X-Request-ID", rid)
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id stored by the middleware, or "".
func GetRequestID(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey).(string); ok {
		return s
	}
	return ""
}
