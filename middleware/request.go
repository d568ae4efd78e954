package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
)

type bodyContextKey struct{}

// Body returns the request body buffered by MaxBody. Without MaxBody in the chain it returns
// nil; handlers should then read r.Body themselves.
func Body(r *http.Request) []byte {
	b, _ := r.Context().Value(bodyContextKey{}).([]byte)
	return b
}

// bufferBody reads at most limit bytes of r.Body. It reports false when the body is larger.
// The returned request carries the bytes in its context and a rewound Body.
func bufferBody(r *http.Request, limit int64) (*http.Request, bool, error) {
	if _, done := r.Context().Value(bodyContextKey{}).([]byte); done {
		return r, true, nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return r.WithContext(context.WithValue(r.Context(), bodyContextKey{}, []byte{})), true, nil
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	_ = r.Body.Close()
	if err != nil {
		return r, false, err
	}
	if int64(len(data)) > limit {
		return r, false, nil
	}

	r = r.WithContext(context.WithValue(r.Context(), bodyContextKey{}, data))
	r.Body = io.NopCloser(bytes.NewReader(data))
	r.ContentLength = int64(len(data))
	return r, true, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	const bearer = "Bearer "
	value := r.Header.Get("Authorization")
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
