package middleware

import (
	"mime"
	"net/http"
	"net/url"
	"strings"

	goShield "github.com/MrEthical07/goShield"
)

const (
	headerXContentTypeOptions     = "X-Content-Type-Options"
	headerXFrameOptions           = "X-Frame-Options"
	headerReferrerPolicy          = "Referrer-Policy"
	headerPermissionsPolicy       = "Permissions-Policy"
	headerCacheControl            = "Cache-Control"
	headerStrictTransportSecurity = "Strict-Transport-Security"
)

// DefaultMaxBody is the payload limit when none is configured.
const DefaultMaxBody int64 = 10 << 20

// SecurityHeaders sets the hardening response headers. API paths are marked no-store, and
// HSTS is only sent in production.
func SecurityHeaders(production bool) Interceptor {
	return InterceptorFunc(func(h http.Header, r *http.Request) (*http.Request, Outcome) {
		h.Set(headerXContentTypeOptions, "nosniff")
		h.Set(headerXFrameOptions, "DENY")
		h.Set(headerReferrerPolicy, "strict-origin-when-cross-origin")
		h.Set(headerPermissionsPolicy, "camera=(), microphone=(), geolocation=()")
		if strings.HasPrefix(r.URL.Path, "/api") {
			h.Set(headerCacheControl, "no-store")
		}
		if production {
			h.Set(headerStrictTransportSecurity, "max-age=31536000; includeSubDomains")
		}
		return r, Continue()
	})
}

// MaxBody buffers the body, rejecting anything over limit bytes with 413 PAYLOAD_TOO_LARGE.
// Later interceptors and handlers read the buffered copy through Body.
func MaxBody(limit int64) Interceptor {
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	return InterceptorFunc(func(_ http.Header, r *http.Request) (*http.Request, Outcome) {
		if r.ContentLength > limit {
			return r, ShortCircuit(payloadTooLarge(limit))
		}
		next, ok, err := bufferBody(r, limit)
		if err != nil {
			return r, ShortCircuit(goShield.NewProblem(http.StatusBadRequest, goShield.CodeValidation, "Could not read request body."))
		}
		if !ok {
			return r, ShortCircuit(payloadTooLarge(limit))
		}
		return next, Continue()
	})
}

func payloadTooLarge(limit int64) *goShield.Problem {
	return goShield.NewProblem(http.StatusRequestEntityTooLarge, goShield.CodePayloadTooLarge, "Request payload too large.").
		With("maxBytes", limit)
}

var allowedMediaTypes = map[string]bool{
	"application/json":                  true,
	"application/x-www-form-urlencoded": true,
	"multipart/form-data":               true,
}

// ContentType requires mutating requests that carry a body to be JSON, form or multipart.
func ContentType() Interceptor {
	return InterceptorFunc(func(_ http.Header, r *http.Request) (*http.Request, Outcome) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			return r, Continue()
		}
		if r.ContentLength == 0 && len(Body(r)) == 0 {
			return r, Continue()
		}

		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || !allowedMediaTypes[mediaType] {
			return r, ShortCircuit(goShield.NewProblem(http.StatusUnsupportedMediaType, goShield.CodeUnsupportedMedia,
				"Content-Type must be application/json, application/x-www-form-urlencoded or multipart/form-data."))
		}
		return r, Continue()
	})
}

// ParameterPollution collapses repeated query keys to their last value. Keys in allow may
// repeat.
func ParameterPollution(allow ...string) Interceptor {
	allowed := make(map[string]bool, len(allow))
	for _, k := range allow {
		allowed[k] = true
	}
	return InterceptorFunc(func(_ http.Header, r *http.Request) (*http.Request, Outcome) {
		if r.URL.RawQuery == "" {
			return r, Continue()
		}
		query, err := url.ParseQuery(r.URL.RawQuery)
		if err != nil {
			return r, Continue()
		}

		changed := false
		for k, vs := range query {
			if len(vs) > 1 && !allowed[k] {
				query[k] = vs[len(vs)-1:]
				changed = true
			}
		}
		if !changed {
			return r, Continue()
		}

		next := r.Clone(r.Context())
		next.URL.RawQuery = query.Encode()
		return next, Continue()
	})
}
