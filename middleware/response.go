package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	goShield "github.com/MrEthical07/goShield"
)

// WriteJSON writes the success envelope {success, message, data}.
func WriteJSON(w http.ResponseWriter, status int, message string, data any) {
	body := map[string]any{
		"success": true,
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	writeBody(w, status, body)
}

// WriteError renders err through goShield.ProblemFor.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	WriteProblem(w, r, logger, goShield.ProblemFor(err))
}

// WriteProblem writes the error envelope {success:false, message, code, ...extra}. Internal
// problems are logged with their cause; the cause never reaches the client.
func WriteProblem(w http.ResponseWriter, r *http.Request, logger *slog.Logger, p *goShield.Problem) {
	if p == nil {
		p = goShield.NewProblem(http.StatusInternalServerError, goShield.CodeInternal, "Internal server error.")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if p.Internal() {
		logger.ErrorContext(r.Context(), "goShield: request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", goShield.RequestID(r.Context()),
			"code", string(p.Code),
			"error", p.Error(),
		)
	}

	body := make(map[string]any, len(p.Extra)+3)
	for k, v := range p.Extra {
		body[k] = v
	}
	body["success"] = false
	body["message"] = p.Message
	body["code"] = p.Code

	if p.Status == http.StatusTooManyRequests {
		if retry, ok := p.Extra["retryAfter"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(retry))
		}
	}
	writeBody(w, p.Status, body)
}

func writeBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
