package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/middleware"
)

// decode unmarshals the buffered JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	body := bytes.TrimSpace(middleware.Body(r))
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &goShield.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	return nil
}
