package api

import (
	"encoding/json"
	"fmt"

	"github.com/medlink-labs/medlink/internal/domain"
)

// Error codes returned inside the response envelope. The set is closed;
// anything else the server sends is preserved verbatim in Error.Code but
// treated like "internal".
const (
	CodeValidation   = "validation"
	CodeNotFound     = "not-found"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeInternal     = "internal"
)

// Error is a structured failure reported by the remote API, either as an
// envelope with ok=false or as a non-2xx status without a parseable body.
type Error struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    json.RawMessage
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("api: %s (http %d)", e.Message, e.HTTPStatus)
}

// Unwrap maps credential-class codes onto the domain sentinel so callers can
// use errors.Is(err, domain.ErrCredentialsInvalid).
func (e *Error) Unwrap() error {
	switch e.Code {
	case CodeUnauthorized, CodeForbidden:
		return domain.ErrCredentialsInvalid
	}
	if e.HTTPStatus == 401 || e.HTTPStatus == 403 {
		return domain.ErrCredentialsInvalid
	}
	return nil
}
