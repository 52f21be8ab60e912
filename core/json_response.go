package core

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorDetail is the body of every error response.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

type errorBody struct {
	Error ErrorDetail `json:"error"`
}

// JSON writes v as a JSON response with the given status code.
// Success payloads are written flat, without an envelope.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err as a JSON error response. HTTPError values map onto
// their own status code, validator errors become a 400 with per-field
// details, everything else is a generic 500. Internal error detail is
// never exposed beyond the short key and message.
func Error(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	detail := ErrorDetail{Code: ErrInternalServerError.Key}

	var httpErr HTTPError
	var valErrs validator.ValidationErrors
	switch {
	case errors.As(err, &valErrs):
		status = http.StatusBadRequest
		detail.Code = ErrBadRequest.Key
		detail.Message = "request validation failed"
		detail.Details = make(map[string][]string, len(valErrs))
		for _, fe := range valErrs {
			detail.Details[fe.Field()] = append(detail.Details[fe.Field()], fe.Tag())
		}
	case errors.As(err, &httpErr):
		status = httpErr.Code
		detail.Code = httpErr.Key
		detail.Message = http.StatusText(httpErr.Code)
	}

	JSON(w, status, errorBody{Error: detail})
}
