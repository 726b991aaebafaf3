package common

import (
	"errors"
	"net/http"
)

// AppError is an error that already knows how it should be rendered.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	default:
		return e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// body fills in the defaults for a partially populated AppError.
func (e *AppError) body() (int, ErrorBody) {
	out := ErrorBody{Code: e.Code, Message: e.Message, Details: e.Details}
	status := e.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if out.Code == "" {
		out.Code = "INTERNAL"
	}
	if out.Message == "" {
		out.Message = http.StatusText(status)
	}
	return status, out
}

func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// BadRequest reports a malformed request parameter.
func BadRequest(field, message string, err error) *AppError {
	e := NewAppError("BAD_REQUEST", message, http.StatusBadRequest, err)
	e.Details = map[string]any{"field": field}
	return e
}

func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// WriteError renders err in the error envelope. Anything that is not an
// AppError becomes an opaque 500.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	status, body := appErr.body()
	JSON(w, status, errorEnvelope{Error: body})
}
