package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"basebuzz/logger"
)

// Application error codes. They map onto HTTP status codes in ReturnError.
const (
	ECONFLICT        = "conflict"
	EINTERNAL        = "internal"
	EINVALID         = "invalid"
	ENOTFOUND        = "not_found"
	EUNAUTHORIZED    = "unauthorized"
	EFORBIDDEN       = "forbidden"
	ETOOMANYREQUESTS = "too_many_requests"
)

// Validation errors shared by the crud services, returned when the caller passed
// an id that can never match a record.
var (
	IdInvalid   = Errorf(EINVALID, "The ID provided is invalid.")
	UserIdValid = Errorf(EINVALID, "A valid user ID is required.")
)

// Error represents an application-specific error. Code is one of the E* constants,
// Message is safe to show to the client.
type Error struct {
	Code    string
	Message string
}

// Error implements the error interface. Not used by the application otherwise.
func (e *Error) Error() string {
	return fmt.Sprintf("basebuzz error: code=%s message=%s", e.Code, e.Message)
}

// Errorf is a helper function to return an Error with a given code and formatted message.
func Errorf(code string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode unwraps an application error and returns its code.
// Non-application errors always return EINTERNAL.
func ErrorCode(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage unwraps an application error and returns its message.
// Non-application errors always return "Internal error".
func ErrorMessage(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error."
}

// codes maps application error codes to HTTP status codes.
var codes = map[string]int{
	ECONFLICT:        http.StatusConflict,
	EINVALID:         http.StatusBadRequest,
	ENOTFOUND:        http.StatusNotFound,
	EUNAUTHORIZED:    http.StatusUnauthorized,
	EFORBIDDEN:       http.StatusForbidden,
	ETOOMANYREQUESTS: http.StatusTooManyRequests,
	EINTERNAL:        http.StatusInternalServerError,
}

// ErrorStatusCode returns the associated HTTP status code for an application error code.
func ErrorStatusCode(code string) int {
	if v, ok := codes[code]; ok {
		return v
	}
	return http.StatusInternalServerError
}

// ReturnError writes the error as json with the matching status code. Internal
// errors are logged with the request's logger and their details are not exposed.
func ReturnError(w http.ResponseWriter, r *http.Request, err error) {
	code, message := ErrorCode(err), ErrorMessage(err)

	if code == EINTERNAL {
		LogError(r, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ErrorStatusCode(code))
	json.NewEncoder(w).Encode(&ErrorResponse{Error: message})
}

// LogError logs an error with the request's logger, which carries the request method and path.
func LogError(r *http.Request, err error) {
	l := logger.Ctx(r.Context())
	l.Error().Err(err).Msg("request failed")
}

// ErrorResponse is the json body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
