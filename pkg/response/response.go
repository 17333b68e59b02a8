package response

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

type Response struct {
	ResponseError `json:"error,omitzero"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error Codes
type ErrCode string

var (
	FAILED_REQUEST     ErrCode = "REQUEST_FAILED"
	BAD_REQUEST        ErrCode = "FAILED_TO_DECODE"
	VALIDATION_FAILED  ErrCode = "VALIDATION_FAILED"
	NOT_FOUND          ErrCode = "NOT_FOUND"
	LOCKED             ErrCode = "LOCKED"
	CONFLICT           ErrCode = "CONFLICT"
	SLOT_NOT_AVAILABLE ErrCode = "SLOT_NOT_AVAILABLE"
	INVALID_STATE      ErrCode = "INVALID_STATE"
	EXTERNAL_SERVICE   ErrCode = "EXTERNAL_SERVICE"
	FORBIDDEN          ErrCode = "FORBIDDEN"
	UNAUTHORIZED       ErrCode = "UNAUTHORIZED"
)

var (
	ErrBadRequest      = errors.New("bad request")
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("resource not found")
	ErrLocked          = errors.New("resource is locked")
	ErrConflict        = errors.New("slot is not available")
	ErrInvalidState    = errors.New("operation not allowed in current state")
	ErrExternalService = errors.New("external service failure")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
)

func Error(code, msg string) Response {
	return Response{
		ResponseError: ResponseError{
			Code:    code,
			Message: msg,
		},
	}
}

// Classify maps a service error onto an HTTP status and error code.
// ok is false for errors outside the known taxonomy.
func Classify(err error) (status int, code ErrCode, ok bool) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, VALIDATION_FAILED, true
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, NOT_FOUND, true
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, SLOT_NOT_AVAILABLE, true
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict, INVALID_STATE, true
	case errors.Is(err, ErrLocked):
		return http.StatusLocked, LOCKED, true
	case errors.Is(err, ErrExternalService):
		return http.StatusBadGateway, EXTERNAL_SERVICE, true
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, FORBIDDEN, true
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, UNAUTHORIZED, true
	}
	return http.StatusInternalServerError, FAILED_REQUEST, false
}

// Fail writes the error envelope for err. fallback is the message used for
// unclassified errors so internal details are not leaked.
func Fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, code, ok := Classify(err)
	msg := fallback
	if ok {
		msg = err.Error()
	}
	w.WriteHeader(status)
	render.JSON(w, r, Error(string(code), msg))
}
