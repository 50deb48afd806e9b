package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"confreg.org/internal/auth"
	"confreg.org/internal/registry"
)

// Error codes carried in the "code" field of error bodies.
const (
	codeValidation         = "validation_error"
	codeUnauthorized       = "unauthorized"
	codeNotFound           = "not_found"
	codeConflict           = "conflict"
	codeInvalidCredentials = "invalid_credentials"
	codeIncorrectPassword  = "incorrect_password"
	codePasswordMismatch   = "password_mismatch"
	codeCorruptCredential  = "corrupt_credential"
	codeBadRequest         = "bad_request"
	codeRateLimited        = "rate_limited"
	codeInternal           = "internal_error"
)

type errorBody struct {
	Status    string                `json:"status"`
	Code      string                `json:"code"`
	Message   string                `json:"message"`
	Errors    []registry.FieldError `json:"errors,omitempty"`
	RequestID string                `json:"request_id,omitempty"`
}

type dataBody struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, message string, data any) {
	writeJSON(w, code, dataBody{Message: message, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, errCode, msg string, fields ...registry.FieldError) {
	status := "fail"
	if code >= http.StatusInternalServerError {
		status = "error"
	}
	writeJSON(w, code, errorBody{
		Status:    status,
		Code:      errCode,
		Message:   msg,
		Errors:    fields,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// handleError maps service errors onto HTTP responses. Anything unexpected is
// logged with its oops code and context and answered with a generic 500.
func (a *API) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *registry.ValidationError
		cerr *registry.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "Validation failed", verr.Fields...)
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, codeUnauthorized, "Unauthorized")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "Resource not found")
	case errors.As(err, &cerr):
		writeError(w, r, http.StatusBadRequest, codeConflict, cerr.Message)
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusBadRequest, codeConflict, "Resource already exists")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, codeInvalidCredentials, "Invalid credentials")
	case errors.Is(err, auth.ErrPasswordMismatch):
		writeError(w, r, http.StatusBadRequest, codePasswordMismatch, "New password and confirm password do not match")
	case errors.Is(err, auth.ErrIncorrectPassword):
		writeError(w, r, http.StatusBadRequest, codeIncorrectPassword, "Current password is incorrect")
	case errors.Is(err, auth.ErrCorruptCredential):
		writeError(w, r, http.StatusBadRequest, codeCorruptCredential, "Invalid password format in database")
	default:
		a.logError(r, "request failed", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "Internal Server Error")
	}
}

func (a *API) logError(r *http.Request, msg string, err error) {
	fields := []zap.Field{
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	if oerr, ok := oops.AsOops(err); ok {
		if code := oerr.Code(); code != nil {
			fields = append(fields, zap.Any("code", code))
		}
		if ctx := oerr.Context(); len(ctx) > 0 {
			fields = append(fields, zap.Any("context", ctx))
		}
	}
	a.log.Error(msg, fields...)
}

// decodeJSON reads exactly one JSON object from the request body. An empty
// body decodes as an empty object so the service reports the missing fields.
// A field of the wrong JSON type becomes a validation error naming it;
// unknown fields are ignored.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var (
			maxErr  *http.MaxBytesError
			typeErr *json.UnmarshalTypeError
		)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.As(err, &maxErr):
			return errors.New("request body too large")
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return registry.Invalid(typeErr.Field, typeErr.Field+" must be "+jsonKind(typeErr.Type.Kind()))
		default:
			return errors.New("request body is not valid JSON")
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func jsonKind(k reflect.Kind) string {
	switch k {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Slice, reflect.Array:
		return "an array"
	default:
		return "an object"
	}
}

// decodeBody decodes dst. Type mismatches are written as 422, anything else
// that cannot be decoded as 400.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := decodeJSON(r, dst)
	if err == nil {
		return true
	}
	var verr *registry.ValidationError
	if errors.As(err, &verr) {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "Validation failed", verr.Fields...)
		return false
	}
	writeError(w, r, http.StatusBadRequest, codeBadRequest, err.Error())
	return false
}

// idParam reads a positive integer id from the query string. A missing or
// malformed id is always a 422 naming the parameter.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "Validation failed",
			registry.FieldError{Field: name, Message: name + " is required"})
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusUnprocessableEntity, codeValidation, "Validation failed",
			registry.FieldError{Field: name, Message: name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}
