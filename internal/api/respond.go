package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/example/agent-commerce/internal/apperr"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

var errInvalidJSON = apperr.New(apperr.KindValidation, "invalid_json", "request body is not valid JSON")

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}

// statusFor maps an error kind onto its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an error body. Messages of storage and
// unclassified failures are not exposed.
func respondError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{
			Type:    apperr.KindUnknown.String(),
			Code:    "internal_error",
			Message: "internal server error",
		})
		return
	}

	body := ErrorResponse{
		Type:    appErr.Kind.String(),
		Code:    appErr.Code,
		Message: appErr.Message,
		Param:   appErr.Param,
	}
	switch appErr.Kind {
	case apperr.KindStorage:
		body.Message = "storage unavailable"
	case apperr.KindUnknown:
		body.Message = "internal server error"
	}
	respondJSON(w, statusFor(appErr.Kind), body)
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errInvalidJSON.WithMessage("invalid JSON body: " + err.Error())
}
