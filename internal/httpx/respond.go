// Package httpx holds the JSON request and response helpers shared by the
// HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"altivio-backend/internal/store"
)

var validate = validator.New()

// BadRequest marks a client error whose message is safe to return.
type BadRequest struct {
	Msg string
}

func (e *BadRequest) Error() string { return e.Msg }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Message(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"message": msg})
}

// Error maps err onto a status. Only not-found and bad-request errors are
// described to the caller; the rest are logged and reported generically.
func Error(w http.ResponseWriter, log *slog.Logger, err error) {
	var bad *BadRequest
	switch {
	case errors.As(err, &bad):
		Message(w, http.StatusBadRequest, bad.Msg)
	case errors.Is(err, store.ErrNotFound):
		Message(w, http.StatusNotFound, "not found")
	default:
		log.Error("request failed", "err", err)
		Message(w, http.StatusInternalServerError, "internal error")
	}
}

// Decode reads a JSON body into dst and validates its struct tags.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return &BadRequest{Msg: "invalid json"}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return &BadRequest{Msg: strings.Join(parts, "; ")}
		}
		return &BadRequest{Msg: err.Error()}
	}
	return nil
}
