package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/xtrntr/carauction/internal/auctionerrors"
)

var errMissingNotification = fmt.Errorf("%w: id or markAllRead is required", auctionerrors.ErrInvalidInput)

// errorBody is the JSON shape of every failed response
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auctionerrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auctionerrors.ErrInvalidInput),
		errors.Is(err, auctionerrors.ErrAuctionNotActive),
		errors.Is(err, auctionerrors.ErrAuctionExpired),
		errors.Is(err, auctionerrors.ErrBelowMinimum),
		errors.Is(err, auctionerrors.ErrMustExceedCurrent),
		errors.Is(err, auctionerrors.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, auctionerrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, auctionerrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auctionerrors.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, auctionerrors.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to its HTTP status. Internal errors are logged and hidden from the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: auctionerrors.Code(err)})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", auctionerrors.ErrInvalidInput)
	}
	return nil
}
