package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ruralpay/wallet/internal/middleware"
	"github.com/ruralpay/wallet/internal/services"
	log "github.com/sirupsen/logrus"
)

const maxListLimit = 500

// MessageResponse is the acknowledgement returned by mutating endpoints.
type MessageResponse struct {
	Message string `json:"msg" example:"Deposit successful (INR)"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps a service error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidCurrency),
		errors.Is(err, services.ErrInvalidRecipient),
		errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrBalanceLimit),
		errors.Is(err, services.ErrNotFlagged),
		errors.Is(err, services.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrTransientConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sendServiceError writes err as {"error": message}. Storage and unexpected
// failures get a generic message; the detail only goes to the log.
func sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		message = "Service temporarily unavailable"
	case http.StatusInternalServerError:
		message = "An Internal Error Occurred"
	}
	if status >= http.StatusInternalServerError {
		log.Printf("[HTTP] %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	services.SendErrorResponse(w, message, status, nil)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return userID, true
}

// queryLimit reads ?limit=; zero means the service default.
func queryLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, false
	}
	return n, true
}
