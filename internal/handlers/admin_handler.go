package handlers

import (
	"fmt"
	"net/http"

	"github.com/ruralpay/wallet/internal/models"
	"github.com/ruralpay/wallet/internal/services"
)

type AdminHandler struct {
	reports   *services.ReportService
	reviews   *services.ReviewService
	validator *services.ValidationHelper
}

func NewAdminHandler(reports *services.ReportService, reviews *services.ReviewService) *AdminHandler {
	return &AdminHandler{
		reports:   reports,
		reviews:   reviews,
		validator: services.NewValidationHelper(),
	}
}

// ReviewRequest is an administrator's verdict on a flagged transaction.
type ReviewRequest struct {
	TransactionID string `json:"txn_id"`
	Status        string `json:"status" example:"cleared"`
	Comment       string `json:"review_comment,omitempty" validate:"max=1000" example:"customer confirmed by phone"`
}

type ReviewResponse struct {
	Message       string `json:"msg" example:"Transaction marked as cleared."`
	TransactionID string `json:"txn_id"`
	ReviewComment string `json:"review_comment"`
}

// FlaggedTransactions lists transactions awaiting or past review
// @Summary Flagged transactions
// @Description Every flagged transaction, newest first, with its review state
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum number of entries (1-500)"
// @Success 200 {array} services.FlaggedTransaction
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/flagged-transactions [get]
func (h *AdminHandler) FlaggedTransactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		services.SendErrorResponse(w, "Invalid limit", http.StatusBadRequest, nil)
		return
	}

	flagged, err := h.reports.Flagged(r.Context(), limit)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flagged)
}

// TopUsers ranks users by total balance
// @Summary Top users
// @Description Users ordered by their balance summed over all currencies
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of users (default 10)"
// @Success 200 {array} services.TopUser
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/top-users [get]
func (h *AdminHandler) TopUsers(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		services.SendErrorResponse(w, "Invalid limit", http.StatusBadRequest, nil)
		return
	}

	top, err := h.reports.TopUsers(r.Context(), limit)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, top)
}

// TotalBalances sums balances per currency
// @Summary Total balances
// @Description System-wide balance per currency
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]number
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/total-balances [get]
func (h *AdminHandler) TotalBalances(w http.ResponseWriter, r *http.Request) {
	totals, err := h.reports.TotalsByCurrency(r.Context())
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// ReviewFlagged records a verdict on a flagged transaction
// @Summary Review flagged transaction
// @Description Mark a flagged transaction as cleared or rejected. Balances are not changed.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ReviewRequest true "Review request"
// @Success 200 {object} ReviewResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/review-flagged [post]
func (h *AdminHandler) ReviewFlagged(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req ReviewRequest
	if msg, ok := services.DecodeJSON(w, r, &req); !ok {
		services.SendErrorResponse(w, msg, http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	txn, err := h.reviews.Review(r.Context(), reviewerID, req.TransactionID, models.ReviewStatus(req.Status), req.Comment)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ReviewResponse{
		Message:       fmt.Sprintf("Transaction marked as %s.", txn.ReviewStatus),
		TransactionID: txn.ID,
		ReviewComment: txn.ReviewComment,
	})
}
