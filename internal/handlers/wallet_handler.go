package handlers

import (
	"fmt"
	"net/http"

	"github.com/ruralpay/wallet/internal/money"
	"github.com/ruralpay/wallet/internal/services"
	log "github.com/sirupsen/logrus"
)

type WalletHandler struct {
	engine          *services.WalletEngine
	reports         *services.ReportService
	qr              *services.QRService
	validator       *services.ValidationHelper
	defaultCurrency string
}

func NewWalletHandler(engine *services.WalletEngine, reports *services.ReportService, qr *services.QRService, defaultCurrency string) *WalletHandler {
	return &WalletHandler{
		engine:          engine,
		reports:         reports,
		qr:              qr,
		validator:       services.NewValidationHelper(),
		defaultCurrency: defaultCurrency,
	}
}

// AmountRequest is the body of deposit and withdraw requests.
type AmountRequest struct {
	Amount   money.Amount `json:"amount" swaggertype:"number" example:"250.00"`
	Currency string       `json:"currency,omitempty" example:"INR"`
}

// TransferRequest is the body of a transfer request.
type TransferRequest struct {
	Amount   money.Amount `json:"amount" swaggertype:"number" example:"250.00"`
	Currency string       `json:"currency,omitempty" example:"INR"`
	To       string       `json:"to" validate:"required" example:"bob"`
}

type DepositResponse struct {
	Message string `json:"msg"`
	*services.DepositResult
}

type WithdrawResponse struct {
	Message string `json:"msg"`
	*services.WithdrawResult
}

type TransferResponse struct {
	Message string `json:"msg"`
	*services.TransferResult
}

func (h *WalletHandler) currency(requested string) string {
	if requested == "" {
		return h.defaultCurrency
	}
	return requested
}

// Deposit credits the caller's wallet
// @Summary Deposit funds
// @Description Credit the caller's wallet in the given currency, creating the wallet on first use
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AmountRequest true "Deposit request"
// @Success 200 {object} DepositResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /wallet/deposit [post]
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req AmountRequest
	if msg, ok := services.DecodeJSON(w, r, &req); !ok {
		services.SendErrorResponse(w, msg, http.StatusBadRequest, nil)
		return
	}

	result, err := h.engine.Deposit(r.Context(), userID, req.Amount, h.currency(req.Currency))
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DepositResponse{
		Message:       fmt.Sprintf("Deposit successful (%s)", result.Currency),
		DepositResult: result,
	})
}

// Withdraw debits the caller's wallet
// @Summary Withdraw funds
// @Description Debit the caller's wallet. Large withdrawals are flagged for review but still succeed.
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AmountRequest true "Withdraw request"
// @Success 200 {object} WithdrawResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /wallet/withdraw [post]
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req AmountRequest
	if msg, ok := services.DecodeJSON(w, r, &req); !ok {
		services.SendErrorResponse(w, msg, http.StatusBadRequest, nil)
		return
	}

	result, err := h.engine.Withdraw(r.Context(), userID, req.Amount, h.currency(req.Currency))
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, WithdrawResponse{
		Message:        fmt.Sprintf("Withdrawal successful (%s)", result.Currency),
		WithdrawResult: result,
	})
}

// Transfer moves funds to another user
// @Summary Transfer funds
// @Description Move funds from the caller to the user named in "to". Bursts of transfers are flagged for review.
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TransferRequest true "Transfer request"
// @Success 200 {object} TransferResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /wallet/transfer [post]
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req TransferRequest
	if msg, ok := services.DecodeJSON(w, r, &req); !ok {
		services.SendErrorResponse(w, msg, http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.engine.Transfer(r.Context(), userID, req.To, req.Amount, h.currency(req.Currency))
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, TransferResponse{
		Message:        fmt.Sprintf("Transferred %s %s to %s successfully", req.Amount, result.Currency, result.Recipient),
		TransferResult: result,
	})
}

// Summary lists the caller's balances
// @Summary Wallet summary
// @Description Balances of every wallet the caller holds
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.WalletSummary
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /wallet/summary [get]
func (h *WalletHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	summary, err := h.reports.Summary(r.Context(), userID)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Transactions lists the caller's history
// @Summary Transaction history
// @Description The caller's transactions, newest first
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum number of entries (1-500)"
// @Success 200 {array} services.HistoryEntry
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /wallet/transactions [get]
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit, ok := queryLimit(r)
	if !ok {
		services.SendErrorResponse(w, "Invalid limit", http.StatusBadRequest, nil)
		return
	}

	history, err := h.reports.History(r.Context(), userID, limit)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// ReceiveQR renders a code others can scan to pay the caller
// @Summary Receive QR code
// @Description PNG QR code (base64) encoding a transfer request to the caller
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param currency query string false "Currency code"
// @Param amount query string false "Requested amount"
// @Success 200 {object} services.ReceiveCode
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /wallet/receive-qr [get]
func (h *WalletHandler) ReceiveQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var amount money.Amount
	if raw := r.URL.Query().Get("amount"); raw != "" {
		parsed, err := money.ParseAmount(raw)
		if err != nil {
			services.SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
			return
		}
		amount = parsed
	}

	code, err := h.qr.ReceiveCode(r.Context(), userID, h.currency(r.URL.Query().Get("currency")), amount)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	log.Debugf("[QR] Receive code issued for user %s", userID)
	writeJSON(w, http.StatusOK, code)
}
