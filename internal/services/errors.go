package services

import (
	"errors"
	"fmt"

	"github.com/ruralpay/wallet/internal/ledger"
	"github.com/ruralpay/wallet/internal/money"
)

var (
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInvalidCurrency   = money.ErrInvalidCurrency
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrInsufficientFunds = errors.New("insufficient balance")
	// ErrTransientConflict is returned once the retry budget for concurrent
	// updates is spent. The caller may try again.
	ErrTransientConflict  = errors.New("wallet is busy, please retry")
	ErrStorageUnavailable = ledger.ErrStorageUnavailable
	ErrNotFound           = errors.New("not found")
	ErrNotFlagged         = ledger.ErrNotFlagged
	ErrInvalidStatus      = errors.New("invalid review status")
	ErrBalanceLimit       = ledger.ErrBalanceLimit
)

var domainErrors = []error{
	ErrInvalidAmount,
	ErrInvalidCurrency,
	ErrInvalidRecipient,
	ErrInsufficientFunds,
	ErrTransientConflict,
	ErrStorageUnavailable,
	ErrNotFound,
	ErrNotFlagged,
	ErrInvalidStatus,
	ErrBalanceLimit,
}

// translate maps store errors onto the service error kinds. Errors that
// already carry a service kind pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ledger.ErrNegativeBalance) {
		return ErrInsufficientFunds
	}
	if errors.Is(err, ledger.ErrTransactionNotFound) {
		return fmt.Errorf("%w: transaction", ErrNotFound)
	}
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
