package escrow

import (
	"errors"
	"fmt"

	"github.com/klingon-exchange/klingon-escrow/internal/ledger"
)

// Escrow errors. Failures raised by the ledger are wrapped into one of these
// so callers can match either level with errors.Is.
var (
	ErrUnauthorized        = errors.New("escrow: unauthorized")
	ErrInsufficientBalance = errors.New("escrow: insufficient balance")
	ErrNotFound            = errors.New("escrow: not found")
	ErrAddressInUse        = errors.New("escrow: address already in use")
	ErrInvalidAccount      = errors.New("escrow: invalid account")
	ErrInvalidInstruction  = errors.New("escrow: invalid instruction")
)

var taxonomy = []error{
	ErrUnauthorized,
	ErrInsufficientBalance,
	ErrNotFound,
	ErrAddressInUse,
	ErrInvalidAccount,
	ErrInvalidInstruction,
}

// classify maps a ledger failure onto the escrow taxonomy. Errors already in
// the taxonomy pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return err
		}
	}
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
	case errors.Is(err, ledger.ErrMissingSignature), errors.Is(err, ledger.ErrOwnerMismatch):
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case errors.Is(err, ledger.ErrAccountInUse):
		return fmt.Errorf("%w: %w", ErrAddressInUse, err)
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrMintMismatch),
		errors.Is(err, ledger.ErrInvalidOwner):
		return fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}
	return err
}

// Reason returns a short label for err, used in metrics and RPC errors.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAddressInUse):
		return "address_in_use"
	case errors.Is(err, ErrInvalidAccount):
		return "invalid_account"
	case errors.Is(err, ErrInvalidInstruction):
		return "invalid_instruction"
	default:
		return "internal"
	}
}
