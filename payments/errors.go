/*
errors.go - Error taxonomy of the payments engine

Every rejection returned by Engine.Apply is recoverable: the engine state is
unchanged and the caller may continue with the next transaction. Arithmetic
overflow is the single exception and surfaces as a panic carrying
*OverflowError.

USAGE:

	if errors.Is(err, payments.ErrInsufficientFunds) {
	    // skip and continue
	}
*/
package payments

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrDepositBelowMinimum  = errors.New("deposit amount is below minimum")
	ErrDepositAboveMaximum  = errors.New("deposit amount is above maximum")
	ErrWithdrawBelowMinimum = errors.New("withdrawal amount is below minimum")
	ErrWithdrawAboveMaximum = errors.New("withdrawal amount is above maximum")

	// ErrInsufficientFunds is returned when a withdrawal exceeds available funds.
	ErrInsufficientFunds = errors.New("insufficient available funds")

	ErrUnknownClient      = errors.New("unknown client")
	ErrUnknownTransaction = errors.New("unknown transaction")

	ErrDisputeOfNonDeposit    = errors.New("only deposits can be disputed")
	ErrResolveOfNonDeposit    = errors.New("only deposits can be resolved")
	ErrChargebackOfNonDeposit = errors.New("only deposits can be charged back")

	ErrAlreadyDisputed              = errors.New("deposit is already disputed or closed")
	ErrAlreadyResolvedOrNotDisputed = errors.New("deposit is not under dispute")
	ErrNotUnderDispute              = errors.New("deposit is not under dispute, cannot charge back")

	// ErrClientLocked is only returned under LockRejectAll.
	ErrClientLocked = errors.New("client is locked")

	// ErrDuplicateTransaction is returned when a deposit or withdrawal reuses
	// an id already recorded by the engine.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")

	// Parsing errors raised before a transaction reaches the engine.
	ErrUnknownKind   = errors.New("unknown transaction type")
	ErrMissingAmount = errors.New("missing amount")
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAmountOverflow is never returned; it is wrapped by the *OverflowError
	// the engine panics with.
	ErrAmountOverflow = errors.New("amount overflow")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// LimitError reports an amount outside the accepted bounds. It unwraps to
// the matching Deposit*/Withdraw* sentinel.
type LimitError struct {
	Kind   Kind
	Amount decimal.Decimal
	Min    decimal.Decimal
	Max    decimal.Decimal
	err    error
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%v: %s not in [%s, %s]", e.err, e.Amount, e.Min, e.Max)
}

func (e *LimitError) Unwrap() error { return e.err }

// InsufficientFundsError details a rejected withdrawal.
type InsufficientFundsError struct {
	Client    ClientID
	Available Amount
	Requested Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient available funds: available %s, requested %s", e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// TransactionError wraps every rejection returned by Engine.Apply with the
// transaction it belongs to.
type TransactionError struct {
	Kind   Kind
	Client ClientID
	Tx     TransactionID
	Err    error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s client=%d tx=%d: %v", e.Kind, e.Client, e.Tx, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// OverflowError is the panic value for checked arithmetic that left the
// representable range.
type OverflowError struct {
	Op string
	A  Amount
	B  Amount
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("amount overflow: %s %s %s", e.A, e.Op, e.B)
}

func (e *OverflowError) Unwrap() error { return ErrAmountOverflow }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error references a missing client or
// transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownClient) || errors.Is(err, ErrUnknownTransaction)
}

// IsLimit returns true if the error is an amount bounds violation.
func IsLimit(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}

// Code returns a stable snake_case identifier for a rejection, for use in
// reports and API responses.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDepositBelowMinimum):
		return "deposit_below_minimum"
	case errors.Is(err, ErrDepositAboveMaximum):
		return "deposit_above_maximum"
	case errors.Is(err, ErrWithdrawBelowMinimum):
		return "withdraw_below_minimum"
	case errors.Is(err, ErrWithdrawAboveMaximum):
		return "withdraw_above_maximum"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrUnknownClient):
		return "unknown_client"
	case errors.Is(err, ErrUnknownTransaction):
		return "unknown_transaction"
	case errors.Is(err, ErrDisputeOfNonDeposit):
		return "dispute_of_non_deposit"
	case errors.Is(err, ErrResolveOfNonDeposit):
		return "resolve_of_non_deposit"
	case errors.Is(err, ErrChargebackOfNonDeposit):
		return "chargeback_of_non_deposit"
	case errors.Is(err, ErrAlreadyDisputed):
		return "already_disputed"
	case errors.Is(err, ErrAlreadyResolvedOrNotDisputed):
		return "already_resolved_or_not_disputed"
	case errors.Is(err, ErrNotUnderDispute):
		return "not_under_dispute"
	case errors.Is(err, ErrClientLocked):
		return "client_locked"
	case errors.Is(err, ErrDuplicateTransaction):
		return "duplicate_transaction"
	case errors.Is(err, ErrUnknownKind):
		return "unknown_type"
	case errors.Is(err, ErrMissingAmount):
		return "missing_amount"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	}
	return "invalid"
}
