package payments

import (
	"fmt"
	"strings"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID uint16
type TransactionID uint32

// =============================================================================
// KIND - Wire name of each transaction variant
// =============================================================================

type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindDispute    Kind = "dispute"
	KindResolve    Kind = "resolve"
	KindChargeback Kind = "chargeback"
)

// ParseKind maps a record type to a Kind. Case and surrounding whitespace
// are ignored.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindDeposit, KindWithdrawal, KindDispute, KindResolve, KindChargeback:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// HasAmount reports whether records of this kind carry an amount.
func (k Kind) HasAmount() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// =============================================================================
// DISPUTE STATUS - Lifecycle of a deposit
// =============================================================================

// DisputeStatus is the only mutable part of a recorded deposit.
//
//	NotDisputed -> Disputed -> Resolved
//	                        -> Chargebacked
//
// Resolved and Chargebacked are terminal.
type DisputeStatus int

const (
	NotDisputed DisputeStatus = iota
	Disputed
	Resolved
	Chargebacked
)

func (s DisputeStatus) String() string {
	switch s {
	case NotDisputed:
		return "not_disputed"
	case Disputed:
		return "disputed"
	case Resolved:
		return "resolved"
	case Chargebacked:
		return "chargebacked"
	}
	return fmt.Sprintf("DisputeStatus(%d)", int(s))
}

// CanTransition reports whether s -> to is a legal lifecycle edge.
func (s DisputeStatus) CanTransition(to DisputeStatus) bool {
	switch s {
	case NotDisputed:
		return to == Disputed
	case Disputed:
		return to == Resolved || to == Chargebacked
	}
	return false
}

// IsTerminal reports whether no further dispute action may touch the deposit.
func (s DisputeStatus) IsTerminal() bool {
	return s == Resolved || s == Chargebacked
}

// =============================================================================
// TRANSACTION - Closed set of ledger events
// =============================================================================

// Transaction is implemented only by Deposit, Withdraw, Dispute, Resolve and
// Chargeback. The unexported marker keeps the set closed so the engine's
// type switch stays exhaustive.
type Transaction interface {
	Client() ClientID
	Kind() Kind
	isTransaction()
}

// Deposit credits a client. Amount is the raw value from the input; it is
// replaced by the validated, rounded amount when the engine records it.
type Deposit struct {
	ID            TransactionID
	ClientID      ClientID
	Amount        Amount
	DisputeStatus DisputeStatus
}

type Withdraw struct {
	ID       TransactionID
	ClientID ClientID
	Amount   Amount
}

// Dispute, Resolve and Chargeback carry no id of their own. TargetID names
// a deposit previously recorded for the same client.
type Dispute struct {
	ClientID ClientID
	TargetID TransactionID
}

type Resolve struct {
	ClientID ClientID
	TargetID TransactionID
}

type Chargeback struct {
	ClientID ClientID
	TargetID TransactionID
}

func (d Deposit) Client() ClientID    { return d.ClientID }
func (w Withdraw) Client() ClientID   { return w.ClientID }
func (d Dispute) Client() ClientID    { return d.ClientID }
func (r Resolve) Client() ClientID    { return r.ClientID }
func (c Chargeback) Client() ClientID { return c.ClientID }

func (Deposit) Kind() Kind    { return KindDeposit }
func (Withdraw) Kind() Kind   { return KindWithdrawal }
func (Dispute) Kind() Kind    { return KindDispute }
func (Resolve) Kind() Kind    { return KindResolve }
func (Chargeback) Kind() Kind { return KindChargeback }

func (Deposit) isTransaction()    {}
func (Withdraw) isTransaction()   {}
func (Dispute) isTransaction()    {}
func (Resolve) isTransaction()    {}
func (Chargeback) isTransaction() {}

// TxID returns the transaction's own id for deposits and withdrawals, or the
// target id for dispute actions.
func TxID(tx Transaction) TransactionID {
	switch t := tx.(type) {
	case Deposit:
		return t.ID
	case Withdraw:
		return t.ID
	case Dispute:
		return t.TargetID
	case Resolve:
		return t.TargetID
	case Chargeback:
		return t.TargetID
	}
	return 0
}
