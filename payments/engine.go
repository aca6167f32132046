/*
Package payments is the accounting core of the batch payments processor.

PURPOSE:
  Maintains per-client balances derived from an ordered stream of deposit,
  withdrawal, dispute, resolve and chargeback events. The final state is a
  deterministic left fold over the input: replaying the same sequence
  against a fresh Engine yields identical snapshots.

KEY CONCEPTS:
  - Amount: fixed-point money at scale 4, rounded once at ingestion
  - Transaction: sealed union of the five event variants
  - Client: available / held balances, lock flag, recorded deposits and
    withdrawals
  - Engine: owns the ClientID -> Client mapping; Apply is the only writer

DISPUTE LIFECYCLE:
  NotDisputed -> Disputed -> Resolved | Chargebacked

  dispute:    available -= amount, held += amount
  resolve:    held -= amount, available += amount
  chargeback: held -= amount, client locked

CONCURRENCY:
  An Engine is not safe for concurrent use. Callers that share one (the
  HTTP API) serialize access themselves.

USAGE:
  engine := payments.NewEngine()
  err := engine.Apply(payments.Deposit{ID: 1, ClientID: 1, Amount: payments.MustAmount("10")})
  for _, c := range engine.Clients() {
      fmt.Println(c.Client, c.Available, c.Held, c.Total, c.Locked)
  }

SEE ALSO:
  - errors.go: rejection taxonomy
  - store.go: snapshot persistence
*/
package payments

import (
	"fmt"
	"sort"
)

// =============================================================================
// OPTIONS
// =============================================================================

// LockPolicy decides what a chargeback lock means for later transactions.
type LockPolicy string

const (
	// LockAdvisory reports the lock but keeps accepting transactions.
	LockAdvisory LockPolicy = "advisory"
	// LockRejectAll rejects every transaction against a locked client.
	LockRejectAll LockPolicy = "reject"
)

// ParseLockPolicy maps a flag value to a LockPolicy.
func ParseLockPolicy(s string) (LockPolicy, error) {
	switch p := LockPolicy(s); p {
	case LockAdvisory, LockRejectAll:
		return p, nil
	case "":
		return LockAdvisory, nil
	}
	return "", fmt.Errorf("unknown lock policy %q (want %q or %q)", s, LockAdvisory, LockRejectAll)
}

// Outcome is reported to the observer after every Apply.
type Outcome struct {
	Transaction Transaction
	Err         error
}

type Option func(*Engine)

func WithLockPolicy(p LockPolicy) Option {
	return func(e *Engine) { e.lockPolicy = p }
}

// WithObserver registers fn to be called after each Apply, accepted or not.
func WithObserver(fn func(Outcome)) Option {
	return func(e *Engine) { e.observer = fn }
}

// =============================================================================
// ENGINE - Ledger state machine
// =============================================================================

type Engine struct {
	clients    map[ClientID]*Client
	owners     map[TransactionID]ClientID
	lockPolicy LockPolicy
	observer   func(Outcome)
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		clients:    make(map[ClientID]*Client),
		owners:     make(map[TransactionID]ClientID),
		lockPolicy: LockAdvisory,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) LockPolicy() LockPolicy { return e.lockPolicy }

// Apply validates tx and applies it to the client it names. A non-nil error
// is a *TransactionError and the engine state is unchanged. Arithmetic
// overflow panics.
func (e *Engine) Apply(tx Transaction) error {
	err := e.apply(tx)
	if err != nil {
		err = &TransactionError{Kind: tx.Kind(), Client: tx.Client(), Tx: TxID(tx), Err: err}
	}
	if e.observer != nil {
		e.observer(Outcome{Transaction: tx, Err: err})
	}
	return err
}

func (e *Engine) apply(tx Transaction) error {
	switch t := tx.(type) {
	case Deposit:
		return e.deposit(t)
	case Withdraw:
		return e.withdraw(t)
	case Dispute:
		return e.dispute(t)
	case Resolve:
		return e.resolve(t)
	case Chargeback:
		return e.chargeback(t)
	}
	panic(fmt.Sprintf("payments: unhandled transaction type %T", tx))
}

func (e *Engine) deposit(d Deposit) error {
	amount, err := ValidateDeposit(d.Amount.Decimal())
	if err != nil {
		return err
	}
	if _, seen := e.owners[d.ID]; seen {
		return ErrDuplicateTransaction
	}

	client, ok := e.clients[d.ClientID]
	if ok {
		if err := e.checkLock(client); err != nil {
			return err
		}
	} else {
		client = newClient(d.ClientID)
		e.clients[d.ClientID] = client
	}

	client.available = client.available.CheckedAdd(amount)
	d.Amount = amount
	d.DisputeStatus = NotDisputed
	e.record(client, d.ID, d)
	return nil
}

func (e *Engine) withdraw(w Withdraw) error {
	amount, err := ValidateWithdrawal(w.Amount.Decimal())
	if err != nil {
		return err
	}
	client, err := e.mutableClient(w.ClientID)
	if err != nil {
		return err
	}
	if _, seen := e.owners[w.ID]; seen {
		return ErrDuplicateTransaction
	}
	if client.available.LessThan(amount) {
		return &InsufficientFundsError{Client: w.ClientID, Available: client.available, Requested: amount}
	}

	client.available = client.available.CheckedSub(amount)
	w.Amount = amount
	e.record(client, w.ID, w)
	return nil
}

func (e *Engine) dispute(d Dispute) error {
	client, deposit, err := e.disputedDeposit(d.ClientID, d.TargetID, ErrDisputeOfNonDeposit)
	if err != nil {
		return err
	}
	if !deposit.DisputeStatus.CanTransition(Disputed) {
		return ErrAlreadyDisputed
	}
	// Funds already withdrawn cannot be held.
	if client.available.LessThan(deposit.Amount) {
		return &InsufficientFundsError{Client: d.ClientID, Available: client.available, Requested: deposit.Amount}
	}

	client.available = client.available.CheckedSub(deposit.Amount)
	client.held = client.held.CheckedAdd(deposit.Amount)
	e.setStatus(client, deposit, Disputed)
	return nil
}

func (e *Engine) resolve(r Resolve) error {
	client, deposit, err := e.disputedDeposit(r.ClientID, r.TargetID, ErrResolveOfNonDeposit)
	if err != nil {
		return err
	}
	if !deposit.DisputeStatus.CanTransition(Resolved) {
		return ErrAlreadyResolvedOrNotDisputed
	}

	client.held = client.held.CheckedSub(deposit.Amount)
	client.available = client.available.CheckedAdd(deposit.Amount)
	e.setStatus(client, deposit, Resolved)
	return nil
}

func (e *Engine) chargeback(c Chargeback) error {
	client, deposit, err := e.disputedDeposit(c.ClientID, c.TargetID, ErrChargebackOfNonDeposit)
	if err != nil {
		return err
	}
	if !deposit.DisputeStatus.CanTransition(Chargebacked) {
		return ErrNotUnderDispute
	}

	client.held = client.held.CheckedSub(deposit.Amount)
	client.locked = true
	e.setStatus(client, deposit, Chargebacked)
	return nil
}

// disputedDeposit resolves the deposit a dispute action targets. nonDeposit
// is returned when the target is a withdrawal.
func (e *Engine) disputedDeposit(clientID ClientID, target TransactionID, nonDeposit error) (*Client, Deposit, error) {
	client, err := e.mutableClient(clientID)
	if err != nil {
		return nil, Deposit{}, err
	}
	tx, ok := client.transactions[target]
	if !ok {
		return nil, Deposit{}, ErrUnknownTransaction
	}
	deposit, ok := tx.(Deposit)
	if !ok {
		return nil, Deposit{}, nonDeposit
	}
	return client, deposit, nil
}

func (e *Engine) mutableClient(id ClientID) (*Client, error) {
	client, ok := e.clients[id]
	if !ok {
		return nil, ErrUnknownClient
	}
	if err := e.checkLock(client); err != nil {
		return nil, err
	}
	return client, nil
}

func (e *Engine) checkLock(c *Client) error {
	if c.locked && e.lockPolicy == LockRejectAll {
		return ErrClientLocked
	}
	return nil
}

func (e *Engine) record(c *Client, id TransactionID, tx Transaction) {
	c.transactions[id] = tx
	e.owners[id] = c.ID
}

func (e *Engine) setStatus(c *Client, d Deposit, s DisputeStatus) {
	d.DisputeStatus = s
	c.transactions[d.ID] = d
}

// =============================================================================
// READ ACCESS
// =============================================================================

// Clients returns a snapshot of every client in ascending id order.
func (e *Engine) Clients() []ClientSnapshot {
	out := make([]ClientSnapshot, 0, len(e.clients))
	for _, c := range e.clients {
		out = append(out, c.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out
}

func (e *Engine) Client(id ClientID) (ClientSnapshot, bool) {
	c, ok := e.clients[id]
	if !ok {
		return ClientSnapshot{}, false
	}
	return c.Snapshot(), true
}

// Lookup returns the deposit or withdrawal recorded under tx for client.
func (e *Engine) Lookup(client ClientID, tx TransactionID) (Transaction, bool) {
	c, ok := e.clients[client]
	if !ok {
		return nil, false
	}
	return c.Transaction(tx)
}

// Len returns the number of clients.
func (e *Engine) Len() int { return len(e.clients) }
