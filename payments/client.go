package payments

// =============================================================================
// CLIENT - Per-client balances and recorded transactions
// =============================================================================

// Client is the account record owned by an Engine. Callers only ever see it
// through ClientSnapshot.
//
// INVARIANTS:
//   - available and held are never driven negative by the engine.
//   - total is derived (available + held), never stored.
//   - transactions holds only Deposit and Withdraw entries.
type Client struct {
	ID           ClientID
	available    Amount
	held         Amount
	locked       bool
	transactions map[TransactionID]Transaction
}

func newClient(id ClientID) *Client {
	return &Client{
		ID:           id,
		available:    Zero(),
		held:         Zero(),
		transactions: make(map[TransactionID]Transaction),
	}
}

// Total returns available + held using checked addition.
func (c *Client) Total() Amount {
	return c.available.CheckedAdd(c.held)
}

// Transaction returns the recorded deposit or withdrawal with the given id.
func (c *Client) Transaction(id TransactionID) (Transaction, bool) {
	tx, ok := c.transactions[id]
	return tx, ok
}

// Snapshot returns an immutable view of the client.
func (c *Client) Snapshot() ClientSnapshot {
	return ClientSnapshot{
		Client:    c.ID,
		Available: c.available,
		Held:      c.held,
		Total:     c.Total(),
		Locked:    c.locked,
	}
}

// =============================================================================
// CLIENT SNAPSHOT - Reported state of one client
// =============================================================================

type ClientSnapshot struct {
	Client    ClientID
	Available Amount
	Held      Amount
	Total     Amount
	Locked    bool
}
