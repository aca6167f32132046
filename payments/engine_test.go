package payments_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payments-engine/payments"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func deposit(tx payments.TransactionID, client payments.ClientID, amount string) payments.Deposit {
	return payments.Deposit{ID: tx, ClientID: client, Amount: payments.MustAmount(amount)}
}

func withdraw(tx payments.TransactionID, client payments.ClientID, amount string) payments.Withdraw {
	return payments.Withdraw{ID: tx, ClientID: client, Amount: payments.MustAmount(amount)}
}

func applyAll(t *testing.T, e *payments.Engine, txs ...payments.Transaction) {
	t.Helper()
	for _, tx := range txs {
		require.NoError(t, e.Apply(tx))
	}
}

func assertClient(t *testing.T, e *payments.Engine, id payments.ClientID, available, held string, locked bool) {
	t.Helper()
	c, ok := e.Client(id)
	require.True(t, ok, "client %d should exist", id)
	assert.Equal(t, available, c.Available.String(), "available")
	assert.Equal(t, held, c.Held.String(), "held")
	total := payments.MustAmount(available).Decimal().Add(payments.MustAmount(held).Decimal())
	assert.Equal(t, total.StringFixed(payments.Scale), c.Total.String(), "total")
	assert.Equal(t, locked, c.Locked, "locked")
}

func depositStatus(t *testing.T, e *payments.Engine, client payments.ClientID, tx payments.TransactionID) payments.DisputeStatus {
	t.Helper()
	entry, ok := e.Lookup(client, tx)
	require.True(t, ok)
	d, ok := entry.(payments.Deposit)
	require.True(t, ok, "tx %d should be a deposit", tx)
	return d.DisputeStatus
}

// =============================================================================
// DEPOSIT
// =============================================================================

func TestDeposit_NewClient_Created(t *testing.T) {
	e := payments.NewEngine()

	require.NoError(t, e.Apply(deposit(1, 1, "100")))

	assertClient(t, e, 1, "100.0000", "0.0000", false)
	assert.Equal(t, payments.NotDisputed, depositStatus(t, e, 1, 1))
}

func TestDeposit_BoundaryAmounts_Accepted(t *testing.T) {
	for _, amount := range []string{"0.0001", "50000"} {
		e := payments.NewEngine()
		assert.NoError(t, e.Apply(deposit(1, 1, amount)), amount)
	}
}

func TestDeposit_ExistingClient_SumsRoundedAmounts(t *testing.T) {
	// GIVEN: Deposits with more than 4 fractional digits
	// THEN: Each is rounded half-to-even at ingestion, then summed exactly

	e := payments.NewEngine()
	applyAll(t, e,
		deposit(1, 1, "1.00005"), // -> 1.0000
		deposit(2, 1, "2.00015"), // -> 2.0002
		deposit(3, 1, "0.12345"), // -> 0.1234
	)

	assertClient(t, e, 1, "3.1236", "0.0000", false)

	entry, _ := e.Lookup(1, 2)
	assert.Equal(t, "2.0002", entry.(payments.Deposit).Amount.String(), "recorded amount is the rounded one")
}

func TestDeposit_OutOfBounds_Rejected(t *testing.T) {
	tests := []struct {
		amount string
		want   error
	}{
		{"0", payments.ErrDepositBelowMinimum},
		{"0.00009", payments.ErrDepositBelowMinimum},
		{"-5", payments.ErrDepositBelowMinimum},
		{"50000.00001", payments.ErrDepositAboveMaximum},
		{"1000000", payments.ErrDepositAboveMaximum},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			e := payments.NewEngine()
			err := e.Apply(deposit(1, 1, tt.amount))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, e.Len(), "no client created by a rejected deposit")
		})
	}
}

func TestDeposit_DuplicateID_Rejected(t *testing.T) {
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 1, "10"))

	assert.ErrorIs(t, e.Apply(deposit(1, 1, "5")), payments.ErrDuplicateTransaction)
	assert.ErrorIs(t, e.Apply(deposit(1, 2, "5")), payments.ErrDuplicateTransaction)

	assertClient(t, e, 1, "10.0000", "0.0000", false)
	_, ok := e.Client(2)
	assert.False(t, ok)
}

// =============================================================================
// WITHDRAWAL
// =============================================================================

func TestWithdraw_WithinAvailable_Succeeds(t *testing.T) {
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 1, "100"), withdraw(2, 1, "40.5"))

	assertClient(t, e, 1, "59.5000", "0.0000", false)
}

func TestWithdraw_ExactlyAvailable_Succeeds(t *testing.T) {
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 1, "100"), withdraw(2, 1, "100"))

	assertClient(t, e, 1, "0.0000", "0.0000", false)
}

func TestWithdraw_MoreThanAvailable_InsufficientFunds(t *testing.T) {
	// Scenario: deposit 5 to client 2, withdraw 10 -> rejected, 5 remains
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 2, "5.0000"))

	err := e.Apply(withdraw(2, 2, "10.0000"))

	require.ErrorIs(t, err, payments.ErrInsufficientFunds)
	var fundsErr *payments.InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	assert.Equal(t, "5.0000", fundsErr.Available.String())
	assert.Equal(t, "10.0000", fundsErr.Requested.String())

	assertClient(t, e, 2, "5.0000", "0.0000", false)
	_, recorded := e.Lookup(2, 2)
	assert.False(t, recorded, "rejected withdrawal is not recorded")
}

func TestWithdraw_UnknownClient_Rejected(t *testing.T) {
	e := payments.NewEngine()

	err := e.Apply(withdraw(1, 7, "1"))

	assert.ErrorIs(t, err, payments.ErrUnknownClient)
	assert.Equal(t, 0, e.Len())
}

func TestWithdraw_OutOfBounds_Rejected(t *testing.T) {
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 1, "50000"), deposit(2, 1, "50000"))

	assert.ErrorIs(t, e.Apply(withdraw(3, 1, "0.00001")), payments.ErrWithdrawBelowMinimum)
	assert.ErrorIs(t, e.Apply(withdraw(4, 1, "50000.0001")), payments.ErrWithdrawAboveMaximum)
	assertClient(t, e, 1, "100000.0000", "0.0000", false)
}

func TestWithdraw_DuplicateID_Rejected(t *testing.T) {
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 1, "10"))

	assert.ErrorIs(t, e.Apply(withdraw(1, 1, "5")), payments.ErrDuplicateTransaction)
	assertClient(t, e, 1, "10.0000", "0.0000", false)
}

// =============================================================================
// DISPUTE LIFECYCLE
// =============================================================================

func TestDispute_Deposit_MovesAvailableToHeld(t *testing.T) {
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 1, "30"), deposit(2, 1, "70"))

	require.NoError(t, e.Apply(payments.Dispute{ClientID: 1, TargetID: 2}))

	assertClient(t, e, 1, "30.0000", "70.0000", false)
	assert.Equal(t, payments.Disputed, depositStatus(t, e, 1, 2))
}

func TestDispute_Twice_AlreadyDisputed(t *testing.T) {
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 1, "100"), payments.Dispute{ClientID: 1, TargetID: 1})

	err := e.Apply(payments.Dispute{ClientID: 1, TargetID: 1})

	assert.ErrorIs(t, err, payments.ErrAlreadyDisputed)
	assertClient(t, e, 1, "0.0000", "100.0000", false)
}

func TestDispute_Withdrawal_Rejected(t *testing.T) {
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 1, "100"), withdraw(2, 1, "40"))

	assert.ErrorIs(t, e.Apply(payments.Dispute{ClientID: 1, TargetID: 2}), payments.ErrDisputeOfNonDeposit)
	assert.ErrorIs(t, e.Apply(payments.Resolve{ClientID: 1, TargetID: 2}), payments.ErrResolveOfNonDeposit)
	assert.ErrorIs(t, e.Apply(payments.Chargeback{ClientID: 1, TargetID: 2}), payments.ErrChargebackOfNonDeposit)

	assertClient(t, e, 1, "60.0000", "0.0000", false)
}

func TestDispute_UnknownTargets_Rejected(t *testing.T) {
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 1, "100"), deposit(2, 2, "50"))

	t.Run("unknown client", func(t *testing.T) {
		assert.ErrorIs(t, e.Apply(payments.Dispute{ClientID: 9, TargetID: 1}), payments.ErrUnknownClient)
		assert.ErrorIs(t, e.Apply(payments.Resolve{ClientID: 9, TargetID: 1}), payments.ErrUnknownClient)
		assert.ErrorIs(t, e.Apply(payments.Chargeback{ClientID: 9, TargetID: 1}), payments.ErrUnknownClient)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		assert.ErrorIs(t, e.Apply(payments.Dispute{ClientID: 1, TargetID: 99}), payments.ErrUnknownTransaction)
		assert.ErrorIs(t, e.Apply(payments.Resolve{ClientID: 1, TargetID: 99}), payments.ErrUnknownTransaction)
		assert.ErrorIs(t, e.Apply(payments.Chargeback{ClientID: 1, TargetID: 99}), payments.ErrUnknownTransaction)
	})

	t.Run("transaction of another client", func(t *testing.T) {
		assert.ErrorIs(t, e.Apply(payments.Dispute{ClientID: 1, TargetID: 2}), payments.ErrUnknownTransaction)
	})

	assertClient(t, e, 1, "100.0000", "0.0000", false)
	assertClient(t, e, 2, "50.0000", "0.0000", false)
}

func TestDispute_FundsAlreadyWithdrawn_Rejected(t *testing.T) {
	// GIVEN: 100 deposited, 80 withdrawn
	// WHEN: The deposit is disputed
	// THEN: Rejected, available would go negative

	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 1, "100"), withdraw(2, 1, "80"))

	err := e.Apply(payments.Dispute{ClientID: 1, TargetID: 1})

	assert.ErrorIs(t, err, payments.ErrInsufficientFunds)
	assertClient(t, e, 1, "20.0000", "0.0000", false)
	assert.Equal(t, payments.NotDisputed, depositStatus(t, e, 1, 1))
}

func TestResolve_Disputed_ReturnsFunds(t *testing.T) {
	// Scenario: deposit -> dispute -> resolve
	e := payments.NewEngine()
	applyAll(t, e,
		deposit(1, 1, "100.00"),
		payments.Dispute{ClientID: 1, TargetID: 1},
		payments.Resolve{ClientID: 1, TargetID: 1},
	)

	assertClient(t, e, 1, "100.0000", "0.0000", false)
	assert.Equal(t, payments.Resolved, depositStatus(t, e, 1, 1))
}

func TestResolve_NotDisputed_Rejected(t *testing.T) {
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 1, "100"))

	assert.ErrorIs(t, e.Apply(payments.Resolve{ClientID: 1, TargetID: 1}), payments.ErrAlreadyResolvedOrNotDisputed)
	assertClient(t, e, 1, "100.0000", "0.0000", false)
}

func TestChargeback_Disputed_ReversesAndLocks(t *testing.T) {
	// Scenario: deposit -> dispute -> chargeback
	e := payments.NewEngine()
	applyAll(t, e,
		deposit(1, 1, "100.00"),
		payments.Dispute{ClientID: 1, TargetID: 1},
		payments.Chargeback{ClientID: 1, TargetID: 1},
	)

	assertClient(t, e, 1, "0.0000", "0.0000", true)
	assert.Equal(t, payments.Chargebacked, depositStatus(t, e, 1, 1))
}

func TestChargeback_NotDisputed_Rejected(t *testing.T) {
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 1, "100"))

	assert.ErrorIs(t, e.Apply(payments.Chargeback{ClientID: 1, TargetID: 1}), payments.ErrNotUnderDispute)
	assertClient(t, e, 1, "100.0000", "0.0000", false)
}

func TestTerminalStatus_FurtherActions_NeverMutate(t *testing.T) {
	t.Run("resolved", func(t *testing.T) {
		e := payments.NewEngine()
		applyAll(t, e,
			deposit(1, 1, "100"),
			payments.Dispute{ClientID: 1, TargetID: 1},
			payments.Resolve{ClientID: 1, TargetID: 1},
		)

		assert.ErrorIs(t, e.Apply(payments.Dispute{ClientID: 1, TargetID: 1}), payments.ErrAlreadyDisputed)
		assert.ErrorIs(t, e.Apply(payments.Resolve{ClientID: 1, TargetID: 1}), payments.ErrAlreadyResolvedOrNotDisputed)
		assert.ErrorIs(t, e.Apply(payments.Chargeback{ClientID: 1, TargetID: 1}), payments.ErrNotUnderDispute)

		assertClient(t, e, 1, "100.0000", "0.0000", false)
		assert.Equal(t, payments.Resolved, depositStatus(t, e, 1, 1))
	})

	t.Run("chargebacked", func(t *testing.T) {
		e := payments.NewEngine()
		applyAll(t, e,
			deposit(1, 1, "100"),
			deposit(2, 1, "25"),
			payments.Dispute{ClientID: 1, TargetID: 1},
			payments.Chargeback{ClientID: 1, TargetID: 1},
		)

		assert.ErrorIs(t, e.Apply(payments.Dispute{ClientID: 1, TargetID: 1}), payments.ErrAlreadyDisputed)
		assert.ErrorIs(t, e.Apply(payments.Resolve{ClientID: 1, TargetID: 1}), payments.ErrAlreadyResolvedOrNotDisputed)
		assert.ErrorIs(t, e.Apply(payments.Chargeback{ClientID: 1, TargetID: 1}), payments.ErrNotUnderDispute)

		assertClient(t, e, 1, "25.0000", "0.0000", true)
	})
}

func TestDispute_TotalConserved(t *testing.T) {
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 3, "12.3456"), deposit(2, 3, "7.6544"))
	before, _ := e.Client(3)

	applyAll(t, e, payments.Dispute{ClientID: 3, TargetID: 1})
	during, _ := e.Client(3)

	applyAll(t, e, payments.Resolve{ClientID: 3, TargetID: 1})
	after, _ := e.Client(3)

	assert.Equal(t, "20.0000", before.Total.String())
	assert.Equal(t, before.Total.String(), during.Total.String())
	assert.Equal(t, before.Total.String(), after.Total.String())
	assert.Equal(t, "12.3456", during.Held.String())
}

// =============================================================================
// LOCK POLICY
// =============================================================================

func lockedEngine(t *testing.T, policy payments.LockPolicy) *payments.Engine {
	t.Helper()
	e := payments.NewEngine(payments.WithLockPolicy(policy))
	applyAll(t, e,
		deposit(1, 1, "100"),
		deposit(2, 1, "50"),
		deposit(3, 1, "20"),
		payments.Dispute{ClientID: 1, TargetID: 1},
		payments.Chargeback{ClientID: 1, TargetID: 1},
	)
	return e
}

func TestLockPolicy_Advisory_KeepsAccepting(t *testing.T) {
	e := lockedEngine(t, payments.LockAdvisory)

	require.NoError(t, e.Apply(deposit(4, 1, "10")))
	require.NoError(t, e.Apply(withdraw(5, 1, "5")))
	require.NoError(t, e.Apply(payments.Dispute{ClientID: 1, TargetID: 2}))

	assertClient(t, e, 1, "25.0000", "50.0000", true)
}

func TestLockPolicy_RejectAll_RefusesEverything(t *testing.T) {
	e := lockedEngine(t, payments.LockRejectAll)

	assert.ErrorIs(t, e.Apply(deposit(4, 1, "10")), payments.ErrClientLocked)
	assert.ErrorIs(t, e.Apply(withdraw(5, 1, "5")), payments.ErrClientLocked)
	assert.ErrorIs(t, e.Apply(payments.Dispute{ClientID: 1, TargetID: 2}), payments.ErrClientLocked)
	assert.ErrorIs(t, e.Apply(payments.Resolve{ClientID: 1, TargetID: 2}), payments.ErrClientLocked)
	assert.ErrorIs(t, e.Apply(payments.Chargeback{ClientID: 1, TargetID: 3}), payments.ErrClientLocked)

	assertClient(t, e, 1, "70.0000", "0.0000", true)

	// Other clients are unaffected.
	assert.NoError(t, e.Apply(deposit(6, 2, "1")))
}

func TestParseLockPolicy(t *testing.T) {
	p, err := payments.ParseLockPolicy("")
	require.NoError(t, err)
	assert.Equal(t, payments.LockAdvisory, p)

	p, err = payments.ParseLockPolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, payments.LockRejectAll, p)

	_, err = payments.ParseLockPolicy("freeze")
	assert.Error(t, err)
}

// =============================================================================
// ENGINE BEHAVIOUR
// =============================================================================

func TestApply_ErrorCarriesTransactionContext(t *testing.T) {
	e := payments.NewEngine()

	err := e.Apply(payments.Resolve{ClientID: 4, TargetID: 12})

	var txErr *payments.TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, payments.KindResolve, txErr.Kind)
	assert.Equal(t, payments.ClientID(4), txErr.Client)
	assert.Equal(t, payments.TransactionID(12), txErr.Tx)
	assert.Equal(t, "unknown_client", payments.Code(err))
}

func TestApply_ObserverSeesEveryOutcome(t *testing.T) {
	var outcomes []payments.Outcome
	e := payments.NewEngine(payments.WithObserver(func(o payments.Outcome) {
		outcomes = append(outcomes, o)
	}))

	_ = e.Apply(deposit(1, 1, "10"))
	_ = e.Apply(withdraw(2, 1, "20"))

	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, payments.ErrInsufficientFunds)
	assert.Equal(t, payments.KindWithdrawal, outcomes[1].Transaction.Kind())
}

func TestClients_SortedByID(t *testing.T) {
	e := payments.NewEngine()
	applyAll(t, e, deposit(1, 30, "1"), deposit(2, 2, "1"), deposit(3, 65535, "1"), deposit(4, 7, "1"))

	var ids []payments.ClientID
	for _, c := range e.Clients() {
		ids = append(ids, c.Client)
	}
	assert.Equal(t, []payments.ClientID{2, 7, 30, 65535}, ids)
}

func TestReplay_IsDeterministic(t *testing.T) {
	input := []payments.Transaction{
		deposit(1, 1, "10.12345"),
		deposit(2, 2, "3"),
		withdraw(3, 1, "4.5"),
		payments.Dispute{ClientID: 2, TargetID: 2},
		withdraw(4, 2, "1"),
		payments.Chargeback{ClientID: 2, TargetID: 2},
		deposit(5, 1, "0.00005"),
	}

	render := func() []string {
		e := payments.NewEngine()
		for _, tx := range input {
			_ = e.Apply(tx)
		}
		var rows []string
		for _, c := range e.Clients() {
			rows = append(rows, c.Available.String()+"/"+c.Held.String()+"/"+c.Total.String())
		}
		return rows
	}

	first := render()
	assert.Equal(t, first, render())
	assert.Equal(t, []string{"5.6234/0.0000/5.6234", "0.0000/0.0000/0.0000"}, first)
}

func TestApply_Overflow_Panics(t *testing.T) {
	// Balances are bounded by deposit limits, so overflow can only be
	// provoked through Amount directly.
	huge := payments.MustAmount("79228162514264337593543950335")

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, payments.ErrAmountOverflow))
	}()
	huge.CheckedAdd(payments.MustAmount("1"))
}
