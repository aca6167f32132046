/*
Package batch adapts delimited-text input and output to the payments engine.

INPUT FORMAT:
  type, client, tx, amount
  deposit, 1, 1, 1.0
  withdrawal, 1, 2, 0.5
  dispute, 1, 1,
  resolve, 1, 1

  The header row is optional. Fields are trimmed; the amount column may be
  empty or missing for dispute, resolve and chargeback.

OUTPUT FORMAT:
  client,available,held,total,locked
  1,0.5000,0.0000,0.5000,false

SEE ALSO:
  - process.go: Feeds a Reader into an Engine
*/
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/warp/payments-engine/payments"
)

// RecordError is a malformed input record. The reader can continue past it.
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *RecordError) Unwrap() error { return e.Err }

type columns struct {
	kind, client, tx, amount int
}

var defaultColumns = columns{kind: 0, client: 1, tx: 2, amount: 3}

// Reader decodes transactions from CSV.
type Reader struct {
	csv     *csv.Reader
	cols    columns
	started bool
	line    int
}

func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	return &Reader{csv: cr, cols: defaultColumns}
}

// Line returns the input line of the last record returned by Next.
func (r *Reader) Line() int { return r.line }

// Next returns the next transaction. Malformed records are reported as
// *RecordError; io.EOF marks the end of input. Any other error is an I/O
// failure and the reader should not be used further.
func (r *Reader) Next() (payments.Transaction, error) {
	for {
		record, err := r.csv.Read()
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				r.line = perr.Line
				return nil, &RecordError{Line: perr.Line, Err: perr.Err}
			}
			return nil, err
		}
		r.line, _ = r.csv.FieldPos(0)

		if !r.started {
			r.started = true
			if cols, ok := headerColumns(record); ok {
				r.cols = cols
				continue
			}
		}
		if isBlank(record) {
			continue
		}

		tx, err := r.parse(record)
		if err != nil {
			return nil, &RecordError{Line: r.line, Err: err}
		}
		return tx, nil
	}
}

func (r *Reader) parse(record []string) (payments.Transaction, error) {
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	kind, err := payments.ParseKind(field(r.cols.kind))
	if err != nil {
		return nil, err
	}
	client, err := strconv.ParseUint(field(r.cols.client), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid client %q: %w", field(r.cols.client), err)
	}
	txID, err := strconv.ParseUint(field(r.cols.tx), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid tx %q: %w", field(r.cols.tx), err)
	}

	var amount payments.Amount
	if kind.HasAmount() {
		raw, err := payments.ParseAmount(field(r.cols.amount))
		if err != nil {
			return nil, err
		}
		amount = payments.NewAmount(raw)
	}

	return Build(kind, payments.ClientID(client), payments.TransactionID(txID), amount), nil
}

// Build assembles the transaction variant for kind. For dispute actions tx
// is the target id and amount is ignored.
func Build(kind payments.Kind, client payments.ClientID, tx payments.TransactionID, amount payments.Amount) payments.Transaction {
	switch kind {
	case payments.KindDeposit:
		return payments.Deposit{ID: tx, ClientID: client, Amount: amount, DisputeStatus: payments.NotDisputed}
	case payments.KindWithdrawal:
		return payments.Withdraw{ID: tx, ClientID: client, Amount: amount}
	case payments.KindDispute:
		return payments.Dispute{ClientID: client, TargetID: tx}
	case payments.KindResolve:
		return payments.Resolve{ClientID: client, TargetID: tx}
	case payments.KindChargeback:
		return payments.Chargeback{ClientID: client, TargetID: tx}
	}
	panic(fmt.Sprintf("batch: unhandled kind %q", kind))
}

// headerColumns recognises a header row and maps column names to positions.
func headerColumns(record []string) (columns, bool) {
	cols := columns{kind: -1, client: -1, tx: -1, amount: -1}
	for i, name := range record {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "type":
			cols.kind = i
		case "client":
			cols.client = i
		case "tx":
			cols.tx = i
		case "amount":
			cols.amount = i
		}
	}
	if cols.kind < 0 || cols.client < 0 || cols.tx < 0 {
		return columns{}, false
	}
	if cols.amount < 0 {
		cols.amount = len(record)
	}
	return cols, true
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
