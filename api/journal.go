package api

import (
	"log"

	"github.com/warp/payments-engine/payments"
)

// LogOutcomes returns an engine observer that writes one [Ledger] line per
// applied or rejected transaction. A nil logger means log.Default().
func LogOutcomes(logger *log.Logger) func(payments.Outcome) {
	if logger == nil {
		logger = log.Default()
	}
	return func(o payments.Outcome) {
		tx := o.Transaction
		if o.Err != nil {
			logger.Printf("[Ledger] rejected %s client=%d tx=%d (%s): %v",
				tx.Kind(), tx.Client(), payments.TxID(tx), payments.Code(o.Err), o.Err)
			return
		}
		logger.Printf("[Ledger] applied %s client=%d tx=%d", tx.Kind(), tx.Client(), payments.TxID(tx))
	}
}
