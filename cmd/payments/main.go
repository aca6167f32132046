/*
main.go - Batch CLI entry point

PURPOSE:
  Reads a CSV of transactions, applies them in order and writes the final
  client snapshot as CSV to stdout. Rejected records are reported on stderr
  and skipped.

COMMAND-LINE FLAGS:
  -lock-policy  advisory | reject (default: advisory)
  -db           Optional SQLite path; when set the run is persisted

EXAMPLES:
  payments transactions.csv > accounts.csv
  payments -lock-policy=reject -db=./runs.db transactions.csv

EXIT CODES:
  0  snapshot written
  1  bad arguments, unreadable input or output failure
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/warp/payments-engine/batch"
	"github.com/warp/payments-engine/payments"
	"github.com/warp/payments-engine/store/sqlite"
)

func main() {
	lockPolicy := flag.String("lock-policy", string(payments.LockAdvisory), "advisory|reject: effect of a chargeback lock")
	dbPath := flag.String("db", "", "SQLite database path to persist the run (optional)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] transactions.csv\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log.SetOutput(os.Stderr)
	if err := run(*lockPolicy, *dbPath, flag.Args()); err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}

func run(lockPolicy, dbPath string, args []string) error {
	if len(args) != 1 {
		flag.Usage()
		return fmt.Errorf("expected 1 argument, got %d", len(args))
	}
	policy, err := payments.ParseLockPolicy(lockPolicy)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine := payments.NewEngine(payments.WithLockPolicy(policy))
	report, procErr := batch.NewProcessor(engine).Process(ctx, f)
	log.Printf("[Batch] %d applied, %d rejected", report.Applied, len(report.Rejections))

	// Whatever was applied before a read failure is still reported.
	if err := batch.WriteSnapshot(os.Stdout, engine.Clients()); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if procErr != nil {
		return fmt.Errorf("reading %s: %w", args[0], procErr)
	}

	if dbPath != "" {
		store, err := sqlite.New(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		r := report.Run(engine)
		if err := store.SaveRun(ctx, r); err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		log.Printf("[Batch] run %s saved to %s", r.ID, dbPath)
	}
	return nil
}
