/*
main.go - HTTP server entry point

PURPOSE:
  Serves one payments engine over HTTP. Transactions are applied in arrival
  order; snapshots can be persisted to SQLite on demand.

COMMAND-LINE FLAGS:
  -port         HTTP server port (default: 8080)
  -db           SQLite database path for snapshots (default: payments.db)
                Use ":memory:" for an in-memory database
  -lock-policy  advisory | reject (default: advisory)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - cmd/payments: Batch CLI
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/payments-engine/api"
	"github.com/warp/payments-engine/payments"
	"github.com/warp/payments-engine/store/sqlite"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "payments.db", "SQLite database path for snapshots")
	lockPolicy := flag.String("lock-policy", string(payments.LockAdvisory), "advisory|reject: effect of a chargeback lock")
	flag.Parse()

	policy, err := payments.ParseLockPolicy(*lockPolicy)
	if err != nil {
		log.Fatalf("Invalid -lock-policy: %v", err)
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	engine := payments.NewEngine(
		payments.WithLockPolicy(policy),
		payments.WithObserver(api.LogOutcomes(log.Default())),
	)
	handler := api.NewHandler(engine, store)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[Server] Listening on http://localhost:%d (lock policy: %s)", *port, policy)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Server] Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("[Server] Stopped")
}
