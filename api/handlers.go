/*
handlers.go - HTTP API handlers for the payments engine

ENDPOINTS:
  Transactions:
    POST   /api/transactions            Apply one transaction (JSON)
    POST   /api/transactions/batch      Apply a CSV body, skip-and-continue

  Clients:
    GET    /api/clients                 Snapshot of every client
    GET    /api/clients/{id}            Snapshot of one client
    GET    /api/clients/{id}/transactions/{tx}  Recorded deposit/withdrawal

  Snapshots:
    POST   /api/snapshots               Persist the current snapshot
    GET    /api/snapshots               List persisted runs
    GET    /api/snapshots/{id}          Load one run

CONCURRENCY:
  The engine is single-threaded. Every handler that touches it holds mu, so
  requests are applied one at a time in arrival order. Batch bodies are read
  in full before mu is taken.

ERROR HANDLING:
  - 400: Malformed request
  - 404: Unknown client, transaction or run
  - 409: Duplicate transaction id
  - 413: Batch body above MaxBatchBytes
  - 422: Rejected by the ledger (limits, funds, dispute lifecycle, lock)
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/payments-engine/batch"
	"github.com/warp/payments-engine/payments"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// DefaultMaxBatchBytes caps the CSV body accepted by ApplyBatch.
const DefaultMaxBatchBytes = 10 << 20

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         payments.SnapshotStore
	MaxBatchBytes int64

	mu         sync.Mutex
	engine     *payments.Engine
	processor  *batch.Processor
	applied    int
	rejections []payments.Rejection
}

// NewHandler wraps engine. store may be nil, in which case the snapshot
// endpoints answer 503.
func NewHandler(engine *payments.Engine, store payments.SnapshotStore) *Handler {
	return &Handler{
		Store:         store,
		MaxBatchBytes: DefaultMaxBatchBytes,
		engine:        engine,
		processor:     batch.NewProcessor(engine),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (h *Handler) ApplyTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	tx, err := req.toTransaction()
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid transaction", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.engine.Apply(tx); err != nil {
		h.rejections = append(h.rejections, payments.RejectionFor(0, tx, err))
		writeErrorCode(w, statusFor(err), "transaction rejected", err)
		return
	}
	h.applied++

	client, _ := h.engine.Client(tx.Client())
	writeJSON(w, http.StatusCreated, toClientDTO(client))
}

func (h *Handler) ApplyBatch(w http.ResponseWriter, r *http.Request) {
	// The upload is buffered before mu is taken.
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.MaxBatchBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "batch too large", err)
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read batch", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	report, err := h.processor.Process(r.Context(), bytes.NewReader(data))
	h.applied += report.Applied
	h.rejections = append(h.rejections, report.Rejections...)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read batch", err)
		return
	}

	writeJSON(w, http.StatusOK, BatchResponse{
		Applied:    report.Applied,
		Rejections: toRejectionDTOs(report.Rejections),
	})
}

func (req TransactionRequest) toTransaction() (payments.Transaction, error) {
	kind, err := payments.ParseKind(req.Type)
	if err != nil {
		return nil, err
	}
	var amount payments.Amount
	if kind.HasAmount() {
		raw, err := payments.ParseAmount(req.Amount)
		if err != nil {
			return nil, err
		}
		amount = payments.NewAmount(raw)
	}
	return batch.Build(kind, payments.ClientID(req.Client), payments.TransactionID(req.Tx), amount), nil
}

// =============================================================================
// CLIENTS
// =============================================================================

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	clients := h.engine.Clients()
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, toClientDTOs(clients))
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := clientParam(w, r)
	if !ok {
		return
	}

	h.mu.Lock()
	client, found := h.engine.Client(id)
	h.mu.Unlock()

	if !found {
		writeErrorCode(w, http.StatusNotFound, "client not found", payments.ErrUnknownClient)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(client))
}

func (h *Handler) GetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := clientParam(w, r)
	if !ok {
		return
	}
	txID, err := strconv.ParseUint(chi.URLParam(r, "tx"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id", err)
		return
	}

	h.mu.Lock()
	tx, found := h.engine.Lookup(id, payments.TransactionID(txID))
	h.mu.Unlock()

	if !found {
		writeErrorCode(w, http.StatusNotFound, "transaction not found", payments.ErrUnknownTransaction)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerEntryDTO(tx))
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (h *Handler) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot store configured", nil)
		return
	}

	h.mu.Lock()
	report := batch.Report{Applied: h.applied, Rejections: append([]payments.Rejection(nil), h.rejections...)}
	run := report.Run(h.engine)
	h.mu.Unlock()

	if err := h.Store.SaveRun(r.Context(), run); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save snapshot", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRunDTO(run))
}

func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot store configured", nil)
		return
	}

	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list snapshots", err)
		return
	}
	out := make([]RunSummaryDTO, 0, len(runs))
	for _, s := range runs {
		out = append(out, toRunSummaryDTO(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot store configured", nil)
		return
	}

	run, err := h.Store.LoadRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, payments.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "snapshot not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// =============================================================================
// HELPERS
// =============================================================================

func clientParam(w http.ResponseWriter, r *http.Request) (payments.ClientID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 16)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client id", err)
		return 0, false
	}
	return payments.ClientID(id), true
}

func statusFor(err error) int {
	switch {
	case payments.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, payments.ErrDuplicateTransaction):
		return http.StatusConflict
	}
	return http.StatusUnprocessableEntity
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeErrorCode(w http.ResponseWriter, status int, message string, err error) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: payments.Code(err), Details: err.Error()})
}
