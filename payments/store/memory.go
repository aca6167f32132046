// Package store provides SnapshotStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/payments-engine/payments"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	runs map[string]payments.Run
}

func NewMemory() *Memory {
	return &Memory{runs: make(map[string]payments.Run)}
}

// SaveRun stores a copy of run. Append-only.
func (m *Memory) SaveRun(_ context.Context, run payments.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.ID]; exists {
		return payments.ErrDuplicateRun
	}
	m.runs[run.ID] = copyRun(run)
	return nil
}

func (m *Memory) LoadRun(_ context.Context, id string) (payments.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return payments.Run{}, payments.ErrRunNotFound
	}
	return copyRun(run), nil
}

func (m *Memory) ListRuns(_ context.Context) ([]payments.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]payments.RunSummary, 0, len(m.runs))
	for _, run := range m.runs {
		result = append(result, run.Summary())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func copyRun(run payments.Run) payments.Run {
	run.Clients = append([]payments.ClientSnapshot(nil), run.Clients...)
	run.Rejections = append([]payments.Rejection(nil), run.Rejections...)
	return run
}
