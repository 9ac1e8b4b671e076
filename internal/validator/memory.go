package validator

import (
	"context"
	"sync"

	"github.com/elys-network/yieldcore/internal/types"
)

// MemoryPersistence keeps rounds and scores in process. Used when no database is configured.
type MemoryPersistence struct {
	mu      sync.Mutex
	round   int
	records []types.RoundRecord
	scores  map[types.MinerUID]float64
}

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{scores: make(map[types.MinerUID]float64)}
}

func (m *MemoryPersistence) NextRound(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round++
	return m.round, nil
}

func (m *MemoryPersistence) RecordRound(rec types.RoundRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

func (m *MemoryPersistence) SaveScores(ctx context.Context, scores map[types.MinerUID]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = copyScores(scores)
	return nil
}

func (m *MemoryPersistence) LoadScores(ctx context.Context) (map[types.MinerUID]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyScores(m.scores), nil
}

// Records returns the recorded rounds, oldest first.
func (m *MemoryPersistence) Records() []types.RoundRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.RoundRecord, len(m.records))
	copy(out, m.records)
	return out
}
