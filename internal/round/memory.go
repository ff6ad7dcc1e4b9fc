package round

import (
	"context"
	"sync"

	"github.com/harshadakardil/CryptoCrash/internal/game"
)

// MemoryRepository is an in-process game.Repository for local development
// and tests without a database.
type MemoryRepository struct {
	mu    sync.Mutex
	byID  map[string]game.Round
	order []string
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]game.Round)}
}

func (m *MemoryRepository) Save(ctx context.Context, round game.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[round.RoundID]; !exists {
		m.order = append(m.order, round.RoundID)
	}
	m.byID[round.RoundID] = round
	return nil
}

func (m *MemoryRepository) Recent(ctx context.Context, limit int) ([]game.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]game.Round, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.byID[m.order[i]])
	}
	return out, nil
}
