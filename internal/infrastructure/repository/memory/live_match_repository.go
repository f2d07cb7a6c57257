package memory

import (
	"context"
	"sync"

	"github.com/riskibarqy/livefeed-updater/internal/domain/livematch"
)

// LiveMatchRepository keeps the live database in process. Used for dry runs
// and tests.
type LiveMatchRepository struct {
	mu       sync.RWMutex
	db       livematch.Database
	persists int
}

func NewLiveMatchRepository(seed livematch.Database) *LiveMatchRepository {
	return &LiveMatchRepository{db: seed.Clone()}
}

func (r *LiveMatchRepository) Load(_ context.Context) (livematch.Database, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.db.Clone(), nil
}

func (r *LiveMatchRepository) Persist(_ context.Context, db livematch.Database) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.db = db.Clone()
	r.persists++
	return nil
}

// Persists reports how many times Persist succeeded.
func (r *LiveMatchRepository) Persists() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.persists
}
