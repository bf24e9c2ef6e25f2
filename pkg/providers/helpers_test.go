package providers_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
	"github.com/ogulcanaydogan/gluco-guardian/pkg/storage"
)

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// sink persists recorded readings and remembers every batch.
type sink struct {
	store   *storage.SQLite
	mu      sync.Mutex
	batches [][]model.Reading
}

func (s *sink) Record(ctx context.Context, ownerID string, readings []model.Reading) (int, error) {
	s.mu.Lock()
	s.batches = append(s.batches, readings)
	s.mu.Unlock()
	return s.store.InsertReadings(ctx, readings)
}

func (s *sink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}
