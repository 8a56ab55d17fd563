package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/testgen/internal/model"
)

// ExportSessions collects every session of a test into an export document.
func (s *Store) ExportSessions(ctx context.Context, testID int64) (model.SessionExport, error) {
	if _, err := s.GetTest(ctx, testID); err != nil {
		return model.SessionExport{}, fmt.Errorf("test %d: %w", testID, err)
	}
	sessions, err := s.ListSessionsByTest(ctx, testID)
	if err != nil {
		return model.SessionExport{}, fmt.Errorf("list sessions: %w", err)
	}
	return model.SessionExport{
		TestID:     testID,
		ExportedAt: time.Now().UTC(),
		Sessions:   sessions,
	}, nil
}
