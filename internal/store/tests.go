package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/testgen/internal/model"
)

// UpsertTest stores t keyed by its lecture ID, replacing the questions of any
// existing test for that lecture. The stored test keeps its original ID.
func (s *Store) UpsertTest(ctx context.Context, t model.Test) (model.Test, error) {
	if t.Questions == nil {
		t.Questions = []model.TestQuestion{}
	}
	questions, err := json.Marshal(t.Questions)
	if err != nil {
		return model.Test{}, fmt.Errorf("encode questions: %w", err)
	}
	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO tests (lecture_id, questions, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(lecture_id) DO UPDATE SET questions = excluded.questions, updated_at = excluded.updated_at
		 RETURNING id`,
		t.LectureID, string(questions), now, now,
	).Scan(&t.ID)
	if err != nil {
		return model.Test{}, fmt.Errorf("upsert test for lecture %d: %w", t.LectureID, err)
	}
	return t, nil
}

// GetTest returns a test by ID.
func (s *Store) GetTest(ctx context.Context, id int64) (model.Test, error) {
	return s.scanTest(s.db.QueryRowContext(ctx,
		`SELECT id, lecture_id, questions FROM tests WHERE id = ?`, id))
}

// GetTestByLecture returns the test generated for a lecture.
func (s *Store) GetTestByLecture(ctx context.Context, lectureID int64) (model.Test, error) {
	return s.scanTest(s.db.QueryRowContext(ctx,
		`SELECT id, lecture_id, questions FROM tests WHERE lecture_id = ?`, lectureID))
}

// DeleteTest removes a test. Sessions referring to it are kept.
func (s *Store) DeleteTest(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete test %d: %w", id, err)
	}
	if err := requireAffected(res); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrTestNotFound
		}
		return err
	}
	return nil
}

func (s *Store) scanTest(row *sql.Row) (model.Test, error) {
	var t model.Test
	var questions string
	if err := row.Scan(&t.ID, &t.LectureID, &questions); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Test{}, model.ErrTestNotFound
		}
		return model.Test{}, err
	}
	if err := json.Unmarshal([]byte(questions), &t.Questions); err != nil {
		return model.Test{}, fmt.Errorf("decode questions of test %d: %w", t.ID, err)
	}
	return t, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
