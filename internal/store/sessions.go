package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/testgen/internal/model"
)

const sessionColumns = `id, test_id, student_id, start_time, end_time, answers, score, finished`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateSession inserts a new session and returns it with its ID set.
// It fails with model.ErrConflict when the student already has an unfinished
// session for the same test.
func (s *Store) CreateSession(ctx context.Context, sess model.TestSession) (model.TestSession, error) {
	answers, err := encodeAnswers(sess.Answers)
	if err != nil {
		return model.TestSession{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO test_sessions (test_id, student_id, start_time, end_time, answers, score, finished)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.TestID, sess.StudentID, sess.StartTime.UTC(), nullTime(sess), answers, nullScore(sess.Score), sess.Finished,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.TestSession{}, fmt.Errorf("student %d, test %d: unfinished session exists: %w",
				sess.StudentID, sess.TestID, model.ErrConflict)
		}
		return model.TestSession{}, fmt.Errorf("insert session: %w", err)
	}
	sess.ID, err = res.LastInsertId()
	if err != nil {
		return model.TestSession{}, err
	}
	if sess.Answers == nil {
		sess.Answers = []model.Answer{}
	}
	return sess, nil
}

// GetSession returns a session by ID.
func (s *Store) GetSession(ctx context.Context, id int64) (model.TestSession, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.TestSession{}, fmt.Errorf("session %d: %w", id, model.ErrNotFound)
	}
	return sess, err
}

// ActiveSession returns the unfinished session of a student for a test.
func (s *Store) ActiveSession(ctx context.Context, studentID, testID int64) (model.TestSession, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions WHERE student_id = ? AND test_id = ? AND finished = 0`,
		studentID, testID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.TestSession{}, fmt.Errorf("student %d, test %d: no active session: %w",
			studentID, testID, model.ErrNotFound)
	}
	return sess, err
}

// SaveSession writes the mutable fields of sess: answers, score, end time and
// the finished flag.
func (s *Store) SaveSession(ctx context.Context, sess model.TestSession) error {
	answers, err := encodeAnswers(sess.Answers)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE test_sessions SET answers = ?, score = ?, end_time = ?, finished = ? WHERE id = ?`,
		answers, nullScore(sess.Score), nullTime(sess), sess.Finished, sess.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("session %d: unfinished session exists: %w", sess.ID, model.ErrConflict)
		}
		return fmt.Errorf("update session %d: %w", sess.ID, err)
	}
	return requireAffected(res)
}

// SaveActiveSession writes answers and score of a session that is still
// unfinished. It fails with model.ErrConflict if the session has been
// finished in the meantime and with model.ErrNotFound if it is gone.
func (s *Store) SaveActiveSession(ctx context.Context, sess model.TestSession) error {
	answers, err := encodeAnswers(sess.Answers)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE test_sessions SET answers = ?, score = ? WHERE id = ? AND finished = 0`,
		answers, nullScore(sess.Score), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session %d: %w", sess.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var finished bool
	err = s.db.QueryRowContext(ctx, `SELECT finished FROM test_sessions WHERE id = ?`, sess.ID).Scan(&finished)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("session %d: %w", sess.ID, model.ErrNotFound)
	case err != nil:
		return err
	default:
		return fmt.Errorf("session %d is finished: %w", sess.ID, model.ErrConflict)
	}
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM test_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %d: %w", id, err)
	}
	return requireAffected(res)
}

// ListSessionsByStudent returns all sessions of a student, oldest first.
func (s *Store) ListSessionsByStudent(ctx context.Context, studentID int64) ([]model.TestSession, error) {
	return s.listSessions(ctx, `WHERE student_id = ?`, studentID)
}

// ListSessionsByStudentAndTest returns all attempts of a student at one test.
func (s *Store) ListSessionsByStudentAndTest(ctx context.Context, studentID, testID int64) ([]model.TestSession, error) {
	return s.listSessions(ctx, `WHERE student_id = ? AND test_id = ?`, studentID, testID)
}

// ListSessionsByTest returns all sessions for a test.
func (s *Store) ListSessionsByTest(ctx context.Context, testID int64) ([]model.TestSession, error) {
	return s.listSessions(ctx, `WHERE test_id = ?`, testID)
}

func (s *Store) listSessions(ctx context.Context, where string, args ...any) ([]model.TestSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM test_sessions `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := []model.TestSession{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func scanSession(row rowScanner) (model.TestSession, error) {
	var (
		sess    model.TestSession
		endTime sql.NullTime
		answers string
		score   sql.NullInt64
	)
	if err := row.Scan(&sess.ID, &sess.TestID, &sess.StudentID, &sess.StartTime, &endTime,
		&answers, &score, &sess.Finished); err != nil {
		return model.TestSession{}, err
	}
	if endTime.Valid {
		t := endTime.Time
		sess.EndTime = &t
	}
	if score.Valid {
		v := int(score.Int64)
		sess.Score = &v
	}
	if err := json.Unmarshal([]byte(answers), &sess.Answers); err != nil {
		return model.TestSession{}, fmt.Errorf("decode answers of session %d: %w", sess.ID, err)
	}
	if sess.Answers == nil {
		sess.Answers = []model.Answer{}
	}
	return sess, nil
}

func encodeAnswers(answers []model.Answer) (string, error) {
	if answers == nil {
		answers = []model.Answer{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("encode answers: %w", err)
	}
	return string(data), nil
}

func nullTime(sess model.TestSession) sql.NullTime {
	if sess.EndTime == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: sess.EndTime.UTC(), Valid: true}
}

func nullScore(score *int) sql.NullInt64 {
	if score == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*score), Valid: true}
}
