// Package session implements the test session lifecycle: at most one active
// attempt per student and test, answer updates while active, and a terminal
// finish.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/pavelanni/testgen/internal/model"
)

// Store persists sessions. CreateSession must fail with model.ErrConflict
// when the pair already has an unfinished session.
type Store interface {
	CreateSession(ctx context.Context, sess model.TestSession) (model.TestSession, error)
	GetSession(ctx context.Context, id int64) (model.TestSession, error)
	ActiveSession(ctx context.Context, studentID, testID int64) (model.TestSession, error)
	SaveSession(ctx context.Context, sess model.TestSession) error
	// SaveActiveSession writes answers and score only while the session is
	// unfinished, failing with model.ErrConflict otherwise.
	SaveActiveSession(ctx context.Context, sess model.TestSession) error
	DeleteSession(ctx context.Context, id int64) error
	ListSessionsByStudent(ctx context.Context, studentID int64) ([]model.TestSession, error)
	ListSessionsByStudentAndTest(ctx context.Context, studentID, testID int64) ([]model.TestSession, error)
	ListSessionsByTest(ctx context.Context, testID int64) ([]model.TestSession, error)
}

// TestSource looks up the test a session belongs to.
type TestSource interface {
	GetTest(ctx context.Context, id int64) (model.Test, error)
}

// Options tune the service.
type Options struct {
	// RecomputeCorrectness derives each answer's IsCorrect from the stored
	// test instead of trusting the client.
	RecomputeCorrectness bool
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Service runs the session state machine.
type Service struct {
	sessions Store
	tests    TestSource
	opts     Options
}

// New creates a Service. tests may be nil when correctness is not recomputed.
func New(sessions Store, tests TestSource, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{sessions: sessions, tests: tests, opts: opts}
}

// CreateSession starts a new attempt for the pair.
func (s *Service) CreateSession(ctx context.Context, studentID, testID int64) (model.TestSession, error) {
	sess, err := s.sessions.CreateSession(ctx, model.TestSession{
		TestID:    testID,
		StudentID: studentID,
		StartTime: s.opts.Now().UTC(),
		Answers:   []model.Answer{},
	})
	if err != nil {
		return model.TestSession{}, err
	}
	slog.Info("session created", "session_id", sess.ID, "student_id", studentID, "test_id", testID)
	return sess, nil
}

// UpdateSession replaces the answers of an active session and rescores it
// with nearest-integer rounding.
func (s *Service) UpdateSession(ctx context.Context, id int64, answers []model.Answer) (model.TestSession, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return model.TestSession{}, err
	}
	if !sess.Active() {
		return model.TestSession{}, fmt.Errorf("session %d is finished: %w", id, model.ErrConflict)
	}

	answers, err = s.grade(ctx, sess.TestID, answers)
	if err != nil {
		return model.TestSession{}, err
	}
	score := RoundedScore(answers)
	sess.Answers = answers
	sess.Score = &score

	if err := s.sessions.SaveActiveSession(ctx, sess); err != nil {
		return model.TestSession{}, err
	}
	slog.Debug("session updated", "session_id", id, "answers", len(answers), "score", score)
	return sess, nil
}

// FinishSession stores the final answers, scores them with truncation and
// marks the session finished. Finishing again recomputes the score and the
// end time.
func (s *Service) FinishSession(ctx context.Context, id int64, answers []model.Answer) (model.TestSession, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return model.TestSession{}, err
	}

	answers, err = s.grade(ctx, sess.TestID, answers)
	if err != nil {
		return model.TestSession{}, err
	}
	score := TruncatedScore(answers)
	end := s.opts.Now().UTC()
	sess.Answers = answers
	sess.Score = &score
	sess.EndTime = &end
	sess.Finished = true

	if err := s.sessions.SaveSession(ctx, sess); err != nil {
		return model.TestSession{}, err
	}
	slog.Info("session finished", "session_id", id, "answers", len(answers), "score", score)
	return sess, nil
}

// GetCurrentSession returns the active session of the pair.
func (s *Service) GetCurrentSession(ctx context.Context, studentID, testID int64) (model.TestSession, error) {
	return s.sessions.ActiveSession(ctx, studentID, testID)
}

func (s *Service) GetSession(ctx context.Context, id int64) (model.TestSession, error) {
	return s.sessions.GetSession(ctx, id)
}

func (s *Service) DeleteSession(ctx context.Context, id int64) error {
	if err := s.sessions.DeleteSession(ctx, id); err != nil {
		return err
	}
	slog.Info("session deleted", "session_id", id)
	return nil
}

func (s *Service) ListByStudent(ctx context.Context, studentID int64) ([]model.TestSession, error) {
	return s.sessions.ListSessionsByStudent(ctx, studentID)
}

func (s *Service) ListByStudentAndTest(ctx context.Context, studentID, testID int64) ([]model.TestSession, error) {
	return s.sessions.ListSessionsByStudentAndTest(ctx, studentID, testID)
}

func (s *Service) ListByTest(ctx context.Context, testID int64) ([]model.TestSession, error) {
	return s.sessions.ListSessionsByTest(ctx, testID)
}

// grade returns a copy of answers, with IsCorrect recomputed from the test
// when that option is enabled.
func (s *Service) grade(ctx context.Context, testID int64, answers []model.Answer) ([]model.Answer, error) {
	graded := make([]model.Answer, len(answers))
	copy(graded, answers)
	if !s.opts.RecomputeCorrectness || s.tests == nil {
		return graded, nil
	}

	test, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("load test %d: %w", testID, err)
	}
	for i, a := range graded {
		q, ok := test.Question(a.QuestionID)
		graded[i].IsCorrect = ok && a.SelectedOption != nil && *a.SelectedOption == q.CorrectAnswer
	}
	return graded, nil
}

func countCorrect(answers []model.Answer) int {
	n := 0
	for _, a := range answers {
		if a.IsCorrect {
			n++
		}
	}
	return n
}

// RoundedScore is the percentage of correct answers rounded to the nearest
// integer, or 0 without answers. Used while a session is active.
func RoundedScore(answers []model.Answer) int {
	if len(answers) == 0 {
		return 0
	}
	return int(math.Round(100 * float64(countCorrect(answers)) / float64(len(answers))))
}

// TruncatedScore is the percentage of correct answers rounded down, or 0
// without answers. Used when a session is finished.
func TruncatedScore(answers []model.Answer) int {
	if len(answers) == 0 {
		return 0
	}
	return 100 * countCorrect(answers) / len(answers)
}
