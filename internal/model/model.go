package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a session, test or lecture does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an operation would break a session invariant.
	ErrConflict = errors.New("conflict")
	// ErrTestNotFound narrows ErrNotFound to a missing test.
	ErrTestNotFound = fmt.Errorf("test %w", ErrNotFound)
)

// GeneratedQuestion is a single multiple-choice question produced by the LLM.
type GeneratedQuestion struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// Valid reports whether the correct answer index points into the options.
func (q GeneratedQuestion) Valid() bool {
	return q.CorrectAnswer >= 0 && q.CorrectAnswer < len(q.Options)
}

// GeneratedTest is the pipeline output published to the broker.
type GeneratedTest struct {
	LectureID int64               `json:"lectureId"`
	Questions []GeneratedQuestion `json:"questions"`
}

// TestQuestion is a question stored as part of a Test.
type TestQuestion struct {
	ID            int64    `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// Test is the durable question set for a lecture. There is at most one per lecture.
type Test struct {
	ID        int64          `json:"id"`
	LectureID int64          `json:"lectureId"`
	Questions []TestQuestion `json:"questions"`
}

// Question returns the question with the given ID, if present.
func (t Test) Question(id int64) (TestQuestion, bool) {
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return TestQuestion{}, false
}

// Answer is a student's response to one question.
type Answer struct {
	QuestionID     int64 `json:"questionId"`
	SelectedOption *int  `json:"selectedOption,omitempty"`
	IsCorrect      bool  `json:"isCorrect"`
}

// TestSession is one attempt by a student at a test.
type TestSession struct {
	ID        int64      `json:"id"`
	TestID    int64      `json:"testId"`
	StudentID int64      `json:"studentId"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Answers   []Answer   `json:"answers"`
	Score     *int       `json:"score,omitempty"`
	Finished  bool       `json:"finished"`
}

// Active reports whether the session can still be updated.
func (s TestSession) Active() bool {
	return !s.Finished
}

// ProcessRequest asks the pipeline to generate a test for an uploaded lecture file.
type ProcessRequest struct {
	LectureID int64  `json:"lectureId"`
	FilePath  string `json:"filePath"`
}

// SessionExport is the JSON document written by the export command.
type SessionExport struct {
	TestID     int64         `json:"testId"`
	ExportedAt time.Time     `json:"exportedAt"`
	Sessions   []TestSession `json:"sessions"`
}
