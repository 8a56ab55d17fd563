// Package ingest stores generated tests delivered by the broker.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/testgen/internal/broker"
	"github.com/pavelanni/testgen/internal/model"
)

// TestStore persists tests keyed by lecture.
type TestStore interface {
	UpsertTest(ctx context.Context, t model.Test) (model.Test, error)
}

// Consumer turns GeneratedTest messages into stored Tests.
type Consumer struct {
	tests TestStore
}

// New creates a Consumer.
func New(tests TestStore) *Consumer {
	return &Consumer{tests: tests}
}

// Handle parses one message body and upserts the test for its lecture.
// Malformed messages are reported as permanent failures so the broker parks
// them instead of redelivering.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	generated, err := decode(body)
	if err != nil {
		return broker.Permanent(fmt.Errorf("decode generated test: %w", err))
	}

	test := model.Test{
		LectureID: generated.LectureID,
		Questions: make([]model.TestQuestion, 0, len(generated.Questions)),
	}
	for i, q := range generated.Questions {
		test.Questions = append(test.Questions, model.TestQuestion{
			ID:            int64(i + 1),
			Text:          q.Text,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
		})
	}

	saved, err := c.tests.UpsertTest(ctx, test)
	if err != nil {
		return fmt.Errorf("store test: %w", err)
	}
	slog.Info("stored generated test", "lecture_id", saved.LectureID, "test_id", saved.ID, "questions", len(saved.Questions))
	return nil
}

func decode(body []byte) (model.GeneratedTest, error) {
	var generated model.GeneratedTest
	if err := json.Unmarshal(body, &generated); err != nil {
		return model.GeneratedTest{}, err
	}
	if generated.LectureID <= 0 {
		return model.GeneratedTest{}, errors.New("missing lectureId")
	}
	return generated, nil
}
