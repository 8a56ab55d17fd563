// Package pipeline turns an uploaded lecture into a published question set.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/testgen/internal/model"
)

// Stage names the pipeline step that failed.
type Stage string

const (
	StageRequest  Stage = "request"
	StageFetch    Stage = "fetch"
	StageExtract  Stage = "extract"
	StageGenerate Stage = "generate"
	StageEncode   Stage = "encode"
	StagePublish  Stage = "publish"
)

// ErrNoQuestions is the cause of a generate failure when every question was
// invalid and empty results are not published.
var ErrNoQuestions = errors.New("no valid questions generated")

// Failure is the single error type returned by Process.
type Failure struct {
	LectureID int64
	Stage     Stage
	Err       error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("process lecture %d: %s: %v", f.LectureID, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ObjectStore fetches raw lecture documents.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// TextExtractor converts a document to plain text based on its path.
type TextExtractor interface {
	Extract(data []byte, path string) (string, error)
}

// QuestionGenerator derives a question set from lecture text.
type QuestionGenerator interface {
	Generate(ctx context.Context, lectureID int64, lectureText string) (*model.GeneratedTest, error)
}

// Publisher hands a message to the broker.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// Config names where documents are read from and results are sent to.
type Config struct {
	Bucket     string
	Exchange   string
	RoutingKey string
	// SkipEmpty turns a result without valid questions into a generate failure
	// instead of publishing it.
	SkipEmpty bool
}

// Orchestrator runs fetch, extract, generate and publish for one lecture.
type Orchestrator struct {
	objects   ObjectStore
	extractor TextExtractor
	generator QuestionGenerator
	publisher Publisher
	cfg       Config
}

// New creates an Orchestrator.
func New(objects ObjectStore, extractor TextExtractor, generator QuestionGenerator, publisher Publisher, cfg Config) *Orchestrator {
	return &Orchestrator{
		objects:   objects,
		extractor: extractor,
		generator: generator,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Process runs the whole chain. Either exactly one message is published and
// nil is returned, or nothing is published and a *Failure is returned.
func (o *Orchestrator) Process(ctx context.Context, req model.ProcessRequest) error {
	start := time.Now()
	log := slog.With("lecture_id", req.LectureID, "file_path", req.FilePath)
	fail := func(stage Stage, err error) error {
		log.Error("lecture processing failed", "stage", stage, "error", err)
		return &Failure{LectureID: req.LectureID, Stage: stage, Err: err}
	}

	if req.FilePath == "" {
		return fail(StageRequest, errors.New("file path is required"))
	}

	data, err := o.objects.Get(ctx, o.cfg.Bucket, req.FilePath)
	if err != nil {
		return fail(StageFetch, err)
	}
	log.Debug("fetched lecture", "bytes", len(data))

	text, err := o.extractor.Extract(data, req.FilePath)
	if err != nil {
		return fail(StageExtract, err)
	}
	log.Debug("extracted lecture text", "chars", len(text))

	generated, err := o.generator.Generate(ctx, req.LectureID, text)
	if err != nil {
		return fail(StageGenerate, err)
	}
	if len(generated.Questions) == 0 && o.cfg.SkipEmpty {
		return fail(StageGenerate, ErrNoQuestions)
	}

	body, err := json.Marshal(generated)
	if err != nil {
		return fail(StageEncode, err)
	}

	if err := o.publisher.Publish(ctx, o.cfg.Exchange, o.cfg.RoutingKey, body); err != nil {
		return fail(StagePublish, err)
	}

	log.Info("published generated test", "questions", len(generated.Questions), "duration", time.Since(start))
	return nil
}
