package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/pavelanni/testgen/internal/llm/prompts"
	"github.com/pavelanni/testgen/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultModel is the model identifier sent when none is configured.
	DefaultModel = "GigaChat"
	// DefaultNumQuestions is how many questions a prompt asks for.
	DefaultNumQuestions = 10

	temperature = 0.1
	maxTokens   = 2000
)

// Config configures a Generator.
type Config struct {
	BaseURL      string
	Model        string
	NumQuestions int
	Lang         prompts.Lang
	HTTPClient   *http.Client
}

// Generator turns lecture text into a validated question set using an
// OpenAI-compatible chat completion endpoint.
type Generator struct {
	cfg    Config
	tokens TokenProvider
}

// New creates a Generator. A fresh token is requested from tokens for every call.
func New(cfg Config, tokens TokenProvider) *Generator {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.NumQuestions <= 0 {
		cfg.NumQuestions = DefaultNumQuestions
	}
	if cfg.Lang == "" {
		cfg.Lang = prompts.LangRU
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &Generator{cfg: cfg, tokens: tokens}
}

// Generate asks the LLM for questions about lectureText. Invalid questions are
// dropped; a result with no questions is not an error.
func (g *Generator) Generate(ctx context.Context, lectureID int64, lectureText string) (*model.GeneratedTest, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}

	systemPrompt, userPrompt, err := prompts.Build(g.cfg.Lang, g.cfg.NumQuestions, lectureText)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	config := openai.DefaultConfig(token)
	if g.cfg.BaseURL != "" {
		config.BaseURL = g.cfg.BaseURL
	}
	config.HTTPClient = g.cfg.HTTPClient
	api := openai.NewClientWithConfig(config)

	resp, err := api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, classifyCompletionError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ParseError{Step: StepResponse, Err: errors.New("response has no choices")}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "lecture_id", lectureID, "raw", raw)

	questions, err := parseQuestions(raw)
	if err != nil {
		return nil, err
	}
	valid := validateQuestions(questions)
	if dropped := len(questions) - len(valid); dropped > 0 {
		slog.Warn("dropped invalid generated questions", "lecture_id", lectureID, "dropped", dropped, "kept", len(valid))
	}

	return &model.GeneratedTest{LectureID: lectureID, Questions: valid}, nil
}

func classifyCompletionError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Op: "completion", StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{Op: "completion", StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &APIError{Op: "completion", Err: err}
	}

	// A successful status with an undecodable body surfaces as a JSON decode error.
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ParseError{Step: StepResponse, Err: err}
	}
	return &APIError{Op: "completion", Err: err}
}

// parseQuestions decodes the JSON document embedded in the message content and
// returns its raw question entries.
func parseQuestions(content string) ([]json.RawMessage, error) {
	content = trimCodeFence(content)

	var doc struct {
		Questions []json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, &ParseError{Step: StepContent, Err: err}
	}
	if doc.Questions == nil {
		return nil, &ParseError{Step: StepContent, Err: errors.New(`content has no "questions" array`)}
	}
	return doc.Questions, nil
}

// trimCodeFence strips a surrounding markdown code fence, which some models add
// despite being told not to.
func trimCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type rawQuestion struct {
	Text          string          `json:"text"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
}

// validateQuestions keeps entries with an options array and an integer
// correctAnswer that indexes into it.
func validateQuestions(raws []json.RawMessage) []model.GeneratedQuestion {
	valid := make([]model.GeneratedQuestion, 0, len(raws))
	for _, raw := range raws {
		q, ok := validateQuestion(raw)
		if ok {
			valid = append(valid, q)
		}
	}
	return valid
}

func validateQuestion(raw json.RawMessage) (model.GeneratedQuestion, bool) {
	var rq rawQuestion
	if err := json.Unmarshal(raw, &rq); err != nil {
		return model.GeneratedQuestion{}, false
	}

	index, ok := intLiteral(rq.CorrectAnswer)
	if !ok {
		return model.GeneratedQuestion{}, false
	}

	opts := bytes.TrimSpace(rq.Options)
	if len(opts) == 0 || opts[0] != '[' {
		return model.GeneratedQuestion{}, false
	}
	var options []string
	if err := json.Unmarshal(opts, &options); err != nil {
		return model.GeneratedQuestion{}, false
	}

	q := model.GeneratedQuestion{
		Text:          strings.TrimSpace(rq.Text),
		Options:       options,
		CorrectAnswer: index,
	}
	return q, q.Valid()
}

// intLiteral accepts only JSON integer numbers, not floats or numeric strings.
func intLiteral(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.ContainsAny(raw, ".eE\"") {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil || v < -1<<31 || v > 1<<31-1 {
		return 0, false
	}
	return int(v), true
}
