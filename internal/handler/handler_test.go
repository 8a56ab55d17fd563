package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/testgen/internal/extract"
	"github.com/pavelanni/testgen/internal/i18n"
	"github.com/pavelanni/testgen/internal/model"
	"github.com/pavelanni/testgen/internal/pipeline"
	"github.com/pavelanni/testgen/internal/session"
	"github.com/pavelanni/testgen/internal/store"
)

type fakeProcessor struct {
	got model.ProcessRequest
	err error
}

func (f *fakeProcessor) Process(_ context.Context, req model.ProcessRequest) error {
	f.got = req
	return f.err
}

type fixture struct {
	srv   *httptest.Server
	store *store.Store
	proc  *fakeProcessor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, i18n.Init("en"))

	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	proc := &fakeProcessor{}
	h := New(proc, s, session.New(s, s, session.Options{}))
	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: s, proc: proc}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) (int, map[string]any, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	_ = json.NewDecoder(resp.Body).Decode(&raw)
	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)
	return resp.StatusCode, obj, raw
}

func TestProcess(t *testing.T) {
	f := newFixture(t)

	status, body, _ := f.do(t, http.MethodPost, "/api/process", `{"lectureId":42,"filePath":"lectures/x.docx"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, model.ProcessRequest{LectureID: 42, FilePath: "lectures/x.docx"}, f.proc.got)
	assert.Equal(t, "Test for lecture 42 published", body["message"])

	status, _, _ = f.do(t, http.MethodPost, "/api/process", `{"lectureId":42}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = f.do(t, http.MethodPost, "/api/process", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestProcessFailureHidesDetail(t *testing.T) {
	f := newFixture(t)
	f.proc.err = &pipeline.Failure{
		LectureID: 42,
		Stage:     pipeline.StageExtract,
		Err:       &extract.ExtractionError{Path: "secret/path.pdf", Err: errors.New("xref table broken")},
	}

	status, body, raw := f.do(t, http.MethodPost, "/api/process", `{"lectureId":42,"filePath":"secret/path.pdf"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Lecture processing failed", body["error"])
	assert.Equal(t, "extract", body["stage"])
	assert.NotContains(t, string(raw), "xref")
	assert.NotContains(t, string(raw), "secret")
}

func TestTests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	saved, err := f.store.UpsertTest(ctx, model.Test{LectureID: 42, Questions: []model.TestQuestion{
		{ID: 1, Text: "q", Options: []string{"a", "b"}, CorrectAnswer: 1},
	}})
	require.NoError(t, err)

	status, _, raw := f.do(t, http.MethodGet, "/api/tests/lecture/42", "")
	require.Equal(t, http.StatusOK, status)
	var got model.Test
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, saved, got)

	status, _, _ = f.do(t, http.MethodGet, "/api/tests/"+itoa(saved.ID), "")
	assert.Equal(t, http.StatusOK, status)

	status, _, _ = f.do(t, http.MethodDelete, "/api/tests/"+itoa(saved.ID), "")
	assert.Equal(t, http.StatusNoContent, status)

	status, body, _ := f.do(t, http.MethodGet, "/api/tests/"+itoa(saved.ID), "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Test not found", body["error"])

	status, body, _ = f.do(t, http.MethodGet, "/api/tests/abc", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid identifier: abc", body["error"])
}

func TestSessionFlow(t *testing.T) {
	f := newFixture(t)

	status, _, raw := f.do(t, http.MethodPost, "/api/test-sessions", `{"studentId":100,"testId":1}`)
	require.Equal(t, http.StatusOK, status)
	var sess model.TestSession
	require.NoError(t, json.Unmarshal(raw, &sess))
	require.NotZero(t, sess.ID)
	id := itoa(sess.ID)

	status, body, _ := f.do(t, http.MethodPost, "/api/test-sessions", `{"studentId":100,"testId":1}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "An unfinished session already exists for this student and test", body["error"])

	status, _, raw = f.do(t, http.MethodGet, "/api/test-sessions/current/100/1", "")
	require.Equal(t, http.StatusOK, status)
	var current model.TestSession
	require.NoError(t, json.Unmarshal(raw, &current))
	assert.Equal(t, sess.ID, current.ID)

	status, body, _ = f.do(t, http.MethodPut, "/api/test-sessions/"+id,
		`{"answers":[{"questionId":1,"selectedOption":0,"isCorrect":true},{"questionId":2,"isCorrect":false},{"questionId":3,"isCorrect":false}]}`)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 33, body["score"])
	assert.Equal(t, false, body["finished"])

	status, body, _ = f.do(t, http.MethodPut, "/api/test-sessions/finish/"+id,
		`[{"questionId":1,"isCorrect":true},{"questionId":2,"isCorrect":true},{"questionId":3,"isCorrect":false}]`)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 66, body["score"])
	assert.Equal(t, true, body["finished"])
	assert.NotEmpty(t, body["endTime"])

	status, body, _ = f.do(t, http.MethodPut, "/api/test-sessions/"+id, `{"answers":[]}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "The test session is already finished", body["error"])

	status, body, _ = f.do(t, http.MethodGet, "/api/test-sessions/current/100/1", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "No unfinished session for this student and test", body["error"])

	status, _, _ = f.do(t, http.MethodDelete, "/api/test-sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, status)
	status, _, _ = f.do(t, http.MethodGet, "/api/test-sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSessionLists(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{
		`{"studentId":1,"testId":10}`,
		`{"studentId":1,"testId":11}`,
		`{"studentId":2,"testId":10}`,
	} {
		status, _, _ := f.do(t, http.MethodPost, "/api/test-sessions", body)
		require.Equal(t, http.StatusOK, status)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/test-sessions/student/1", 2},
		{"/api/test-sessions/student_and_test/1/10", 1},
		{"/api/test-sessions/test/10", 2},
		{"/api/test-sessions/student/99", 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, _, raw := f.do(t, http.MethodGet, tt.path, "")
			require.Equal(t, http.StatusOK, status)
			var sessions []model.TestSession
			require.NoError(t, json.Unmarshal(raw, &sessions))
			assert.NotNil(t, sessions)
			assert.Len(t, sessions, tt.want)
		})
	}
}

func TestLocalizedErrors(t *testing.T) {
	f := newFixture(t)

	status, body, _ := f.do(t, http.MethodGet, "/api/test-sessions/404", "", "Accept-Language", "ru")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Сессия тестирования не найдена", body["error"])
}

func TestCreateSessionValidation(t *testing.T) {
	f := newFixture(t)

	status, _, _ := f.do(t, http.MethodPost, "/api/test-sessions", `{"studentId":1}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = f.do(t, http.MethodPut, "/api/test-sessions/finish/1", `{"answers":[]}`)
	assert.Equal(t, http.StatusBadRequest, status, "finish takes a bare array")
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestMissingTestWithRecompute(t *testing.T) {
	require.NoError(t, i18n.Init("en"))
	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	New(nil, s, session.New(s, s, session.Options{RecomputeCorrectness: true})).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	f := &fixture{srv: srv, store: s}

	status, _, raw := f.do(t, http.MethodPost, "/api/test-sessions", `{"studentId":1,"testId":77}`)
	require.Equal(t, http.StatusOK, status)
	var sess model.TestSession
	require.NoError(t, json.Unmarshal(raw, &sess))

	status, body, _ := f.do(t, http.MethodPut, "/api/test-sessions/"+itoa(sess.ID),
		`{"answers":[{"questionId":1,"selectedOption":0}]}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Test not found", body["error"])
}
