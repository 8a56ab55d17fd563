package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/testgen/internal/i18n"
	"github.com/pavelanni/testgen/internal/model"
)

// Processor runs the lecture pipeline.
type Processor interface {
	Process(ctx context.Context, req model.ProcessRequest) error
}

// Tests reads and deletes stored tests.
type Tests interface {
	GetTest(ctx context.Context, id int64) (model.Test, error)
	GetTestByLecture(ctx context.Context, lectureID int64) (model.Test, error)
	DeleteTest(ctx context.Context, id int64) error
}

// Sessions is the test session state machine.
type Sessions interface {
	CreateSession(ctx context.Context, studentID, testID int64) (model.TestSession, error)
	GetSession(ctx context.Context, id int64) (model.TestSession, error)
	GetCurrentSession(ctx context.Context, studentID, testID int64) (model.TestSession, error)
	UpdateSession(ctx context.Context, id int64, answers []model.Answer) (model.TestSession, error)
	FinishSession(ctx context.Context, id int64, answers []model.Answer) (model.TestSession, error)
	DeleteSession(ctx context.Context, id int64) error
	ListByStudent(ctx context.Context, studentID int64) ([]model.TestSession, error)
	ListByStudentAndTest(ctx context.Context, studentID, testID int64) ([]model.TestSession, error)
	ListByTest(ctx context.Context, testID int64) ([]model.TestSession, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	processor Processor
	tests     Tests
	sessions  Sessions
}

// New creates a new Handler. Any dependency may be nil, in which case its
// routes are not registered.
func New(p Processor, t Tests, s Sessions) *Handler {
	return &Handler{processor: p, tests: t, sessions: s}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		if h.processor != nil {
			r.Post("/process", h.handleProcess)
		}
		if h.tests != nil {
			r.Get("/tests/{id}", h.handleGetTest)
			r.Get("/tests/lecture/{lectureID}", h.handleGetTestByLecture)
			r.Delete("/tests/{id}", h.handleDeleteTest)
		}
		if h.sessions != nil {
			r.Route("/test-sessions", func(r chi.Router) {
				r.Post("/", h.handleCreateSession)
				r.Get("/{id}", h.handleGetSession)
				r.Put("/{id}", h.handleUpdateSession)
				r.Delete("/{id}", h.handleDeleteSession)
				r.Put("/finish/{id}", h.handleFinishSession)
				r.Get("/student/{studentID}", h.handleListByStudent)
				r.Get("/student_and_test/{studentID}/{testID}", h.handleListByStudentAndTest)
				r.Get("/test/{testID}", h.handleListByTest)
				r.Get("/current/{studentID}/{testID}", h.handleCurrentSession)
			})
		}
	})
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req model.ProcessRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LectureID <= 0 || req.FilePath == "" {
		writeMessage(w, http.StatusBadRequest, i18n.T(r.Context(), "LectureRequired"))
		return
	}
	if err := h.processor.Process(r.Context(), req); err != nil {
		writeError(w, r, err, errorMessages{})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lectureId": req.LectureID,
		"message":   i18n.Td(r.Context(), "LecturePublished", map[string]any{"LectureID": req.LectureID}),
	})
}

var testMessages = errorMessages{notFound: "TestNotFound"}

func (h *Handler) handleGetTest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	test, err := h.tests.GetTest(r.Context(), id)
	if err != nil {
		writeError(w, r, err, testMessages)
		return
	}
	writeJSON(w, http.StatusOK, test)
}

func (h *Handler) handleGetTestByLecture(w http.ResponseWriter, r *http.Request) {
	lectureID, ok := pathID(w, r, "lectureID")
	if !ok {
		return
	}
	test, err := h.tests.GetTestByLecture(r.Context(), lectureID)
	if err != nil {
		writeError(w, r, err, testMessages)
		return
	}
	writeJSON(w, http.StatusOK, test)
}

func (h *Handler) handleDeleteTest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.tests.DeleteTest(r.Context(), id); err != nil {
		writeError(w, r, err, testMessages)
		return
	}
	slog.Info("test deleted", "test_id", id)
	w.WriteHeader(http.StatusNoContent)
}

var sessionMessages = errorMessages{notFound: "SessionNotFound", conflict: "SessionFinished"}

type createSessionRequest struct {
	StudentID int64 `json:"studentId"`
	TestID    int64 `json:"testId"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.StudentID <= 0 || req.TestID <= 0 {
		writeMessage(w, http.StatusBadRequest, i18n.T(r.Context(), "InvalidBody"))
		return
	}
	sess, err := h.sessions.CreateSession(r.Context(), req.StudentID, req.TestID)
	if err != nil {
		writeError(w, r, err, errorMessages{conflict: "SessionConflict"})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	sess, err := h.sessions.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err, sessionMessages)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type updateSessionRequest struct {
	Answers []model.Answer `json:"answers"`
}

func (h *Handler) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := h.sessions.UpdateSession(r.Context(), id, req.Answers)
	if err != nil {
		writeError(w, r, err, sessionMessages)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleFinishSession takes a bare JSON array of answers.
func (h *Handler) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var answers []model.Answer
	if !decodeBody(w, r, &answers) {
		return
	}
	sess, err := h.sessions.FinishSession(r.Context(), id, answers)
	if err != nil {
		writeError(w, r, err, sessionMessages)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.sessions.DeleteSession(r.Context(), id); err != nil {
		writeError(w, r, err, sessionMessages)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListByStudent(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "studentID")
	if !ok {
		return
	}
	sessions, err := h.sessions.ListByStudent(r.Context(), studentID)
	if err != nil {
		writeError(w, r, err, sessionMessages)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleListByStudentAndTest(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "studentID")
	if !ok {
		return
	}
	testID, ok := pathID(w, r, "testID")
	if !ok {
		return
	}
	sessions, err := h.sessions.ListByStudentAndTest(r.Context(), studentID, testID)
	if err != nil {
		writeError(w, r, err, sessionMessages)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleListByTest(w http.ResponseWriter, r *http.Request) {
	testID, ok := pathID(w, r, "testID")
	if !ok {
		return
	}
	sessions, err := h.sessions.ListByTest(r.Context(), testID)
	if err != nil {
		writeError(w, r, err, sessionMessages)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "studentID")
	if !ok {
		return
	}
	testID, ok := pathID(w, r, "testID")
	if !ok {
		return
	}
	sess, err := h.sessions.GetCurrentSession(r.Context(), studentID, testID)
	if err != nil {
		writeError(w, r, err, errorMessages{notFound: "ActiveSessionNotFound"})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, i18n.Td(r.Context(), "InvalidID", map[string]any{"Value": raw}))
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Debug("malformed request body", "path", r.URL.Path, "error", err)
		writeMessage(w, http.StatusBadRequest, i18n.T(r.Context(), "InvalidBody"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
