package handler

import (
	"net/http"

	"github.com/pavelanni/skillforge/internal/exam"
	"github.com/pavelanni/skillforge/internal/model"
)

func (h *Handler) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.exams.Quizzes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quizzes": quizzes})
}

func (h *Handler) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	view, err := h.exams.Quiz(r.Context(), r.URL.Query().Get("quiz_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type startExamResponse struct {
	ExamID     string           `json:"exam_id"`
	QuizID     string           `json:"quiz_id"`
	IsExisting bool             `json:"isExisting"`
	Status     model.ExamStatus `json:"status"`
	StartedAt  string           `json:"started_at"`
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuizID string `json:"quiz_id"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	e, existing, err := h.exams.StartOrResume(r.Context(), req.QuizID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, startExamResponse{
		ExamID:     e.ID,
		QuizID:     e.QuizID,
		IsExisting: existing,
		Status:     e.Status,
		StartedAt:  e.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

func (h *Handler) handleAbandonExam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExamID string `json:"exam_id"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.exams.Abandon(r.Context(), req.ExamID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "exam_id": req.ExamID})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req exam.SubmitRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.exams.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAskAI(w http.ResponseWriter, r *http.Request) {
	var req exam.AskRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := h.exams.AskTutor(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"requestId": id})
}

func (h *Handler) handleAIStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.exams.TutorStatus(r.URL.Query().Get("requestId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleAIInteractions(w http.ResponseWriter, r *http.Request) {
	number, err := intParam(r, "question_number")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.exams.Interactions(r.Context(), r.URL.Query().Get("quiz_id"), number)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": list})
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := h.exams.Result(r.Context(), q.Get("submission_id"), q.Get("quiz_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	view, err := h.exams.History(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
