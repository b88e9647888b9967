package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/skillforge/internal/authoring"
	appI18n "github.com/pavelanni/skillforge/internal/i18n"
	"github.com/pavelanni/skillforge/internal/model"
)

const maxUploadBytes = 10 << 20

func (h *Handler) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	var draft model.QuizDraft
	if err := decode(w, r, &draft); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.authoring.Create(r.Context(), draft, authoring.Source{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type importResponse struct {
	authoring.ImportResult
	Message string `json:"message"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, fmt.Errorf("%w: file too large or not multipart: %v", errBadRequest, err))
		return
	}

	file, header, err := r.FormFile("quiz_file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: no quiz_file uploaded", errBadRequest))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	// An upload is an explicit request, so a changed file is imported again.
	res, err := h.authoring.Import(r.Context(), header.Filename, data, true)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := importResponse{ImportResult: res}
	status := http.StatusOK
	if res.Status == authoring.ImportCreated {
		status = http.StatusCreated
		resp.Message = appI18n.Tp(r.Context(), "QuestionsImported", len(res.Result.Questions))
		slog.InfoContext(r.Context(), "imported quiz via upload", "filename", header.Filename, "quiz_id", res.Result.Quiz.ID)
	} else {
		resp.Message = appI18n.T(r.Context(), "ImportSkipped")
	}
	writeJSON(w, status, resp)
}

type deleteRequest struct {
	QuizID string `json:"quiz_id"`
	ExamID string `json:"exam_id"`
}

// readDelete takes ids from the JSON body, falling back to the query string.
func readDelete(w http.ResponseWriter, r *http.Request) (deleteRequest, error) {
	var req deleteRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			return req, err
		}
	}
	q := r.URL.Query()
	if req.QuizID == "" {
		req.QuizID = q.Get("quiz_id")
	}
	if req.ExamID == "" {
		req.ExamID = q.Get("exam_id")
	}
	return req, nil
}

func (h *Handler) handleDeleteQuiz(w http.ResponseWriter, r *http.Request) {
	req, err := readDelete(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.exams.DeleteQuiz(r.Context(), req.QuizID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "quiz_id": req.QuizID})
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	req, err := readDelete(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.exams.DeleteExam(r.Context(), req.ExamID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "exam_id": req.ExamID})
}
