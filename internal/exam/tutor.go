package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/skillforge/internal/i18n"
	"github.com/pavelanni/skillforge/internal/llm"
	"github.com/pavelanni/skillforge/internal/llm/prompts"
	"github.com/pavelanni/skillforge/internal/metrics"
	"github.com/pavelanni/skillforge/internal/model"
	"github.com/pavelanni/skillforge/internal/store"
)

// AskRequest is a student's question about one quiz question.
type AskRequest struct {
	ExamID         string `json:"exam_id"`
	QuizID         string `json:"quiz_id"`
	QuestionNumber int    `json:"question_number"`
	UserQuery      string `json:"user_query"`
}

// AskTutor queues a tutor request and returns its ID. The completion runs in
// the background; poll it with TutorStatus.
func (s *Service) AskTutor(ctx context.Context, req AskRequest) (string, error) {
	req.UserQuery = strings.TrimSpace(req.UserQuery)
	switch {
	case req.QuizID == "":
		return "", invalidf("quiz_id is required")
	case req.QuestionNumber < 1:
		return "", invalidf("question_number is required")
	case req.UserQuery == "":
		return "", invalidf("user_query is required")
	}
	if !s.limiter.Allow() {
		return "", ErrRateLimited
	}

	quiz, err := s.store.GetQuiz(req.QuizID)
	if err != nil {
		return "", err
	}
	question, err := s.store.GetQuestion(req.QuizID, req.QuestionNumber)
	if err != nil {
		return "", err
	}
	prompt, err := prompts.BuildTutorPrompt(quiz.Topic, question, req.UserQuery)
	if err != nil {
		return "", fmt.Errorf("build tutor prompt: %w", err)
	}

	id := s.tracker.Start()
	// Keep the request's values (localizer, request id) but not its deadline.
	detached := context.WithoutCancel(ctx)
	s.wg.Add(1)
	metrics.TutorInFlight.Inc()
	go func() {
		defer s.wg.Done()
		defer metrics.TutorInFlight.Dec()
		s.runTutor(detached, id, req, prompt)
	}()
	slog.InfoContext(ctx, "tutor request queued", "request_id", id, "quiz_id", req.QuizID, "question", req.QuestionNumber)
	return id, nil
}

func (s *Service) runTutor(ctx context.Context, id string, req AskRequest, prompt string) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(s.bg, cancel)
	defer stop()

	out, err := s.completer.Complete(cctx, prompt)
	if err != nil {
		var msg string
		if errors.Is(err, llm.ErrTimeout) {
			msg = i18n.Td(ctx, "TutorTimeout", map[string]any{"Seconds": int(s.timeout.Seconds())})
		} else {
			msg = i18n.Td(ctx, "TutorFailed", map[string]any{"Error": err.Error()})
		}
		slog.Warn("tutor request failed", "request_id", id, "error", err)
		metrics.TutorRequests.WithLabelValues(string(StatusError)).Inc()
		s.tracker.Fail(id, msg)
		return
	}

	if _, err := s.store.SaveAIInteraction(model.AIInteraction{
		ExamID:         req.ExamID,
		QuizID:         req.QuizID,
		QuestionNumber: req.QuestionNumber,
		UserQuery:      req.UserQuery,
		AIResponse:     out,
		CreatedAt:      s.now().UTC(),
	}); err != nil {
		// The answer is still delivered; only the log entry is lost.
		slog.Error("save tutor interaction", "request_id", id, "error", err)
	}
	metrics.TutorRequests.WithLabelValues(string(StatusSuccess)).Inc()
	s.tracker.Succeed(id, out)
}

// TutorStatus returns the state of a tutor request. Unknown or expired IDs
// report store.ErrNotFound.
func (s *Service) TutorStatus(requestID string) (RequestState, error) {
	if requestID == "" {
		return RequestState{}, invalidf("requestId is required")
	}
	st, ok := s.tracker.Get(requestID)
	if !ok {
		return RequestState{}, fmt.Errorf("tutor request %q: %w", requestID, store.ErrNotFound)
	}
	return st, nil
}

// Interactions lists logged tutor exchanges of a quiz, newest first. A
// questionNumber of 0 lists every question.
func (s *Service) Interactions(ctx context.Context, quizID string, questionNumber int) ([]model.AIInteraction, error) {
	if quizID == "" {
		return nil, invalidf("quiz_id is required")
	}
	if questionNumber < 0 {
		return nil, invalidf("question_number must not be negative")
	}
	list, err := s.store.ListAIInteractions(quizID, questionNumber)
	if err != nil {
		return nil, fmt.Errorf("list ai interactions: %w", err)
	}
	if list == nil {
		list = []model.AIInteraction{}
	}
	return list, nil
}
