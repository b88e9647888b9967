// Package exam runs quiz attempts: starting and resuming exams, grading and
// recording submissions, tutor requests, and result and history reports.
package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pavelanni/skillforge/internal/grading"
	"github.com/pavelanni/skillforge/internal/llm"
	"github.com/pavelanni/skillforge/internal/metrics"
	"github.com/pavelanni/skillforge/internal/model"
	"github.com/pavelanni/skillforge/internal/store"
)

var (
	// ErrInvalid marks a request with missing or malformed fields.
	ErrInvalid = errors.New("invalid request")
	// ErrExamClosed is returned when submitting or abandoning an exam that is
	// no longer in progress.
	ErrExamClosed = errors.New("exam is not in progress")
	// ErrRateLimited is returned when tutor requests arrive too fast.
	ErrRateLimited = errors.New("too many requests")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

// Config tunes the exam service.
type Config struct {
	CompletionTimeout time.Duration
	AIRateLimit       float64 // tutor requests per second, 0 disables limiting
	AIRateBurst       int
}

// Service coordinates the store, the grading engine and the tutor.
type Service struct {
	store     *store.Store
	grader    *grading.Engine
	completer llm.Completer
	tracker   *RequestTracker
	limiter   *rate.Limiter
	timeout   time.Duration
	now       func() time.Time

	// tutor goroutines outlive their HTTP request; bg stops them on shutdown.
	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an exam service.
func New(s *store.Store, grader *grading.Engine, completer llm.Completer, tracker *RequestTracker, cfg Config) *Service {
	limit := rate.Inf
	if cfg.AIRateLimit > 0 {
		limit = rate.Limit(cfg.AIRateLimit)
	}
	burst := cfg.AIRateBurst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.CompletionTimeout
	if timeout <= 0 {
		timeout = grading.DefaultTimeout
	}
	bg, cancel := context.WithCancel(context.Background())
	return &Service{
		store:     s,
		grader:    grader,
		completer: completer,
		tracker:   tracker,
		limiter:   rate.NewLimiter(limit, burst),
		timeout:   timeout,
		now:       time.Now,
		bg:        bg,
		cancel:    cancel,
	}
}

// Close cancels running tutor requests and waits for them to finish.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func newID(quizID string, t time.Time) string {
	return quizID + "_" + t.UTC().Format("20060102T150405.000000000Z")
}

// Quizzes lists all quizzes with their latest submission, attempt count and
// open exam.
func (s *Service) Quizzes(ctx context.Context) ([]model.QuizSummary, error) {
	quizzes, err := s.store.ListQuizzes()
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	summaries := make([]model.QuizSummary, 0, len(quizzes))
	for _, q := range quizzes {
		sum := model.QuizSummary{Quiz: q}
		latest, err := s.store.LatestSubmission(q.ID)
		switch {
		case err == nil:
			sum.Latest = &latest
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		exams, err := s.store.ListExams(q.ID)
		if err != nil {
			return nil, fmt.Errorf("list exams: %w", err)
		}
		sum.Attempts = len(exams)
		for _, e := range exams {
			if e.Status == model.ExamInProgress {
				sum.OpenExamID = e.ID
				break
			}
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// Quiz returns a quiz with its questions in order.
func (s *Service) Quiz(ctx context.Context, quizID string) (model.QuizView, error) {
	if quizID == "" {
		return model.QuizView{}, invalidf("quiz_id is required")
	}
	q, err := s.store.GetQuiz(quizID)
	if err != nil {
		return model.QuizView{}, err
	}
	questions, err := s.store.GetQuestions(quizID)
	if err != nil {
		return model.QuizView{}, fmt.Errorf("get questions: %w", err)
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return model.QuizView{Quiz: q, Questions: questions}, nil
}

// StartOrResume returns the quiz's in-progress exam, or starts a new one.
// isExisting reports whether an open exam was resumed.
func (s *Service) StartOrResume(ctx context.Context, quizID string) (model.Exam, bool, error) {
	if quizID == "" {
		return model.Exam{}, false, invalidf("quiz_id is required")
	}
	if _, err := s.store.GetQuiz(quizID); err != nil {
		return model.Exam{}, false, err
	}

	open, err := s.store.OpenExam(quizID)
	if err == nil {
		return open, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Exam{}, false, err
	}

	now := s.now()
	id := newID(quizID, now)
	e, err := s.store.InsertExamIfNoneOpen(id, quizID, now)
	if err != nil {
		return model.Exam{}, false, fmt.Errorf("start exam: %w", err)
	}
	isExisting := e.ID != id
	if !isExisting {
		slog.InfoContext(ctx, "exam started", "quiz_id", quizID, "exam_id", e.ID)
	}
	return e, isExisting, nil
}

// Abandon closes an in-progress exam without a submission.
func (s *Service) Abandon(ctx context.Context, examID string) error {
	if examID == "" {
		return invalidf("exam_id is required")
	}
	e, err := s.store.GetExam(examID)
	if err != nil {
		return err
	}
	if e.Status != model.ExamInProgress {
		return fmt.Errorf("exam %q: %w", examID, ErrExamClosed)
	}
	if err := s.store.UpdateExamStatus(examID, model.ExamAbandoned); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("exam %q: %w", examID, ErrExamClosed)
		}
		return err
	}
	slog.InfoContext(ctx, "exam abandoned", "exam_id", examID)
	return nil
}

// SubmitRequest is a complete set of answers for one exam.
type SubmitRequest struct {
	ExamID    string  `json:"exam_id"`
	QuizID    string  `json:"quiz_id"`
	Answers   Answers `json:"answers"`
	TimeSpent int     `json:"time_spent"`
}

// SubmitResult is the graded outcome returned to the client.
type SubmitResult struct {
	SubmissionID  string               `json:"submission_id"`
	TotalScore    float64              `json:"total_score"`
	ObtainedScore float64              `json:"obtained_score"`
	PassStatus    model.PassStatus     `json:"pass_status"`
	Percentage    float64              `json:"percentage"`
	Results       []model.GradedAnswer `json:"results"`
}

// Passed reports whether obtained reaches threshold percent of total.
func Passed(obtained, total, threshold float64) bool {
	return obtained*100 >= threshold*total
}

// Submit grades the answers and records the submission. The exam must be in
// progress and belong to the quiz.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	switch {
	case req.QuizID == "":
		return SubmitResult{}, invalidf("quiz_id is required")
	case req.ExamID == "":
		return SubmitResult{}, invalidf("exam_id is required")
	case req.Answers == nil:
		return SubmitResult{}, invalidf("answers are required")
	}

	quiz, err := s.store.GetQuiz(req.QuizID)
	if err != nil {
		return SubmitResult{}, err
	}
	e, err := s.store.GetExam(req.ExamID)
	if err != nil {
		return SubmitResult{}, err
	}
	if e.QuizID != req.QuizID {
		return SubmitResult{}, fmt.Errorf("exam %q of quiz %q: %w", req.ExamID, req.QuizID, store.ErrNotFound)
	}
	if e.Status != model.ExamInProgress {
		return SubmitResult{}, fmt.Errorf("exam %q: %w", req.ExamID, ErrExamClosed)
	}

	questions, err := s.store.GetQuestions(req.QuizID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("get questions: %w", err)
	}

	// Grading finishes even if the client goes away; each collaborator call
	// is still bounded by the grading timeout.
	graded := s.grader.Grade(context.WithoutCancel(ctx), questions, req.Answers)

	var total, tenths float64
	for _, q := range questions {
		total += float64(q.Points)
	}
	// Scores carry one decimal; summing whole tenths keeps the total exact.
	for _, g := range graded {
		tenths += math.Round(g.ScoreObtained * 10)
	}
	obtained := tenths / 10

	threshold := quiz.PassThreshold
	if threshold <= 0 {
		threshold = model.DefaultPassThreshold
	}
	status := model.Fail
	if Passed(obtained, total, threshold) {
		status = model.Pass
	}

	now := s.now()
	sub := model.Submission{
		ID:            newID(req.QuizID, now),
		ExamID:        req.ExamID,
		QuizID:        req.QuizID,
		SubmittedAt:   now.UTC(),
		TotalScore:    total,
		ObtainedScore: obtained,
		TimeSpent:     max(req.TimeSpent, 0),
		PassStatus:    status,
	}
	if err := s.store.CreateSubmission(sub, graded); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SubmitResult{}, fmt.Errorf("exam %q: %w", req.ExamID, ErrExamClosed)
		}
		return SubmitResult{}, fmt.Errorf("save submission: %w", err)
	}
	metrics.Submissions.WithLabelValues(string(status)).Inc()
	slog.InfoContext(ctx, "exam submitted", "quiz_id", req.QuizID, "exam_id", req.ExamID,
		"submission_id", sub.ID, "obtained", obtained, "total", total, "status", status)

	return SubmitResult{
		SubmissionID:  sub.ID,
		TotalScore:    total,
		ObtainedScore: obtained,
		PassStatus:    status,
		Percentage:    sub.Percentage(),
		Results:       graded,
	}, nil
}

// DeleteQuiz removes a quiz and everything recorded against it.
func (s *Service) DeleteQuiz(ctx context.Context, quizID string) error {
	if quizID == "" {
		return invalidf("quiz_id is required")
	}
	if err := s.store.DeleteQuiz(quizID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "quiz deleted", "quiz_id", quizID)
	return nil
}

// DeleteExam removes one exam with its submissions and tutor exchanges.
func (s *Service) DeleteExam(ctx context.Context, examID string) error {
	if examID == "" {
		return invalidf("exam_id is required")
	}
	if err := s.store.DeleteExam(examID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "exam deleted", "exam_id", examID)
	return nil
}
