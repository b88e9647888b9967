package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/skillforge/internal/grading"
	"github.com/pavelanni/skillforge/internal/i18n"
	"github.com/pavelanni/skillforge/internal/llm"
	"github.com/pavelanni/skillforge/internal/model"
	"github.com/pavelanni/skillforge/internal/store"
)

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.reply(prompt)
}

// clock advances one minute per reading so every generated ID and timestamp differs.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

const essayVerdict = `Here is my verdict: {"score": 20, "feedback": "Half right.", "is_correct": true}`

func newTestService(t *testing.T, fc *fakeCompleter, cfg Config) (*Service, *store.Store) {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	engine, err := grading.New(fc, "", 2, time.Second)
	if err != nil {
		t.Fatalf("grading.New: %v", err)
	}
	if cfg.CompletionTimeout == 0 {
		cfg.CompletionTimeout = time.Second
	}
	svc := New(st, engine, fc, NewRequestTracker(time.Minute), cfg)
	c := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	svc.now = c.Now
	t.Cleanup(func() {
		svc.Close()
		st.Close()
	})
	return svc, st
}

func seedQuiz(t *testing.T, st *store.Store, id string, threshold float64) {
	t.Helper()
	questions := []model.Question{
		{Number: 1, Type: model.TypeChoice, Content: "Which keyword starts a goroutine?",
			Options: []string{"go", "async", "spawn"}, CorrectAnswer: "A", Points: 30,
			KnowledgePoints: []string{"goroutines"}},
		{Number: 2, Type: model.TypeMultipleChoice, Content: "Which types are reference-like?",
			Options: []string{"map", "int", "slice"}, CorrectAnswer: "A,C", Points: 30,
			KnowledgePoints: []string{"types"}},
		{Number: 3, Type: model.TypeEssay, Content: "Explain channels.", CorrectAnswer: "Typed conduits.",
			Points: 40, KnowledgePoints: []string{"channels", "goroutines"}},
	}
	err := st.CreateQuiz(model.Quiz{
		ID: id, Topic: "Go", Difficulty: model.DifficultyIntermediate, PassThreshold: threshold,
	}, questions)
	if err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
}

func essayGrader() *fakeCompleter {
	return &fakeCompleter{reply: func(string) (string, error) { return essayVerdict, nil }}
}

func TestStartOrResume(t *testing.T) {
	svc, _ := newTestService(t, essayGrader(), Config{})
	seedQuiz(t, svc.store, "quiz1", 60)
	ctx := context.Background()

	first, existing, err := svc.StartOrResume(ctx, "quiz1")
	if err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}
	if existing {
		t.Error("first start should not be existing")
	}
	if !strings.HasPrefix(first.ID, "quiz1_") || first.Status != model.ExamInProgress {
		t.Errorf("unexpected exam %+v", first)
	}

	again, existing, err := svc.StartOrResume(ctx, "quiz1")
	if err != nil {
		t.Fatalf("StartOrResume again: %v", err)
	}
	if !existing || again.ID != first.ID {
		t.Errorf("expected to resume %s, got %s (existing=%v)", first.ID, again.ID, existing)
	}

	if err := svc.Abandon(ctx, first.ID); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if err := svc.Abandon(ctx, first.ID); !errors.Is(err, ErrExamClosed) {
		t.Errorf("second Abandon: expected ErrExamClosed, got %v", err)
	}
	fresh, existing, err := svc.StartOrResume(ctx, "quiz1")
	if err != nil {
		t.Fatalf("StartOrResume after abandon: %v", err)
	}
	if existing || fresh.ID == first.ID {
		t.Errorf("expected a new exam after abandon, got %s (existing=%v)", fresh.ID, existing)
	}

	if _, _, err := svc.StartOrResume(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown quiz: expected ErrNotFound, got %v", err)
	}
	if _, _, err := svc.StartOrResume(ctx, ""); !errors.Is(err, ErrInvalid) {
		t.Errorf("empty id: expected ErrInvalid, got %v", err)
	}
}

func TestStartOrResumeConcurrent(t *testing.T) {
	svc, _ := newTestService(t, essayGrader(), Config{})
	seedQuiz(t, svc.store, "quiz1", 60)

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, _, err := svc.StartOrResume(context.Background(), "quiz1")
			if err != nil {
				t.Errorf("StartOrResume: %v", err)
				return
			}
			ids[i] = e.ID
		}()
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("expected one open exam, got ids %v", ids)
		}
	}
}

func TestSubmit(t *testing.T) {
	fc := essayGrader()
	svc, st := newTestService(t, fc, Config{})
	seedQuiz(t, st, "quiz1", 60)
	ctx := context.Background()

	e, _, err := svc.StartOrResume(ctx, "quiz1")
	if err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}

	res, err := svc.Submit(ctx, SubmitRequest{
		ExamID: e.ID, QuizID: "quiz1", TimeSpent: 95,
		Answers: Answers{1: "a", 2: " c, A ", 3: "They pass values."},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.TotalScore != 100 || res.ObtainedScore != 80 {
		t.Errorf("expected 80/100, got %v/%v", res.ObtainedScore, res.TotalScore)
	}
	if res.PassStatus != model.Pass || res.Percentage != 80 {
		t.Errorf("expected pass at 80%%, got %s %v", res.PassStatus, res.Percentage)
	}
	if len(res.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.Results))
	}
	if !res.Results[0].IsCorrect || !res.Results[1].IsCorrect {
		t.Errorf("choice answers should be correct: %+v", res.Results[:2])
	}
	if essay := res.Results[2]; essay.IsCorrect || essay.ScoreObtained != 20 || essay.Feedback != "Half right." {
		t.Errorf("essay verdict not recomputed from score: %+v", essay)
	}
	if len(fc.prompts) != 1 {
		t.Errorf("expected one grading prompt, got %d", len(fc.prompts))
	}

	stored, err := st.GetExam(e.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if stored.Status != model.ExamCompleted || stored.CompletedAt == nil {
		t.Errorf("exam not completed: %+v", stored)
	}
	quiz, _ := st.GetQuiz("quiz1")
	if quiz.Status != model.QuizCompleted {
		t.Errorf("expected quiz completed, got %s", quiz.Status)
	}
	sub, err := st.GetSubmission(res.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.TimeSpent != 95 || sub.ExamID != e.ID {
		t.Errorf("unexpected submission %+v", sub)
	}

	_, err = svc.Submit(ctx, SubmitRequest{ExamID: e.ID, QuizID: "quiz1", Answers: Answers{}})
	if !errors.Is(err, ErrExamClosed) {
		t.Errorf("double submit: expected ErrExamClosed, got %v", err)
	}

	next, existing, err := svc.StartOrResume(ctx, "quiz1")
	if err != nil {
		t.Fatalf("StartOrResume after submit: %v", err)
	}
	if existing || next.ID == e.ID || next.Status != model.ExamInProgress {
		t.Errorf("expected a new in-progress exam after submit, got %+v (existing=%v)", next, existing)
	}
}

func TestSubmitFractionalScoresAtThreshold(t *testing.T) {
	scores := map[string]string{
		"Explain maps.":       "6.6",
		"Explain slices.":     "9.7",
		"Explain interfaces.": "1.7",
	}
	fc := &fakeCompleter{reply: func(prompt string) (string, error) {
		for content, score := range scores {
			if strings.Contains(prompt, content) {
				return `{"score": ` + score + `, "feedback": "ok"}`, nil
			}
		}
		return "", fmt.Errorf("unexpected prompt %q", prompt)
	}}
	svc, st := newTestService(t, fc, Config{})
	var questions []model.Question
	for i, content := range []string{"Explain maps.", "Explain slices.", "Explain interfaces."} {
		questions = append(questions, model.Question{
			Number: i + 1, Type: model.TypeEssay, Content: content, CorrectAnswer: "-", Points: 10,
		})
	}
	if err := st.CreateQuiz(model.Quiz{ID: "frac", Topic: "Go", Difficulty: model.DifficultyIntermediate, PassThreshold: 60}, questions); err != nil {
		t.Fatalf("CreateQuiz: %v", err)
	}
	ctx := context.Background()
	e, _, err := svc.StartOrResume(ctx, "frac")
	if err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}

	res, err := svc.Submit(ctx, SubmitRequest{
		ExamID: e.ID, QuizID: "frac",
		Answers: Answers{1: "a", 2: "b", 3: "c"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.ObtainedScore != 18 || res.PassStatus != model.Pass || res.Percentage != 60 {
		t.Errorf("expected 18/30 to pass at 60%%, got %v (%v%%) %s", res.ObtainedScore, res.Percentage, res.PassStatus)
	}
	sub, err := st.GetSubmission(res.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.ObtainedScore != 18 || sub.PassStatus != model.Pass {
		t.Errorf("stored submission %+v", sub)
	}
}

// ctxCompleter fails like a backend whose caller went away.
type ctxCompleter struct{}

func (ctxCompleter) Complete(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return essayVerdict, nil
}

func TestSubmitOutlivesCanceledRequest(t *testing.T) {
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	engine, err := grading.New(ctxCompleter{}, "", 2, time.Second)
	if err != nil {
		t.Fatalf("grading.New: %v", err)
	}
	svc := New(st, engine, ctxCompleter{}, NewRequestTracker(time.Minute), Config{})
	t.Cleanup(func() {
		svc.Close()
		st.Close()
	})
	seedQuiz(t, st, "quiz1", 60)

	e, _, err := svc.StartOrResume(context.Background(), "quiz1")
	if err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.Submit(ctx, SubmitRequest{
		ExamID: e.ID, QuizID: "quiz1",
		Answers: Answers{1: "A", 2: "A,C", 3: "They pass values."},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if essay := res.Results[2]; essay.ScoreObtained != 20 || essay.Feedback != "Half right." {
		t.Errorf("essay graded on the canceled context: %+v", essay)
	}
	if res.ObtainedScore != 80 {
		t.Errorf("expected 80, got %v", res.ObtainedScore)
	}
}

func TestSubmitPassThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		want      model.PassStatus
	}{
		{"exactly sixty passes", 60, model.Pass},
		{"quiz threshold seventy fails", 70, model.Fail},
		{"unset uses default", 0, model.Pass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newTestService(t, essayGrader(), Config{})
			seedQuiz(t, st, "quiz1", tt.threshold)
			e, _, err := svc.StartOrResume(context.Background(), "quiz1")
			if err != nil {
				t.Fatalf("StartOrResume: %v", err)
			}
			// 30 + 30 out of 100; the essay is left blank.
			res, err := svc.Submit(context.Background(), SubmitRequest{
				ExamID: e.ID, QuizID: "quiz1", Answers: Answers{1: "A", 2: "A,C"},
			})
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if res.ObtainedScore != 60 {
				t.Fatalf("expected 60 points, got %v", res.ObtainedScore)
			}
			if res.PassStatus != tt.want {
				t.Errorf("expected %s, got %s", tt.want, res.PassStatus)
			}
			if res.Results[2].Feedback != "not answered" {
				t.Errorf("unexpected blank feedback %q", res.Results[2].Feedback)
			}
		})
	}
}

func TestPassed(t *testing.T) {
	tests := []struct {
		obtained, total, threshold float64
		want                       bool
	}{
		{60, 100, 60, true},
		{59.9, 100, 60, false},
		{3, 5, 60, true},
		{0, 0, 60, true},
		{7, 10, 70, true},
	}
	for _, tt := range tests {
		if got := Passed(tt.obtained, tt.total, tt.threshold); got != tt.want {
			t.Errorf("Passed(%v, %v, %v) = %v, want %v", tt.obtained, tt.total, tt.threshold, got, tt.want)
		}
	}
}

func TestSubmitRejects(t *testing.T) {
	svc, st := newTestService(t, essayGrader(), Config{})
	seedQuiz(t, st, "quiz1", 60)
	seedQuiz(t, st, "quiz2", 60)
	ctx := context.Background()

	e1, _, _ := svc.StartOrResume(ctx, "quiz1")
	e2, _, _ := svc.StartOrResume(ctx, "quiz2")
	if err := svc.Abandon(ctx, e2.ID); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	tests := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"missing quiz id", SubmitRequest{ExamID: e1.ID, Answers: Answers{}}, ErrInvalid},
		{"missing exam id", SubmitRequest{QuizID: "quiz1", Answers: Answers{}}, ErrInvalid},
		{"missing answers", SubmitRequest{ExamID: e1.ID, QuizID: "quiz1"}, ErrInvalid},
		{"unknown quiz", SubmitRequest{ExamID: e1.ID, QuizID: "nope", Answers: Answers{}}, store.ErrNotFound},
		{"unknown exam", SubmitRequest{ExamID: "nope", QuizID: "quiz1", Answers: Answers{}}, store.ErrNotFound},
		{"exam of another quiz", SubmitRequest{ExamID: e1.ID, QuizID: "quiz2", Answers: Answers{}}, store.ErrNotFound},
		{"abandoned exam", SubmitRequest{ExamID: e2.ID, QuizID: "quiz2", Answers: Answers{}}, ErrExamClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Submit(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func submitAll(t *testing.T, svc *Service, quizID string, answers Answers) SubmitResult {
	t.Helper()
	e, _, err := svc.StartOrResume(context.Background(), quizID)
	if err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}
	res, err := svc.Submit(context.Background(), SubmitRequest{ExamID: e.ID, QuizID: quizID, Answers: answers, TimeSpent: 60})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return res
}

func TestResult(t *testing.T) {
	svc, st := newTestService(t, essayGrader(), Config{})
	seedQuiz(t, st, "quiz1", 60)
	ctx := context.Background()

	first := submitAll(t, svc, "quiz1", Answers{1: "B", 2: "A"})
	second := submitAll(t, svc, "quiz1", Answers{1: "A", 2: "A,C", 3: "Pipes."})

	latest, err := svc.Result(ctx, "", "quiz1")
	if err != nil {
		t.Fatalf("Result by quiz: %v", err)
	}
	if latest.Submission.ID != second.SubmissionID {
		t.Errorf("expected latest submission %s, got %s", second.SubmissionID, latest.Submission.ID)
	}
	if !latest.Passed || latest.Percentage != 80 {
		t.Errorf("unexpected latest result: passed=%v percentage=%v", latest.Passed, latest.Percentage)
	}
	if len(latest.Details) != 3 {
		t.Fatalf("expected 3 details, got %d", len(latest.Details))
	}

	res, err := svc.Result(ctx, first.SubmissionID, "")
	if err != nil {
		t.Fatalf("Result by id: %v", err)
	}
	if res.Passed || res.Submission.ObtainedScore != 0 {
		t.Errorf("first submission should fail with 0 points: %+v", res.Submission)
	}
	if len(res.TypeBreakdown) != 3 {
		t.Fatalf("expected 3 question types, got %+v", res.TypeBreakdown)
	}
	if tb := res.TypeBreakdown[0]; tb.Type != model.TypeChoice || tb.Count != 1 || tb.Total != 30 {
		t.Errorf("unexpected choice breakdown %+v", tb)
	}
	if len(res.KnowledgePoints) != 3 || res.KnowledgePoints[0].Name != "goroutines" || res.KnowledgePoints[0].Total != 2 {
		t.Errorf("unexpected knowledge points %+v", res.KnowledgePoints)
	}

	if _, err := svc.Result(ctx, "", ""); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if _, err := svc.Result(ctx, "nope", ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHistory(t *testing.T) {
	svc, st := newTestService(t, essayGrader(), Config{})
	seedQuiz(t, st, "quiz1", 60)
	seedQuiz(t, st, "quiz2", 60)
	ctx := context.Background()

	submitAll(t, svc, "quiz1", Answers{1: "B", 2: "B"})
	submitAll(t, svc, "quiz1", Answers{1: "A", 2: "C"})
	if _, _, err := svc.StartOrResume(ctx, "quiz2"); err != nil {
		t.Fatalf("StartOrResume: %v", err)
	}

	h, err := svc.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if h.TotalQuizzes != 2 || h.TotalSubmissions != 2 || h.TotalTimeSpent != 120 {
		t.Errorf("unexpected totals %+v", h)
	}
	if h.AverageScore != 15 {
		t.Errorf("expected average 15, got %v", h.AverageScore)
	}

	var openFound bool
	for _, q := range h.Quizzes {
		switch q.Quiz.ID {
		case "quiz1":
			if q.Latest == nil || q.Latest.ObtainedScore != 30 {
				t.Errorf("quiz1 latest submission wrong: %+v", q.Latest)
			}
			if q.Attempts != 2 || q.OpenExamID != "" {
				t.Errorf("quiz1: expected 2 closed attempts, got %d (open %q)", q.Attempts, q.OpenExamID)
			}
		case "quiz2":
			openFound = q.OpenExamID != "" && q.Latest == nil && q.Attempts == 1
		}
	}
	if !openFound {
		t.Error("quiz2 should report its open exam and no submission")
	}

	if len(h.WrongQuestions) != 3 {
		t.Fatalf("expected 3 distinct wrong questions, got %d", len(h.WrongQuestions))
	}
	for _, w := range h.WrongQuestions {
		if w.Question.Number == 2 && w.UserAnswer != "C" {
			t.Errorf("expected the most recent wrong answer C, got %q", w.UserAnswer)
		}
	}

	// goroutines: 1 of 4, channels: 0 of 2, types: 0 of 2.
	want := []string{"channels", "types", "goroutines"}
	if len(h.KnowledgePoints) != len(want) {
		t.Fatalf("unexpected mastery %+v", h.KnowledgePoints)
	}
	for i, name := range want {
		if h.KnowledgePoints[i].Name != name {
			t.Errorf("mastery[%d] = %s, want %s", i, h.KnowledgePoints[i].Name, name)
		}
	}
	if m := h.KnowledgePoints[2]; m.Correct != 1 || m.Total != 4 || m.Percent != 25 {
		t.Errorf("unexpected goroutines mastery %+v", m)
	}
}

func TestDeleteQuizAndExam(t *testing.T) {
	svc, st := newTestService(t, essayGrader(), Config{})
	seedQuiz(t, st, "quiz1", 60)
	ctx := context.Background()

	res := submitAll(t, svc, "quiz1", Answers{1: "A"})
	sub, _ := st.GetSubmission(res.SubmissionID)
	if err := svc.DeleteExam(ctx, sub.ExamID); err != nil {
		t.Fatalf("DeleteExam: %v", err)
	}
	if _, err := st.GetSubmission(res.SubmissionID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("submission should be gone, got %v", err)
	}
	if err := svc.DeleteExam(ctx, sub.ExamID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := svc.DeleteQuiz(ctx, "quiz1"); err != nil {
		t.Fatalf("DeleteQuiz: %v", err)
	}
	if _, err := svc.Quiz(ctx, "quiz1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteQuiz(ctx, ""); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func waitFinished(t *testing.T, svc *Service, id string) RequestState {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		st, err := svc.TutorStatus(id)
		if err != nil {
			t.Fatalf("TutorStatus: %v", err)
		}
		if st.Status != StatusProcessing {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("tutor request %s did not finish", id)
	return RequestState{}
}

func TestAskTutor(t *testing.T) {
	fc := &fakeCompleter{reply: func(string) (string, error) { return "<p>Think about blocking.</p>", nil }}
	svc, st := newTestService(t, fc, Config{})
	seedQuiz(t, st, "quiz1", 60)
	ctx := context.Background()

	id, err := svc.AskTutor(ctx, AskRequest{ExamID: "e1", QuizID: "quiz1", QuestionNumber: 3, UserQuery: " Why channels? "})
	if err != nil {
		t.Fatalf("AskTutor: %v", err)
	}
	state := waitFinished(t, svc, id)
	if state.Status != StatusSuccess || state.Response != "<p>Think about blocking.</p>" {
		t.Errorf("unexpected state %+v", state)
	}
	if state.FinishedAt == nil {
		t.Error("finished request should carry a finish time")
	}

	fc.mu.Lock()
	prompt := fc.prompts[0]
	fc.mu.Unlock()
	if !strings.Contains(prompt, "Explain channels.") || !strings.Contains(prompt, "Why channels?") {
		t.Errorf("tutor prompt lacks question or query:\n%s", prompt)
	}

	list, err := svc.Interactions(ctx, "quiz1", 3)
	if err != nil {
		t.Fatalf("Interactions: %v", err)
	}
	if len(list) != 1 || list[0].UserQuery != "Why channels?" || list[0].ExamID != "e1" {
		t.Errorf("unexpected interactions %+v", list)
	}
	if other, _ := svc.Interactions(ctx, "quiz1", 1); len(other) != 0 {
		t.Errorf("expected no interactions for question 1, got %d", len(other))
	}

	if _, err := svc.TutorStatus("unknown"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAskTutorFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"timeout", fmt.Errorf("claude: %w", llm.ErrTimeout), "timed out after 1 seconds"},
		{"failure", errors.New("exit status 2"), "AI generation failed: exit status 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{reply: func(string) (string, error) { return "", tt.err }}
			svc, st := newTestService(t, fc, Config{})
			seedQuiz(t, st, "quiz1", 60)

			id, err := svc.AskTutor(context.Background(), AskRequest{QuizID: "quiz1", QuestionNumber: 1, UserQuery: "hint?"})
			if err != nil {
				t.Fatalf("AskTutor: %v", err)
			}
			state := waitFinished(t, svc, id)
			if state.Status != StatusError || !strings.Contains(state.Error, tt.wantMsg) {
				t.Errorf("unexpected state %+v", state)
			}
			if list, _ := svc.Interactions(context.Background(), "quiz1", 0); len(list) != 0 {
				t.Errorf("failed requests must not be logged, got %d", len(list))
			}
		})
	}
}

func TestAskTutorValidation(t *testing.T) {
	fc := &fakeCompleter{reply: func(string) (string, error) { return "ok", nil }}
	svc, st := newTestService(t, fc, Config{AIRateLimit: 0.001, AIRateBurst: 1})
	seedQuiz(t, st, "quiz1", 60)
	ctx := context.Background()

	tests := []struct {
		name string
		req  AskRequest
		want error
	}{
		{"no quiz", AskRequest{QuestionNumber: 1, UserQuery: "q"}, ErrInvalid},
		{"no number", AskRequest{QuizID: "quiz1", UserQuery: "q"}, ErrInvalid},
		{"blank query", AskRequest{QuizID: "quiz1", QuestionNumber: 1, UserQuery: "  "}, ErrInvalid},
		{"unknown question", AskRequest{QuizID: "quiz1", QuestionNumber: 9, UserQuery: "q"}, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.AskTutor(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// The unknown-question case consumed the only token.
	_, err := svc.AskTutor(ctx, AskRequest{QuizID: "quiz1", QuestionNumber: 1, UserQuery: "q"})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestRequestTracker(t *testing.T) {
	tr := NewRequestTracker(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	done := tr.Start()
	pending := tr.Start()
	if done == pending {
		t.Fatal("request ids must be unique")
	}
	tr.Succeed(done, "answer")

	st, ok := tr.Get(done)
	if !ok || st.Status != StatusSuccess || st.Response != "answer" {
		t.Fatalf("unexpected state %+v ok=%v", st, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := tr.Get(done); ok {
		t.Error("finished request should expire after the TTL")
	}
	if _, ok := tr.Get(pending); !ok {
		t.Error("processing requests never expire")
	}

	tr.Fail(pending, "boom")
	now = now.Add(2 * time.Minute)
	if n := tr.Sweep(); n != 1 {
		t.Errorf("expected 1 swept entry, got %d", n)
	}
	if tr.Len() != 0 {
		t.Errorf("expected empty tracker, got %d", tr.Len())
	}
	if _, ok := tr.Get("unknown"); ok {
		t.Error("unknown id should be missing")
	}
}

func TestRequestTrackerRunStops(t *testing.T) {
	tr := NewRequestTracker(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(stopped)
	}()
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestAnswersUnmarshal(t *testing.T) {
	var req SubmitRequest
	body := `{"exam_id":"e","quiz_id":"q","time_spent":30,
		"answers":{"1":"A","2":["c","a"],"3":"free text","4":7,"5":null}}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := Answers{1: "A", 2: "c,a", 3: "free text", 4: "7", 5: ""}
	if len(req.Answers) != len(want) {
		t.Fatalf("got %v, want %v", req.Answers, want)
	}
	for k, v := range want {
		if req.Answers[k] != v {
			t.Errorf("answer %d = %q, want %q", k, req.Answers[k], v)
		}
	}

	for _, bad := range []string{`{"answers":{"x":"A"}}`, `{"answers":{"0":"A"}}`, `{"answers":["A"]}`, `{"answers":{"1":{"a":1}}}`} {
		var r SubmitRequest
		if err := json.Unmarshal([]byte(bad), &r); err == nil {
			t.Errorf("expected error for %s", bad)
		}
	}
}
