// Package grading scores submitted answers: choice questions by exact match,
// essay and code questions through the completion collaborator.
package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/skillforge/internal/i18n"
	"github.com/pavelanni/skillforge/internal/llm"
	"github.com/pavelanni/skillforge/internal/llm/prompts"
	"github.com/pavelanni/skillforge/internal/metrics"
	"github.com/pavelanni/skillforge/internal/model"
)

// DefaultTimeout bounds one collaborator call.
const DefaultTimeout = 120 * time.Second

// Engine grades the answers of one submission.
type Engine struct {
	completer   llm.Completer
	variant     prompts.PromptVariant
	concurrency int
	timeout     time.Duration
}

// New creates a grading engine. An empty variant means standard; concurrency
// below 1 grades free-text answers one at a time.
func New(completer llm.Completer, variant string, concurrency int, timeout time.Duration) (*Engine, error) {
	if err := prompts.Load(prompts.FS); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if variant == "" {
		variant = string(prompts.PromptStandard)
	}
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q", variant)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		completer:   completer,
		variant:     prompts.PromptVariant(variant),
		concurrency: concurrency,
		timeout:     timeout,
	}, nil
}

// Grade scores every question in order. Answers are keyed by question number.
// It never fails: collaborator problems turn into a zero score with
// manual-review feedback for that question only.
func (e *Engine) Grade(ctx context.Context, questions []model.Question, answers map[int]string) []model.GradedAnswer {
	results := make([]model.GradedAnswer, len(questions))

	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, q := range questions {
		answer := strings.TrimSpace(answers[q.Number])
		results[i] = model.GradedAnswer{
			QuestionID:     q.ID,
			QuestionNumber: q.Number,
			UserAnswer:     answer,
		}

		if answer == "" {
			results[i].Feedback = i18n.T(ctx, "NotAnswered")
			metrics.ObserveGrading(string(q.Type), metrics.OutcomeUnanswered, 0)
			continue
		}

		if q.Type.FreeText() {
			g.Go(func() error {
				e.gradeFreeText(ctx, q, &results[i])
				return nil
			})
			continue
		}

		start := time.Now()
		gradeChoice(ctx, q, &results[i])
		metrics.ObserveGrading(string(q.Type), outcome(results[i].IsCorrect), time.Since(start))
	}

	g.Wait()
	return results
}

func outcome(correct bool) string {
	if correct {
		return metrics.OutcomeCorrect
	}
	return metrics.OutcomeIncorrect
}

func gradeChoice(ctx context.Context, q model.Question, r *model.GradedAnswer) {
	var correct bool
	if q.Type == model.TypeMultipleChoice {
		correct = Canonical(r.UserAnswer) == Canonical(q.CorrectAnswer)
	} else {
		correct = strings.EqualFold(r.UserAnswer, strings.TrimSpace(q.CorrectAnswer))
	}

	r.IsCorrect = correct
	if correct {
		r.ScoreObtained = float64(q.Points)
		r.Feedback = i18n.T(ctx, "Correct")
		return
	}
	r.Feedback = i18n.Td(ctx, "CorrectAnswerIs", map[string]any{"Answer": q.CorrectAnswer})
}

func (e *Engine) gradeFreeText(ctx context.Context, q model.Question, r *model.GradedAnswer) {
	start := time.Now()
	v, err := e.askCollaborator(ctx, q, r.UserAnswer)
	if err != nil {
		slog.Warn("free-text grading failed", "quiz", q.QuizID, "question", q.Number, "error", err)
		r.ScoreObtained = 0
		r.IsCorrect = false
		r.Feedback = i18n.T(ctx, "GradingFailed")
		metrics.ObserveGrading(string(q.Type), metrics.OutcomeGradeFailed, time.Since(start))
		return
	}

	points := float64(q.Points)
	score := math.Round(min(max(float64(v.Score), 0), points)*10) / 10
	r.ScoreObtained = score
	r.IsCorrect = score*100 >= model.QuestionPassPercent*points
	r.Feedback = strings.TrimSpace(v.Feedback)
	metrics.ObserveGrading(string(q.Type), outcome(r.IsCorrect), time.Since(start))
}

func (e *Engine) askCollaborator(ctx context.Context, q model.Question, answer string) (verdict, error) {
	prompt, err := prompts.BuildGradePrompt(e.variant, q, answer)
	if err != nil {
		return verdict{}, fmt.Errorf("build prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return verdict{}, err
	}
	return parseVerdict(out)
}

// verdict is the collaborator's JSON reply. is_correct is ignored and
// recomputed from the score.
type verdict struct {
	Score    flexFloat `json:"score"`
	Feedback string    `json:"feedback"`
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("score %s is not a number", b)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("score %s is not finite", b)
	}
	*f = flexFloat(v)
	return nil
}

var errNoJSON = errors.New("no JSON object in completion")

// parseVerdict extracts and decodes the grading JSON from a completion.
func parseVerdict(out string) (verdict, error) {
	raw, ok := ExtractJSON(out)
	if !ok {
		return verdict{}, errNoJSON
	}
	var v struct {
		Score    *flexFloat `json:"score"`
		Feedback string     `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return verdict{}, fmt.Errorf("decode grading JSON: %w", err)
	}
	if v.Score == nil {
		return verdict{}, errors.New("grading JSON has no score")
	}
	return verdict{Score: *v.Score, Feedback: v.Feedback}, nil
}

// ExtractJSON returns the first balanced {...} substring of s. Braces inside
// JSON strings do not count.
func ExtractJSON(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end := matchBrace(s, start); end > 0 {
			return s[start : end+1], true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing s[open], or -1.
func matchBrace(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Canonical normalizes a multiple-choice answer: letters upper-cased,
// de-duplicated, sorted and comma-joined. "c, a" becomes "A,C".
func Canonical(answer string) string {
	seen := make(map[string]bool)
	var letters []string
	for _, part := range strings.Split(answer, ",") {
		p := strings.ToUpper(strings.TrimSpace(part))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		letters = append(letters, p)
	}
	sort.Strings(letters)
	return strings.Join(letters, ",")
}
