package exam

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pavelanni/skillforge/internal/model"
)

// Result reports one submission. With an empty submissionID the latest
// submission of quizID is used.
func (s *Service) Result(ctx context.Context, submissionID, quizID string) (model.ResultView, error) {
	var (
		sub model.Submission
		err error
	)
	switch {
	case submissionID != "":
		sub, err = s.store.GetSubmission(submissionID)
	case quizID != "":
		sub, err = s.store.LatestSubmission(quizID)
	default:
		return model.ResultView{}, invalidf("submission_id or quiz_id is required")
	}
	if err != nil {
		return model.ResultView{}, err
	}

	quiz, err := s.store.GetQuiz(sub.QuizID)
	if err != nil {
		return model.ResultView{}, err
	}
	details, err := s.store.GetAnswerDetails(sub.ID)
	if err != nil {
		return model.ResultView{}, fmt.Errorf("get answers: %w", err)
	}
	if details == nil {
		details = []model.AnswerDetail{}
	}

	return model.ResultView{
		Quiz:            quiz,
		Submission:      sub,
		Percentage:      sub.Percentage(),
		Passed:          sub.PassStatus == model.Pass,
		TypeBreakdown:   typeBreakdown(details),
		KnowledgePoints: mastery(details),
		Details:         details,
	}, nil
}

func typeBreakdown(details []model.AnswerDetail) []model.TypeStat {
	stats := []model.TypeStat{}
	index := make(map[model.QuestionType]int)
	for _, d := range details {
		i, ok := index[d.Question.Type]
		if !ok {
			i = len(stats)
			index[d.Question.Type] = i
			stats = append(stats, model.TypeStat{Type: d.Question.Type})
		}
		stats[i].Count++
		stats[i].Total += float64(d.Question.Points)
		stats[i].Obtained += d.Answer.ScoreObtained
	}
	return stats
}

// mastery tallies correct answers per knowledge point, in order of first
// appearance.
func mastery(details []model.AnswerDetail) []model.Mastery {
	list := []model.Mastery{}
	index := make(map[string]int)
	for _, d := range details {
		for _, kp := range d.Question.KnowledgePoints {
			i, ok := index[kp]
			if !ok {
				i = len(list)
				index[kp] = i
				list = append(list, model.Mastery{Name: kp})
			}
			list[i].Total++
			if d.Answer.IsCorrect {
				list[i].Correct++
			}
		}
	}
	for i := range list {
		list[i].Percent = float64(list[i].Correct) / float64(list[i].Total) * 100
	}
	return list
}

// History aggregates every submission: totals, per-quiz summaries, the
// wrong-answer notebook and knowledge-point mastery weakest first.
func (s *Service) History(ctx context.Context) (model.HistoryView, error) {
	summaries, err := s.Quizzes(ctx)
	if err != nil {
		return model.HistoryView{}, err
	}
	stats, err := s.store.GetSubmissionStats()
	if err != nil {
		return model.HistoryView{}, fmt.Errorf("submission stats: %w", err)
	}
	wrong, err := s.store.WrongAnswers()
	if err != nil {
		return model.HistoryView{}, fmt.Errorf("wrong answers: %w", err)
	}
	details, err := s.store.AllAnswerDetails()
	if err != nil {
		return model.HistoryView{}, fmt.Errorf("answer details: %w", err)
	}

	kps := mastery(details)
	sort.SliceStable(kps, func(i, j int) bool {
		if kps[i].Percent != kps[j].Percent {
			return kps[i].Percent < kps[j].Percent
		}
		return kps[i].Name < kps[j].Name
	})

	return model.HistoryView{
		TotalQuizzes:     len(summaries),
		TotalSubmissions: stats.Count,
		AverageScore:     stats.AveragePercent,
		TotalTimeSpent:   stats.TotalTimeSpent,
		Quizzes:          summaries,
		WrongQuestions:   dedupWrong(wrong),
		KnowledgePoints:  kps,
	}, nil
}

// dedupWrong keeps the first entry per trimmed question content. The input is
// ordered newest first, so the most recent attempt wins.
func dedupWrong(wrong []model.WrongQuestion) []model.WrongQuestion {
	out := []model.WrongQuestion{}
	seen := make(map[string]bool, len(wrong))
	for _, w := range wrong {
		key := strings.TrimSpace(w.Question.Content)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, w)
	}
	return out
}
