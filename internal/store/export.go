package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/skillforge/internal/model"
)

// ExportAllSubmissions builds export-ready results from all submissions,
// oldest first.
func (s *Store) ExportAllSubmissions() (model.HistoryExport, error) {
	export := model.HistoryExport{ExportedAt: time.Now().UTC(), Submissions: []model.SubmissionExport{}}

	subs, err := s.ListSubmissions()
	if err != nil {
		return export, fmt.Errorf("list submissions: %w", err)
	}

	quizzes := make(map[string]model.Quiz)
	for i := len(subs) - 1; i >= 0; i-- {
		sub := subs[i]

		quiz, ok := quizzes[sub.QuizID]
		if !ok {
			quiz, err = s.GetQuiz(sub.QuizID)
			if err != nil {
				return export, fmt.Errorf("get quiz %s: %w", sub.QuizID, err)
			}
			quizzes[sub.QuizID] = quiz
		}

		details, err := s.GetAnswerDetails(sub.ID)
		if err != nil {
			return export, fmt.Errorf("get answers of %s: %w", sub.ID, err)
		}

		questions := make([]model.QuestionResult, 0, len(details))
		for _, d := range details {
			questions = append(questions, model.QuestionResult{
				Number:          d.Question.Number,
				Type:            d.Question.Type,
				Content:         d.Question.Content,
				CorrectAnswer:   d.Question.CorrectAnswer,
				KnowledgePoints: d.Question.KnowledgePoints,
				MaxPoints:       d.Question.Points,
				UserAnswer:      d.Answer.UserAnswer,
				IsCorrect:       d.Answer.IsCorrect,
				ScoreObtained:   d.Answer.ScoreObtained,
				Feedback:        d.Answer.Feedback,
			})
		}

		export.Submissions = append(export.Submissions, model.SubmissionExport{
			SubmissionID:  sub.ID,
			ExamID:        sub.ExamID,
			QuizID:        sub.QuizID,
			Topic:         quiz.Topic,
			Difficulty:    quiz.Difficulty,
			SubmittedAt:   sub.SubmittedAt,
			TimeSpent:     sub.TimeSpent,
			TotalScore:    sub.TotalScore,
			ObtainedScore: sub.ObtainedScore,
			PassStatus:    sub.PassStatus,
			Questions:     questions,
		})
	}

	return export, nil
}
