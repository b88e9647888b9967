package store

import (
	"database/sql"

	"github.com/pavelanni/skillforge/internal/model"
)

// SubmissionStats holds aggregates over all submissions.
type SubmissionStats struct {
	Count          int
	AveragePercent float64
	TotalTimeSpent int
}

// GetSubmissionStats returns the submission count, mean percentage and total
// time spent across the install.
func (s *Store) GetSubmissionStats() (SubmissionStats, error) {
	var st SubmissionStats
	err := s.db.QueryRow(
		`SELECT COUNT(*),
			COALESCE(AVG(CASE WHEN total_score > 0 THEN obtained_score * 100.0 / total_score ELSE 0 END), 0),
			COALESCE(SUM(time_spent), 0)
		 FROM submissions`,
	).Scan(&st.Count, &st.AveragePercent, &st.TotalTimeSpent)
	return st, err
}

// WrongAnswers returns every incorrect answer with its question and quiz
// topic, most recent submission first.
func (s *Store) WrongAnswers() ([]model.WrongQuestion, error) {
	rows, err := s.db.Query(
		`SELECT q.id, q.quiz_id, q.question_number, q.question_type, q.content, q.options, q.correct_answer, q.score,
			q.knowledge_points, q.explanation, q.source_type, q.source_name, q.source_url, q.content_hash,
			qz.topic, a.user_answer, a.ai_feedback, s.submitted_at
		 FROM answers a
		 JOIN questions q ON a.question_id = q.id
		 JOIN submissions s ON a.submission_id = s.submission_id
		 JOIN quizzes qz ON q.quiz_id = qz.quiz_id
		 WHERE a.is_correct = 0
		 ORDER BY s.submitted_at DESC, a.id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wrong []model.WrongQuestion
	for rows.Next() {
		var (
			w       model.WrongQuestion
			options sql.NullString
			kps     sql.NullString
		)
		q := &w.Question
		err := rows.Scan(&q.ID, &q.QuizID, &q.Number, &q.Type, &q.Content, &options, &q.CorrectAnswer, &q.Points,
			&kps, &q.Explanation, &q.SourceType, &q.SourceName, &q.SourceURL, &q.ContentHash,
			&w.Topic, &w.UserAnswer, &w.Feedback, &w.SubmittedAt)
		if err != nil {
			return nil, err
		}
		if q.Options, err = decodeList(options); err != nil {
			return nil, err
		}
		if q.KnowledgePoints, err = decodeList(kps); err != nil {
			return nil, err
		}
		if q.KnowledgePoints == nil {
			q.KnowledgePoints = []string{}
		}
		wrong = append(wrong, w)
	}
	return wrong, rows.Err()
}

// AllAnswerDetails returns every stored answer joined with its question.
func (s *Store) AllAnswerDetails() ([]model.AnswerDetail, error) {
	return s.queryAnswerDetails(answerDetailQuery + ` ORDER BY a.id`)
}
