package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/skillforge/internal/model"
)

// SaveAIInteraction appends a tutor exchange and returns its ID.
func (s *Store) SaveAIInteraction(in model.AIInteraction) (int64, error) {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO ai_interactions (exam_id, quiz_id, question_number, user_query, ai_response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		in.ExamID, in.QuizID, in.QuestionNumber, in.UserQuery, in.AIResponse, in.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert ai interaction: %w", err)
	}
	return res.LastInsertId()
}

// ListAIInteractions returns the tutor exchanges for one question of a quiz,
// newest first. A questionNumber of 0 lists the whole quiz.
func (s *Store) ListAIInteractions(quizID string, questionNumber int) ([]model.AIInteraction, error) {
	query := `SELECT id, exam_id, quiz_id, question_number, user_query, ai_response, created_at
		FROM ai_interactions WHERE quiz_id = ?`
	args := []any{quizID}
	if questionNumber > 0 {
		query += ` AND question_number = ?`
		args = append(args, questionNumber)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.AIInteraction
	for rows.Next() {
		var in model.AIInteraction
		if err := rows.Scan(&in.ID, &in.ExamID, &in.QuizID, &in.QuestionNumber, &in.UserQuery, &in.AIResponse, &in.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, in)
	}
	return list, rows.Err()
}
