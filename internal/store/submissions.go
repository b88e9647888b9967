package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pavelanni/skillforge/internal/model"
)

const submissionColumns = `submission_id, exam_id, quiz_id, submitted_at, total_score, obtained_score, time_spent, pass_status`

func scanSubmission(row interface{ Scan(...any) error }) (model.Submission, error) {
	var s model.Submission
	err := row.Scan(&s.ID, &s.ExamID, &s.QuizID, &s.SubmittedAt, &s.TotalScore, &s.ObtainedScore, &s.TimeSpent, &s.PassStatus)
	return s, err
}

// CreateSubmission records a graded submission with its answers, closes the
// exam and marks the quiz completed, all in one transaction. It returns an
// error wrapping ErrNotFound when the exam is no longer in progress.
func (s *Store) CreateSubmission(sub model.Submission, graded []model.GradedAnswer) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := updateExamStatus(tx, sub.ExamID, model.ExamCompleted); err != nil {
		return fmt.Errorf("complete exam: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO submissions (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ExamID, sub.QuizID, sub.SubmittedAt.UTC(), sub.TotalScore, sub.ObtainedScore, sub.TimeSpent, sub.PassStatus,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	for _, g := range graded {
		_, err := tx.Exec(
			`INSERT INTO answers (submission_id, question_id, user_answer, is_correct, score_obtained, ai_feedback)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			sub.ID, g.QuestionID, g.UserAnswer, boolToInt(g.IsCorrect), g.ScoreObtained, g.Feedback,
		)
		if err != nil {
			return fmt.Errorf("insert answer for question %d: %w", g.QuestionNumber, err)
		}
	}

	if _, err := tx.Exec(`UPDATE quizzes SET status = ? WHERE quiz_id = ?`, model.QuizCompleted, sub.QuizID); err != nil {
		return fmt.Errorf("complete quiz: %w", err)
	}

	return tx.Commit()
}

// GetSubmission returns a submission by ID.
func (s *Store) GetSubmission(id string) (model.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRow(`SELECT `+submissionColumns+` FROM submissions WHERE submission_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return sub, fmt.Errorf("submission %q: %w", id, ErrNotFound)
	}
	return sub, err
}

// LatestSubmission returns the most recent submission of a quiz.
func (s *Store) LatestSubmission(quizID string) (model.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRow(
		`SELECT `+submissionColumns+` FROM submissions WHERE quiz_id = ?
		 ORDER BY submitted_at DESC, submission_id DESC LIMIT 1`, quizID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return sub, fmt.Errorf("submission for quiz %q: %w", quizID, ErrNotFound)
	}
	return sub, err
}

// ListSubmissions returns every submission, newest first.
func (s *Store) ListSubmissions() ([]model.Submission, error) {
	rows, err := s.db.Query(`SELECT ` + submissionColumns + ` FROM submissions ORDER BY submitted_at DESC, submission_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

const answerDetailQuery = `SELECT q.id, q.quiz_id, q.question_number, q.question_type, q.content, q.options, q.correct_answer, q.score,
		q.knowledge_points, q.explanation, q.source_type, q.source_name, q.source_url, q.content_hash,
		a.id, a.submission_id, a.question_id, a.user_answer, a.is_correct, a.score_obtained, a.ai_feedback
	 FROM answers a
	 JOIN questions q ON a.question_id = q.id`

// GetAnswerDetails returns the answers of a submission joined with their
// questions, in question order.
func (s *Store) GetAnswerDetails(submissionID string) ([]model.AnswerDetail, error) {
	return s.queryAnswerDetails(answerDetailQuery+` WHERE a.submission_id = ? ORDER BY q.question_number`, submissionID)
}

func (s *Store) queryAnswerDetails(query string, args ...any) ([]model.AnswerDetail, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []model.AnswerDetail
	for rows.Next() {
		d, err := scanAnswerDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

func scanAnswerDetail(rows *sql.Rows) (model.AnswerDetail, error) {
	var (
		d         model.AnswerDetail
		options   sql.NullString
		kps       sql.NullString
		isCorrect int
	)
	q := &d.Question
	a := &d.Answer
	err := rows.Scan(&q.ID, &q.QuizID, &q.Number, &q.Type, &q.Content, &options, &q.CorrectAnswer, &q.Points,
		&kps, &q.Explanation, &q.SourceType, &q.SourceName, &q.SourceURL, &q.ContentHash,
		&a.ID, &a.SubmissionID, &a.QuestionID, &a.UserAnswer, &isCorrect, &a.ScoreObtained, &a.Feedback)
	if err != nil {
		return d, err
	}
	a.IsCorrect = isCorrect != 0
	if q.Options, err = decodeList(options); err != nil {
		return d, err
	}
	if q.KnowledgePoints, err = decodeList(kps); err != nil {
		return d, err
	}
	if q.KnowledgePoints == nil {
		q.KnowledgePoints = []string{}
	}
	return d, nil
}
