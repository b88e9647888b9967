package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/skillforge/internal/model"
)

const examColumns = `exam_id, quiz_id, status, started_at, completed_at`

func scanExam(row interface{ Scan(...any) error }) (model.Exam, error) {
	var e model.Exam
	err := row.Scan(&e.ID, &e.QuizID, &e.Status, &e.StartedAt, &e.CompletedAt)
	return e, err
}

// OpenExam returns the in-progress exam of a quiz, or ErrNotFound.
func (s *Store) OpenExam(quizID string) (model.Exam, error) {
	e, err := scanExam(s.db.QueryRow(
		`SELECT `+examColumns+` FROM exams WHERE quiz_id = ? AND status = 'in_progress'`, quizID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("open exam for quiz %q: %w", quizID, ErrNotFound)
	}
	return e, err
}

// InsertExamIfNoneOpen inserts an in-progress exam unless the quiz already has
// one, and returns whichever exam is open afterwards. The partial unique index
// on exams(quiz_id) makes the insert a no-op when another attempt won the race.
func (s *Store) InsertExamIfNoneOpen(examID, quizID string, startedAt time.Time) (model.Exam, error) {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO exams (exam_id, quiz_id, status, started_at) VALUES (?, ?, 'in_progress', ?)`,
		examID, quizID, startedAt.UTC(),
	)
	if err != nil {
		return model.Exam{}, fmt.Errorf("insert exam: %w", err)
	}
	return s.OpenExam(quizID)
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(id string) (model.Exam, error) {
	e, err := scanExam(s.db.QueryRow(`SELECT `+examColumns+` FROM exams WHERE exam_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("exam %q: %w", id, ErrNotFound)
	}
	return e, err
}

// ListExams returns the exams of a quiz, newest first.
func (s *Store) ListExams(quizID string) ([]model.Exam, error) {
	rows, err := s.db.Query(`SELECT `+examColumns+` FROM exams WHERE quiz_id = ? ORDER BY started_at DESC`, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// UpdateExamStatus moves an in-progress exam to a terminal status.
func (s *Store) UpdateExamStatus(id string, status model.ExamStatus) error {
	return updateExamStatus(s.db, id, status)
}

func updateExamStatus(q queryer, id string, status model.ExamStatus) error {
	res, err := q.Exec(
		`UPDATE exams SET status = ?, completed_at = ? WHERE exam_id = ? AND status = 'in_progress'`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return expectAffected(res, "open exam", id)
}

// DeleteExam removes an exam with its submissions, answers and interactions.
func (s *Store) DeleteExam(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM ai_interactions WHERE exam_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM exams WHERE exam_id = ?`, id)
	if err != nil {
		return err
	}
	if err := expectAffected(res, "exam", id); err != nil {
		return err
	}
	return tx.Commit()
}
