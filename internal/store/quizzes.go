package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/skillforge/internal/model"
)

const quizColumns = `quiz_id, topic, topic_detail, difficulty, question_count, pass_threshold, created_at, status`

const questionColumns = `id, quiz_id, question_number, question_type, content, options, correct_answer, score,
	knowledge_points, explanation, source_type, source_name, source_url, content_hash`

// CreateQuiz stores a quiz and its questions in one transaction.
// Question numbers must already be assigned.
func (s *Store) CreateQuiz(q model.Quiz, questions []model.Question) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	if q.Status == "" {
		q.Status = model.QuizCreated
	}
	_, err = tx.Exec(
		`INSERT INTO quizzes (`+quizColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Topic, q.TopicDetail, q.Difficulty, len(questions), q.PassThreshold, q.CreatedAt, q.Status,
	)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}

	for _, qu := range questions {
		options, err := encodeOptions(qu.Options)
		if err != nil {
			return err
		}
		kps, err := encodeList(qu.KnowledgePoints)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO questions (quiz_id, question_number, question_type, content, options, correct_answer, score,
				knowledge_points, explanation, source_type, source_name, source_url, content_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			q.ID, qu.Number, qu.Type, qu.Content, options, qu.CorrectAnswer, qu.Points,
			kps, qu.Explanation, qu.SourceType, qu.SourceName, qu.SourceURL, qu.ContentHash,
		)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", qu.Number, err)
		}
	}

	return tx.Commit()
}

func encodeOptions(options []string) (sql.NullString, error) {
	if len(options) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := encodeList(options)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: raw, Valid: true}, nil
}

func scanQuiz(row interface{ Scan(...any) error }) (model.Quiz, error) {
	var q model.Quiz
	err := row.Scan(&q.ID, &q.Topic, &q.TopicDetail, &q.Difficulty, &q.QuestionCount, &q.PassThreshold, &q.CreatedAt, &q.Status)
	return q, err
}

func scanQuestion(row interface{ Scan(...any) error }) (model.Question, error) {
	var (
		q       model.Question
		options sql.NullString
		kps     sql.NullString
	)
	err := row.Scan(&q.ID, &q.QuizID, &q.Number, &q.Type, &q.Content, &options, &q.CorrectAnswer, &q.Points,
		&kps, &q.Explanation, &q.SourceType, &q.SourceName, &q.SourceURL, &q.ContentHash)
	if err != nil {
		return q, err
	}
	if q.Options, err = decodeList(options); err != nil {
		return q, err
	}
	if q.KnowledgePoints, err = decodeList(kps); err != nil {
		return q, err
	}
	if q.KnowledgePoints == nil {
		q.KnowledgePoints = []string{}
	}
	return q, nil
}

// GetQuiz returns a quiz by ID.
func (s *Store) GetQuiz(id string) (model.Quiz, error) {
	q, err := scanQuiz(s.db.QueryRow(`SELECT `+quizColumns+` FROM quizzes WHERE quiz_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return q, fmt.Errorf("quiz %q: %w", id, ErrNotFound)
	}
	return q, err
}

// ListQuizzes returns all quizzes, newest first.
func (s *Store) ListQuizzes() ([]model.Quiz, error) {
	rows, err := s.db.Query(`SELECT ` + quizColumns + ` FROM quizzes ORDER BY created_at DESC, quiz_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var quizzes []model.Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

// QuizCount returns the number of quizzes in the database.
func (s *Store) QuizCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM quizzes`).Scan(&count)
	return count, err
}

// DeleteQuiz removes a quiz together with its questions, exams, submissions,
// answers and tutor interactions.
func (s *Store) DeleteQuiz(id string) error {
	res, err := s.db.Exec(`DELETE FROM quizzes WHERE quiz_id = ?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res, "quiz", id)
}

func expectAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	return nil
}

// GetQuestions returns the questions of a quiz in ordinal order.
func (s *Store) GetQuestions(quizID string) ([]model.Question, error) {
	return queryQuestions(s.db, `SELECT `+questionColumns+` FROM questions WHERE quiz_id = ? ORDER BY question_number`, quizID)
}

func queryQuestions(q queryer, query string, args ...any) ([]model.Question, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		qu, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, qu)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by quiz and ordinal.
func (s *Store) GetQuestion(quizID string, number int) (model.Question, error) {
	q, err := scanQuestion(s.db.QueryRow(
		`SELECT `+questionColumns+` FROM questions WHERE quiz_id = ? AND question_number = ?`, quizID, number,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return q, fmt.Errorf("question %d of quiz %q: %w", number, quizID, ErrNotFound)
	}
	return q, err
}

// RecentQuestions returns questions of quizzes whose topic contains topic and
// which were created after since, newest quiz first.
func (s *Store) RecentQuestions(topic string, since time.Time) ([]model.Question, error) {
	return queryQuestions(s.db,
		`SELECT q.id, q.quiz_id, q.question_number, q.question_type, q.content, q.options, q.correct_answer, q.score,
			q.knowledge_points, q.explanation, q.source_type, q.source_name, q.source_url, q.content_hash
		 FROM questions q
		 JOIN quizzes qz ON q.quiz_id = qz.quiz_id
		 WHERE qz.topic LIKE ? AND qz.created_at > ?
		 ORDER BY qz.created_at DESC, q.question_number`,
		"%"+topic+"%", since.UTC(),
	)
}
