package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a quiz, exam, submission or question does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and :memory: databases
	// are per connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS quizzes (
		quiz_id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		topic_detail TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT 'intermediate',
		question_count INTEGER NOT NULL DEFAULT 0,
		pass_threshold REAL NOT NULL DEFAULT 60,
		created_at DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'created'
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id TEXT NOT NULL,
		question_number INTEGER NOT NULL,
		question_type TEXT NOT NULL,
		content TEXT NOT NULL,
		options TEXT,
		correct_answer TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 10,
		knowledge_points TEXT NOT NULL DEFAULT '[]',
		explanation TEXT NOT NULL DEFAULT '',
		source_type TEXT NOT NULL DEFAULT 'ai_generated',
		source_name TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		UNIQUE (quiz_id, question_number),
		FOREIGN KEY (quiz_id) REFERENCES quizzes(quiz_id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_questions_hash ON questions(content_hash);

	CREATE TABLE IF NOT EXISTS exams (
		exam_id TEXT PRIMARY KEY,
		quiz_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		FOREIGN KEY (quiz_id) REFERENCES quizzes(quiz_id) ON DELETE CASCADE
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_exams_one_open
		ON exams(quiz_id) WHERE status = 'in_progress';

	CREATE TABLE IF NOT EXISTS submissions (
		submission_id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		quiz_id TEXT NOT NULL,
		submitted_at DATETIME NOT NULL,
		total_score REAL NOT NULL,
		obtained_score REAL NOT NULL,
		time_spent INTEGER NOT NULL DEFAULT 0,
		pass_status TEXT NOT NULL,
		FOREIGN KEY (exam_id) REFERENCES exams(exam_id) ON DELETE CASCADE,
		FOREIGN KEY (quiz_id) REFERENCES quizzes(quiz_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		submission_id TEXT NOT NULL,
		question_id INTEGER NOT NULL,
		user_answer TEXT NOT NULL DEFAULT '',
		is_correct INTEGER NOT NULL DEFAULT 0,
		score_obtained REAL NOT NULL DEFAULT 0,
		ai_feedback TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (submission_id) REFERENCES submissions(submission_id) ON DELETE CASCADE,
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS ai_interactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id TEXT NOT NULL DEFAULT '',
		quiz_id TEXT NOT NULL,
		question_number INTEGER NOT NULL,
		user_query TEXT NOT NULL,
		ai_response TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (quiz_id) REFERENCES quizzes(quiz_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(raw sql.NullString) ([]string, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw.String), &list); err != nil {
		return nil, fmt.Errorf("decode list column: %w", err)
	}
	return list, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
