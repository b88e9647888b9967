package model

import (
	"time"
)

// QuestionType is the kind of a quiz question.
type QuestionType string

const (
	TypeChoice         QuestionType = "choice"
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeEssay          QuestionType = "essay"
	TypeCode           QuestionType = "code"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case TypeChoice, TypeMultipleChoice, TypeEssay, TypeCode:
		return true
	}
	return false
}

// HasOptions reports whether questions of this type carry lettered options.
func (t QuestionType) HasOptions() bool {
	return t == TypeChoice || t == TypeMultipleChoice
}

// FreeText reports whether answers of this type are graded by the completion collaborator.
func (t QuestionType) FreeText() bool {
	return t == TypeEssay || t == TypeCode
}

// Difficulty represents quiz difficulty level.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// QuizStatus is the lifecycle status of a quiz.
type QuizStatus string

const (
	QuizCreated   QuizStatus = "created"
	QuizCompleted QuizStatus = "completed"
)

// ExamStatus represents the status of an exam attempt.
type ExamStatus string

const (
	ExamInProgress ExamStatus = "in_progress"
	ExamCompleted  ExamStatus = "completed"
	ExamAbandoned  ExamStatus = "abandoned"
)

// PassStatus is the verdict of a graded submission.
type PassStatus string

const (
	Pass PassStatus = "pass"
	Fail PassStatus = "fail"
)

// DefaultPassThreshold is the pass mark in percent used when a quiz does not set its own.
const DefaultPassThreshold = 60.0

// QuestionPassPercent is the share of a question's points at which a free-text answer counts as correct.
const QuestionPassPercent = 60.0

// Quiz is an authored set of questions on one topic.
type Quiz struct {
	ID            string     `json:"quiz_id"`
	Topic         string     `json:"topic"`
	TopicDetail   string     `json:"topic_detail"`
	Difficulty    Difficulty `json:"difficulty"`
	QuestionCount int        `json:"question_count"`
	PassThreshold float64    `json:"pass_threshold"`
	Status        QuizStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Question represents a quiz question.
type Question struct {
	ID              int64        `json:"id"`
	QuizID          string       `json:"quiz_id"`
	Number          int          `json:"question_number"`
	Type            QuestionType `json:"question_type"`
	Content         string       `json:"content"`
	Options         []string     `json:"options,omitempty"`
	CorrectAnswer   string       `json:"correct_answer"`
	Points          int          `json:"score"`
	KnowledgePoints []string     `json:"knowledge_points"`
	Explanation     string       `json:"explanation"`
	SourceType      string       `json:"source_type"`
	SourceName      string       `json:"source_name,omitempty"`
	SourceURL       string       `json:"source_url,omitempty"`
	ContentHash     string       `json:"content_hash"`
}

// Exam is one attempt at a quiz.
type Exam struct {
	ID          string     `json:"exam_id"`
	QuizID      string     `json:"quiz_id"`
	Status      ExamStatus `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Submission holds the graded outcome of a completed exam.
type Submission struct {
	ID            string     `json:"submission_id"`
	ExamID        string     `json:"exam_id"`
	QuizID        string     `json:"quiz_id"`
	SubmittedAt   time.Time  `json:"submitted_at"`
	TotalScore    float64    `json:"total_score"`
	ObtainedScore float64    `json:"obtained_score"`
	TimeSpent     int        `json:"time_spent"`
	PassStatus    PassStatus `json:"pass_status"`
}

// Percentage returns the obtained share of the total score in percent.
func (s Submission) Percentage() float64 {
	if s.TotalScore <= 0 {
		return 0
	}
	return s.ObtainedScore / s.TotalScore * 100
}

// Answer is the stored grading of one question within a submission.
type Answer struct {
	ID            int64   `json:"id"`
	SubmissionID  string  `json:"submission_id"`
	QuestionID    int64   `json:"question_id"`
	UserAnswer    string  `json:"user_answer"`
	IsCorrect     bool    `json:"is_correct"`
	ScoreObtained float64 `json:"score_obtained"`
	Feedback      string  `json:"ai_feedback"`
}

// GradedAnswer is the grading engine's verdict for one question.
type GradedAnswer struct {
	QuestionID     int64   `json:"question_id"`
	QuestionNumber int     `json:"question_number"`
	UserAnswer     string  `json:"user_answer"`
	IsCorrect      bool    `json:"is_correct"`
	ScoreObtained  float64 `json:"score_obtained"`
	Feedback       string  `json:"ai_feedback"`
}

// AIInteraction is one logged tutor exchange.
type AIInteraction struct {
	ID             int64     `json:"id"`
	ExamID         string    `json:"exam_id"`
	QuizID         string    `json:"quiz_id"`
	QuestionNumber int       `json:"question_number"`
	UserQuery      string    `json:"user_query"`
	AIResponse     string    `json:"ai_response"`
	CreatedAt      time.Time `json:"created_at"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	PassThreshold      float64       // default pass mark in percent for new quizzes
	GradingConcurrency int           // parallel free-text gradings per submission
	CompletionTimeout  time.Duration // upper bound for one collaborator call
	AIRequestTTL       time.Duration // how long finished tutor requests stay pollable
	AIRateLimit        float64       // ask-AI requests per second
	AIRateBurst        int
	DedupWindow        time.Duration
	DedupThreshold     float64
	DropDuplicates     bool
	AdminPasswordHash  []byte // bcrypt hash; nil leaves admin endpoints open
	CORSOrigins        []string
}
