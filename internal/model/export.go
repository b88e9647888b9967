package model

import "time"

// HistoryExport is the top-level JSON structure written by the export command.
type HistoryExport struct {
	ExportedAt  time.Time          `json:"exported_at"`
	Submissions []SubmissionExport `json:"submissions"`
}

// SubmissionExport holds one graded submission with its quiz context.
type SubmissionExport struct {
	SubmissionID  string           `json:"submission_id"`
	ExamID        string           `json:"exam_id"`
	QuizID        string           `json:"quiz_id"`
	Topic         string           `json:"topic"`
	Difficulty    Difficulty       `json:"difficulty"`
	SubmittedAt   time.Time        `json:"submitted_at"`
	TimeSpent     int              `json:"time_spent"`
	TotalScore    float64          `json:"total_score"`
	ObtainedScore float64          `json:"obtained_score"`
	PassStatus    PassStatus       `json:"pass_status"`
	Questions     []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	Number          int          `json:"question_number"`
	Type            QuestionType `json:"question_type"`
	Content         string       `json:"content"`
	CorrectAnswer   string       `json:"correct_answer"`
	KnowledgePoints []string     `json:"knowledge_points"`
	MaxPoints       int          `json:"max_points"`
	UserAnswer      string       `json:"user_answer"`
	IsCorrect       bool         `json:"is_correct"`
	ScoreObtained   float64      `json:"score_obtained"`
	Feedback        string       `json:"feedback"`
}
