package model

import "time"

// QuizDraft is the authoring input, also the JSON format of importable quiz files.
type QuizDraft struct {
	Topic         string          `json:"topic"`
	TopicDetail   string          `json:"topic_detail"`
	Difficulty    Difficulty      `json:"difficulty"`
	PassThreshold float64         `json:"pass_threshold,omitempty"`
	Questions     []QuestionDraft `json:"questions"`
}

// QuestionDraft is one question of a QuizDraft.
type QuestionDraft struct {
	Type            QuestionType `json:"type"`
	Content         string       `json:"content"`
	Options         []string     `json:"options,omitempty"`
	CorrectAnswer   string       `json:"correct_answer"`
	Score           int          `json:"score,omitempty"`
	KnowledgePoints []string     `json:"knowledge_points,omitempty"`
	Explanation     string       `json:"explanation,omitempty"`
	SourceType      string       `json:"source_type,omitempty"`
	SourceName      string       `json:"source_name,omitempty"`
	SourceURL       string       `json:"source_url,omitempty"`
}

// QuizView is a quiz with its questions in ordinal order.
type QuizView struct {
	Quiz      Quiz       `json:"quiz"`
	Questions []Question `json:"questions"`
}

// QuizSummary pairs a quiz with its most recent submission, if any.
// Attempts counts every exam started on the quiz, whatever its status.
type QuizSummary struct {
	Quiz       Quiz        `json:"quiz"`
	Latest     *Submission `json:"latest_submission,omitempty"`
	Attempts   int         `json:"attempts"`
	OpenExamID string      `json:"open_exam_id,omitempty"`
}

// AnswerDetail joins a stored answer with the question it grades.
type AnswerDetail struct {
	Question Question `json:"question"`
	Answer   Answer   `json:"answer"`
}

// TypeStat aggregates scores for one question type within a submission.
type TypeStat struct {
	Type     QuestionType `json:"question_type"`
	Count    int          `json:"count"`
	Total    float64      `json:"total"`
	Obtained float64      `json:"obtained"`
}

// Mastery is the share of correct answers tagged with a knowledge point.
type Mastery struct {
	Name    string  `json:"name"`
	Correct int     `json:"correct"`
	Total   int     `json:"total"`
	Percent float64 `json:"mastery"`
}

// ResultView is the scored breakdown of one submission.
type ResultView struct {
	Quiz            Quiz           `json:"quiz"`
	Submission      Submission     `json:"submission"`
	Percentage      float64        `json:"percentage"`
	Passed          bool           `json:"passed"`
	TypeBreakdown   []TypeStat     `json:"type_breakdown"`
	KnowledgePoints []Mastery      `json:"knowledge_points"`
	Details         []AnswerDetail `json:"details"`
}

// WrongQuestion is an entry of the wrong-answer notebook.
type WrongQuestion struct {
	Question    Question  `json:"question"`
	Topic       string    `json:"topic"`
	UserAnswer  string    `json:"user_answer"`
	Feedback    string    `json:"ai_feedback"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// HistoryView aggregates all submissions of the install.
type HistoryView struct {
	TotalQuizzes     int             `json:"total_quizzes"`
	TotalSubmissions int             `json:"total_submissions"`
	AverageScore     float64         `json:"average_score"`
	TotalTimeSpent   int             `json:"total_time_spent"`
	Quizzes          []QuizSummary   `json:"quizzes"`
	WrongQuestions   []WrongQuestion `json:"wrong_questions"`
	KnowledgePoints  []Mastery       `json:"knowledge_points"`
}
