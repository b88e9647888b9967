// Package authoring validates quiz drafts, screens them for questions that
// repeat recent ones, and stores them.
package authoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/skillforge/internal/grading"
	"github.com/pavelanni/skillforge/internal/model"
	"github.com/pavelanni/skillforge/internal/similarity"
	"github.com/pavelanni/skillforge/internal/store"
)

// ErrInvalid marks a draft that cannot be stored.
var ErrInvalid = errors.New("invalid quiz")

const (
	// DefaultDedupWindow is how far back duplicate detection looks.
	DefaultDedupWindow = 30 * 24 * time.Hour

	sourceGenerated = "ai_generated"
	// SourceImport marks questions read from a quiz file.
	SourceImport = "import"

	maxSlugLen = 30
)

// Options tune authoring.
type Options struct {
	PassThreshold  float64       // used when a draft has none
	DedupWindow    time.Duration // zero disables duplicate detection
	DedupThreshold float64
	DropDuplicates bool
}

// Source describes where a draft came from.
type Source struct {
	Type string // source_type for questions without one
	Name string // e.g. the imported file name
}

// Duplicate reports a draft question that repeats a recent one.
type Duplicate struct {
	Number        int     `json:"question_number"`
	Content       string  `json:"content"`
	MatchedQuizID string  `json:"matched_quiz_id"`
	MatchedNumber int     `json:"matched_question_number"`
	Exact         bool    `json:"exact"`
	Similarity    float64 `json:"similarity"`
}

// Result is a stored quiz with its questions and the duplicates found.
type Result struct {
	Quiz       model.Quiz       `json:"quiz"`
	Questions  []model.Question `json:"questions"`
	Duplicates []Duplicate      `json:"duplicates"`
}

// Service authors quizzes.
type Service struct {
	store *store.Store
	opts  Options
	now   func() time.Time
}

// New creates an authoring service.
func New(s *store.Store, opts Options) *Service {
	if opts.PassThreshold <= 0 {
		opts.PassThreshold = model.DefaultPassThreshold
	}
	if opts.DedupThreshold <= 0 {
		opts.DedupThreshold = similarity.DefaultThreshold
	}
	return &Service{store: s, opts: opts, now: time.Now}
}

// Create validates draft, fills defaults, checks for duplicates and stores
// the quiz with its questions.
func (s *Service) Create(ctx context.Context, draft model.QuizDraft, src Source) (Result, error) {
	quiz, questions, err := s.prepare(draft, src)
	if err != nil {
		return Result{}, err
	}

	dups, err := s.findDuplicates(quiz.Topic, questions)
	if err != nil {
		return Result{}, fmt.Errorf("check duplicates: %w", err)
	}
	if len(dups) > 0 {
		slog.InfoContext(ctx, "duplicate questions in draft", "topic", quiz.Topic, "count", len(dups), "dropped", s.opts.DropDuplicates)
		if s.opts.DropDuplicates {
			questions = dropNumbers(questions, dups)
			if len(questions) == 0 {
				return Result{}, fmt.Errorf("%w: every question repeats a recent one", ErrInvalid)
			}
		}
	}

	quiz.ID, err = s.newQuizID(quiz.Topic)
	if err != nil {
		return Result{}, err
	}
	quiz.QuestionCount = len(questions)
	for i := range questions {
		questions[i].QuizID = quiz.ID
	}

	if err := s.store.CreateQuiz(quiz, questions); err != nil {
		return Result{}, fmt.Errorf("store quiz: %w", err)
	}

	stored, err := s.store.GetQuestions(quiz.ID)
	if err != nil {
		return Result{}, err
	}
	slog.InfoContext(ctx, "quiz created", "quiz_id", quiz.ID, "topic", quiz.Topic, "questions", len(stored))
	if dups == nil {
		dups = []Duplicate{}
	}
	return Result{Quiz: quiz, Questions: stored, Duplicates: dups}, nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}

func (s *Service) prepare(draft model.QuizDraft, src Source) (model.Quiz, []model.Question, error) {
	topic := strings.TrimSpace(draft.Topic)
	if topic == "" {
		return model.Quiz{}, nil, invalidf("topic is required")
	}
	if len(draft.Questions) == 0 {
		return model.Quiz{}, nil, invalidf("at least one question is required")
	}

	difficulty := draft.Difficulty
	if difficulty == "" {
		difficulty = model.DifficultyIntermediate
	}
	if !difficulty.Valid() {
		return model.Quiz{}, nil, invalidf("unknown difficulty %q", difficulty)
	}

	threshold := draft.PassThreshold
	if threshold == 0 {
		threshold = s.opts.PassThreshold
	}
	if threshold < 0 || threshold > 100 {
		return model.Quiz{}, nil, invalidf("pass threshold %v is outside 0..100", threshold)
	}

	detail := strings.TrimSpace(draft.TopicDetail)
	if detail == "" && src.Name != "" {
		detail = "Imported from " + src.Name
	}

	quiz := model.Quiz{
		Topic:         topic,
		TopicDetail:   detail,
		Difficulty:    difficulty,
		PassThreshold: threshold,
		Status:        model.QuizCreated,
		CreatedAt:     s.now().UTC(),
	}

	defaultScore := int(math.Round(100 / float64(len(draft.Questions))))
	questions := make([]model.Question, 0, len(draft.Questions))
	for i, d := range draft.Questions {
		q, err := prepareQuestion(d, i+1, defaultScore, src)
		if err != nil {
			return model.Quiz{}, nil, err
		}
		questions = append(questions, q)
	}
	return quiz, questions, nil
}

func prepareQuestion(d model.QuestionDraft, number, defaultScore int, src Source) (model.Question, error) {
	qt := d.Type
	if qt == "" {
		qt = model.TypeChoice
	}
	if !qt.Valid() {
		return model.Question{}, invalidf("question %d: unknown type %q", number, qt)
	}

	content := strings.TrimSpace(d.Content)
	if content == "" {
		return model.Question{}, invalidf("question %d: content is required", number)
	}
	answer := strings.TrimSpace(d.CorrectAnswer)
	if answer == "" {
		return model.Question{}, invalidf("question %d: correct answer is required", number)
	}

	var options []string
	if qt.HasOptions() {
		for _, o := range d.Options {
			if o = strings.TrimSpace(o); o != "" {
				options = append(options, o)
			}
		}
		if len(options) < 2 {
			return model.Question{}, invalidf("question %d: a %s question needs at least two options", number, qt)
		}
		var err error
		if answer, err = normalizeLetters(qt, answer, len(options)); err != nil {
			return model.Question{}, invalidf("question %d: %v", number, err)
		}
	}

	score := d.Score
	if score == 0 {
		score = defaultScore
	}
	if score < 0 {
		return model.Question{}, invalidf("question %d: score must be positive", number)
	}

	kps := []string{}
	for _, kp := range d.KnowledgePoints {
		if kp = strings.TrimSpace(kp); kp != "" {
			kps = append(kps, kp)
		}
	}

	sourceType := d.SourceType
	if sourceType == "" {
		sourceType = src.Type
	}
	if sourceType == "" {
		sourceType = sourceGenerated
	}
	sourceName := d.SourceName
	if sourceName == "" {
		sourceName = src.Name
	}

	return model.Question{
		Number:          number,
		Type:            qt,
		Content:         content,
		Options:         options,
		CorrectAnswer:   answer,
		Points:          score,
		KnowledgePoints: kps,
		Explanation:     strings.TrimSpace(d.Explanation),
		SourceType:      sourceType,
		SourceName:      sourceName,
		SourceURL:       d.SourceURL,
		ContentHash:     ContentHash(content, options),
	}, nil
}

// normalizeLetters checks that a choice answer only names existing options and
// returns it upper-cased, canonical for multiple choice.
func normalizeLetters(qt model.QuestionType, answer string, nOptions int) (string, error) {
	canon := grading.Canonical(answer)
	letters := strings.Split(canon, ",")
	if qt == model.TypeChoice && len(letters) != 1 {
		return "", fmt.Errorf("a choice question has exactly one correct letter, got %q", answer)
	}
	for _, l := range letters {
		if len(l) != 1 || l[0] < 'A' || int(l[0]-'A') >= nOptions {
			return "", fmt.Errorf("correct answer %q does not name one of %d options", answer, nOptions)
		}
	}
	return canon, nil
}

// ContentHash fingerprints a question by its content and options.
func ContentHash(content string, options []string) string {
	data := content
	if len(options) > 0 {
		b, _ := json.Marshal(options)
		data += string(b)
	}
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

func (s *Service) findDuplicates(topic string, questions []model.Question) ([]Duplicate, error) {
	if s.opts.DedupWindow <= 0 {
		return nil, nil
	}
	recent, err := s.store.RecentQuestions(topic, s.now().Add(-s.opts.DedupWindow))
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, nil
	}

	byHash := make(map[string]model.Question, len(recent))
	items := make([]similarity.Item, len(recent))
	for i, r := range recent {
		if _, ok := byHash[r.ContentHash]; !ok {
			byHash[r.ContentHash] = r
		}
		items[i] = similarity.Item{Content: r.Content, Options: r.Options}
	}

	var dups []Duplicate
	for _, q := range questions {
		if r, ok := byHash[q.ContentHash]; ok {
			dups = append(dups, Duplicate{
				Number: q.Number, Content: q.Content,
				MatchedQuizID: r.QuizID, MatchedNumber: r.Number,
				Exact: true, Similarity: 1,
			})
			continue
		}
		target := similarity.Item{Content: q.Content, Options: q.Options}
		for i, item := range items {
			if similarity.AreSimilar(target, item, s.opts.DedupThreshold) {
				dups = append(dups, Duplicate{
					Number: q.Number, Content: q.Content,
					MatchedQuizID: recent[i].QuizID, MatchedNumber: recent[i].Number,
					Similarity: similarity.Combined(q.Content, item.Content),
				})
				break
			}
		}
	}
	return dups, nil
}

func dropNumbers(questions []model.Question, dups []Duplicate) []model.Question {
	drop := make(map[int]bool, len(dups))
	for _, d := range dups {
		drop[d.Number] = true
	}
	kept := questions[:0]
	for _, q := range questions {
		if drop[q.Number] {
			continue
		}
		q.Number = len(kept) + 1
		kept = append(kept, q)
	}
	return kept
}

var nonSlug = regexp.MustCompile(`[^a-z0-9-]`)
var spaces = regexp.MustCompile(`\s+`)

// Slug turns a topic into the lower-case ASCII tail of a quiz ID.
func Slug(topic string) string {
	slug := spaces.ReplaceAllString(strings.ToLower(topic), "-")
	slug = nonSlug.ReplaceAllString(slug, "")
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	if slug == "" {
		return "quiz"
	}
	return slug
}

// newQuizID builds "<UTC timestamp>_<slug>", adding a counter when the ID is taken.
func (s *Service) newQuizID(topic string) (string, error) {
	base := s.now().UTC().Format("2006-01-02T15-04-05") + "_" + Slug(topic)
	id := base
	for n := 2; ; n++ {
		_, err := s.store.GetQuiz(id)
		if errors.Is(err, store.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
		id = base + "-" + strconv.Itoa(n)
	}
}
