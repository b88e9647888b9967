package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/skillforge/internal/model"
)

// FS holds the built-in prompt templates.
//
//go:embed templates/*.txt
var FS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-(answer|question)\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAnswerRunes = 10000

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict demands precise terminology.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient credits understanding over wording.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce       sync.Once
	loadErr        error
	gradeTemplates map[PromptVariant]*template.Template
	tutorTemplate  *template.Template
)

var funcs = template.FuncMap{
	"letter": func(i int) string { return string(rune('A' + i)) },
	"join":   strings.Join,
}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// GradeData holds template data for grading prompts.
type GradeData struct {
	TypeLabel       string
	IsCode          bool
	Content         string
	ReferenceAnswer string
	Answer          string
	MaxPoints       int
}

// TutorData holds template data for the tutor prompt.
type TutorData struct {
	Topic           string
	Number          int
	Content         string
	Options         []string
	KnowledgePoints []string
	Query           string
}

// Load parses the prompt templates from fsys, usually FS.
// Templates are loaded only once per process.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		gradeTemplates = make(map[PromptVariant]*template.Template)

		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			tmpl, err := parse(fsys, "templates/grade_"+string(v)+".txt")
			if err != nil {
				loadErr = err
				return
			}
			gradeTemplates[v] = tmpl
		}

		tutorTemplate, loadErr = parse(fsys, "templates/tutor.txt")
	})
	return loadErr
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.New("failed to read prompt file " + name + ": " + err.Error())
	}
	tmpl, err := template.New(name).Funcs(funcs).Parse(string(content))
	if err != nil {
		return nil, errors.New("failed to parse prompt template " + name + ": " + err.Error())
	}
	return tmpl, nil
}

// BuildGradePrompt builds the grading prompt for a free-text answer.
func BuildGradePrompt(variant PromptVariant, question model.Question, answer string) (string, error) {
	if gradeTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := gradeTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	label := "essay question"
	if question.Type == model.TypeCode {
		label = "coding question"
	}
	data := GradeData{
		TypeLabel:       label,
		IsCode:          question.Type == model.TypeCode,
		Content:         question.Content,
		ReferenceAnswer: question.CorrectAnswer,
		Answer:          sanitizeAnswer(answer),
		MaxPoints:       question.Points,
	}
	return execute(tmpl, data)
}

// BuildTutorPrompt builds the prompt for a student's question about a quiz question.
func BuildTutorPrompt(topic string, question model.Question, query string) (string, error) {
	if tutorTemplate == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	data := TutorData{
		Topic:           topic,
		Number:          question.Number,
		Content:         question.Content,
		Options:         question.Options,
		KnowledgePoints: question.KnowledgePoints,
		Query:           sanitizeAnswer(query),
	}
	return execute(tutorTemplate, data)
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
