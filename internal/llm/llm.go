// Package llm talks to the text-completion collaborator used for free-text
// grading and tutoring.
package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a completion does not finish in time.
	ErrTimeout = errors.New("completion timed out")
	// ErrEmpty is returned when the collaborator produced no text.
	ErrEmpty = errors.New("empty completion")
)

// Completer turns a prompt into a completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Pinger is implemented by completers that can check their backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config selects and configures a completion backend.
type Config struct {
	Backend string // "cli" or "openai"
	Model   string

	// cli backend
	Command string
	Args    []string

	// openai backend
	BaseURL string
	APIKey  string
}

// New builds the completer selected by cfg.Backend.
func New(cfg Config) (Completer, error) {
	switch cfg.Backend {
	case "", "cli":
		return NewCLI(cfg.Command, cfg.Args, cfg.Model), nil
	case "openai":
		if cfg.Model == "" {
			return nil, errors.New("openai backend needs a model name")
		}
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown completion backend %q", cfg.Backend)
	}
}
