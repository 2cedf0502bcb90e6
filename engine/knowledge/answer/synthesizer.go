package answer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/knowledge/tokens"
	"github.com/compozy/docqa/engine/knowledge/vectordb"
	"github.com/compozy/docqa/pkg/logger"
)

// NotFoundAnswer is returned when no candidate model yields a usable answer.
const NotFoundAnswer = "I could not find this information in the provided documents."

const (
	DefaultTemperature     = 0.2
	DefaultMaxOutputTokens = 512
	DefaultMaxContextChars = 12000
)

// Config controls prompt size, model cascade, and per-call bounds.
type Config struct {
	Model           string
	FallbackModels  []string
	MaxOutputTokens int
	Temperature     float64
	MaxContextChars int
	// Timeout bounds each model call. Zero leaves only the caller's deadline.
	Timeout time.Duration
}

// Attempt records one model call in the cascade.
type Attempt struct {
	Model string `json:"model"`
	Error string `json:"error,omitempty"`
	Empty bool   `json:"empty,omitempty"`
}

// Result is the outcome of a synthesis.
type Result struct {
	Answer   string    `json:"answer"`
	Model    string    `json:"model,omitempty"`
	Found    bool      `json:"found"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

type Synthesizer struct {
	gen        Generator
	cfg        Config
	candidates []string
}

func NewSynthesizer(gen Generator, cfg Config) (*Synthesizer, error) {
	if gen == nil {
		return nil, errors.New("answer: generator is required")
	}
	candidates := candidateModels(cfg.Model, cfg.FallbackModels)
	if len(candidates) == 0 {
		return nil, core.NewError(
			errors.New("answer: at least one generation model is required"),
			core.ErrCodeConfiguration,
			nil,
		)
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultMaxContextChars
	}
	return &Synthesizer{gen: gen, cfg: cfg, candidates: candidates}, nil
}

// Candidates returns the deduplicated model cascade in call order.
func (s *Synthesizer) Candidates() []string {
	return append([]string(nil), s.candidates...)
}

// candidateModels puts primary first and drops blanks and repeats.
func candidateModels(primary string, fallbacks []string) []string {
	seen := make(map[string]struct{}, len(fallbacks)+1)
	out := make([]string, 0, len(fallbacks)+1)
	for _, m := range append([]string{primary}, fallbacks...) {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Synthesize returns a grounded answer or NotFoundAnswer. It never fails.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, chunks []vectordb.Match) string {
	return s.Answer(ctx, question, chunks).Answer
}

// Answer runs the model cascade and reports every attempt.
func (s *Synthesizer) Answer(ctx context.Context, question string, chunks []vectordb.Match) Result {
	log := logger.FromContext(ctx)
	if strings.TrimSpace(question) == "" || len(chunks) == 0 {
		log.Debug("No passages to answer from", "chunks", len(chunks))
		return Result{Answer: NotFoundAnswer}
	}
	passages := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i := range chunks {
		passages[i] = chunks[i].Text
		ids[i] = chunks[i].ID
	}
	prompt := BuildPrompt(question, passages, s.cfg.MaxContextChars)
	opts := CallOptions{MaxOutputTokens: s.cfg.MaxOutputTokens, Temperature: s.cfg.Temperature}
	attempts := make([]Attempt, 0, len(s.candidates))
	for _, model := range s.candidates {
		log.Debug("Generating answer", "model", model, "prompt_tokens", tokens.Estimate(ctx, model, prompt))
		raw, err := s.generate(ctx, model, prompt, opts)
		if err != nil {
			log.Warn("Generation attempt failed", "model", model, "error", core.RedactError(err))
			attempts = append(attempts, Attempt{Model: model, Error: core.RedactError(err)})
			if ctx.Err() != nil {
				break
			}
			continue
		}
		clean := Sanitize(raw, ids)
		if clean == "" {
			log.Warn("Generation attempt discarded after sanitation", "model", model, "raw_chars", len(raw))
			attempts = append(attempts, Attempt{Model: model, Empty: true})
			continue
		}
		attempts = append(attempts, Attempt{Model: model})
		return Result{Answer: clean, Model: model, Found: clean != NotFoundAnswer, Attempts: attempts}
	}
	log.Info("No model produced an answer", "attempts", len(attempts))
	return Result{Answer: NotFoundAnswer, Attempts: attempts}
}

func (s *Synthesizer) generate(ctx context.Context, model, prompt string, opts CallOptions) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	return s.gen.Generate(ctx, model, prompt, opts)
}
