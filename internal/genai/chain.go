package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"guardbot/internal/metrics"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Classify maps an attempt error onto an outcome. Only the caller's own
// cancellation stops the chain; every other failure moves to the next slot.
func Classify(ctx context.Context, err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return OutcomeFatal
	}
	return OutcomeRetryable
}

type Slot struct {
	Ordinal   int
	Label     string
	Generator Generator
}

type Attempt struct {
	Label    string
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

type Result struct {
	Text     string
	Label    string
	Attempts []Attempt
}

// Credential is a labelled API key as read from configuration.
type Credential struct {
	Label string
	Key   string
}

// Chain tries its slots in configuration order for every request. It keeps
// no state between requests.
type Chain struct {
	logger *slog.Logger
	slots  []Slot
}

func NewChain(logger *slog.Logger, slots ...Slot) *Chain {
	cp := make([]Slot, len(slots))
	copy(cp, slots)
	for i := range cp {
		cp[i].Ordinal = i + 1
	}
	return &Chain{logger: logger, slots: cp}
}

// NewChainFromCredentials builds one slot per non-empty key.
func NewChainFromCredentials(logger *slog.Logger, creds []Credential, build func(key string) Generator) *Chain {
	var slots []Slot
	for _, c := range creds {
		if c.Key == "" {
			continue
		}
		slots = append(slots, Slot{Label: c.Label, Generator: build(c.Key)})
	}
	return NewChain(logger, slots...)
}

func (c *Chain) Len() int { return len(c.slots) }

func (c *Chain) Labels() []string {
	out := make([]string, len(c.slots))
	for i, s := range c.slots {
		out[i] = s.Label
	}
	return out
}

func (c *Chain) Try(ctx context.Context, req Request) (Result, error) {
	if len(c.slots) == 0 {
		return Result{}, ErrNoCredentials
	}

	attempts := make([]Attempt, 0, len(c.slots))
	for _, slot := range c.slots {
		start := time.Now()
		text, err := slot.Generator.Generate(ctx, req)
		outcome := Classify(ctx, err)
		attempts = append(attempts, Attempt{
			Label:    slot.Label,
			Outcome:  outcome,
			Err:      err,
			Duration: time.Since(start),
		})
		metrics.IncGenAIAttempt(slot.Label, outcome.String())

		switch outcome {
		case OutcomeSuccess:
			if len(attempts) > 1 {
				c.logger.Info("Generation succeeded on fallback credential", "credential", slot.Label, "attempt", slot.Ordinal)
			}
			return Result{Text: text, Label: slot.Label, Attempts: attempts}, nil
		case OutcomeFatal:
			return Result{Attempts: attempts}, fmt.Errorf("generation with %s: %w", slot.Label, err)
		default:
			c.logger.Warn("Generation failed, trying next credential",
				"credential", slot.Label, "attempt", slot.Ordinal, "error", err)
		}
	}
	return Result{Attempts: attempts}, &ExhaustedError{Attempts: attempts}
}
