// Package ai generates tutor replies and daily challenge texts. Remote
// providers run behind a circuit breaker; the static provider needs no
// network and is the default.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/chatlog/internal/config"
	"github.com/edgard/chatlog/internal/database"
	"github.com/edgard/chatlog/internal/resilience"
)

// Generator produces bot replies and challenge texts.
type Generator interface {
	// GenerateReply answers p.Text given the user's prior history.
	GenerateReply(ctx context.Context, p Prompt) (string, error)
	// GenerateChallenge produces one practice question at level.
	GenerateChallenge(ctx context.Context, level string) (string, error)
}

// Prompt is one reply request. An empty Instruction uses the configured
// system instruction. History is oldest first.
type Prompt struct {
	Instruction string
	History     []database.Message
	Text        string
}

// Role is the speaker of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in the conversation sent to a provider.
type Turn struct {
	Role Role
	Text string
}

// provider is a single remote completion backend.
type provider interface {
	name() string
	complete(ctx context.Context, model, system string, turns []Turn) (string, error)
}

// New returns the Generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		p   provider
		err error
	)
	switch cfg.Provider {
	case "", "static":
		return Static{}, nil
	case "gemini":
		p, err = newGeminiProvider(ctx, cfg)
	case "openai":
		p = newOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return newClient(p, cfg, logger), nil
}

// Client is a Generator backed by a remote provider.
type Client struct {
	provider     provider
	breaker      *resilience.CircuitBreaker
	instruction  string
	model        string
	codeModel    string
	historyLimit int
	timeout      time.Duration
	logger       *slog.Logger
}

func newClient(p provider, cfg config.AIConfig, logger *slog.Logger) *Client {
	log := logger.With("component", "ai_client", "provider", p.name())
	log.Info("AI client initialized", "model", cfg.Model, "code_model", cfg.CodeModel)

	return &Client{
		provider: p,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:        "ai_" + p.name(),
			MaxFailures: 3,
			Timeout:     cfg.Timeout,
			Logger:      log,
		}),
		instruction:  cfg.SystemInstruction,
		model:        cfg.Model,
		codeModel:    cfg.CodeModel,
		historyLimit: cfg.HistoryLimit,
		timeout:      cfg.Timeout,
		logger:       log,
	}
}

// GenerateReply implements Generator. Text that looks like C code goes to
// the code model when one is configured.
func (c *Client) GenerateReply(ctx context.Context, p Prompt) (string, error) {
	turns := append(BuildTurns(p.History, c.historyLimit), Turn{Role: RoleUser, Text: p.Text})

	instruction := p.Instruction
	if instruction == "" {
		instruction = c.instruction
	}
	model := c.model
	if c.codeModel != "" && LooksLikeCode(p.Text) {
		model = c.codeModel
	}

	c.logger.DebugContext(ctx, "Generating reply", "turns", len(turns), "model", model)
	return c.run(ctx, model, instruction, turns)
}

// GenerateChallenge implements Generator.
func (c *Client) GenerateChallenge(ctx context.Context, level string) (string, error) {
	turns := []Turn{{Role: RoleUser, Text: challengePrompt(level)}}
	return c.run(ctx, c.model, challengeInstruction, turns)
}

func (c *Client) run(ctx context.Context, model, system string, turns []Turn) (string, error) {
	startTime := time.Now()

	var out string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		text, err := c.provider.complete(ctx, model, system, turns)
		if err != nil {
			return err
		}
		out = strings.TrimSpace(text)
		if out == "" {
			return fmt.Errorf("%s returned empty text", c.provider.name())
		}
		return nil
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "AI generation failed", "error", err, "duration_ms", time.Since(startTime).Milliseconds())
		return "", fmt.Errorf("%s generation failed: %w", c.provider.name(), err)
	}

	c.logger.DebugContext(ctx, "AI generation finished", "duration_ms", time.Since(startTime).Milliseconds())
	return out, nil
}

// BuildTurns converts stored history into conversation turns, oldest first.
// Only the last limit messages are used when limit > 0. A message carrying
// both sides yields the user turn before the assistant turn.
func BuildTurns(history []database.Message, limit int) []Turn {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	turns := make([]Turn, 0, 2*len(history)+1)
	for _, m := range history {
		if m.MessageText != "" {
			turns = append(turns, Turn{Role: RoleUser, Text: m.MessageText})
		}
		if m.BotResponse != "" {
			turns = append(turns, Turn{Role: RoleAssistant, Text: m.BotResponse})
		}
	}
	return turns
}

var codeMarkers = []string{
	"#include", "int ", "void ", "printf(", "scanf(", "return", "malloc", "free(",
	"sizeof", "struct ", "typedef ", "->", "main()",
}

// LooksLikeCode reports whether text contains C source fragments.
func LooksLikeCode(text string) bool {
	for _, m := range codeMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
