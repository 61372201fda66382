// Package advisor asks an external text generation service for advice about
// the user's finances.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"financas/internal/core"
)

var (
	ErrMissingCredential = errors.New("advice service credential is not configured")
	ErrEmptyQuestion     = errors.New("empty question")
	ErrQuestionTooLong   = fmt.Errorf("question too long (max %d characters)", maxQuestionLength)
	// ErrUnavailable is what callers show the user. Details are only logged.
	ErrUnavailable = errors.New("não foi possível obter uma resposta do assistente, tente novamente")
)

const maxQuestionLength = 2000

// Generator streams text fragments for a prompt. The sequence is finite and
// can be consumed once.
type Generator interface {
	GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

type Advisor struct {
	gen Generator
}

// New returns an advisor backed by gen. A nil generator means no credential
// was configured and every request fails with ErrMissingCredential.
func New(gen Generator) *Advisor {
	return &Advisor{gen: gen}
}

// Enabled reports whether a generator is configured.
func (a *Advisor) Enabled() bool {
	return a != nil && a.gen != nil
}

// Advise builds the prompt for question over data and returns the fragment
// stream. Cancelling ctx stops the generation.
func (a *Advisor) Advise(ctx context.Context, data core.FinancialData, question string) (iter.Seq2[string, error], error) {
	if !a.Enabled() {
		return nil, ErrMissingCredential
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if len(question) > maxQuestionLength {
		return nil, ErrQuestionTooLong
	}

	prompt, err := BuildPrompt(Project(data), question)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Requesting advice", "prompt_bytes", len(prompt))
	return a.gen.GenerateStream(ctx, prompt), nil
}

// BuildPrompt renders the instruction, the projection as indented JSON and
// the user's question.
func BuildPrompt(p Projection, question string) (string, error) {
	payload, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode projection: %w", err)
	}

	var b strings.Builder
	b.WriteString("Você é um assistente financeiro prestativo e amigável. ")
	b.WriteString("Analise os seguintes dados financeiros e responda à pergunta do usuário. ")
	b.WriteString("Forneça conselhos concisos e práticos. ")
	b.WriteString("Não forneça conselhos de investimento profissional.\n\n")
	b.WriteString("Dados Financeiros:\n")
	b.Write(payload)
	b.WriteString("\n\nPergunta do usuário:\n")
	fmt.Fprintf(&b, "%q\n\n", question)
	b.WriteString("Sua resposta (em português):\n")
	return b.String(), nil
}
