package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"finetune-orchestrator/internal/ai"
)

const promptSampleLimit = 30

const promptSystem = `You are an expert data engineer. The user will give you sample JSON records.
Your job: create ONE clear, reusable natural-language prompt that instructs a model
how to generate NEW records of the same type, with the same fields, structure,
and style, but different content.

Output ONLY the prompt text. Do not add explanations or examples outside the prompt.`

const promptUserTemplate = `Here are sample JSON records (array):

%s

Generate ONE generic prompt a user could paste into an LLM to generate more data
with the same schema, style, and semantics.`

var ErrEmptyPrompt = errors.New("model returned an empty prompt")

type Completer interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, params ai.CompletionParams) (string, error)
}

// PromptBuilder asks the generative model for a reusable prompt describing a dataset.
type PromptBuilder struct {
	llm Completer
	cfg ai.ChatConfig
}

func NewPromptBuilder(llm Completer, cfg ai.ChatConfig) *PromptBuilder {
	return &PromptBuilder{llm: llm, cfg: cfg}
}

func (b *PromptBuilder) Build(ctx context.Context, samples []interface{}) (string, error) {
	if len(samples) > promptSampleLimit {
		samples = samples[:promptSampleLimit]
	}
	pretty, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal prompt samples failed: %w", err)
	}

	messages := []ai.ChatMessage{
		{Role: "system", Content: promptSystem},
		{Role: "user", Content: fmt.Sprintf(promptUserTemplate, pretty)},
	}
	out, err := b.llm.Complete(ctx, b.cfg, messages, ai.CompletionParams{Temperature: ai.Temperature(0.3)})
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyPrompt
	}
	return out, nil
}
