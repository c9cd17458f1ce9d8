package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/datatypes"

	"finetune-orchestrator/internal/ai"
	"finetune-orchestrator/internal/model"
	"finetune-orchestrator/internal/normalize"
)

const competencySystemPrompt = `You are an expert in leadership and FP&A (Financial Planning & Analysis) competencies.
You MUST respond with VALID JSON ONLY, no markdown, no explanations.
If you wrap the array, use one of these keys only: "roles" or "competencies".`

const competencyUserTemplate = `User Input (context, role, or keywords):
"%s"

Generate EXACTLY 10 distinct competency objects in this JSON format:

[
  {
    "Name": "Short, specific competency name",
    "Description": "One concise role/competency definition (max 10 words).",
    "Effectively Used": "One concise sentence describing positive, effective behavior (max 14 words).",
    "Under Used": "One concise sentence describing consequences when this competency is underused (max 14 words).",
    "Over Used": "One concise sentence describing consequences when this competency is overused (max 14 words).",
    "Development Actions": "One specific, actionable development step (max 14 words)."
  }
]

Rules:
- Return either:
  1) A JSON array with 10 objects, OR
  2) A JSON object with ONE key: "roles" or "competencies", whose value is an array of 10 objects.
- Do NOT include any other keys at the top level.
- No comments, no explanations, no trailing text.`

const (
	competencyTemperature = 0.2
	competencyMaxTokens   = 1200
)

type Completer interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage, params ai.CompletionParams) (string, error)
}

type GenerationLogStore interface {
	Create(ctx context.Context, entry *model.GenerationLog) error
}

type FineTunedLookup interface {
	Latest(ctx context.Context, statuses ...model.DocumentStatus) (*model.Document, error)
}

type GenerationService struct {
	llm  Completer
	chat ai.ChatConfig
	logs GenerationLogStore
	docs FineTunedLookup
	now  func() time.Time
}

func NewGenerationService(llm Completer, chat ai.ChatConfig, logs GenerationLogStore, docs FineTunedLookup) *GenerationService {
	return &GenerationService{
		llm:  llm,
		chat: chat,
		logs: logs,
		docs: docs,
		now:  time.Now,
	}
}

type GenerateInput struct {
	UserID    uint
	InputText string
}

type GenerateResult struct {
	Competencies []normalize.Record `json:"competencies"`
	Model        string             `json:"model"`
	ResponseTime time.Duration      `json:"response_time"`
	Count        int                `json:"count"`
	UsedFineTune bool               `json:"used_fine_tune"`
}

// NormalizeResult is the outcome of normalizing generated text. Error and
// RawSample are set only when no records could be recovered.
type NormalizeResult struct {
	Records   []normalize.Record `json:"records"`
	Error     string             `json:"error,omitempty"`
	RawSample string             `json:"raw_sample,omitempty"`
}

// NormalizeGeneratedRecords never fails; a failure is reported inside the result.
func (s *GenerationService) NormalizeGeneratedRecords(raw string) NormalizeResult {
	records, err := normalize.Normalize(raw, normalize.CompetencySchema)
	if err != nil {
		result := NormalizeResult{Records: []normalize.Record{}, Error: err.Error()}
		var parseErr *normalize.ParseError
		if errors.As(err, &parseErr) {
			result.RawSample = parseErr.RawSample
		}
		return result
	}
	return NormalizeResult{Records: records}
}

func (s *GenerationService) GenerateCompetencies(ctx context.Context, input GenerateInput) (*GenerateResult, error) {
	text := strings.TrimSpace(input.InputText)
	if text == "" {
		return nil, ErrInvalidInput
	}
	logger := slog.With("userId", input.UserID, "requestType", model.RequestTypeCompetency)

	var fineTuned *model.Document
	if s.docs != nil {
		doc, err := s.docs.Latest(ctx, model.StatusFineTuningReady, model.StatusFineTuningCompleted)
		if err != nil {
			logger.Warn("lookup fine-tuned dataset failed", "error", err)
		}
		fineTuned = doc
	}

	start := s.now()
	raw, err := s.llm.Complete(ctx, s.chat, []ai.ChatMessage{
		{Role: "system", Content: competencySystemPrompt},
		{Role: "user", Content: fmt.Sprintf(competencyUserTemplate, text)},
	}, ai.CompletionParams{
		Temperature: ai.Temperature(competencyTemperature),
		MaxTokens:   competencyMaxTokens,
	})
	elapsed := s.now().Sub(start)

	entry := &model.GenerationLog{
		RequestType:    model.RequestTypeCompetency,
		Input:          text,
		Model:          s.chat.Model,
		ResponseTimeMs: elapsed.Milliseconds(),
		UserID:         input.UserID,
		Metadata:       fineTuneMetadata(fineTuned),
	}
	if err != nil {
		s.recordFailure(ctx, logger, entry, err)
		return nil, fmt.Errorf("generate competencies failed: %w", err)
	}

	records, err := normalize.Normalize(raw, normalize.CompetencySchema)
	if err != nil {
		s.recordFailure(ctx, logger, entry, err)
		return nil, err
	}

	entry.Status = model.GenerationStatusSuccess
	entry.Output = mustJSON(records)
	s.record(ctx, logger, entry)
	logger.Info("competencies generated", "count", len(records), "elapsed", elapsed)

	return &GenerateResult{
		Competencies: records,
		Model:        s.chat.Model,
		ResponseTime: elapsed,
		Count:        len(records),
		UsedFineTune: fineTuned != nil,
	}, nil
}

func (s *GenerationService) recordFailure(ctx context.Context, logger *slog.Logger, entry *model.GenerationLog, cause error) {
	entry.Status = model.GenerationStatusError
	entry.ErrorMessage = cause.Error()
	var parseErr *normalize.ParseError
	if errors.As(cause, &parseErr) {
		entry.Output = mustJSON(map[string]string{"raw_sample": parseErr.RawSample})
	}
	logger.Warn("competency generation failed", "error", cause)
	s.record(ctx, logger, entry)
}

func (s *GenerationService) record(ctx context.Context, logger *slog.Logger, entry *model.GenerationLog) {
	if s.logs == nil {
		return
	}
	if err := s.logs.Create(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn("save generation log failed", "error", err)
	}
}

func fineTuneMetadata(doc *model.Document) datatypes.JSON {
	meta := map[string]interface{}{"used_fine_tune": doc != nil}
	if doc != nil {
		meta["fine_tune_document_id"] = doc.ID
	}
	return mustJSON(meta)
}

func mustJSON(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}
