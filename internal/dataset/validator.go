// Package dataset parses uploaded record files and judges whether they can be trained on.
package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gorm.io/datatypes"

	"finetune-orchestrator/internal/model"
)

const (
	CSVSampleLimit  = 5
	JSONSampleLimit = 30
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type FileReader interface {
	Read(ctx context.Context, path string) ([]byte, error)
}

type Prompter interface {
	Build(ctx context.Context, samples []interface{}) (string, error)
}

type Validator struct {
	files   FileReader
	prompts Prompter
}

// NewValidator builds a validator. prompts may be nil, in which case no prompt is synthesized.
func NewValidator(files FileReader, prompts Prompter) *Validator {
	return &Validator{files: files, prompts: prompts}
}

// Validate never fails: every problem is reported through the returned analysis.
func (v *Validator) Validate(ctx context.Context, path string, format model.DatasetFormat) model.DatasetAnalysis {
	logger := slog.With("path", path, "format", format)

	if !format.Supported() {
		return invalid(fmt.Errorf("unsupported dataset format %q", format))
	}
	content, err := v.files.Read(ctx, path)
	if err != nil {
		logger.Warn("read dataset failed", "error", err)
		return invalid(err)
	}
	content = bytes.TrimPrefix(content, utf8BOM)

	var analysis model.DatasetAnalysis
	switch format {
	case model.FormatCSV:
		analysis, err = v.analyzeCSV(content)
	case model.FormatJSON:
		analysis, err = v.analyzeJSON(ctx, content)
	}
	if err != nil {
		logger.Info("dataset rejected", "error", err)
		return invalid(err)
	}
	logger.Info("dataset analyzed", "rows", analysis.RowCount, "samples", analysis.SampleRecords, "valid", analysis.Valid)
	return analysis
}

func (v *Validator) analyzeCSV(content []byte) (model.DatasetAnalysis, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return model.DatasetAnalysis{}, nil
	}
	if err != nil {
		return model.DatasetAnalysis{}, fmt.Errorf("parse csv header failed: %w", err)
	}

	rows := 0
	samples := make([]interface{}, 0, CSVSampleLimit)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.DatasetAnalysis{}, fmt.Errorf("parse csv row %d failed: %w", rows+1, err)
		}
		rows++
		if len(samples) < CSVSampleLimit {
			samples = append(samples, csvRow(header, record))
		}
	}

	preview, err := marshalPreview(samples)
	if err != nil {
		return model.DatasetAnalysis{}, err
	}
	return model.DatasetAnalysis{
		RowCount:      rows,
		SampleRecords: len(samples),
		Valid:         rows > 0,
		SamplePreview: preview,
	}, nil
}

func (v *Validator) analyzeJSON(ctx context.Context, content []byte) (model.DatasetAnalysis, error) {
	var root interface{}
	if err := json.Unmarshal(bytes.TrimSpace(content), &root); err != nil {
		return model.DatasetAnalysis{}, fmt.Errorf("parse json failed: %w", err)
	}
	items, ok := root.([]interface{})
	if !ok {
		items = []interface{}{root}
	}

	sample := items
	if len(sample) > JSONSampleLimit {
		sample = sample[:JSONSampleLimit]
	}
	preview, err := marshalPreview(sample)
	if err != nil {
		return model.DatasetAnalysis{}, err
	}
	analysis := model.DatasetAnalysis{
		RowCount:      len(items),
		SampleRecords: len(sample),
		Valid:         len(items) > 0,
		SamplePreview: preview,
	}

	if analysis.Valid && len(sample) > 0 && v.prompts != nil {
		prompt, err := v.prompts.Build(ctx, sample)
		if err != nil {
			analysis.Error = "Prompt generation failed: " + err.Error()
		} else {
			analysis.Prompt = prompt
		}
	}
	return analysis, nil
}

func csvRow(header, record []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, column := range header {
		if i < len(record) {
			row[column] = record[i]
		} else {
			row[column] = ""
		}
	}
	return row
}

func marshalPreview(samples []interface{}) (datatypes.JSON, error) {
	b, err := json.Marshal(samples)
	if err != nil {
		return nil, fmt.Errorf("marshal sample preview failed: %w", err)
	}
	return datatypes.JSON(b), nil
}

func invalid(err error) model.DatasetAnalysis {
	return model.DatasetAnalysis{Valid: false, Error: err.Error()}
}
