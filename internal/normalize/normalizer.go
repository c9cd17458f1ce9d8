// Package normalize recovers a fixed-shape record list from text produced by a generative model.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	DefaultCap       = 10
	rawSampleMaxSize = 500
)

var ErrNoRecords = errors.New("no structured records recovered")

// ParseError carries a bounded preview of the text that could not be recovered.
type ParseError struct {
	Reason    string
	RawSample string
}

func (e *ParseError) Error() string {
	return "parse generated records failed: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return ErrNoRecords
}

// Field is one output column and the source keys accepted for it, in priority order.
// The field name itself is always tried first.
type Field struct {
	Name    string
	Aliases []string
}

type Schema struct {
	Fields      []Field
	WrapperKeys []string
	Cap         int
}

// Record always holds exactly the schema's field names.
type Record map[string]string

// CompetencySchema is the shape requested from the model for competency generation.
var CompetencySchema = Schema{
	Fields: []Field{
		{Name: "Name", Aliases: []string{"name"}},
		{Name: "Description", Aliases: []string{"description"}},
		{Name: "Effectively Used", Aliases: []string{"effectively_used", "effectivelyUsed"}},
		{Name: "Under Used", Aliases: []string{"underused", "under_used", "underUsed"}},
		{Name: "Over Used", Aliases: []string{"overused", "over_used", "overUsed"}},
		{Name: "Development Actions", Aliases: []string{"development_actions", "developmentActions"}},
	},
	WrapperKeys: []string{"roles", "competencies"},
	Cap:         DefaultCap,
}

// Strategy extracts a list of raw entries from text, or reports that it could not.
type Strategy func(raw string) ([]json.RawMessage, bool)

// Strategies returns the ordered extraction chain for the schema.
func (s Schema) Strategies() []Strategy {
	strict := []Strategy{rootArray}
	for _, key := range s.WrapperKeys {
		strict = append(strict, wrapperKey(key))
	}
	strict = append(strict, firstArrayField)

	chain := append([]Strategy{}, strict...)
	chain = append(chain, reframed(fencedBody, strict), reframed(outermostSpan, strict))
	return chain
}

// Normalize runs the strategy chain and projects the first list found onto the schema.
func Normalize(raw string, schema Schema) ([]Record, error) {
	var (
		entries []json.RawMessage
		found   bool
	)
	for _, strategy := range schema.Strategies() {
		if entries, found = strategy(raw); found {
			break
		}
	}
	if !found {
		return nil, &ParseError{Reason: describeFailure(raw), RawSample: preview(raw)}
	}
	if len(entries) == 0 {
		return nil, &ParseError{Reason: "extracted value is not a non-empty array", RawSample: preview(raw)}
	}

	limit := schema.Cap
	if limit <= 0 {
		limit = DefaultCap
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		records = append(records, project(entry, schema.Fields))
	}
	return records, nil
}

func rootArray(raw string) ([]json.RawMessage, bool) {
	var list []json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &list); err != nil {
		return nil, false
	}
	return list, true
}

func wrapperKey(key string) Strategy {
	return func(raw string) ([]json.RawMessage, bool) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil {
			return nil, false
		}
		value, ok := obj[key]
		if !ok {
			return nil, false
		}
		return asList(value)
	}
}

// firstArrayField walks the top-level object in document order.
func firstArrayField(raw string) ([]json.RawMessage, bool) {
	body := strings.TrimSpace(raw)
	if !json.Valid([]byte(body)) {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, false
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, false
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		if list, ok := asList(value); ok {
			return list, true
		}
	}
	return nil, false
}

func reframed(extract func(string) (string, bool), chain []Strategy) Strategy {
	return func(raw string) ([]json.RawMessage, bool) {
		body, ok := extract(raw)
		if !ok || body == strings.TrimSpace(raw) {
			return nil, false
		}
		for _, strategy := range chain {
			if list, found := strategy(body); found {
				return list, true
			}
		}
		return nil, false
	}
}

func fencedBody(raw string) (string, bool) {
	start := strings.Index(raw, "```")
	if start < 0 {
		return "", false
	}
	rest := raw[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// drop the info string, e.g. ```json
		if !strings.ContainsAny(rest[:nl], "[{") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func outermostSpan(raw string) (string, bool) {
	start := strings.IndexAny(raw, "[{")
	if start < 0 {
		return "", false
	}
	closer := byte(']')
	if raw[start] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(raw, closer)
	if end <= start {
		return "", false
	}
	return strings.TrimSpace(raw[start : end+1]), true
}

func asList(value json.RawMessage) ([]json.RawMessage, bool) {
	trimmed := strings.TrimSpace(string(value))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var list []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
		return nil, false
	}
	return list, true
}

func project(entry json.RawMessage, fields []Field) Record {
	var source map[string]interface{}
	// non-object entries project to an all-empty record
	_ = json.Unmarshal(entry, &source)

	record := make(Record, len(fields))
	for _, field := range fields {
		record[field.Name] = ""
		keys := append([]string{field.Name}, field.Aliases...)
		for _, key := range keys {
			if v := stringify(source[key]); v != "" {
				record[field.Name] = v
				break
			}
		}
	}
	return record
}

func stringify(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return ""
	}
}

func describeFailure(raw string) string {
	var root interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &root); err != nil {
		return err.Error()
	}
	switch root.(type) {
	case map[string]interface{}:
		return "top-level object does not contain an array"
	default:
		return fmt.Sprintf("response root is neither array nor object (%T)", root)
	}
}

func preview(raw string) string {
	if len(raw) <= rawSampleMaxSize {
		return raw
	}
	cut := rawSampleMaxSize
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return raw[:cut]
}
