package upstream

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// extractionSchema is the canonical schema for analyze output. Output that
// fails validation is treated as a transient empty-response failure so the
// call is retried rather than merged.
const extractionSchema = `{
	"type": "object",
	"required": ["characters", "terms", "events"],
	"properties": {
		"characters": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"aliases": {"type": "array", "items": {"type": "string"}},
					"description": {"type": "string"},
					"role": {"type": "string"}
				}
			}
		},
		"terms": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["original"],
				"properties": {
					"original": {"type": "string", "minLength": 1},
					"translation": {"type": "string"},
					"category": {"type": "string"},
					"variants": {"type": "array", "items": {"type": "string"}},
					"notes": {"type": "string"}
				}
			}
		},
		"events": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["title", "start_seq"],
				"properties": {
					"title": {"type": "string", "minLength": 1},
					"start_seq": {"type": "integer", "minimum": 0},
					"summary": {"type": "string"},
					"characters": {"type": "array", "items": {"type": "string"}}
				}
			}
		},
		"notes": {"type": "string"}
	}
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiledExtractionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("extraction.json", strings.NewReader(extractionSchema)); err != nil {
			schemaErr = fmt.Errorf("failed to load extraction schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("extraction.json")
	})
	return compiledSchema, schemaErr
}

// ParseExtraction parses and validates model output into an
// ExtractionResult. It tolerates markdown code fences around the JSON.
func ParseExtraction(content string) (*ExtractionResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty extraction output")
	}

	raw := stripCodeFences(content)

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("extraction output is not valid JSON: %w", err)
	}

	schema, err := compiledExtractionSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("extraction output does not match schema: %w", err)
	}

	var result ExtractionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to decode extraction output: %w", err)
	}
	return &result, nil
}

// stripCodeFences removes a surrounding markdown code fence, if present.
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
