// Package schema decodes questionnaire documents and routes schema sources to loaders.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"negopro-questionnaire/internal/domain"
)

// Format is the encoding of a schema document.
type Format int

const (
	FormatAuto Format = iota
	FormatJSON
	FormatYAML
)

// FormatFor guesses the format from a file name or URL path and a content type.
func FormatFor(name, contentType string) Format {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "yaml"):
		return FormatYAML
	case strings.Contains(ct, "json"):
		return FormatJSON
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	return FormatAuto
}

// Parse decodes and structurally validates a schema document. Validation is
// shallow: phases must be a non-empty array and every phase must carry a
// questions array. Answer types are not checked here.
func Parse(data []byte, format Format) (domain.Schema, error) {
	if format == FormatAuto {
		format = FormatJSON
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] != '{' {
			format = FormatYAML
		}
	}
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return domain.Schema{}, &domain.SchemaError{Reason: "document is not valid YAML", Err: err}
		}
		data = converted
	}

	var shape struct {
		Phases json.RawMessage `json:"phases"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return domain.Schema{}, &domain.SchemaError{Reason: "document is not a JSON object", Err: err}
	}
	var phases []map[string]json.RawMessage
	if !isArray(shape.Phases) {
		return domain.Schema{}, &domain.SchemaError{Reason: "phases must be an array"}
	}
	if err := json.Unmarshal(shape.Phases, &phases); err != nil {
		return domain.Schema{}, &domain.SchemaError{Reason: "phases must hold objects", Err: err}
	}
	if len(phases) == 0 {
		return domain.Schema{}, &domain.SchemaError{Reason: "phases is empty"}
	}
	for i, phase := range phases {
		if !isArray(phase["questions"]) {
			return domain.Schema{}, &domain.SchemaError{Reason: fmt.Sprintf("phase %d: questions must be an array", i)}
		}
	}

	var s domain.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Schema{}, &domain.SchemaError{Reason: "malformed schema", Err: err}
	}
	return s, nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
