package completion

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var schemaCache sync.Map // joined output list -> *jsonschema.Schema

// ResponseSchema compiles the JSON Schema a reply must satisfy for outputs:
// an object whose requested fields are strings, required unless Optional.
func ResponseSchema(outputs []string) (*jsonschema.Schema, error) {
	key := strings.Join(outputs, ",")
	if s, ok := schemaCache.Load(key); ok {
		return s.(*jsonschema.Schema), nil
	}

	props := make(map[string]any, len(outputs))
	required := make([]string, 0, len(outputs))
	for _, f := range outputs {
		name, optional := FieldName(f)
		props[name] = map[string]any{"type": "string"}
		if !optional {
			required = append(required, name)
		}
	}
	doc, err := json.Marshal(map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	})
	if err != nil {
		return nil, err
	}

	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(doc)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema JSON: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("response.json", parsed); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("response.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	schemaCache.Store(key, schema)
	return schema, nil
}

func validate(schema *jsonschema.Schema, raw string) error {
	// jsonschema.UnmarshalJSON keeps numbers as json.Number, which the validator expects.
	v, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return err
	}
	return schema.Validate(v)
}

// extractJSON finds the first JSON object in a model reply, looking inside
// ```json fences first.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end >= 0 {
			if candidate := strings.TrimSpace(text[start : start+end]); isJSON(candidate) {
				return candidate
			}
		}
	}
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if candidate := extractBalanced(text[i:]); candidate != "" && isJSON(candidate) {
			return candidate
		}
	}
	return ""
}

func isJSON(s string) bool {
	var v map[string]any
	return json.Unmarshal([]byte(s), &v) == nil
}

// extractBalanced returns the object starting at s[0], honoring strings and escapes.
func extractBalanced(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
