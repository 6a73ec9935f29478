package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/analyst/config"
)

// OpenAI is a Service backed by an OpenAI-compatible chat completions API.
// It owns its HTTP client; nothing here touches shared transport state.
type OpenAI struct {
	baseURL string
	apiKey  string
	model   config.LLMModel
	http    *httpClient
	logger  *log.Logger
}

// NewOpenAI creates a completion service for one configured model.
func NewOpenAI(p config.LLMProvider, model config.LLMModel, logger *log.Logger) *OpenAI {
	if logger == nil {
		logger = log.New(log.Writer(), "[COMPLETION] ", log.LstdFlags)
	}
	baseURL := strings.TrimRight(p.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAI{
		baseURL: baseURL,
		apiKey:  p.APIKey,
		model:   model,
		http:    newHTTPClient(p.Timeout, p.MaxRetries, 0),
		logger:  logger,
	}
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReq struct {
	Model          string            `json:"model"`
	Messages       []chatMsg         `json:"messages"`
	Temperature    float64           `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete implements Service.
func (o *OpenAI) Complete(ctx context.Context, inputs map[string]string, outputs []string) (map[string]string, error) {
	if o.apiKey == "" {
		return nil, &ServiceError{Op: "openai", Err: errors.New("API key not configured")}
	}
	apiModel := o.model.APIName
	if apiModel == "" {
		apiModel = o.model.Name
	}

	req := chatReq{
		Model: apiModel,
		Messages: []chatMsg{
			{Role: "system", Content: systemPrompt(InstructionsFrom(ctx), outputs)},
			{Role: "user", Content: userPrompt(inputs)},
		},
		Temperature:    o.model.Temperature,
		MaxTokens:      o.model.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	start := time.Now()
	var out chatResp
	err := o.http.doJSON(ctx, o.baseURL+"/chat/completions", map[string]string{"Authorization": "Bearer " + o.apiKey}, req, &out)
	if err != nil {
		var de *decodeError
		if errors.As(err, &de) {
			return nil, &MalformedResponseError{Err: err}
		}
		return nil, &ServiceError{Op: "openai", Err: err}
	}
	if len(out.Choices) == 0 {
		return nil, &MalformedResponseError{Err: errors.New("no choices")}
	}
	o.logger.Printf("model=%s in=%d out=%d took=%s", apiModel, out.Usage.PromptTokens, out.Usage.CompletionTokens, time.Since(start))
	return DecodeFields(out.Choices[0].Message.Content, outputs)
}

// DecodeFields extracts the JSON object from a model reply and returns the
// requested outputs as strings.
func DecodeFields(content string, outputs []string) (map[string]string, error) {
	raw := extractJSON(content)
	if raw == "" {
		return nil, &MalformedResponseError{Err: errors.New("no JSON object in reply")}
	}
	schema, err := ResponseSchema(outputs)
	if err != nil {
		return nil, err
	}

	var loose map[string]any
	if err := json.Unmarshal([]byte(raw), &loose); err != nil {
		return nil, &MalformedResponseError{Err: err}
	}
	result := make(map[string]string, len(outputs))
	for _, f := range outputs {
		name, _ := FieldName(f)
		if v, ok := loose[name]; ok && v != nil {
			result[name] = stringify(v)
		}
	}
	if err := validate(schema, raw); err != nil {
		if missing := CheckOutputs(result, outputs); missing != nil {
			return nil, missing
		}
		return nil, &MalformedResponseError{Err: err}
	}
	return result, nil
}

// stringify keeps strings as-is and renders anything else as compact JSON.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func systemPrompt(instructions string, outputs []string) string {
	var b strings.Builder
	if instructions != "" {
		b.WriteString(strings.TrimSpace(instructions))
		b.WriteString("\n\n")
	}
	b.WriteString("Respond ONLY with a JSON object with the following string fields:\n")
	for _, f := range outputs {
		name, optional := FieldName(f)
		if optional {
			fmt.Fprintf(&b, "- %s (optional)\n", name)
		} else {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}
	b.WriteString("Do not include any other text or explanation.")
	return b.String()
}

func userPrompt(inputs map[string]string) string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s:\n%s", strings.ToUpper(k), inputs[k])
	}
	return b.String()
}
