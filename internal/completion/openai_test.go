package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/analyst/config"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func chatReply(content string) map[string]any {
	return map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
	}
}

func newTestOpenAI(url string, retries int) *OpenAI {
	o := NewOpenAI(config.LLMProvider{
		Type:       "openai",
		APIKey:     "sk-test",
		BaseURL:    url,
		MaxRetries: retries,
		Timeout:    5 * time.Second,
	}, config.LLMModel{Name: "gpt-test", Temperature: 0.1}, quietLogger())
	o.http.backoff = time.Millisecond
	return o
}

func TestOpenAICompleteSendsPromptAndDecodesFields(t *testing.T) {
	var got chatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(chatReply("Sure!\n```json\n{\"code\": \"print(1)\", \"commentary\": \"prints\"}\n```"))
	}))
	defer srv.Close()

	ctx := WithInstructions(context.Background(), "Write pandas code.")
	out, err := newTestOpenAI(srv.URL, 0).Complete(ctx,
		map[string]string{"goal": "count rows", "dataset": "a,b"},
		[]string{Optional("commentary"), "code"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out["code"] != "print(1)" || out["commentary"] != "prints" {
		t.Fatalf("unexpected outputs %v", out)
	}
	if got.Model != "gpt-test" || len(got.Messages) != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	sys := got.Messages[0].Content
	if !strings.HasPrefix(sys, "Write pandas code.") || !strings.Contains(sys, "- commentary (optional)") || !strings.Contains(sys, "- code\n") {
		t.Fatalf("unexpected system prompt %q", sys)
	}
	if got.Messages[1].Content != "DATASET:\na,b\n\nGOAL:\ncount rows" {
		t.Fatalf("unexpected user prompt %q", got.Messages[1].Content)
	}
}

func TestOpenAIMissingFieldIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatReply(`{"commentary": "no code today"}`))
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL, 0).Complete(context.Background(), nil, []string{Optional("commentary"), "code"})
	var me *MalformedResponseError
	if !errors.As(err, &me) || me.Field != "code" {
		t.Fatalf("expected MalformedResponseError for code, got %v", err)
	}
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(chatReply(`{"code": "x = 1"}`))
	}))
	defer srv.Close()

	out, err := newTestOpenAI(srv.URL, 2).Complete(context.Background(), nil, []string{"code"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out["code"] != "x = 1" || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("out=%v calls=%d", out, calls)
	}
}

func TestOpenAIAuthFailureIsServiceErrorWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL, 3).Complete(context.Background(), nil, []string{"code"})
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx must not be retried, calls=%d", calls)
	}
}

func TestOpenAIWithoutKey(t *testing.T) {
	o := NewOpenAI(config.LLMProvider{}, config.LLMModel{Name: "m"}, quietLogger())
	_, err := o.Complete(context.Background(), nil, []string{"code"})
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
}

func TestDecodeFields(t *testing.T) {
	cases := []struct {
		name    string
		content string
		outputs []string
		want    map[string]string
		field   string
		bad     bool
	}{
		{name: "plain object", content: `{"plan": "A -> B", "plan_desc": "why"}`, outputs: []string{"plan", "plan_desc"}, want: map[string]string{"plan": "A -> B", "plan_desc": "why"}},
		{name: "prose around object", content: `Here you go: {"code": "d = {\"k\": 1}"} done`, outputs: []string{"code"}, want: map[string]string{"code": `d = {"k": 1}`}},
		{name: "optional absent", content: `{"code": "c"}`, outputs: []string{Optional("commentary"), "code"}, want: map[string]string{"code": "c"}},
		{name: "required absent", content: `{"plan": "A"}`, outputs: []string{"plan", "plan_desc"}, field: "plan_desc", bad: true},
		{name: "wrong type", content: `{"code": 42}`, outputs: []string{"code"}, bad: true},
		{name: "no json", content: `I cannot help with that`, outputs: []string{"code"}, bad: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeFields(tc.content, tc.outputs)
			if tc.bad {
				var me *MalformedResponseError
				if !errors.As(err, &me) {
					t.Fatalf("expected MalformedResponseError, got %v", err)
				}
				if tc.field != "" && me.Field != tc.field {
					t.Fatalf("field = %q, want %q", me.Field, tc.field)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeFields: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Fatalf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
