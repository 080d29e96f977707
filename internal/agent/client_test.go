package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStubClientThinkEchoesIntentAndBacklog(t *testing.T) {
	prompt := "# Phase: THINK\nIntent: Tidy the inbox\nBacklog: 4\nPersona: TelosOps\nStep: 1\nHistory:\n(none)\nRespond with JSON containing thought, action, observation."

	raw, err := StubClient{}.Complete(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("stub THINK response is not JSON: %v", err)
	}
	if payload["thought"] != "Focus on intent 'Tidy the inbox' using available context" {
		t.Errorf("thought = %q", payload["thought"])
	}
	if payload["action"] != "summarize_intent" {
		t.Errorf("action = %q", payload["action"])
	}
	if payload["observation"] != "Remaining backlog count: 4" {
		t.Errorf("observation = %q", payload["observation"])
	}
}

func TestStubClientFinalUsesPersona(t *testing.T) {
	prompt := "# Phase: FINAL\nIntent: Tidy the inbox\nPersona: TelosOps\nHistory:\n(none)\nRespond with JSON containing final_answer."

	raw, err := StubClient{}.Complete(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("stub FINAL response is not JSON: %v", err)
	}
	if payload["final_answer"] != "TelosOps completed the plan for 'Tidy the inbox'" {
		t.Errorf("final_answer = %q", payload["final_answer"])
	}
}

func TestStubClientRejectsUnknownPhase(t *testing.T) {
	if _, err := (StubClient{}).Complete(context.Background(), "# Phase: DREAM"); err == nil {
		t.Fatal("Complete() expected error for unknown phase")
	}
}

func TestExtractValue(t *testing.T) {
	prompt := "# Phase: THINK\nIntent: Do the thing\nBacklog: 2"
	if got := extractValue(prompt, "Intent:"); got != "Do the thing" {
		t.Errorf("extractValue(Intent:) = %q", got)
	}
	if got := extractValue(prompt, "Missing:"); got != "" {
		t.Errorf("extractValue(Missing:) = %q, want empty", got)
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	var gotAuth, gotOrg string
	var gotReq openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotOrg = r.Header.Get("OpenAI-Organization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"final_answer\":\"ok\"}"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		Model:        "gpt-4o-mini",
		Organization: "org-test",
	})

	got, err := client.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != `{"final_answer":"ok"}` {
		t.Errorf("Complete() = %q", got)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotOrg != "org-test" {
		t.Errorf("OpenAI-Organization = %q", gotOrg)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("request model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[1].Content != "hello" {
		t.Errorf("request messages = %+v", gotReq.Messages)
	}
}

func TestOpenAIClientSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4o-mini"})

	_, err := client.Complete(context.Background(), "hello")
	if err == nil {
		t.Fatal("Complete() expected error for non-200 status")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error = %v, want status code in message", err)
	}
}

func TestNewOpenAIClientFromEnvMissingKey(t *testing.T) {
	t.Setenv("TELOS_TEST_OPENAI_KEY", "")
	if _, err := NewOpenAIClientFromEnv("TELOS_TEST_OPENAI_KEY", "gpt-4o-mini", "", ""); err == nil {
		t.Fatal("NewOpenAIClientFromEnv() expected error for empty key")
	}
}
