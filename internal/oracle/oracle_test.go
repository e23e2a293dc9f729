package oracle

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"lia/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ----------------------------------------------------------------------------
// Ollama
// ----------------------------------------------------------------------------

func TestOllamaComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Format != "json" {
			t.Errorf("format must be pinned to json, got %q", req.Format)
		}
		if req.Stream {
			t.Error("stream must be disabled")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaMsg{Role: "assistant", Content: `{"plan_name":"x","steps":[]}`},
			Done:    true,
		})
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{APIBase: srv.URL, Model: "test", Logger: testLogger()})
	out, err := o.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !strings.Contains(out, "plan_name") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestOllamaComplete_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMsg{Content: "ok"}, Done: true})
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{APIBase: srv.URL, Logger: testLogger()})
	out, err := o.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("complete after retry: %v", err)
	}
	if out != "ok" {
		t.Fatalf("unexpected output: %q", out)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 calls, got %d", n)
	}
}

func TestOllamaComplete_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{APIBase: srv.URL, Logger: testLogger()})
	if _, err := o.Complete(context.Background(), "sys", "user"); err == nil {
		t.Fatal("expected an error on 404")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", n)
	}
}

func TestOllamaHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.Write([]byte(`{"models":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{APIBase: srv.URL, Logger: testLogger()})
	if err := o.Healthy(context.Background()); err != nil {
		t.Fatalf("healthy: %v", err)
	}

	srv.Close()
	if err := o.Healthy(context.Background()); err == nil {
		t.Fatal("expected an error when the server is gone")
	}
}

// ----------------------------------------------------------------------------
// OpenAI
// ----------------------------------------------------------------------------

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req oaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Error("response_format must request a json_object")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "planned"}},
			},
		})
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIKey: "sk-test", APIBase: srv.URL, Logger: testLogger()})
	out, err := o.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "planned" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestOpenAIComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{APIBase: srv.URL, Logger: testLogger()})
	if _, err := o.Complete(context.Background(), "sys", "user"); err == nil {
		t.Fatal("expected an error on an empty choices list")
	}
}

// ----------------------------------------------------------------------------
// Embedder
// ----------------------------------------------------------------------------

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Prompt != "hello" {
			t.Errorf("unexpected prompt %q", req.Prompt)
		}
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	e := NewEmbedder(EmbedderConfig{APIBase: srv.URL, Logger: testLogger()})
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(vec))
	}
}

func TestEmbed_EmptyVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[]}`))
	}))
	defer srv.Close()

	e := NewEmbedder(EmbedderConfig{APIBase: srv.URL, Logger: testLogger()})
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected an error on an empty vector")
	}
}

// ----------------------------------------------------------------------------
// Factory
// ----------------------------------------------------------------------------

func TestNewPlanner(t *testing.T) {
	logger := testLogger()

	p, err := NewPlanner(config.OracleConfig{Provider: "ollama"}, logger)
	if err != nil || p.Name() != "ollama" {
		t.Fatalf("ollama provider: %v / %v", p, err)
	}
	p, err = NewPlanner(config.OracleConfig{Provider: ""}, logger)
	if err != nil || p.Name() != "ollama" {
		t.Fatalf("empty provider must default to ollama: %v / %v", p, err)
	}
	p, err = NewPlanner(config.OracleConfig{Provider: "openai", APIKey: "sk"}, logger)
	if err != nil || p.Name() != "openai" {
		t.Fatalf("openai provider: %v / %v", p, err)
	}
	if _, err = NewPlanner(config.OracleConfig{Provider: "claude"}, logger); err == nil {
		t.Fatal("unknown provider must fail")
	}
}

func TestNewEmbedderFromConfig_Disabled(t *testing.T) {
	if e := NewEmbedderFromConfig(config.EmbeddingConfig{Enabled: false}, testLogger()); e != nil {
		t.Fatal("disabled embedding must yield a nil embedder")
	}
	if e := NewEmbedderFromConfig(config.EmbeddingConfig{Enabled: true}, testLogger()); e == nil {
		t.Fatal("enabled embedding must yield an embedder")
	}
}
