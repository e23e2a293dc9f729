// Package oracle provides the planning backends. A planner turns a
// natural-language query into a JSON execution plan; providers are
// interchangeable behind domain.Planner.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	ollamaDefaultBase  = "http://localhost:11434"
	ollamaDefaultModel = "llama3.1:8b"
	ollamaMaxRetries   = 3
)

// Ollama implements domain.Planner against a local or remote Ollama server.
type Ollama struct {
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type OllamaConfig struct {
	APIBase string
	Model   string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.APIBase == "" {
		cfg.APIBase = ollamaDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = ollamaDefaultModel
	}
	if cfg.Client == nil {
		cfg.Client = sharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ollama{
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.apiBase+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}

// ollamaChatRequest matches the Ollama /api/chat request body. Format is
// pinned to "json" so the model returns a machine-parseable plan.
type ollamaChatRequest struct {
	Model    string      `json:"model"`
	Messages []ollamaMsg `json:"messages"`
	Stream   bool        `json:"stream"`
	Format   string      `json:"format,omitempty"`
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMsg `json:"message"`
	Done    bool      `json:"done"`
}

// Complete sends one system+user exchange and returns the raw model output.
// Transient failures (connection refused, 5xx, decode errors) are retried
// with quadratic backoff.
func (o *Ollama) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body := ollamaChatRequest{
		Model: o.model,
		Messages: []ollamaMsg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: false,
		Format: "json",
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var chatResp ollamaChatResponse
	for attempt := 0; attempt <= ollamaMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			o.logger.Warn("retrying ollama request", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/api/chat", bytes.NewReader(jsonBody))
		if err != nil {
			return "", fmt.Errorf("new request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(httpReq)
		if err != nil {
			if attempt < ollamaMaxRetries {
				o.logger.Warn("ollama request failed, will retry", "err", err)
				continue
			}
			return "", fmt.Errorf("ollama request (after %d retries): %w", ollamaMaxRetries, err)
		}

		if resp.StatusCode >= 500 {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if attempt < ollamaMaxRetries {
				o.logger.Warn("ollama server error, will retry", "status", resp.StatusCode)
				continue
			}
			return "", fmt.Errorf("ollama returned %d (after %d retries): %s", resp.StatusCode, ollamaMaxRetries, string(respBody))
		}
		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(respBody))
		}

		err = json.NewDecoder(resp.Body).Decode(&chatResp)
		resp.Body.Close()
		if err != nil {
			if attempt < ollamaMaxRetries {
				o.logger.Warn("ollama decode error, will retry", "err", err)
				continue
			}
			return "", fmt.Errorf("decode response (after %d retries): %w", ollamaMaxRetries, err)
		}
		break
	}

	return chatResp.Message.Content, nil
}
