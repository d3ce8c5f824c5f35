// Package llm provides chat-completion clients for the providers the
// agent can run against.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client is the completion interface the agent depends on.
type Client interface {
	Complete(ctx context.Context, prompt string, systemPrompt string) (string, error)
}

// Config describes a provider endpoint and model.
type Config struct {
	Provider    string // "openai", "anthropic", "ollama", "deepseek", "openrouter"
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	RetryPolicy RetryPolicy
}

// RetryPolicy controls retries on transient failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

var DefaultOpenAIConfig = Config{
	Provider:    "openai",
	Model:       "gpt-4o-mini",
	BaseURL:     "https://api.openai.com/v1",
	MaxTokens:   4096,
	Temperature: 0.7,
	Timeout:     60 * time.Second,
}

var DefaultAnthropicConfig = Config{
	Provider:    "anthropic",
	Model:       "claude-sonnet-4-20250514",
	BaseURL:     "https://api.anthropic.com/v1",
	MaxTokens:   4096,
	Temperature: 0.7,
	Timeout:     60 * time.Second,
}

var DefaultOllamaConfig = Config{
	Provider:    "ollama",
	Model:       "llama3.2",
	BaseURL:     "http://localhost:11434",
	MaxTokens:   4096,
	Temperature: 0.7,
	Timeout:     120 * time.Second,
}

var DefaultOpenRouterConfig = Config{
	Provider:    "openrouter",
	Model:       "gemini-2.5-flash-lite",
	BaseURL:     "https://openrouter.ai/api/v1",
	MaxTokens:   4096,
	Temperature: 0.7,
	Timeout:     60 * time.Second,
}

// DefaultConfig returns a known provider preset, or OpenAI's when the
// provider is unrecognized.
func DefaultConfig(provider string) Config {
	switch provider {
	case "anthropic":
		return DefaultAnthropicConfig
	case "ollama":
		return DefaultOllamaConfig
	case "openrouter":
		return DefaultOpenRouterConfig
	default:
		return DefaultOpenAIConfig
	}
}

// HTTPClient is an HTTP-backed Client for the supported providers.
type HTTPClient struct {
	config Config
	client *http.Client
}

// NewClient creates a client for the configured provider.
func NewClient(config Config) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second, // LLMs can be slow
	}

	return &HTTPClient{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
	}
}

// Complete sends a single-turn completion and returns the text content.
func (c *HTTPClient) Complete(ctx context.Context, prompt string, systemPrompt string) (string, error) {
	var content string
	var err error

	maxRetries := c.config.RetryPolicy.MaxRetries
	if maxRetries == 0 {
		maxRetries = 1
	}

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			time.Sleep(c.config.RetryPolicy.Backoff * time.Duration(i))
		}

		switch c.config.Provider {
		case "anthropic":
			content, err = c.callAnthropic(ctx, prompt, systemPrompt)
		case "ollama":
			content, err = c.callOllama(ctx, prompt, systemPrompt)
		case "openai", "openrouter", "deepseek":
			// OpenRouter and DeepSeek are OpenAI-compatible
			content, err = c.callOpenAI(ctx, prompt, systemPrompt)
		default:
			return "", fmt.Errorf("unknown provider: %s", c.config.Provider)
		}

		if err == nil {
			return content, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
	}

	return "", err
}

func (c *HTTPClient) callOpenAI(ctx context.Context, prompt, systemPrompt string) (string, error) {
	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	openaiReq := map[string]any{
		"model":    c.config.Model,
		"messages": messages,
	}

	// Reasoning models take max_completion_tokens and fixed temperature.
	isReasoningModel := strings.HasPrefix(c.config.Model, "gpt-5") ||
		strings.HasPrefix(c.config.Model, "o1") || strings.HasPrefix(c.config.Model, "o3")
	if isReasoningModel {
		openaiReq["max_completion_tokens"] = c.config.MaxTokens
	} else {
		openaiReq["max_tokens"] = c.config.MaxTokens
		openaiReq["temperature"] = c.config.Temperature
	}

	body, _ := json.Marshal(openaiReq)

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	if c.config.Provider == "openrouter" {
		httpReq.Header.Set("HTTP-Referer", "https://github.com/phenomenon0/overtime-agents")
		httpReq.Header.Set("X-Title", "Overtime Betting Agent")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("OpenAI API error %d: %s", resp.StatusCode, string(body))
	}

	var openaiResp struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				Reasoning string `json:"reasoning"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return "", err
	}

	if len(openaiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	// Some models (like GLM) put output in "reasoning" instead of "content".
	content := openaiResp.Choices[0].Message.Content
	if content == "" && openaiResp.Choices[0].Message.Reasoning != "" {
		content = openaiResp.Choices[0].Message.Reasoning
	}

	return content, nil
}

func (c *HTTPClient) callAnthropic(ctx context.Context, prompt, systemPrompt string) (string, error) {
	anthropicReq := map[string]any{
		"model":      c.config.Model,
		"max_tokens": c.config.MaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	if systemPrompt != "" {
		anthropicReq["system"] = systemPrompt
	}

	body, _ := json.Marshal(anthropicReq)

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		c.config.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Anthropic API error %d: %s", resp.StatusCode, string(body))
	}

	var anthropicResp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&anthropicResp); err != nil {
		return "", err
	}

	content := ""
	for _, part := range anthropicResp.Content {
		if part.Type == "text" {
			content += part.Text
		}
	}

	return content, nil
}

func (c *HTTPClient) callOllama(ctx context.Context, prompt, systemPrompt string) (string, error) {
	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	ollamaReq := map[string]any{
		"model":    c.config.Model,
		"messages": messages,
		"stream":   false,
		"options": map[string]any{
			"temperature": c.config.Temperature,
			"num_predict": c.config.MaxTokens,
		},
	}

	body, _ := json.Marshal(ollamaReq)

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		c.config.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Ollama API error %d: %s", resp.StatusCode, string(body))
	}

	var ollamaResp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", err
	}

	return ollamaResp.Message.Content, nil
}
