package dialogue

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Reverse-Call-Center/voice-playbook/playbook"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider talks to any OpenAI-compatible chat completion endpoint.
// Model, base URL and key come from the playbook's llm section per call.
type OpenAIProvider struct {
	httpClient *http.Client
}

type OpenAIOption func(*OpenAIProvider)

func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.httpClient = c
	}
}

func NewOpenAIProvider(opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func completionsURL(cfg *playbook.LLMConfig) string {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/chat/completions"
}

func (p *OpenAIProvider) newRequest(ctx context.Context, cfg *playbook.LLMConfig, history []ChatMessage, stream bool) (*http.Request, error) {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	body, err := json.Marshal(chatRequest{Model: model, Messages: history, Stream: stream})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, completionsURL(cfg), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return req, nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, cfg *playbook.LLMConfig, history []ChatMessage) (string, error) {
	req, err := p.newRequest(ctx, cfg, history, false)
	if err != nil {
		return "", err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("inference response had no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, cfg *playbook.LLMConfig, history []ChatMessage) (<-chan StreamChunk, error) {
	req, err := p.newRequest(ctx, cfg, history, true)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("inference error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	out := make(chan StreamChunk)
	go p.streamReader(resp.Body, out)
	return out, nil
}

func (p *OpenAIProvider) streamReader(body io.ReadCloser, out chan<- StreamChunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			out <- StreamChunk{Err: fmt.Errorf("unmarshal chunk: %w", err)}
			return
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			out <- StreamChunk{Content: chunk.Choices[0].Delta.Content}
		}
	}

	if err := scanner.Err(); err != nil {
		out <- StreamChunk{Err: fmt.Errorf("stream read error: %w", err)}
	}
}
