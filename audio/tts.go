package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSynthesizer bridges to an external text-to-speech service. The
// playbook's tts section is opaque to the engine; this implementation reads
// the keys it knows and ignores the rest:
//
//	url:    synthesis endpoint, POST {"text": ..., "voice": ...}
//	voice:  optional voice id passed through
//	token:  optional bearer token
type HTTPSynthesizer struct {
	url    string
	voice  string
	token  string
	client *http.Client
}

func NewHTTPSynthesizer(settings map[string]string) (*HTTPSynthesizer, error) {
	url := settings["url"]
	if url == "" {
		return nil, fmt.Errorf("tts settings missing url")
	}
	return &HTTPSynthesizer{
		url:    url,
		voice:  settings["voice"],
		token:  settings["token"],
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type synthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, string, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, Voice: s.voice})
	if err != nil {
		return nil, "", fmt.Errorf("marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("synthesis request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("synthesis error (status %d): %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	return resp.Body, mimeType, nil
}
