package posthook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Reverse-Call-Center/voice-playbook/dialogue"
	"github.com/Reverse-Call-Center/voice-playbook/metrics"
	"github.com/Reverse-Call-Center/voice-playbook/playbook"
	"github.com/Reverse-Call-Center/voice-playbook/types"
)

const (
	maxRetries = 2
	retryDelay = 250 * time.Millisecond
)

// payload is the webhook body: the call report plus a rendered summary line.
type payload struct {
	types.CallReport
	Summary string `json:"summary,omitempty"`
}

// Notifier delivers end-of-call reports to the playbook's posthook URL.
type Notifier struct {
	cfg    *playbook.PosthookConfig
	client *http.Client
	logger *slog.Logger
}

func NewNotifier(cfg *playbook.PosthookConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (n *Notifier) WithClient(c *http.Client) *Notifier {
	n.client = c
	return n
}

// Notify posts the report. It blocks; callers run it after the call goroutine
// is already done.
func (n *Notifier) Notify(ctx context.Context, report types.CallReport) error {
	if n == nil || n.cfg == nil || n.cfg.URL == "" {
		return nil
	}

	p := payload{CallReport: report}
	if n.cfg.Summary != "" {
		p.Summary = dialogue.Render(n.cfg.Summary, report.Variables)
	}
	if !n.cfg.IncludeHistory {
		p.Transcript = nil
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	delay := retryDelay
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if lastErr = n.post(ctx, body); lastErr == nil {
			metrics.PosthooksTotal.WithLabelValues("ok").Inc()
			return nil
		}
		n.logger.Warn("posthook delivery failed", "call_id", report.CallID, "attempt", attempt+1, "error", lastErr)
	}
	metrics.PosthooksTotal.WithLabelValues("error").Inc()
	return lastErr
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("posthook returned status %d", resp.StatusCode)
	}
	return nil
}
