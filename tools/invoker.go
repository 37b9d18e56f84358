package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Reverse-Call-Center/voice-playbook/metrics"
	"github.com/Reverse-Call-Center/voice-playbook/types"
)

const (
	maxResponseBytes  = 1 << 20
	defaultMaxRetries = 2
	defaultRetryDelay = 250 * time.Millisecond
)

// Invoker dispatches HTTP tool calls requested by the dialogue handler.
// Dispatch is fire-and-forget: the result re-enters the session as a
// synthetic ToolResult event, success or failure, so the event loop is never
// blocked on an external service.
type Invoker struct {
	client     *http.Client
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
}

func NewInvoker(logger *slog.Logger) *Invoker {
	return &Invoker{
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
}

// WithClient swaps the HTTP client, mainly for tests.
func (i *Invoker) WithClient(c *http.Client) *Invoker {
	i.client = c
	return i
}

func (i *Invoker) Dispatch(ctx context.Context, req types.ToolRequest, sink func(types.SessionEvent)) {
	go func() {
		payload, err := i.call(ctx, req)
		if err != nil {
			i.logger.Warn("tool call failed", "tool", req.Name, "url", req.URL, "error", err)
			metrics.ToolCallsTotal.WithLabelValues("error").Inc()
			sink(types.ToolResult(req.Name, "", err.Error()))
			return
		}
		metrics.ToolCallsTotal.WithLabelValues("ok").Inc()
		sink(types.ToolResult(req.Name, payload, ""))
	}()
}

func (i *Invoker) call(ctx context.Context, req types.ToolRequest) (string, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	delay := i.retryDelay
	var lastErr error
	for attempt := 0; attempt <= i.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		payload, retryable, err := i.once(ctx, method, req)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return "", lastErr
}

func (i *Invoker) once(ctx context.Context, method string, req types.ToolRequest) (string, bool, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	if req.Body != "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := i.client.Do(httpReq)
	if err != nil {
		return "", true, fmt.Errorf("tool %s: %w", req.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", true, fmt.Errorf("tool %s: read response: %w", req.Name, err)
	}

	if resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("tool %s: status %d: %s", req.Name, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if resp.StatusCode >= 400 {
		return "", false, fmt.Errorf("tool %s: status %d: %s", req.Name, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return string(data), false, nil
}
