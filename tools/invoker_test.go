package tools

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Reverse-Call-Center/voice-playbook/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitResult(t *testing.T, ch chan types.SessionEvent) types.SessionEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no tool result delivered")
		return types.SessionEvent{}
	}
}

func TestDispatchDeliversResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"order":"42"}`, string(body))
		io.WriteString(w, `{"status":"shipped"}`)
	}))
	defer srv.Close()

	ch := make(chan types.SessionEvent, 1)
	inv := NewInvoker(discardLogger())
	inv.Dispatch(context.Background(), types.ToolRequest{
		Name:   "order_status",
		URL:    srv.URL,
		Method: "POST",
		Body:   `{"order":"42"}`,
	}, func(ev types.SessionEvent) { ch <- ev })

	ev := waitResult(t, ch)
	assert.Equal(t, types.EventToolResult, ev.Kind)
	assert.Equal(t, "order_status", ev.Tool)
	assert.Equal(t, `{"status":"shipped"}`, ev.Payload)
	assert.Empty(t, ev.Err)
}

func TestDispatchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	ch := make(chan types.SessionEvent, 1)
	inv := NewInvoker(discardLogger())
	inv.retryDelay = time.Millisecond
	inv.Dispatch(context.Background(), types.ToolRequest{Name: "flaky", URL: srv.URL}, func(ev types.SessionEvent) { ch <- ev })

	ev := waitResult(t, ch)
	assert.Empty(t, ev.Err)
	assert.Equal(t, "ok", ev.Payload)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDispatchReportsExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ch := make(chan types.SessionEvent, 1)
	inv := NewInvoker(discardLogger())
	inv.retryDelay = time.Millisecond
	inv.Dispatch(context.Background(), types.ToolRequest{Name: "down", URL: srv.URL}, func(ev types.SessionEvent) { ch <- ev })

	ev := waitResult(t, ch)
	assert.Empty(t, ev.Payload)
	assert.Contains(t, ev.Err, "status 500")
}

func TestDispatchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ch := make(chan types.SessionEvent, 1)
	inv := NewInvoker(discardLogger())
	inv.retryDelay = time.Millisecond
	inv.Dispatch(context.Background(), types.ToolRequest{Name: "missing", URL: srv.URL}, func(ev types.SessionEvent) { ch <- ev })

	ev := waitResult(t, ch)
	assert.Contains(t, ev.Err, "status 404")
	require.Equal(t, int32(1), calls.Load())
}
