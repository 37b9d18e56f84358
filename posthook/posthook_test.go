package posthook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reverse-Call-Center/voice-playbook/playbook"
	"github.com/Reverse-Call-Center/voice-playbook/types"
)

func sampleReport() types.CallReport {
	return types.CallReport{
		CallID:     "call-42",
		CallerID:   "13812345678",
		StartTime:  time.Now().Add(-time.Minute),
		EndTime:    time.Now(),
		FinalState: "hangup",
		Variables:  map[string]string{"user_phone": "13812345678"},
		Transcript: []types.TranscriptEntry{
			{Role: "agent", Text: "Hello.", Time: time.Now()},
		},
	}
}

func TestNotifyPostsReport(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &playbook.PosthookConfig{
		URL:            srv.URL,
		Summary:        "Call from {{ user_phone }} ended.",
		IncludeHistory: true,
	}
	n := NewNotifier(cfg, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Notify(context.Background(), sampleReport()))
	assert.Equal(t, "call-42", got.CallID)
	assert.Equal(t, "Call from 13812345678 ended.", got.Summary)
	require.Len(t, got.Transcript, 1)
}

func TestNotifyStripsTranscriptWhenDisabled(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	cfg := &playbook.PosthookConfig{URL: srv.URL}
	n := NewNotifier(cfg, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Notify(context.Background(), sampleReport()))
	assert.Empty(t, got.Transcript)
}

func TestNotifyRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(&playbook.PosthookConfig{URL: srv.URL}, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Notify(context.Background(), sampleReport()))
	assert.Equal(t, 2, calls)
}

func TestNotifyNoopWithoutURL(t *testing.T) {
	n := NewNotifier(nil, slog.New(slog.DiscardHandler))
	assert.NoError(t, n.Notify(context.Background(), sampleReport()))
}
