package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeProxy(t *testing.T) (string, *atomic.Int32, *atomic.Int32) {
	var starts, messages atomic.Int32

	rows := make([]string, 25)
	for i := range rows {
		rows[i] = fmt.Sprintf(`{"season": "%d", "wins": %d}`, 2000+i, i+1)
	}
	body := `{"response": "Here you go", "query": "SELECT season, wins FROM t", "results": [` + strings.Join(rows, ",") + `], "attachments": null}`

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/genie-start", func(w http.ResponseWriter, r *http.Request) {
			starts.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"conversationId": "conv-1", "message": "Conversation started successfully"}`))
		})
		r.Post("/genie-message", func(w http.ResponseWriter, r *http.Request) {
			messages.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		})
		r.Get("/genie-history/{conversation_id}", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[]`))
		})
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server.URL + "/api", &starts, &messages
}

func TestRunChat(t *testing.T) {
	url, starts, messages := newFakeProxy(t)

	in := strings.NewReader("How many wins?\n\n:next\n:chart\n:history\n:quit\nignored\n")
	var out bytes.Buffer

	err := runChat(context.Background(), in, &out, Config{ProxyURL: url, Timeout: 5 * time.Second, HistoryLimit: 10})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "You: How many wins?")
	assert.Contains(t, text, "Genie: Here you go")
	assert.Contains(t, text, "SQL: SELECT season, wins FROM t")
	assert.Contains(t, text, "Page 1 of 2 (25 total rows)")
	assert.Contains(t, text, "Page 2 of 2 (25 total rows)")
	assert.Contains(t, text, "line chart: wins by season")
	assert.Contains(t, text, "No recorded history")
	assert.NotContains(t, text, "You: ignored")

	assert.Equal(t, int32(1), starts.Load())
	assert.Equal(t, int32(1), messages.Load())
}

func TestRunChatUnreachableProxy(t *testing.T) {
	in := strings.NewReader(":history\nhello\n")
	var out bytes.Buffer

	err := runChat(context.Background(), in, &out, Config{ProxyURL: "http://127.0.0.1:1/api", Timeout: time.Second})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Error: ")
	assert.Contains(t, text, "No conversation yet")
	assert.Contains(t, text, "You: hello")
}
