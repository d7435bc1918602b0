package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	backend "genie-backend/internal/api"
	"genie-backend/internal/config"
	"genie-backend/internal/database"
	"genie-backend/internal/genie"
	"genie-backend/internal/messaging"
	"genie-backend/internal/storage"
	"genie-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type upstreamReply struct {
	status int
	body   string
}

type fakeGenie struct {
	server *httptest.Server
	calls  atomic.Int32

	mu       sync.Mutex
	replies  map[string]upstreamReply
	contents []string
}

func newFakeGenie(t *testing.T) *fakeGenie {
	f := &fakeGenie{replies: map[string]upstreamReply{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)

		var body struct {
			Content string `json:"content"`
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)

		f.mu.Lock()
		f.contents = append(f.contents, body.Content)
		reply, ok := f.replies[r.URL.Path]
		f.mu.Unlock()

		if !ok {
			reply = upstreamReply{status: http.StatusNotFound, body: `{"error_code": "NOT_FOUND"}`}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(reply.status)
		_, _ = w.Write([]byte(reply.body))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGenie) reply(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[path] = upstreamReply{status: status, body: body}
}

func (f *fakeGenie) lastContent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.contents) == 0 {
		return ""
	}
	return f.contents[len(f.contents)-1]
}

const (
	startPath    = "/api/2.0/genie/spaces/space-1/start-conversation"
	messagesPath = "/api/2.0/genie/spaces/space-1/conversations/conv-1/messages"
)

type testEnv struct {
	service  *backend.GenieService
	router   chi.Router
	upstream *fakeGenie
	db       *gorm.DB
	queue    *messaging.InMemoryQueue
}

func setup(t *testing.T, mutate ...func(*config.GenieConfig)) *testEnv {
	queue := messaging.NewInMemoryQueue()
	t.Cleanup(queue.Close)

	env := setupWithPublisher(t, queue, mutate...)
	env.queue = queue
	return env
}

func setupWithPublisher(t *testing.T, publisher messaging.Publisher, mutate ...func(*config.GenieConfig)) *testEnv {
	upstream := newFakeGenie(t)
	cfg := config.GenieConfig{
		Host:    upstream.server.URL,
		Token:   "secret-token",
		SpaceID: "space-1",
		Timeout: 5 * time.Second,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)

	service := backend.NewGenieService(genie.NewClient(cfg), db, publisher)
	t.Cleanup(service.Wait)
	router := chi.NewRouter()
	service.AddRoutes(router)

	return &testEnv{service: service, router: router, upstream: upstream, db: db}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// doWithin fails the test if the request does not complete within d.
func (e *testEnv) doWithin(t *testing.T, d time.Duration, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- e.do(method, path, body) }()

	select {
	case rec := <-done:
		return rec
	case <-time.After(d):
		require.FailNow(t, "request did not complete", "%s %s", method, path)
		return nil
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var res api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return res.Error
}

func TestHealth(t *testing.T) {
	env := setup(t)
	rec := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestStartConversation(t *testing.T) {
	env := setup(t)
	env.upstream.reply(startPath, http.StatusOK, `{"conversation_id": "conv-1"}`)

	rec := env.do(http.MethodPost, "/genie-start", `{"initialMessage": "Who won in 2021?"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res api.StartConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, api.StartConversationResponse{ConversationId: "conv-1", Message: "Conversation started successfully"}, res)
	assert.Equal(t, "Who won in 2021?", env.upstream.lastContent())
}

func TestStartConversationDefaultSeed(t *testing.T) {
	env := setup(t)
	env.upstream.reply(startPath, http.StatusOK, `{"id": "conv-1"}`)

	for _, body := range []string{"", `{}`, `{"initialMessage": ""}`, `not json`} {
		rec := env.do(http.MethodPost, "/genie-start", body)
		assert.Equal(t, http.StatusOK, rec.Code, body)
		assert.Equal(t, "Hello", env.upstream.lastContent(), body)
	}
}

func TestStartConversationUpstreamError(t *testing.T) {
	env := setup(t)
	env.upstream.reply(startPath, http.StatusForbidden, `{"message": "token sk-secret is invalid"}`)

	rec := env.do(http.MethodPost, "/genie-start", `{}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Failed to start conversation: Forbidden", errorMessage(t, rec))
	assert.NotContains(t, rec.Body.String(), "sk-secret")
}

func TestStartConversationWithoutId(t *testing.T) {
	env := setup(t)
	env.upstream.reply(startPath, http.StatusOK, `{"status": "ok"}`)

	rec := env.do(http.MethodPost, "/genie-start", `{}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to initialize chat. Please try again.", errorMessage(t, rec))
}

func TestMissingConfigurationMakesNoUpstreamCalls(t *testing.T) {
	env := setup(t, func(cfg *config.GenieConfig) { cfg.Token = "" })

	rec := env.do(http.MethodPost, "/genie-start", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server configuration error: Missing Databricks credentials", errorMessage(t, rec))

	rec = env.do(http.MethodPost, "/genie-message", `{"conversationId": "conv-1", "message": "hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Server configuration error: Missing Databricks credentials", errorMessage(t, rec))

	assert.Equal(t, int32(0), env.upstream.calls.Load())
}

func TestSendMessage(t *testing.T) {
	env := setup(t)
	env.upstream.reply(messagesPath, http.StatusOK, `{
		"content": "Verstappen won 19 races.",
		"sql": "SELECT driver, wins FROM standings",
		"result": [{"driver": "Verstappen", "wins": 19}]
	}`)

	rec := env.do(http.MethodPost, "/genie-message", `{"conversationId": "conv-1", "message": "Who won the most?"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{
		"response": "Verstappen won 19 races.",
		"query": "SELECT driver, wins FROM standings",
		"results": [{"driver": "Verstappen", "wins": 19}],
		"attachments": null
	}`, rec.Body.String())
	assert.Equal(t, "Who won the most?", env.upstream.lastContent())
}

func TestSendMessageFallbackResponse(t *testing.T) {
	env := setup(t)
	env.upstream.reply(messagesPath, http.StatusOK, `{}`)

	rec := env.do(http.MethodPost, "/genie-message", `{"conversationId": "conv-1", "message": "hi"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response": "Response received", "query": null, "results": null, "attachments": null}`, rec.Body.String())
}

func TestSendMessageIncludeRaw(t *testing.T) {
	env := setup(t, func(cfg *config.GenieConfig) { cfg.IncludeRaw = true })
	env.upstream.reply(messagesPath, http.StatusOK, `{"content": "ok", "status": "COMPLETED"}`)

	rec := env.do(http.MethodPost, "/genie-message", `{"conversationId": "conv-1", "message": "hi"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var res api.SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.JSONEq(t, `{"content": "ok", "status": "COMPLETED"}`, string(res.RawData))
}

func TestSendMessageValidation(t *testing.T) {
	env := setup(t)

	for _, body := range []string{
		``,
		`{}`,
		`not json`,
		`{"conversationId": "conv-1"}`,
		`{"message": "hi"}`,
		`{"conversationId": "  ", "message": "hi"}`,
		`{"conversationId": "conv-1", "message": "   "}`,
	} {
		rec := env.do(http.MethodPost, "/genie-message", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Missing required fields: conversationId and message", errorMessage(t, rec), body)
	}

	assert.Equal(t, int32(0), env.upstream.calls.Load())
}

func TestSendMessageValidationPrecedesConfiguration(t *testing.T) {
	env := setup(t, func(cfg *config.GenieConfig) { cfg.SpaceID = "" })

	rec := env.do(http.MethodPost, "/genie-message", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageUpstreamErrors(t *testing.T) {
	cases := []struct {
		status  int
		message string
	}{
		{http.StatusNotFound, "Conversation expired. Please refresh the page to start a new chat."},
		{http.StatusTooManyRequests, "Too many requests. Please wait a moment and try again."},
		{http.StatusInternalServerError, "Failed to process your question. Please try again."},
		{http.StatusBadRequest, "Failed to process your question. Please try again."},
	}

	for _, tc := range cases {
		env := setup(t)
		env.upstream.reply(messagesPath, tc.status, `{"message": "upstream detail"}`)

		rec := env.do(http.MethodPost, "/genie-message", `{"conversationId": "conv-1", "message": "hi"}`)

		assert.Equal(t, tc.status, rec.Code)
		assert.Equal(t, tc.message, errorMessage(t, rec))
	}
}

func TestSendMessageInvalidUpstreamBody(t *testing.T) {
	env := setup(t)
	env.upstream.reply(messagesPath, http.StatusOK, `<html>gateway</html>`)

	rec := env.do(http.MethodPost, "/genie-message", `{"conversationId": "conv-1", "message": "hi"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "An error occurred while processing your question. Please try again.", errorMessage(t, rec))
}

func TestHistory(t *testing.T) {
	env := setup(t)
	env.upstream.reply(startPath, http.StatusOK, `{"conversation_id": "conv-1"}`)
	env.upstream.reply(messagesPath, http.StatusOK, `{"content": "Hamilton", "query": "SELECT 1", "results": [{"driver": "Hamilton"}]}`)

	recorder := messaging.NewRecorder(env.db, env.queue)
	recorder.Start(context.Background(), 1)
	defer recorder.Stop()

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/genie-start", `{"initialMessage": "Hi"}`).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/genie-message", `{"conversationId": "conv-1", "message": "Who?"}`).Code)

	var items []api.HistoryItem
	require.Eventually(t, func() bool {
		rec := env.do(http.MethodGet, "/genie-history/conv-1", "")
		if rec.Code != http.StatusOK {
			return false
		}
		items = nil
		return json.Unmarshal(rec.Body.Bytes(), &items) == nil && len(items) == 2
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "start", items[0].Kind)
	assert.Equal(t, "Hi", items[0].Message)
	assert.Equal(t, "message", items[1].Kind)
	assert.Equal(t, "Hamilton", items[1].Response)
	require.NotNil(t, items[1].Query)
	assert.Equal(t, "SELECT 1", *items[1].Query)
	assert.JSONEq(t, `[{"driver": "Hamilton"}]`, string(items[1].Results))
	assert.Equal(t, http.StatusOK, items[1].StatusCode)

	rec := env.do(http.MethodGet, "/genie-history/conv-1?limit=1&offset=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "message", items[0].Kind)
}

func TestHistoryRecordsFailures(t *testing.T) {
	env := setup(t)
	env.upstream.reply(messagesPath, http.StatusTooManyRequests, `{}`)

	recorder := messaging.NewRecorder(env.db, env.queue)
	recorder.Start(context.Background(), 1)
	defer recorder.Stop()

	env.do(http.MethodPost, "/genie-message", `{"conversationId": "conv-1", "message": "hi"}`)

	require.Eventually(t, func() bool {
		exchanges, err := database.ListExchanges(context.Background(), env.db, "conv-1", 10, 0)
		return err == nil && len(exchanges) == 1 && exchanges[0].StatusCode == http.StatusTooManyRequests
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHistoryEmptyAndBadParams(t *testing.T) {
	env := setup(t)

	rec := env.do(http.MethodGet, "/genie-history/unknown", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	for _, query := range []string{"limit=abc", "limit=-1", "offset=-5"} {
		rec := env.do(http.MethodGet, "/genie-history/conv-1?"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestUpstreamArchive(t *testing.T) {
	env := setup(t)
	env.upstream.reply(messagesPath, http.StatusOK, `{"content": "Hamilton", "status": "COMPLETED"}`)

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	env.service.WithArchive(store)

	recorder := messaging.NewRecorder(env.db, env.queue).WithArchive(store)
	recorder.Start(context.Background(), 1)
	defer recorder.Stop()

	rec := env.do(http.MethodPost, "/genie-message", `{"conversationId": "conv-1", "message": "Who?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "COMPLETED")

	var items []api.HistoryItem
	require.Eventually(t, func() bool {
		rec := env.do(http.MethodGet, "/genie-history/conv-1", "")
		items = nil
		return json.Unmarshal(rec.Body.Bytes(), &items) == nil && len(items) == 1 && items[0].Archived
	}, 5*time.Second, 20*time.Millisecond)

	rec = env.do(http.MethodGet, "/genie-history/conv-1/"+items[0].Id+"/upstream", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"content": "Hamilton", "status": "COMPLETED"}`, rec.Body.String())

	rec = env.do(http.MethodGet, "/genie-history/conv-2/"+items[0].Id+"/upstream", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/genie-history/conv-1/"+uuid.NewString()+"/upstream", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/genie-history/conv-1/not-a-uuid/upstream", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpstreamArchiveDisabled(t *testing.T) {
	env := setup(t)

	rec := env.do(http.MethodGet, "/genie-history/conv-1/"+uuid.NewString()+"/upstream", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "upstream archive is not enabled", errorMessage(t, rec))
}

type failingPublisher struct {
	calls atomic.Int32
}

func (p *failingPublisher) PublishExchange(ctx context.Context, payload messaging.ExchangePayload) error {
	p.calls.Add(1)
	return errors.New("rabbitmq connection is unavailable")
}

func (p *failingPublisher) Close() {}

type blockingPublisher struct {
	calls   atomic.Int32
	release chan struct{}
}

func (p *blockingPublisher) PublishExchange(ctx context.Context, payload messaging.ExchangePayload) error {
	p.calls.Add(1)
	<-p.release
	return nil
}

func (p *blockingPublisher) Close() {}

func assertRepliesUnaffected(t *testing.T, env *testEnv) {
	env.upstream.reply(startPath, http.StatusOK, `{"conversation_id": "conv-1"}`)
	env.upstream.reply(messagesPath, http.StatusOK, `{"content": "Verstappen won 19 races."}`)

	rec := env.doWithin(t, 2*time.Second, http.MethodPost, "/genie-start", `{"initialMessage": "Hi"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"conversationId": "conv-1", "message": "Conversation started successfully"}`, rec.Body.String())

	rec = env.doWithin(t, 2*time.Second, http.MethodPost, "/genie-message", `{"conversationId": "conv-1", "message": "Who won?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"response": "Verstappen won 19 races.", "query": null, "results": null, "attachments": null}`, rec.Body.String())
}

func TestFailingPublisherDoesNotAffectReplies(t *testing.T) {
	publisher := &failingPublisher{}
	env := setupWithPublisher(t, publisher)

	assertRepliesUnaffected(t, env)

	assert.Eventually(t, func() bool { return publisher.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestBlockingPublisherDoesNotDelayReplies(t *testing.T) {
	publisher := &blockingPublisher{release: make(chan struct{})}
	env := setupWithPublisher(t, publisher)
	t.Cleanup(func() { close(publisher.release) })

	assertRepliesUnaffected(t, env)

	assert.Eventually(t, func() bool { return publisher.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}
