package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"genie-backend/internal/database"
	"genie-backend/internal/genie"
	"genie-backend/internal/messaging"
	"genie-backend/internal/storage"
	"genie-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultSeedMessage = "Hello"
	startedMessage     = "Conversation started successfully"

	errMissingCredentials = "Server configuration error: Missing Databricks credentials"
	errStartFailed        = "Failed to initialize chat. Please try again."
	errMissingFields      = "Missing required fields: conversationId and message"
	errConversationGone   = "Conversation expired. Please refresh the page to start a new chat."
	errRateLimited        = "Too many requests. Please wait a moment and try again."
	errRelayRejected      = "Failed to process your question. Please try again."
	errRelayFailed        = "An error occurred while processing your question. Please try again."

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	maxPendingPublishes = 256
	publishTimeout      = 10 * time.Second
)

type GenieClient interface {
	StartConversation(ctx context.Context, content string) (string, error)
	SendMessage(ctx context.Context, conversationId, message string) (*api.SendMessageResponse, error)
}

type GenieService struct {
	client    GenieClient
	db        *gorm.DB
	publisher messaging.Publisher
	archive   storage.ObjectStore

	pending sync.WaitGroup
	slots   chan struct{}
}

// NewGenieService wires the proxy endpoints. publisher may be nil, in which
// case exchanges are not recorded.
func NewGenieService(client GenieClient, db *gorm.DB, publisher messaging.Publisher) *GenieService {
	return &GenieService{
		client:    client,
		db:        db,
		publisher: publisher,
		slots:     make(chan struct{}, maxPendingPublishes),
	}
}

// Wait blocks until every exchange handed to the publisher has been
// published or dropped. Call it after the server stops and before the
// publisher is closed.
func (s *GenieService) Wait() {
	s.pending.Wait()
}

// WithArchive serves archived upstream replies from store.
func (s *GenieService) WithArchive(store storage.ObjectStore) *GenieService {
	s.archive = store
	return s
}

func (s *GenieService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Post("/genie-start", RestHandler(s.StartConversation))
	r.Post("/genie-message", RestHandler(s.SendMessage))
	r.Get("/genie-history/{conversation_id}", RestHandler(s.GetHistory))
	r.Get("/genie-history/{conversation_id}/{exchange_id}/upstream", RestHandler(s.GetUpstream))
}

func (s *GenieService) StartConversation(r *http.Request) (any, error) {
	started := time.Now()
	req := ParseRequestLenient[api.StartConversationRequest](r)

	seed := req.InitialMessage
	if seed == "" {
		seed = defaultSeedMessage
	}

	id, err := s.client.StartConversation(r.Context(), seed)
	if err != nil {
		cerr := startError(err)
		s.record(r.Context(), exchangeOutcome(database.ExchangeStart, "", seed, started, cerr))
		return nil, cerr
	}

	slog.Info("started genie conversation", "conversation_id", id)

	outcome := exchangeOutcome(database.ExchangeStart, id, seed, started, nil)
	s.record(r.Context(), outcome)

	return api.StartConversationResponse{ConversationId: id, Message: startedMessage}, nil
}

func (s *GenieService) SendMessage(r *http.Request) (any, error) {
	started := time.Now()
	req := ParseRequestLenient[api.SendMessageRequest](r)

	if strings.TrimSpace(req.ConversationId) == "" || strings.TrimSpace(req.Message) == "" {
		return nil, CodedErrorf(http.StatusBadRequest, errMissingFields)
	}

	res, err := s.client.SendMessage(r.Context(), req.ConversationId, req.Message)
	if err != nil {
		cerr := relayError(req.ConversationId, err)
		s.record(r.Context(), exchangeOutcome(database.ExchangeMessage, req.ConversationId, req.Message, started, cerr))
		return nil, cerr
	}

	outcome := exchangeOutcome(database.ExchangeMessage, req.ConversationId, req.Message, started, nil)
	outcome.Response = res.Response
	outcome.Query = res.Query
	outcome.Results = res.Results
	outcome.Upstream = res.Upstream
	s.record(r.Context(), outcome)

	return res, nil
}

func (s *GenieService) GetHistory(r *http.Request) (any, error) {
	conversationId, err := URLParam(r, "conversation_id")
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[api.HistoryParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit < 0 || params.Offset < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "limit and offset must not be negative")
	}
	if params.Limit == 0 {
		params.Limit = defaultHistoryLimit
	}
	params.Limit = min(params.Limit, maxHistoryLimit)

	exchanges, err := database.ListExchanges(r.Context(), s.db, conversationId, params.Limit, params.Offset)
	if err != nil {
		slog.Error("error listing exchanges", "conversation_id", conversationId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving conversation history")
	}

	items := make([]api.HistoryItem, 0, len(exchanges))
	for _, ex := range exchanges {
		items = append(items, convertExchange(ex))
	}
	return items, nil
}

// GetUpstream returns the raw Genie reply archived for one exchange.
func (s *GenieService) GetUpstream(r *http.Request) (any, error) {
	if s.archive == nil {
		return nil, CodedErrorf(http.StatusNotFound, "upstream archive is not enabled")
	}

	conversationId, err := URLParam(r, "conversation_id")
	if err != nil {
		return nil, err
	}
	exchangeId, err := URLParamUUID(r, "exchange_id")
	if err != nil {
		return nil, err
	}

	exchange, err := database.GetExchange(r.Context(), s.db, conversationId, exchangeId)
	if err != nil {
		if errors.Is(err, database.ErrExchangeNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "exchange not found")
		}
		slog.Error("error getting exchange", "exchange_id", exchangeId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving exchange")
	}
	if exchange.UpstreamKey == "" {
		return nil, CodedErrorf(http.StatusNotFound, "no upstream reply archived for this exchange")
	}

	obj, err := s.archive.GetObject(r.Context(), exchange.UpstreamKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "no upstream reply archived for this exchange")
		}
		slog.Error("error reading archived upstream reply", "key", exchange.UpstreamKey, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving upstream reply")
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		slog.Error("error reading archived upstream reply", "key", exchange.UpstreamKey, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving upstream reply")
	}
	return json.RawMessage(data), nil
}

func startError(err error) error {
	var uerr *genie.UpstreamError
	switch {
	case errors.Is(err, genie.ErrNotConfigured):
		return CodedErrorf(http.StatusInternalServerError, errMissingCredentials)
	case errors.As(err, &uerr):
		return CodedErrorf(uerr.StatusCode, "Failed to start conversation: %s", uerr.StatusText())
	default:
		slog.Error("error starting genie conversation", "error", err)
		return CodedErrorf(http.StatusInternalServerError, errStartFailed)
	}
}

func relayError(conversationId string, err error) error {
	var uerr *genie.UpstreamError
	switch {
	case errors.Is(err, genie.ErrNotConfigured):
		return CodedErrorf(http.StatusInternalServerError, errMissingCredentials)
	case errors.As(err, &uerr):
		switch uerr.StatusCode {
		case http.StatusNotFound:
			return CodedErrorf(uerr.StatusCode, errConversationGone)
		case http.StatusTooManyRequests:
			return CodedErrorf(uerr.StatusCode, errRateLimited)
		default:
			return CodedErrorf(uerr.StatusCode, errRelayRejected)
		}
	default:
		slog.Error("error relaying message to genie", "conversation_id", conversationId, "error", err)
		return CodedErrorf(http.StatusInternalServerError, errRelayFailed)
	}
}

func exchangeOutcome(kind, conversationId, message string, started time.Time, err error) messaging.ExchangePayload {
	payload := messaging.ExchangePayload{
		Id:             uuid.New(),
		Kind:           kind,
		ConversationId: conversationId,
		Message:        message,
		StatusCode:     http.StatusOK,
		LatencyMs:      time.Since(started).Milliseconds(),
		Timestamp:      time.Now().UTC(),
	}

	var cerr *codedError
	if errors.As(err, &cerr) {
		payload.StatusCode = cerr.code
		payload.Error = cerr.Error()
	}
	return payload
}

// record publishes an exchange for the history log in the background.
// Failures never reach the caller, and exchanges are dropped once
// maxPendingPublishes are in flight.
func (s *GenieService) record(ctx context.Context, payload messaging.ExchangePayload) {
	if s.publisher == nil {
		return
	}

	select {
	case s.slots <- struct{}{}:
	default:
		slog.Warn("dropping exchange, too many pending publishes", "exchange_id", payload.Id, "kind", payload.Kind)
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer func() { <-s.slots }()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := s.publisher.PublishExchange(ctx, payload); err != nil {
			slog.Warn("error publishing exchange", "exchange_id", payload.Id, "kind", payload.Kind, "error", err)
		}
	}()
}

func convertExchange(ex database.Exchange) api.HistoryItem {
	item := api.HistoryItem{
		Id:         ex.Id.String(),
		Kind:       ex.Kind,
		Message:    ex.Message,
		Response:   ex.Response,
		StatusCode: ex.StatusCode,
		Error:      ex.Error,
		Archived:   ex.UpstreamKey != "",
		Timestamp:  ex.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if ex.Query.Valid {
		query := ex.Query.String
		item.Query = &query
	}
	if len(ex.Results) > 0 {
		item.Results = json.RawMessage(ex.Results)
	}
	return item
}
