package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"genie-backend/pkg/api"

	"github.com/go-resty/resty/v2"
)

type Transport interface {
	StartConversation(ctx context.Context, initialMessage string) (string, error)
	SendMessage(ctx context.Context, conversationId, message string) (*api.SendMessageResponse, error)
}

// RequestError is a non-2xx reply from the proxy. Message is the proxy's
// error text and may be empty.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// HTTPTransport talks to the proxy's /genie-start and /genie-message routes.
type HTTPTransport struct {
	client *resty.Client
}

func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) StartConversation(ctx context.Context, initialMessage string) (string, error) {
	var result api.StartConversationResponse
	var apiErr api.ErrorResponse

	res, err := t.client.R().
		SetContext(ctx).
		SetBody(api.StartConversationRequest{InitialMessage: initialMessage}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/genie-start")
	if err != nil {
		return "", fmt.Errorf("error starting conversation: %w", err)
	}

	if !res.IsSuccess() {
		return "", &RequestError{StatusCode: res.StatusCode(), Message: apiErr.Error}
	}

	if result.ConversationId == "" {
		return "", errors.New("proxy returned no conversation id")
	}

	return result.ConversationId, nil
}

func (t *HTTPTransport) SendMessage(ctx context.Context, conversationId, message string) (*api.SendMessageResponse, error) {
	var result api.SendMessageResponse
	var apiErr api.ErrorResponse

	res, err := t.client.R().
		SetContext(ctx).
		SetBody(api.SendMessageRequest{ConversationId: conversationId, Message: message}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/genie-message")
	if err != nil {
		return nil, fmt.Errorf("error sending message: %w", err)
	}

	if !res.IsSuccess() {
		return nil, &RequestError{StatusCode: res.StatusCode(), Message: apiErr.Error}
	}

	return &result, nil
}

// History fetches the recorded exchanges of a conversation, oldest first.
func (t *HTTPTransport) History(ctx context.Context, conversationId string, limit int) ([]api.HistoryItem, error) {
	var result []api.HistoryItem
	var apiErr api.ErrorResponse

	res, err := t.client.R().
		SetContext(ctx).
		SetPathParam("conversation_id", conversationId).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&result).
		SetError(&apiErr).
		Get("/genie-history/{conversation_id}")
	if err != nil {
		return nil, fmt.Errorf("error fetching history: %w", err)
	}

	if !res.IsSuccess() {
		return nil, &RequestError{StatusCode: res.StatusCode(), Message: apiErr.Error}
	}

	return result, nil
}
