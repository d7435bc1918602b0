package genie

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"genie-backend/internal/config"
	"genie-backend/pkg/api"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

type Client struct {
	client     *resty.Client
	spaceId    string
	configured bool
	includeRaw bool
}

func NewClient(cfg config.GenieConfig) *Client {
	client := resty.New().
		SetBaseURL(config.NormalizeHost(cfg.Host)).
		SetAuthToken(cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &Client{
		client:     client,
		spaceId:    cfg.SpaceID,
		configured: cfg.Complete(),
		includeRaw: cfg.IncludeRaw,
	}
}

func (c *Client) Configured() bool {
	return c.configured
}

type contentRequest struct {
	Content string `json:"content"`
}

func (c *Client) spacePath(suffix string) string {
	return fmt.Sprintf("/api/2.0/genie/spaces/%s/%s", url.PathEscape(c.spaceId), suffix)
}

// StartConversation opens a conversation seeded with content and returns the
// id Genie assigned to it.
func (c *Client) StartConversation(ctx context.Context, content string) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetBody(contentRequest{Content: content}).
		Post(c.spacePath("start-conversation"))
	if err != nil {
		return "", &TransportError{Op: "start conversation", Err: err}
	}

	if !res.IsSuccess() {
		slog.Error("genie rejected start conversation", "status_code", res.StatusCode(), "body", res.String())
		return "", &UpstreamError{StatusCode: res.StatusCode(), Body: res.String()}
	}

	id, ok := ConversationID(res.Body())
	if !ok {
		slog.Error("genie start conversation response has no conversation id", "body", res.String())
		return "", &TransportError{Op: "start conversation", Err: errors.New("no conversation id in response")}
	}

	return id, nil
}

// SendMessage posts message to an existing conversation and returns the
// normalized reply.
func (c *Client) SendMessage(ctx context.Context, conversationId, message string) (*api.SendMessageResponse, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetBody(contentRequest{Content: message}).
		Post(c.spacePath("conversations/" + url.PathEscape(conversationId) + "/messages"))
	if err != nil {
		return nil, &TransportError{Op: "send message", Err: err}
	}

	if !res.IsSuccess() {
		slog.Error("genie rejected message", "conversation_id", conversationId, "status_code", res.StatusCode(), "body", res.String())
		return nil, &UpstreamError{StatusCode: res.StatusCode(), Body: res.String()}
	}

	body := res.Body()
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil, &TransportError{Op: "send message", Err: errors.New("response body is not valid json")}
	}

	slog.Debug("genie message response", "conversation_id", conversationId, "body", res.String())

	normalized := Normalize(body)
	normalized.Upstream = append([]byte(nil), body...)
	if c.includeRaw {
		normalized.RawData = normalized.Upstream
	}
	return &normalized, nil
}
