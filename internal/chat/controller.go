package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"genie-backend/internal/chart"
	"genie-backend/internal/table"
	"genie-backend/pkg/api"
)

const GenericErrorText = "Sorry, I encountered an error. Please try again."

// Controller owns the transcript and dispatches user input to the proxy, at
// most one request at a time.
type Controller struct {
	transport Transport
	renderer  Renderer
	session   *Session

	mu         sync.Mutex
	transcript []Message
}

func NewController(transport Transport, renderer Renderer) *Controller {
	return &Controller{
		transport: transport,
		renderer:  renderer,
		session:   &Session{},
	}
}

func (c *Controller) Session() *Session {
	return c.session
}

// Start opens the conversation. On failure an error bubble is shown and the
// next Submit tries again.
func (c *Controller) Start(ctx context.Context) error {
	if !c.session.begin() {
		return errors.New("a request is already in flight")
	}
	defer c.session.end()

	if c.session.Started() {
		return nil
	}

	if err := c.start(ctx); err != nil {
		c.appendMessage(Message{Role: RoleError, Text: errorText(err)})
		return err
	}
	return nil
}

func (c *Controller) start(ctx context.Context) error {
	id, err := c.transport.StartConversation(ctx, "")
	if err != nil {
		slog.Error("error starting conversation", "error", err)
		return err
	}
	c.session.setConversationID(id)
	slog.Info("conversation started", "conversation_id", id)
	return nil
}

// Submit sends input as a user message. It returns false without doing
// anything when input is blank or another submission is still in flight.
func (c *Controller) Submit(ctx context.Context, input string) bool {
	text := strings.TrimSpace(input)
	if text == "" {
		return false
	}
	if !c.session.begin() {
		return false
	}

	loading := false
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered from panic while submitting message", "panic", r)
			if loading {
				c.renderer.HideLoading()
			}
			c.appendMessage(Message{Role: RoleError, Text: GenericErrorText})
		}
		c.session.end()
		c.renderer.SetInputEnabled(true)
	}()

	c.appendMessage(Message{Role: RoleUser, Text: text})
	c.renderer.SetInputEnabled(false)
	c.renderer.ShowLoading()
	loading = true

	res, err := c.relay(ctx, text)

	c.renderer.HideLoading()
	loading = false

	if err != nil {
		c.appendMessage(Message{Role: RoleError, Text: errorText(err)})
		return true
	}

	c.appendMessage(assistantMessage(res))
	return true
}

func (c *Controller) relay(ctx context.Context, text string) (*api.SendMessageResponse, error) {
	if !c.session.Started() {
		if err := c.start(ctx); err != nil {
			return nil, err
		}
	}

	res, err := c.transport.SendMessage(ctx, c.session.ConversationID(), text)
	if err != nil {
		slog.Error("error sending message", "conversation_id", c.session.ConversationID(), "error", err)
		return nil, err
	}
	return res, nil
}

// Transcript returns a copy of every message rendered so far.
func (c *Controller) Transcript() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.transcript...)
}

func (c *Controller) appendMessage(msg Message) {
	c.mu.Lock()
	c.transcript = append(c.transcript, msg)
	c.mu.Unlock()

	c.renderer.AppendMessage(msg)
}

func assistantMessage(res *api.SendMessageResponse) Message {
	msg := Message{Role: RoleAssistant, Text: res.Response}
	if res.Query != nil {
		msg.Query = *res.Query
	}
	if len(res.Attachments) > 0 && string(res.Attachments) != "null" {
		msg.Attachments = res.Attachments
	}

	records, err := table.ParseRecords(res.Results)
	if err != nil {
		slog.Warn("ignoring malformed results", "error", err)
		return msg
	}
	if len(records) == 0 {
		return msg
	}

	msg.Results = records
	if cfg, ok := chart.Select(records); ok {
		msg.Chart = cfg
	}
	return msg
}

func errorText(err error) string {
	var rerr *RequestError
	if errors.As(err, &rerr) && rerr.Message != "" {
		return rerr.Message
	}
	return GenericErrorText
}
