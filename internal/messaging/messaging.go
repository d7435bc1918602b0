package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ExchangeQueue   = "genie_exchange_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// ExchangePayload describes one proxied call to Genie and how it ended.
// ConversationId is empty for starts that never got an id. Upstream holds the
// raw Genie reply of successful messages.
type ExchangePayload struct {
	Id             uuid.UUID
	Kind           string
	ConversationId string
	Message        string
	Response       string
	Query          *string
	Results        json.RawMessage
	Upstream       json.RawMessage
	StatusCode     int
	Error          string
	LatencyMs      int64
	Timestamp      time.Time
}

type Publisher interface {
	PublishExchange(ctx context.Context, payload ExchangePayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
