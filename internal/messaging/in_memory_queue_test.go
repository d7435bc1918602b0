package messaging_test

import (
	"context"
	"encoding/json"
	"testing"

	"genie-backend/internal/messaging"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueuePublish(t *testing.T) {
	queue := messaging.NewInMemoryQueue()
	defer queue.Close()

	payload := messaging.ExchangePayload{Id: uuid.New(), Kind: "message", ConversationId: "conv-1", Message: "hi", StatusCode: 200}
	require.NoError(t, queue.PublishExchange(context.Background(), payload))

	task := <-queue.Tasks()
	assert.Equal(t, messaging.ExchangeQueue, task.Type())

	var got messaging.ExchangePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &got))
	assert.Equal(t, payload.Id, got.Id)
	assert.Equal(t, "conv-1", got.ConversationId)
	assert.NoError(t, task.Ack())
}

func TestInMemoryQueueFullDoesNotBlock(t *testing.T) {
	queue := messaging.NewInMemoryQueueWithSize(1)
	defer queue.Close()

	require.NoError(t, queue.PublishExchange(context.Background(), messaging.ExchangePayload{Id: uuid.New()}))
	assert.ErrorIs(t, queue.PublishExchange(context.Background(), messaging.ExchangePayload{Id: uuid.New()}), messaging.ErrQueueFull)
}

func TestInMemoryQueueClose(t *testing.T) {
	queue := messaging.NewInMemoryQueue()
	queue.Close()
	queue.Close()

	_, ok := <-queue.Tasks()
	assert.False(t, ok)
	assert.ErrorIs(t, queue.PublishExchange(context.Background(), messaging.ExchangePayload{}), messaging.ErrQueueClosed)
}
