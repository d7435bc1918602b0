package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var ErrQueueFull = errors.New("in memory queue is full")
var ErrQueueClosed = errors.New("in memory queue is closed")

type inMemoryTask struct {
	queue   string
	payload []byte
}

func (t *inMemoryTask) Type() string {
	return t.queue
}

func (t *inMemoryTask) Payload() []byte {
	return t.payload
}

func (t *inMemoryTask) Ack() error {
	return nil
}

func (t *inMemoryTask) Nack() error {
	return nil
}

func (t *inMemoryTask) Reject() error {
	return nil
}

// InMemoryQueue is a Publisher and Receiver for single process deployments.
// Publishing never blocks: when the buffer is full the event is dropped.
type InMemoryQueue struct {
	mu     sync.RWMutex
	tasks  chan Task
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return NewInMemoryQueueWithSize(100)
}

func NewInMemoryQueueWithSize(size int) *InMemoryQueue {
	return &InMemoryQueue{
		tasks: make(chan Task, size),
	}
}

func (q *InMemoryQueue) publishTaskInternal(queue string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- &inMemoryTask{queue: queue, payload: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *InMemoryQueue) PublishExchange(ctx context.Context, payload ExchangePayload) error {
	return q.publishTaskInternal(ExchangeQueue, payload)
}

func (q *InMemoryQueue) Tasks() <-chan Task {
	return q.tasks
}

func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		close(q.tasks)
		q.closed = true
	}
}
