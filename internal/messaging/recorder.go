package messaging

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"

	"genie-backend/internal/database"
	"genie-backend/internal/storage"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Recorder drains exchange events from a Receiver into the database.
type Recorder struct {
	db       *gorm.DB
	receiver Receiver
	archive  storage.ObjectStore
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

func NewRecorder(db *gorm.DB, receiver Receiver) *Recorder {
	return &Recorder{db: db, receiver: receiver, done: make(chan struct{})}
}

// WithArchive makes the recorder keep raw Genie replies in store. It must be
// called before Start.
func (r *Recorder) WithArchive(store storage.ObjectStore) *Recorder {
	r.archive = store
	return r
}

// Start runs workers goroutines until the receiver's task channel is closed
// or Stop is called.
func (r *Recorder) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	slog.Info("starting exchange recorder", "workers", workers)

	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer r.wg.Done()
			r.run(ctx)
		}()
	}
}

func (r *Recorder) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case task, ok := <-r.receiver.Tasks():
			if !ok {
				return
			}
			r.ProcessTask(context.WithoutCancel(ctx), task)
		}
	}
}

// Stop closes the receiver and waits for in-flight tasks to finish.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		slog.Info("stopping exchange recorder")
		close(r.done)
		r.receiver.Close()
	})
	r.wg.Wait()
}

func (r *Recorder) ProcessTask(ctx context.Context, task Task) {
	if task.Type() != ExchangeQueue {
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	var payload ExchangePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		slog.Error("error unmarshalling exchange", "error", err)
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	record := exchangeRecord(payload)
	record.UpstreamKey = r.archiveUpstream(ctx, payload)

	if err := database.SaveExchange(ctx, r.db, record); err != nil {
		slog.Error("error recording exchange", "exchange_id", payload.Id, "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
		return
	}

	if err := task.Ack(); err != nil {
		slog.Error("error acknowledging message from queue", "error", err)
	}
}

// archiveUpstream stores the raw reply and returns its key, or "" when there
// is nothing to archive or the upload failed. A failed upload does not block
// the exchange from being recorded.
func (r *Recorder) archiveUpstream(ctx context.Context, payload ExchangePayload) string {
	if r.archive == nil || len(payload.Upstream) == 0 {
		return ""
	}

	key := storage.UpstreamKey(payload.ConversationId, payload.Id)
	if err := r.archive.PutObject(ctx, key, bytes.NewReader(payload.Upstream)); err != nil {
		slog.Warn("error archiving upstream reply", "exchange_id", payload.Id, "key", key, "error", err)
		return ""
	}
	return key
}

func exchangeRecord(payload ExchangePayload) *database.Exchange {
	record := &database.Exchange{
		Id:         payload.Id,
		Kind:       payload.Kind,
		Message:    payload.Message,
		Response:   payload.Response,
		StatusCode: payload.StatusCode,
		Error:      payload.Error,
		LatencyMs:  payload.LatencyMs,
		Timestamp:  payload.Timestamp,
	}
	if payload.ConversationId != "" {
		record.ConversationId = sql.NullString{String: payload.ConversationId, Valid: true}
	}
	if payload.Query != nil {
		record.Query = sql.NullString{String: *payload.Query, Valid: true}
	}
	if len(payload.Results) > 0 && string(payload.Results) != "null" {
		record.Results = datatypes.JSON(payload.Results)
	}
	return record
}
