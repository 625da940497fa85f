package audit

import (
	"context"
	"database/sql"
	"sync"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
)

// Publisher fans audit entries out on the message bus. *mqtt.Client
// satisfies it.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Recorder persists audit entries one at a time.
//
// Thread Safety: Record is safe for concurrent use; writes are serialised
// so one entry's construction never interleaves with another's commit.
type Recorder struct {
	mu        sync.Mutex
	db        *database.DB
	logger    *logging.Logger
	publisher Publisher
	topic     string
}

// NewRecorder creates a recorder writing to db. publisher may be nil.
func NewRecorder(db *database.DB, logger *logging.Logger, publisher Publisher, topic string) *Recorder {
	return &Recorder{
		db:        db,
		logger:    logger.With("component", "audit"),
		publisher: publisher,
		topic:     topic,
	}
}

// Record writes call in its own transaction and then publishes it.
// A publish failure is logged and does not fail the call.
func (r *Recorder) Record(ctx context.Context, call *WSAPICall) error {
	r.mu.Lock()
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return NewRepository(tx).Create(ctx, call)
	})
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if r.publisher != nil && r.topic != "" {
		if err := r.publisher.PublishJSON(r.topic, call); err != nil {
			r.logger.Debug("audit publish skipped", "error", err, "method", call.Method)
		}
	}
	return nil
}
