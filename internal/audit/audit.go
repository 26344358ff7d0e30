package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"checkin/internal/queue"
	"checkin/internal/store"
)

// MessageType tags audit entries on the queue.
const MessageType = "checkin_log"

// Actions written to the audit trail.
const (
	ActionCheckedIn = "checked_in"
	ActionUnchecked = "unchecked"
)

// UnknownOperator is recorded when the caller did not identify itself.
const UnknownOperator = "unknown"

// Recorder appends check-in audit entries either straight to the store or
// through a queue drained by a worker.
type Recorder struct {
	store  store.Store
	queue  queue.Queue
	logger *zap.Logger
}

// NewDirect writes entries synchronously to st.
func NewDirect(st store.Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: st, logger: logger.With(zap.String("component", "audit"))}
}

// NewQueued publishes entries to q.
func NewQueued(q queue.Queue, logger *zap.Logger) *Recorder {
	return &Recorder{queue: q, logger: logger.With(zap.String("component", "audit"))}
}

// Record stores one entry, filling the operator and timestamp when empty.
func (r *Recorder) Record(ctx context.Context, entry store.LogEntry) error {
	if strings.TrimSpace(entry.PerformedBy) == "" {
		entry.PerformedBy = UnknownOperator
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if r.queue == nil {
		return r.store.AppendLog(ctx, entry)
	}
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	return r.queue.Publish(ctx, queue.Message{Type: MessageType, Body: body})
}

// Drain consumes audit messages from q and appends them to st until ctx ends.
// Entries the store rejects are logged and dropped.
func Drain(ctx context.Context, q queue.Queue, st store.Store, logger *zap.Logger) error {
	logger = logger.With(zap.String("component", "audit-drain"))
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}

	logger.Info("audit drain started")
	for msg := range messages {
		if msg.Type != MessageType {
			logger.Warn("skipping unknown message", zap.String("type", msg.Type))
			continue
		}
		var entry store.LogEntry
		if err := json.Unmarshal(msg.Body, &entry); err != nil {
			logger.Warn("dropping malformed audit entry", zap.Error(err))
			continue
		}
		if err := st.AppendLog(ctx, entry); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error("append audit entry failed",
				zap.String("person_id", entry.PersonID),
				zap.String("action", entry.Action),
				zap.Error(err),
			)
			continue
		}
		logger.Debug("audit entry stored",
			zap.String("person_id", entry.PersonID),
			zap.String("action", entry.Action),
		)
	}
	logger.Info("audit drain stopped")
	return nil
}
