package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/obs"
)

const defaultWriteTimeout = 3 * time.Second

// Entry is one privileged mutation to record.
type Entry struct {
	Action    string
	TableName string
	RecordID  string
	OldValues map[string]any
	NewValues map[string]any
}

// Recorder persists audit records on a best-effort basis. Writes run in the
// background and a failed write never fails the mutation it describes.
type Recorder struct {
	store   auth.AuditStore
	timeout time.Duration
	now     func() time.Time
	pending sync.WaitGroup
}

// Option configures Recorder.
type Option func(*Recorder)

// WithTimeout bounds each persistence attempt.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder constructs a Recorder writing to store.
func NewRecorder(store auth.AuditStore, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		timeout: defaultWriteTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record attributes e to the identity in ctx and persists it without
// blocking the caller. Without an identity the record is skipped. The write
// outlives caller cancellation and is bounded by the recorder timeout.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	log := obs.Component("audit").WithField("action", e.Action)
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		log.Warn("no authenticated identity, audit record skipped")
		return
	}
	if strings.TrimSpace(e.Action) == "" {
		log.Warn("audit entry without action skipped")
		return
	}

	rec := &auth.AuditRecord{
		Action:    e.Action,
		TableName: e.TableName,
		RecordID:  e.RecordID,
		OldValues: e.OldValues,
		NewValues: e.NewValues,
		UserID:    id.ID,
		TraceID:   obs.TraceID(ctx),
		CreatedAt: r.now().UTC(),
	}

	_ = LogEvent(ctx, e.Action, map[string]any{
		"table_name": e.TableName,
		"record_id":  e.RecordID,
		"old_values": e.OldValues,
		"new_values": e.NewValues,
	})

	if r.store == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		defer cancel()
		if err := r.store.AppendAudit(writeCtx, rec); err != nil {
			obs.IncAuditFailure()
			log.WithError(err).WithField("record_id", e.RecordID).Error("audit write failed")
		}
	}()
}

// Wait blocks until every write started by Record has finished.
func (r *Recorder) Wait() {
	r.pending.Wait()
}
