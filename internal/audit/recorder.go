package audit

import (
	"context"
	"log/slog"
	"sync"
)

// recorderBufferSize is the buffer size for the async audit channel.
// Entries beyond this are dropped (best-effort) to avoid back-pressure on requests.
const recorderBufferSize = 256

// Recorder writes audit entries asynchronously through a single writer
// goroutine. This avoids unbounded goroutine creation and is kinder to
// SQLite's serial write model.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
	ch     chan *AuditLog
	wg     sync.WaitGroup
}

// NewRecorder creates a Recorder. Call Start or Run to begin writing.
func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger,
		ch:     make(chan *AuditLog, recorderBufferSize),
	}
}

// Record enqueues an entry. If the buffer is full the entry is dropped and
// a warning is logged. A nil Recorder ignores everything.
func (r *Recorder) Record(action, entityType, entityID, userID string, details map[string]any) {
	if r == nil {
		return
	}
	entry := &AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Source:     "api",
		Details:    details,
	}

	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("audit log channel full, dropping entry",
			"action", action,
			"entity_type", entityType,
		)
	}
}

// Start runs the writer in a background goroutine. Wait blocks until it
// has drained and exited.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Run(ctx)
	}()
}

// Run writes entries until ctx is cancelled, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case entry := <-r.ch:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.ch:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until a writer launched by Start has returned.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) write(entry *AuditLog) {
	// Detached from request contexts, which are already done by now.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}
