package action

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	apperrors "github.com/hrygo/adpilot/internal/errors"
	"github.com/hrygo/adpilot/store"
)

// DefaultHistoryLimit is the number of history entries returned when no
// limit is given.
const DefaultHistoryLimit = 50

// Queue holds pending actions and the action history. Both documents are
// re-read on every call; one mutex serializes read/patch/write.
type Queue struct {
	mu     sync.Mutex
	store  *store.Store
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// NewQueue creates a queue on top of the document store.
func NewQueue(s *store.Store) *Queue {
	return &Queue{
		store:  s,
		now:    time.Now,
		newID:  shortuuid.New,
		logger: slog.Default(),
	}
}

// SetLogger sets a custom logger.
func (q *Queue) SetLogger(logger *slog.Logger) {
	q.logger = logger
}

// SetClock overrides the clock (tests).
func (q *Queue) SetClock(now func() time.Time) {
	q.now = now
}

func (q *Queue) loadPending(ctx context.Context) []Record {
	var records []Record
	q.store.LoadJSONOrDefault(ctx, store.KeyPendingActions, &records)
	return records
}

func (q *Queue) loadHistory(ctx context.Context) []Record {
	var records []Record
	q.store.LoadJSONOrDefault(ctx, store.KeyActionHistory, &records)
	return records
}

func (q *Queue) savePending(ctx context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	if err := q.store.SaveJSON(ctx, store.KeyPendingActions, records); err != nil {
		return apperrors.PersistenceFailed(store.KeyPendingActions, err)
	}
	return nil
}

func (q *Queue) saveHistory(ctx context.Context, records []Record) error {
	if err := q.store.SaveJSON(ctx, store.KeyActionHistory, records); err != nil {
		return apperrors.PersistenceFailed(store.KeyActionHistory, err)
	}
	return nil
}

// Propose appends a to the pending queue and returns its id.
func (q *Queue) Propose(ctx context.Context, a Action) (string, error) {
	if !a.Type.Valid() {
		return "", apperrors.InvalidArgument("unknown action type: " + string(a.Type))
	}
	if a.CampaignID == "" {
		return "", apperrors.InvalidArgument("campaign id is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.loadPending(ctx)
	rec := Record{
		ID:        q.newID(),
		CreatedAt: q.now().UTC(),
		Status:    StatusPending,
		Action:    a,
	}
	pending = append(pending, rec)
	if err := q.savePending(ctx, pending); err != nil {
		return "", err
	}
	q.logger.InfoContext(ctx, "action proposed",
		"id", rec.ID,
		"type", a.Type,
		"campaign_id", a.CampaignID,
		"source", a.Source)
	return rec.ID, nil
}

// Pending returns the pending actions, oldest first.
func (q *Queue) Pending(ctx context.Context) []Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loadPending(ctx)
}

// Get returns the record with id from the pending queue or the history.
func (q *Queue) Get(ctx context.Context, id string) (Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, r := range q.loadPending(ctx) {
		if r.ID == id {
			return r, nil
		}
	}
	history := q.loadHistory(ctx)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ID == id {
			return history[i], nil
		}
	}
	return Record{}, apperrors.NotFound("action", id)
}

// Approve moves a pending action to the history with status approved.
func (q *Queue) Approve(ctx context.Context, id string) (Record, error) {
	return q.resolve(ctx, id, func(r *Record, now time.Time) {
		r.Status = StatusApproved
		r.ApprovedAt = &now
	})
}

// Reject moves a pending action to the history with status rejected.
func (q *Queue) Reject(ctx context.Context, id, reason string) (Record, error) {
	return q.resolve(ctx, id, func(r *Record, now time.Time) {
		r.Status = StatusRejected
		r.RejectedAt = &now
		r.RejectReason = reason
	})
}

// resolve removes id from the pending queue, applies patch and appends the
// record to the history. The pending document is written first; when the
// history write fails the previous pending document is restored.
func (q *Queue) resolve(ctx context.Context, id string, patch func(*Record, time.Time)) (Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.loadPending(ctx)
	idx := -1
	for i, r := range pending {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Record{}, apperrors.NotFound("pending action", id)
	}

	rec := pending[idx]
	patch(&rec, q.now().UTC())

	remaining := make([]Record, 0, len(pending)-1)
	remaining = append(remaining, pending[:idx]...)
	remaining = append(remaining, pending[idx+1:]...)
	if err := q.savePending(ctx, remaining); err != nil {
		return Record{}, err
	}

	history := append(q.loadHistory(ctx), rec)
	if err := q.saveHistory(ctx, history); err != nil {
		if rerr := q.savePending(ctx, pending); rerr != nil {
			q.logger.ErrorContext(ctx, "failed to restore pending action", "id", id, "error", rerr)
		}
		return Record{}, err
	}

	q.logger.InfoContext(ctx, "action resolved", "id", id, "status", rec.Status)
	return rec, nil
}

// MarkExecuted records the execution result of an approved history entry.
// It applies at most once per entry.
func (q *Queue) MarkExecuted(ctx context.Context, id string, result Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	history := q.loadHistory(ctx)
	for i := range history {
		if history[i].ID != id {
			continue
		}
		switch history[i].Status {
		case StatusApproved:
		case StatusExecuted:
			return apperrors.InvalidArgument("action already executed: " + id)
		default:
			return apperrors.InvalidArgument("action is not approved: " + id)
		}
		now := q.now().UTC()
		history[i].Status = StatusExecuted
		history[i].ExecutedAt = &now
		history[i].Result = &result
		if err := q.saveHistory(ctx, history); err != nil {
			return err
		}
		q.logger.InfoContext(ctx, "action executed", "id", id, "success", result.Success)
		return nil
	}
	return apperrors.NotFound("action", id)
}

// AppendHistory appends an entry that did not pass through the queue.
func (q *Queue) AppendHistory(ctx context.Context, r Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if r.ID == "" {
		r.ID = q.newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = q.now().UTC()
	}
	history := append(q.loadHistory(ctx), r)
	return q.saveHistory(ctx, history)
}

// History returns the most recent limit entries, oldest first.
func (q *Queue) History(ctx context.Context, limit int) []Record {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	history := q.loadHistory(ctx)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

// ClearPending drops every pending action and returns how many were dropped.
func (q *Queue) ClearPending(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.loadPending(ctx))
	if err := q.savePending(ctx, nil); err != nil {
		return 0, err
	}
	q.logger.InfoContext(ctx, "pending actions cleared", "count", n)
	return n, nil
}
