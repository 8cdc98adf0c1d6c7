package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hrygo/adpilot/internal/errors"
	"github.com/hrygo/adpilot/store"
)

var fixedNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func newTestQueue(t *testing.T) (*Queue, *store.MemoryDriver) {
	t.Helper()
	driver := store.NewMemoryDriver()
	q := NewQueue(store.New(driver))
	q.SetClock(func() time.Time { return fixedNow })
	return q, driver
}

func budgetIncrease(current, next float64) Action {
	return Action{
		Type:         TypeBudgetIncrease,
		CampaignID:   "c1",
		CampaignName: "Spring Sale",
		AccountID:    "act_1",
		Params: Params{
			CurrentBudget: current,
			NewBudget:     next,
		},
		Reason: "ROAS above target",
		Source: SourceRecommendation,
	}
}

func TestQueue_ProposeAndPending(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	id1, err := q.Propose(ctx, budgetIncrease(10000, 11000))
	require.NoError(t, err)
	id2, err := q.Propose(ctx, Action{Type: TypePause, CampaignID: "c2"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	pending := q.Pending(ctx)
	require.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].ID)
	assert.Equal(t, StatusPending, pending[0].Status)
	assert.Equal(t, fixedNow, pending[0].CreatedAt)
	assert.Equal(t, 11000.0, pending[0].Action.Params.NewBudget)
}

func TestQueue_ProposeValidates(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	_, err := q.Propose(ctx, Action{Type: "delete", CampaignID: "c1"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))

	_, err = q.Propose(ctx, Action{Type: TypePause})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
}

func TestQueue_ProposeWriteFailure(t *testing.T) {
	ctx := context.Background()
	q, driver := newTestQueue(t)
	driver.FailSaves = true
	driver.SaveErr = errors.New("disk full")

	_, err := q.Propose(ctx, budgetIncrease(100, 110))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePersistenceFailed))
}

func TestQueue_ApproveMovesToHistory(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	id, err := q.Propose(ctx, budgetIncrease(10000, 11000))
	require.NoError(t, err)

	rec, err := q.Approve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, rec.Status)
	require.NotNil(t, rec.ApprovedAt)

	assert.Empty(t, q.Pending(ctx))
	history := q.History(ctx, 0)
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].ID)
	assert.Equal(t, StatusApproved, history[0].Status)
}

func TestQueue_RejectedCannotBeApproved(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	id, err := q.Propose(ctx, budgetIncrease(10000, 11000))
	require.NoError(t, err)

	rec, err := q.Reject(ctx, id, "too aggressive")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rec.Status)
	assert.Equal(t, "too aggressive", rec.RejectReason)
	require.NotNil(t, rec.RejectedAt)

	_, err = q.Approve(ctx, id)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
	_, err = q.Reject(ctx, id, "again")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))

	history := q.History(ctx, 0)
	require.Len(t, history, 1)
	assert.Equal(t, StatusRejected, history[0].Status)
}

func TestQueue_ApproveUnknown(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Approve(context.Background(), "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestQueue_MarkExecutedOnce(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	id, err := q.Propose(ctx, budgetIncrease(10000, 11000))
	require.NoError(t, err)
	_, err = q.Approve(ctx, id)
	require.NoError(t, err)

	require.NoError(t, q.MarkExecuted(ctx, id, Result{Success: true, Executed: true, Message: "ok"}))
	err = q.MarkExecuted(ctx, id, Result{Success: false})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))

	rec, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, rec.Status)
	require.NotNil(t, rec.Result)
	assert.True(t, rec.Result.Success)
	require.NotNil(t, rec.ExecutedAt)
}

func TestQueue_MarkExecutedRequiresApproval(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	id, err := q.Propose(ctx, budgetIncrease(10000, 11000))
	require.NoError(t, err)
	_, err = q.Reject(ctx, id, "")
	require.NoError(t, err)

	err = q.MarkExecuted(ctx, id, Result{Success: true})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
	assert.True(t, apperrors.IsCode(q.MarkExecuted(ctx, "missing", Result{}), apperrors.ErrCodeNotFound))
}

func TestQueue_HistoryLimit(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.AppendHistory(ctx, Record{Status: StatusExecuted, Kind: KindDirectExecution}))
	}
	all := q.History(ctx, 0)
	require.Len(t, all, 5)

	last := q.History(ctx, 2)
	require.Len(t, last, 2)
	assert.Equal(t, all[3].ID, last[0].ID)
	assert.Equal(t, all[4].ID, last[1].ID)
}

func TestQueue_ClearPending(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	for i := 0; i < 3; i++ {
		_, err := q.Propose(ctx, Action{Type: TypePause, CampaignID: "c1"})
		require.NoError(t, err)
	}
	n, err := q.ClearPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, q.Pending(ctx))
}

func TestQueue_UnreadableDocumentFallsBack(t *testing.T) {
	ctx := context.Background()
	q, driver := newTestQueue(t)
	driver.FailLoads = true
	driver.LoadErr = errors.New("corrupt")

	assert.Empty(t, q.Pending(ctx))
	assert.Empty(t, q.History(ctx, 10))
}

func TestEffectiveIncreasePercent(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   float64
	}{
		{"explicit", Params{IncreasePercent: 25}, 25},
		{"change percent", Params{ChangePercent: 30}, 30},
		{"derived", Params{CurrentBudget: 10000, NewBudget: 15000}, 50},
		{"understated explicit", Params{IncreasePercent: 15, CurrentBudget: 100, NewBudget: 200}, 100},
		{"understated change percent", Params{ChangePercent: 10, CurrentBudget: 10000, NewBudget: 15000}, 50},
		{"stated above derived", Params{IncreasePercent: 30, CurrentBudget: 10000, NewBudget: 11000}, 30},
		{"decrease", Params{ChangePercent: -20, CurrentBudget: 10000, NewBudget: 8000}, 0},
		{"unknown", Params{NewBudget: 15000}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.params.EffectiveIncreasePercent(), 1e-9)
		})
	}
}

func TestNewBudgetAction(t *testing.T) {
	a := NewBudgetAction("c1", "Spring", "act_1", 10000, 12000, "scale")
	assert.Equal(t, TypeBudgetChange, a.Type)
	assert.InDelta(t, 20.0, a.Params.ChangePercent, 1e-9)

	a = NewBudgetAction("c1", "Spring", "act_1", 0, 12000, "scale")
	assert.Zero(t, a.Params.ChangePercent)
}
