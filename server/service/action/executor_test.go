package action

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/adpilot/plugin/meta"
	"github.com/hrygo/adpilot/server/service/insight"
)

type mockPlatform struct {
	mock.Mock
}

func (m *mockPlatform) UpdateBudget(ctx context.Context, campaignID string, dailyBudget float64) error {
	return m.Called(ctx, campaignID, dailyBudget).Error(0)
}

func (m *mockPlatform) UpdateStatus(ctx context.Context, campaignID string, status meta.Status) error {
	return m.Called(ctx, campaignID, status).Error(0)
}

func (m *mockPlatform) CampaignSnapshot(ctx context.Context, accountID, campaignID string, period insight.Period) (insight.Snapshot, error) {
	args := m.Called(ctx, accountID, campaignID, period)
	return args.Get(0).(insight.Snapshot), args.Error(1)
}

type recordedBaseline struct {
	action   Action
	baseline insight.Snapshot
}

type fakeLearner struct {
	records []recordedBaseline
	err     error
}

func (f *fakeLearner) RecordBaseline(_ context.Context, a Action, baseline insight.Snapshot) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.records = append(f.records, recordedBaseline{action: a, baseline: baseline})
	return "lr-1", nil
}

func newTestExecutor(t *testing.T, platform Platform, learner BaselineRecorder, cfg Config) *Executor {
	t.Helper()
	q, _ := newTestQueue(t)
	e, err := NewExecutor(q, platform, learner, cfg)
	require.NoError(t, err)
	return e
}

func baselineSnapshot() insight.Snapshot {
	return insight.Snapshot{Counts: insight.Counts{Spend: 20000}, CPA: 2500, ROAS: 3.1}
}

func TestExecutor_SafetyRefusalMakesNoPlatformCall(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		reason string
	}{
		{
			name:   "derived percent over limit",
			action: budgetIncrease(10000, 15000),
			reason: "増額率50%は上限20%を超えています",
		},
		{
			name: "explicit percent over limit",
			action: Action{Type: TypeBudgetIncrease, CampaignID: "c1", Params: Params{
				NewBudget: 12500, IncreasePercent: 25,
			}},
			reason: "増額率25%は上限20%を超えています",
		},
		{
			name:   "budget over max",
			action: budgetIncrease(480000, 520000),
			reason: "新予算¥520,000は上限¥500,000を超えています",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := &mockPlatform{}
			e := newTestExecutor(t, platform, nil, DefaultConfig())

			res := e.Execute(context.Background(), tt.action)
			assert.False(t, res.Success)
			assert.False(t, res.Executed)
			assert.True(t, res.Refused())
			assert.Equal(t, tt.reason, res.Refusal)
			assert.Equal(t, "安全チェック失敗: "+tt.reason, res.Message)

			platform.AssertNotCalled(t, "UpdateBudget", mock.Anything, mock.Anything, mock.Anything)
			platform.AssertNotCalled(t, "CampaignSnapshot", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestExecutor_BoundsApplyToEveryRaise(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		reason string
	}{
		{
			name:   "decrease below current",
			action: Action{Type: TypeBudgetDecrease, Params: Params{CurrentBudget: 900000, NewBudget: 800000}},
		},
		{
			name:   "change downwards",
			action: Action{Type: TypeBudgetChange, Params: Params{CurrentBudget: 10000, NewBudget: 5000}},
		},
		{
			name:   "pause",
			action: Action{Type: TypePause},
		},
		{
			name:   "increase within bounds",
			action: budgetIncrease(10000, 12000),
		},
		{
			name:   "change upwards over percent",
			action: Action{Type: TypeBudgetChange, Params: Params{CurrentBudget: 1000, NewBudget: 1500}},
			reason: "増額率50%は上限20%を超えています",
		},
		{
			name:   "change upwards over max",
			action: Action{Type: TypeBudgetChange, Params: Params{CurrentBudget: 480000, NewBudget: 520000}},
			reason: "新予算¥520,000は上限¥500,000を超えています",
		},
		{
			name:   "decrease that raises",
			action: Action{Type: TypeBudgetDecrease, Params: Params{CurrentBudget: 10000, NewBudget: 900000}},
			reason: "減額アクションの新予算¥900,000が現在の予算¥10,000を上回っています",
		},
		{
			name:   "decrease with unknown current over max",
			action: Action{Type: TypeBudgetDecrease, Params: Params{NewBudget: 900000}},
			reason: "新予算¥900,000は上限¥500,000を超えています",
		},
		{
			name: "understated change percent",
			action: Action{Type: TypeBudgetIncrease, Params: Params{
				CurrentBudget: 10000, NewBudget: 15000, ChangePercent: 10, IncreasePercent: 10,
			}},
			reason: "増額率50%は上限20%を超えています",
		},
	}
	e := newTestExecutor(t, nil, nil, DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.reason, e.SafetyCheck(tt.action))
		})
	}
}

func TestExecutor_BudgetIncreaseRecordsBaseline(t *testing.T) {
	ctx := context.Background()
	platform := &mockPlatform{}
	platform.On("CampaignSnapshot", mock.Anything, "act_1", "c1", insight.PeriodLast7d).Return(baselineSnapshot(), nil).Once()
	platform.On("UpdateBudget", mock.Anything, "c1", 11000.0).Return(nil).Once()
	learner := &fakeLearner{}

	e := newTestExecutor(t, platform, learner, DefaultConfig())
	res := e.Execute(ctx, budgetIncrease(10000, 11000))

	assert.True(t, res.Success)
	assert.True(t, res.Executed)
	assert.Equal(t, "予算を¥11,000に変更しました", res.Message)
	assert.Equal(t, "lr-1", res.LearningID)
	require.Len(t, learner.records, 1)
	assert.Equal(t, 20000.0, learner.records[0].baseline.Spend)
	platform.AssertExpectations(t)
}

func TestExecutor_BaselineFailureDoesNotBlockMutation(t *testing.T) {
	platform := &mockPlatform{}
	platform.On("CampaignSnapshot", mock.Anything, mock.Anything, "c1", insight.PeriodLast7d).
		Return(insight.Snapshot{}, errors.New("graph down")).Once()
	platform.On("UpdateStatus", mock.Anything, "c1", meta.StatusPaused).Return(nil).Once()
	learner := &fakeLearner{}

	e := newTestExecutor(t, platform, learner, DefaultConfig())
	res := e.Execute(context.Background(), Action{Type: TypePause, CampaignID: "c1"})

	assert.True(t, res.Success)
	assert.Equal(t, "ステータスをPAUSEDに変更しました", res.Message)
	assert.Empty(t, res.LearningID)
	assert.Empty(t, learner.records)
	platform.AssertExpectations(t)
}

func TestExecutor_Dispatch(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		status meta.Status
	}{
		{"pause", Action{Type: TypePause, CampaignID: "c1"}, meta.StatusPaused},
		{"resume", Action{Type: TypeResume, CampaignID: "c1"}, meta.StatusActive},
		{"status change default", Action{Type: TypeStatusChange, CampaignID: "c1"}, meta.StatusPaused},
		{"status change explicit", Action{Type: TypeStatusChange, CampaignID: "c1", Params: Params{NewStatus: meta.StatusActive}}, meta.StatusActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := &mockPlatform{}
			platform.On("UpdateStatus", mock.Anything, "c1", tt.status).Return(nil).Once()

			e := newTestExecutor(t, platform, nil, DefaultConfig())
			res := e.Execute(context.Background(), tt.action)
			assert.True(t, res.Success)
			platform.AssertExpectations(t)
		})
	}
}

func TestExecutor_BudgetDecrease(t *testing.T) {
	platform := &mockPlatform{}
	platform.On("UpdateBudget", mock.Anything, "c1", 8000.0).Return(nil).Once()

	e := newTestExecutor(t, platform, nil, DefaultConfig())
	res := e.Execute(context.Background(), Action{Type: TypeBudgetDecrease, CampaignID: "c1", Params: Params{CurrentBudget: 10000, NewBudget: 8000}})
	assert.True(t, res.Success)
	platform.AssertExpectations(t)
}

func TestExecutor_Failures(t *testing.T) {
	t.Run("no platform", func(t *testing.T) {
		e := newTestExecutor(t, nil, nil, DefaultConfig())
		res := e.Execute(context.Background(), budgetIncrease(10000, 11000))
		assert.False(t, res.Success)
		assert.Equal(t, "Meta API未接続", res.Message)
	})

	t.Run("missing budget", func(t *testing.T) {
		e := newTestExecutor(t, &mockPlatform{}, nil, DefaultConfig())
		res := e.Execute(context.Background(), Action{Type: TypeBudgetChange, CampaignID: "c1"})
		assert.Equal(t, "campaign_idまたはnew_budgetが不足", res.Message)
	})

	t.Run("unknown type", func(t *testing.T) {
		e := newTestExecutor(t, &mockPlatform{}, nil, DefaultConfig())
		res := e.Execute(context.Background(), Action{Type: "archive", CampaignID: "c1"})
		assert.False(t, res.Success)
		assert.Equal(t, "未対応のアクションタイプ: archive", res.Message)
	})

	t.Run("invalid status", func(t *testing.T) {
		e := newTestExecutor(t, &mockPlatform{}, nil, DefaultConfig())
		res := e.Execute(context.Background(), Action{Type: TypeStatusChange, CampaignID: "c1", Params: Params{NewStatus: "DELETED"}})
		assert.False(t, res.Success)
		assert.Equal(t, "無効なステータス: DELETED", res.Message)
	})

	t.Run("platform error", func(t *testing.T) {
		platform := &mockPlatform{}
		platform.On("UpdateBudget", mock.Anything, "c1", 11000.0).Return(errors.New("boom")).Once()
		e := newTestExecutor(t, platform, nil, DefaultConfig())
		res := e.Execute(context.Background(), budgetIncrease(10000, 11000))
		assert.False(t, res.Success)
		assert.False(t, res.Executed)
		assert.Equal(t, "Meta APIからの予算更新に失敗しました", res.Message)
		assert.Equal(t, "boom", res.Error)
	})
}

func TestExecutor_NotifyOnly(t *testing.T) {
	platform := &mockPlatform{}
	cfg := DefaultConfig()
	cfg.Mode = ModeNotifyOnly
	e := newTestExecutor(t, platform, nil, cfg)

	res := e.Execute(context.Background(), budgetIncrease(10000, 11000))
	assert.True(t, res.Success)
	assert.False(t, res.Executed)
	assert.Equal(t, ModeNotifyOnly, res.Mode)
	assert.Equal(t, "通知モードのため実行はスキップ", res.Message)
	platform.AssertNotCalled(t, "UpdateBudget", mock.Anything, mock.Anything, mock.Anything)

	res = e.Execute(context.Background(), budgetIncrease(10000, 15000))
	assert.False(t, res.Success)
	assert.True(t, res.Refused())
	assert.Equal(t, ModeNotifyOnly, res.Mode)
	assert.Equal(t, "増額率50%は上限20%を超えています", res.Refusal)
}

func TestExecutor_ApproveAndExecute(t *testing.T) {
	ctx := context.Background()
	platform := &mockPlatform{}
	platform.On("UpdateBudget", mock.Anything, "c1", 11000.0).Return(nil).Once()
	e := newTestExecutor(t, platform, nil, DefaultConfig())

	id, err := e.Propose(ctx, budgetIncrease(10000, 11000))
	require.NoError(t, err)

	res, err := e.ApproveAndExecute(ctx, id)
	require.NoError(t, err)
	assert.True(t, res.Success)

	rec, err := e.Queue().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, rec.Status)
	require.NotNil(t, rec.Result)
	assert.Equal(t, res.Message, rec.Result.Message)

	// A second approval finds nothing pending.
	_, err = e.ApproveAndExecute(ctx, id)
	require.Error(t, err)
	platform.AssertNumberOfCalls(t, "UpdateBudget", 1)
}

func TestExecutor_ApproveRefusedStillRecorded(t *testing.T) {
	ctx := context.Background()
	platform := &mockPlatform{}
	e := newTestExecutor(t, platform, nil, DefaultConfig())

	id, err := e.Propose(ctx, budgetIncrease(10000, 15000))
	require.NoError(t, err)

	res, err := e.ApproveAndExecute(ctx, id)
	require.NoError(t, err)
	assert.True(t, res.Refused())

	rec, err := e.Queue().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, rec.Status)
	assert.False(t, rec.Result.Success)
	platform.AssertNotCalled(t, "UpdateBudget", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecutor_RejectThenApprove(t *testing.T) {
	ctx := context.Background()
	platform := &mockPlatform{}
	e := newTestExecutor(t, platform, nil, DefaultConfig())

	id, err := e.Propose(ctx, budgetIncrease(10000, 11000))
	require.NoError(t, err)
	_, err = e.Reject(ctx, id, "not now")
	require.NoError(t, err)

	_, err = e.ApproveAndExecute(ctx, id)
	require.Error(t, err)
	platform.AssertNotCalled(t, "UpdateBudget", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecutor_ExecuteDirect(t *testing.T) {
	ctx := context.Background()
	platform := &mockPlatform{}
	platform.On("UpdateStatus", mock.Anything, "c9", meta.StatusActive).Return(nil).Once()

	cfg := DefaultConfig()
	cfg.Mode = ModeNotifyOnly
	e := newTestExecutor(t, platform, nil, cfg)

	res, err := e.ExecuteDirect(ctx, NewStatusAction("c9", "Brand", "act_1", meta.StatusActive, "operator"))
	require.NoError(t, err)
	assert.True(t, res.Executed)

	history := e.Queue().History(ctx, 0)
	require.Len(t, history, 1)
	assert.Equal(t, KindDirectExecution, history[0].Kind)
	assert.Equal(t, StatusExecuted, history[0].Status)
	assert.Empty(t, e.Queue().Pending(ctx))
	platform.AssertExpectations(t)
}

func TestExecutor_ExecuteDirectRefused(t *testing.T) {
	ctx := context.Background()
	platform := &mockPlatform{}
	e := newTestExecutor(t, platform, nil, DefaultConfig())

	res, err := e.ExecuteDirect(ctx, budgetIncrease(10000, 15000))
	require.NoError(t, err)
	assert.True(t, res.Refused())

	history := e.Queue().History(ctx, 0)
	require.Len(t, history, 1)
	assert.Equal(t, StatusRejected, history[0].Status)
	assert.Equal(t, SourceRecommendation, history[0].Action.Source)
	platform.AssertNotCalled(t, "UpdateBudget", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecutor_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("approval required queues", func(t *testing.T) {
		e := newTestExecutor(t, &mockPlatform{}, nil, DefaultConfig())
		sub, err := e.Submit(ctx, budgetIncrease(10000, 11000))
		require.NoError(t, err)
		assert.NotEmpty(t, sub.ID)
		assert.Nil(t, sub.Result)
		assert.Len(t, e.Queue().Pending(ctx), 1)
	})

	t.Run("auto execute runs", func(t *testing.T) {
		platform := &mockPlatform{}
		platform.On("UpdateBudget", mock.Anything, "c1", 11000.0).Return(nil).Once()
		cfg := DefaultConfig()
		cfg.Mode = ModeAutoExecute
		e := newTestExecutor(t, platform, nil, cfg)

		sub, err := e.Submit(ctx, budgetIncrease(10000, 11000))
		require.NoError(t, err)
		require.NotNil(t, sub.Result)
		assert.True(t, sub.Result.Success)
		assert.Empty(t, e.Queue().Pending(ctx))
		platform.AssertExpectations(t)
	})
}

func TestExecutor_Guards(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Guards = []string{
		`action_type != "pause" || campaign_name != "Brand"`,
		`new_budget <= 100000.0`,
	}
	e := newTestExecutor(t, &mockPlatform{}, nil, cfg)

	assert.Empty(t, e.SafetyCheck(Action{Type: TypePause, CampaignName: "Prospecting"}))
	assert.Contains(t, e.SafetyCheck(Action{Type: TypePause, CampaignName: "Brand"}), "ガード条件を満たしていません")
	assert.Contains(t, e.SafetyCheck(Action{Type: TypeBudgetDecrease, Params: Params{NewBudget: 200000}}), "new_budget <= 100000.0")
	assert.Empty(t, e.SafetyCheck(Action{Type: TypeResume, CampaignName: "Brand"}))

	// Fixed bounds are reported before guards.
	assert.Equal(t, "増額率50%は上限20%を超えています", e.SafetyCheck(budgetIncrease(10000, 15000)))
}

func TestNewExecutor_InvalidConfig(t *testing.T) {
	q, _ := newTestQueue(t)

	_, err := NewExecutor(q, nil, nil, Config{Mode: "yolo"})
	require.Error(t, err)

	_, err = NewExecutor(q, nil, nil, Config{Guards: []string{"new_budget +"}})
	require.Error(t, err)

	_, err = NewExecutor(q, nil, nil, Config{Guards: []string{"new_budget"}})
	require.Error(t, err)
}
