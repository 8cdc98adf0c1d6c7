package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/adpilot/plugin/meta"
	"github.com/hrygo/adpilot/server/service/action"
	"github.com/hrygo/adpilot/server/service/insight"
	"github.com/hrygo/adpilot/server/service/judgment"
	"github.com/hrygo/adpilot/server/service/objective"
	"github.com/hrygo/adpilot/server/timezone"
	"github.com/hrygo/adpilot/store"
)

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}

func testInput() Input {
	traffic := objective.Classify("OUTCOME_TRAFFIC", false)
	sales := objective.Classify("OUTCOME_SALES", true)
	return Input{
		Campaigns: []CampaignResult{
			{
				Profile: judgment.CampaignProfile{
					ID:          "c1",
					Name:        "フォロー獲得",
					Objective:   "OUTCOME_TRAFFIC",
					DailyBudget: 10000,
					Periods: insight.Periods{
						Today:     insight.Snapshot{Counts: insight.Counts{Spend: 6000, Follows: 40}, CPF: 150},
						Yesterday: insight.Snapshot{Counts: insight.Counts{Spend: 8000, Follows: 80}, CPF: 100},
						Last7dAvg: insight.Snapshot{Counts: insight.Counts{Spend: 9000}, CPF: 120},
					},
				},
				KPI: traffic,
				Judgment: judgment.Judgment{
					Status: judgment.StatusCritical,
					Issues: []judgment.Issue{{Severity: judgment.IssueCritical, Message: "CPF悪化"}},
					Pacing: &judgment.BudgetPacing{Status: judgment.PacingOnTrack, Message: "順調"},
				},
			},
			{
				Profile:  judgment.CampaignProfile{ID: "c2", Name: "ASC売上", Objective: "OUTCOME_SALES", IsAdvantagePlus: true, DailyBudget: 30000},
				KPI:      sales,
				Judgment: judgment.Judgment{Status: judgment.StatusOpportunity, Positives: []string{"ROAS好調"}},
			},
		},
		Alerts:          []Highlight{{CampaignName: "フォロー獲得", Severity: "high", Message: "CPF悪化"}},
		LearningContext: "まだ学習データがありません",
		Now:             time.Date(2026, 10, 17, 3, 30, 0, 0, time.UTC),
	}
}

func TestBuildPrompt(t *testing.T) {
	system, user, err := BuildPrompt(testInput(), timezone.LocationAsiaTokyo)
	require.NoError(t, err)

	assert.Contains(t, system, "is_traffic_campaign")
	assert.Contains(t, system, "JSON配列のみ")

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(user), &payload))
	assert.Equal(t, "2026-10-17 12:30 (Asia/Tokyo)", payload["current_time"])
	assert.Equal(t, "まだ学習データがありません", payload["learning_context"])
	assert.Empty(t, payload["opportunities"])

	campaigns := payload["campaigns"].([]any)
	require.Len(t, campaigns, 2)
	first := campaigns[0].(map[string]any)
	assert.Equal(t, "フォロー獲得", first["name"])
	assert.Equal(t, true, first["is_traffic_campaign"])
	assert.Equal(t, []any{"CPF悪化"}, first["issues"])

	yesterday := first["vs_yesterday"].(map[string]any)
	assert.Equal(t, -25.0, yesterday["spend_change"])
	assert.Equal(t, 50.0, yesterday["cpf_change"])
	assert.Equal(t, 0.0, yesterday["cpa_change"])
	avg := first["vs_7d_avg"].(map[string]any)
	assert.Equal(t, 25.0, avg["cpf_change"])
	assert.Equal(t, "on_track", first["budget_status"].(map[string]any)["status"])

	second := campaigns[1].(map[string]any)
	assert.NotEmpty(t, second["special_notes"])
	assert.Nil(t, second["budget_status"])
}

func TestRequest_ValidatesAndCaps(t *testing.T) {
	reply := "提案です:\n```json\n[" +
		`{"priority":"high","campaign_name":"フォロー獲得","action_type":"budget_decrease","params":{"current_value":10000,"new_value":"8,000","change_percent":-20},"reason":"CPF悪化"},` +
		`{"priority":"urgent","campaign_name":"ASC売上","action_type":"budget_increase","params":{"current_value":30000,"new_value":36000},"reason":"ROAS好調"},` +
		`{"priority":"low","campaign_name":"存在しない","action_type":"pause"},` +
		`{"priority":"low","campaign_name":"ASC売上","action_type":"delete"},` +
		`{"priority":"low","campaign_name":"フォロー獲得","action_type":"none"},` +
		`{"priority":"low","campaign_name":"ASC売上","action_type":"pause"}` +
		"]\n```"
	llm := &mockLLM{}
	llm.On("Complete", mock.Anything, systemPrompt, mock.AnythingOfType("string")).Return(reply, nil).Once()

	r := NewRequester(llm, Config{})
	out := r.Request(context.Background(), testInput())

	assert.Equal(t, StatusOK, out.Status)
	require.Len(t, out.Recommendations, 3)
	assert.Equal(t, 3, out.Dropped)

	first := out.Recommendations[0]
	assert.Equal(t, "c1", first.CampaignID)
	assert.Equal(t, 8000.0, float64(first.Params.NewValue))
	assert.Equal(t, PriorityMedium, out.Recommendations[1].Priority)
	assert.Equal(t, ActionNone, out.Recommendations[2].ActionType)
	llm.AssertExpectations(t)
}

func TestRequest_FailSoft(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		err    error
		status Status
	}{
		{name: "llm error", err: errors.New("timeout"), status: StatusError},
		{name: "prose only", reply: "特に問題はありません。", status: StatusUnparseable},
		{name: "empty array", reply: "[]", status: StatusEmpty},
		{name: "wrapped object", reply: `{"recommendations":[]}`, status: StatusEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockLLM{}
			llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return(tt.reply, tt.err)

			out := NewRequester(llm, Config{}).Request(context.Background(), testInput())
			assert.Equal(t, tt.status, out.Status)
			assert.NotNil(t, out.Recommendations)
			assert.Empty(t, out.Recommendations)
		})
	}
}

func TestRequest_Disabled(t *testing.T) {
	r := NewRequester(nil, Config{})
	assert.False(t, r.Enabled())
	out := r.Request(context.Background(), testInput())
	assert.Equal(t, StatusDisabled, out.Status)
	assert.Empty(t, out.Recommendations)
}

func TestToAction(t *testing.T) {
	c := judgment.CampaignProfile{ID: "c1", Name: "フォロー獲得", DailyBudget: 10000}

	a, ok := ToAction(Recommendation{
		ActionType: ActionBudgetIncrease,
		Params:     Params{NewValue: 12000},
		Reason:     "CPF良好",
	}, c, "act_1")
	require.True(t, ok)
	assert.Equal(t, action.TypeBudgetIncrease, a.Type)
	assert.Equal(t, 10000.0, a.Params.CurrentBudget)
	assert.Equal(t, 12000.0, a.Params.NewBudget)
	assert.InDelta(t, 20.0, a.Params.IncreasePercent, 1e-9)
	assert.Equal(t, action.SourceRecommendation, a.Source)
	assert.Equal(t, "act_1", a.AccountID)

	a, ok = ToAction(Recommendation{ActionType: ActionBudgetDecrease, Params: Params{CurrentValue: 10000, NewValue: 8000, ChangePercent: -20}}, c, "act_1")
	require.True(t, ok)
	assert.Equal(t, action.TypeBudgetDecrease, a.Type)
	assert.Zero(t, a.Params.IncreasePercent)
	assert.InDelta(t, -20.0, a.Params.ChangePercent, 1e-9)

	a, ok = ToAction(Recommendation{ActionType: ActionPause}, c, "act_1")
	require.True(t, ok)
	assert.Equal(t, action.TypePause, a.Type)

	_, ok = ToAction(Recommendation{ActionType: ActionNone}, c, "act_1")
	assert.False(t, ok)
	_, ok = ToAction(Recommendation{ActionType: ActionBudgetIncrease}, c, "act_1")
	assert.False(t, ok)
	_, ok = ToAction(Recommendation{ActionType: ActionBudgetIncrease, Params: Params{NewValue: 12000}},
		judgment.CampaignProfile{ID: "c2"}, "act_1")
	assert.False(t, ok)
}

func TestToAction_BudgetFromCampaign(t *testing.T) {
	c := judgment.CampaignProfile{ID: "c1", Name: "フォロー獲得", DailyBudget: 10000}
	tests := []struct {
		name    string
		rec     Recommendation
		typ     action.Type
		current float64
		next    float64
		pct     float64
	}{
		{
			name:    "model current value ignored",
			rec:     Recommendation{ActionType: ActionBudgetIncrease, Params: Params{CurrentValue: 14000, NewValue: 15000}},
			typ:     action.TypeBudgetIncrease,
			current: 10000,
			next:    15000,
			pct:     50,
		},
		{
			name:    "model change percent ignored",
			rec:     Recommendation{ActionType: ActionBudgetIncrease, Params: Params{CurrentValue: 10000, NewValue: 15000, ChangePercent: 10}},
			typ:     action.TypeBudgetIncrease,
			current: 10000,
			next:    15000,
			pct:     50,
		},
		{
			name:    "decrease that raises keeps its sign",
			rec:     Recommendation{ActionType: ActionBudgetDecrease, Params: Params{NewValue: 900000}},
			typ:     action.TypeBudgetDecrease,
			current: 10000,
			next:    900000,
			pct:     8900,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := ToAction(tt.rec, c, "act_1")
			require.True(t, ok)
			assert.Equal(t, tt.typ, a.Type)
			assert.Equal(t, tt.current, a.Params.CurrentBudget)
			assert.Equal(t, tt.next, a.Params.NewBudget)
			assert.InDelta(t, tt.pct, a.Params.ChangePercent, 1e-9)
			assert.InDelta(t, tt.pct, a.Params.EffectiveIncreasePercent(), 1e-9)
		})
	}
}

type spyPlatform struct {
	mock.Mock
}

func (m *spyPlatform) UpdateBudget(ctx context.Context, campaignID string, dailyBudget float64) error {
	return m.Called(ctx, campaignID, dailyBudget).Error(0)
}

func (m *spyPlatform) UpdateStatus(ctx context.Context, campaignID string, status meta.Status) error {
	return m.Called(ctx, campaignID, status).Error(0)
}

func (m *spyPlatform) CampaignSnapshot(ctx context.Context, accountID, campaignID string, period insight.Period) (insight.Snapshot, error) {
	args := m.Called(ctx, accountID, campaignID, period)
	return args.Get(0).(insight.Snapshot), args.Error(1)
}

func TestToAction_ExecutorRefusesOversizedBudgets(t *testing.T) {
	c := judgment.CampaignProfile{ID: "c1", Name: "フォロー獲得", DailyBudget: 10000}
	platform := &spyPlatform{}
	cfg := action.DefaultConfig()
	cfg.Mode = action.ModeAutoExecute
	e, err := action.NewExecutor(action.NewQueue(store.New(store.NewMemoryDriver())), platform, nil, cfg)
	require.NoError(t, err)

	recs := []Recommendation{
		{ActionType: ActionBudgetIncrease, Params: Params{CurrentValue: 14000, NewValue: 15000}},
		{ActionType: ActionBudgetIncrease, Params: Params{CurrentValue: 10000, NewValue: 15000, ChangePercent: 10}},
		{ActionType: ActionBudgetDecrease, Params: Params{NewValue: 900000}},
	}
	for _, rec := range recs {
		a, ok := ToAction(rec, c, "act_1")
		require.True(t, ok)
		res := e.Execute(context.Background(), a)
		assert.False(t, res.Success, rec.ActionType)
		assert.True(t, res.Refused(), rec.ActionType)
	}
	platform.AssertNotCalled(t, "UpdateBudget", mock.Anything, mock.Anything, mock.Anything)
}

func TestNumberUnmarshal(t *testing.T) {
	var p Params
	require.NoError(t, json.Unmarshal([]byte(`{"current_value":"¥10,000","new_value":12000.5,"change_percent":"+20%"}`), &p))
	assert.Equal(t, 10000.0, float64(p.CurrentValue))
	assert.Equal(t, 12000.5, float64(p.NewValue))
	assert.Equal(t, 20.0, float64(p.ChangePercent))

	assert.Error(t, json.Unmarshal([]byte(`{"new_value":"abc"}`), &p))
}
