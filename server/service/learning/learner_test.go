package learning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/adpilot/server/service/action"
	"github.com/hrygo/adpilot/server/service/insight"
	"github.com/hrygo/adpilot/store"
)

type fakeSource struct {
	snapshots map[string]insight.Snapshot
	err       error
	calls     int
}

func (f *fakeSource) CampaignSnapshot(_ context.Context, _, campaignID string, period insight.Period) (insight.Snapshot, error) {
	f.calls++
	if period != insight.PeriodLast7d {
		return insight.Snapshot{}, errors.New("unexpected period")
	}
	if f.err != nil {
		return insight.Snapshot{}, f.err
	}
	s, ok := f.snapshots[campaignID]
	if !ok {
		return insight.Snapshot{}, errors.New("no insights")
	}
	return s, nil
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func newTestLearner(t *testing.T, source SnapshotSource) (*Learner, *clock, *store.MemoryDriver) {
	t.Helper()
	driver := store.NewMemoryDriver()
	l := NewLearner(store.New(driver), source, Config{})
	c := &clock{t: time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)}
	l.SetClock(c.now)
	return l, c, driver
}

func snapshot(spend, cpa, roas, cpf float64) insight.Snapshot {
	return insight.Snapshot{Counts: insight.Counts{Spend: spend}, CPA: cpa, ROAS: roas, CPF: cpf}
}

func TestRecordBaseline(t *testing.T) {
	ctx := context.Background()
	l, c, _ := newTestLearner(t, nil)

	id, err := l.RecordBaseline(ctx, action.Action{Type: action.TypePause, CampaignID: "c1", AccountID: "act_1"}, snapshot(20000, 0, 0, 0))
	require.NoError(t, err)

	pending := l.Pending(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, StatusPendingAnalysis, pending[0].Status)
	assert.Equal(t, c.t.Add(24*time.Hour), pending[0].AnalyzeAfter)
	assert.Equal(t, 20000.0, pending[0].Baseline.Spend)
	assert.Equal(t, "act_1", pending[0].AccountID)
}

func TestAnalyzePending_RespectsDelay(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{snapshots: map[string]insight.Snapshot{"c1": snapshot(0, 0, 0, 0)}}
	l, c, _ := newTestLearner(t, source)

	_, err := l.RecordBaseline(ctx, action.Action{Type: action.TypePause, CampaignID: "c1"}, snapshot(20000, 0, 0, 0))
	require.NoError(t, err)

	for _, elapsed := range []time.Duration{0, time.Hour, 23*time.Hour + 59*time.Minute} {
		c.t = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC).Add(elapsed)
		analyzed, err := l.AnalyzePending(ctx)
		require.NoError(t, err)
		assert.Empty(t, analyzed, "analyzed after %v", elapsed)
		assert.Len(t, l.Pending(ctx), 1)
	}
	assert.Zero(t, source.calls)

	c.t = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	analyzed, err := l.AnalyzePending(ctx)
	require.NoError(t, err)
	require.Len(t, analyzed, 1)
	assert.Empty(t, l.Pending(ctx))
	assert.Len(t, l.Learnings(ctx), 1)
}

func TestAnalyzePending_PauseScenario(t *testing.T) {
	ctx := context.Background()
	// Post-pause metrics are irrelevant to the verdict.
	source := &fakeSource{snapshots: map[string]insight.Snapshot{"c1": snapshot(500, 99999, 0.1, 999)}}
	l, c, _ := newTestLearner(t, source)

	_, err := l.RecordBaseline(ctx, action.Action{Type: action.TypePause, CampaignID: "c1"}, snapshot(20000, 3000, 1.2, 0))
	require.NoError(t, err)

	c.t = c.t.Add(25 * time.Hour)
	analyzed, err := l.AnalyzePending(ctx)
	require.NoError(t, err)
	require.Len(t, analyzed, 1)

	rec := analyzed[0]
	assert.Equal(t, StatusAnalyzed, rec.Status)
	assert.Equal(t, EffectImproved, rec.Effect)
	assert.Equal(t, 0.9, rec.Confidence)
	assert.Equal(t, "消化停止: ¥20,000/日の消化を停止", rec.EffectDetail)
	require.NotNil(t, rec.After)
	assert.Equal(t, 500.0, rec.After.Spend)
	require.NotNil(t, rec.AnalyzedAt)
}

func TestAnalyzePending_FetchFailureKeepsPending(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{err: errors.New("graph down")}
	l, c, _ := newTestLearner(t, source)

	_, err := l.RecordBaseline(ctx, action.Action{Type: action.TypeBudgetIncrease, CampaignID: "c1"}, snapshot(1000, 500, 0, 0))
	require.NoError(t, err)

	c.t = c.t.Add(48 * time.Hour)
	analyzed, err := l.AnalyzePending(ctx)
	require.NoError(t, err)
	assert.Empty(t, analyzed)
	assert.Len(t, l.Pending(ctx), 1)

	// The next pass picks it up once the platform answers.
	source.err = nil
	source.snapshots = map[string]insight.Snapshot{"c1": snapshot(1000, 400, 0, 0)}
	analyzed, err = l.AnalyzePending(ctx)
	require.NoError(t, err)
	require.Len(t, analyzed, 1)
	assert.Equal(t, EffectImproved, analyzed[0].Effect)
}

func TestAnalyzePending_NoSource(t *testing.T) {
	ctx := context.Background()
	l, c, _ := newTestLearner(t, nil)

	_, err := l.RecordBaseline(ctx, action.Action{Type: action.TypePause, CampaignID: "c1"}, snapshot(1000, 0, 0, 0))
	require.NoError(t, err)
	c.t = c.t.Add(48 * time.Hour)

	analyzed, err := l.AnalyzePending(ctx)
	require.NoError(t, err)
	assert.Empty(t, analyzed)
	assert.Len(t, l.Pending(ctx), 1)
}

func TestAnalyzePending_WriteFailure(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{snapshots: map[string]insight.Snapshot{"c1": snapshot(0, 0, 0, 0)}}
	l, c, driver := newTestLearner(t, source)

	_, err := l.RecordBaseline(ctx, action.Action{Type: action.TypePause, CampaignID: "c1"}, snapshot(1000, 0, 0, 0))
	require.NoError(t, err)
	c.t = c.t.Add(48 * time.Hour)

	driver.FailSaves = true
	driver.SaveErr = errors.New("read-only")
	_, err = l.AnalyzePending(ctx)
	require.Error(t, err)

	driver.FailSaves = false
	assert.Len(t, l.Pending(ctx), 1)
}

func TestSimilarLearningsAndSuccessRate(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{snapshots: map[string]insight.Snapshot{
		"better": snapshot(1000, 800, 0, 0),
		"worse":  snapshot(1000, 1500, 0, 0),
		"flat":   snapshot(1000, 1050, 0, 0),
		"paused": snapshot(0, 0, 0, 0),
	}}
	l, c, _ := newTestLearner(t, source)

	for _, id := range []string{"better", "worse", "flat"} {
		_, err := l.RecordBaseline(ctx, action.Action{Type: action.TypeBudgetIncrease, CampaignID: id}, snapshot(1000, 1000, 0, 0))
		require.NoError(t, err)
	}
	_, err := l.RecordBaseline(ctx, action.Action{Type: action.TypePause, CampaignID: "paused"}, snapshot(3000, 0, 0, 0))
	require.NoError(t, err)

	c.t = c.t.Add(25 * time.Hour)
	analyzed, err := l.AnalyzePending(ctx)
	require.NoError(t, err)
	require.Len(t, analyzed, 4)

	similar := l.SimilarLearnings(ctx, action.TypeBudgetIncrease, 2)
	require.Len(t, similar, 2)
	assert.Equal(t, "flat", similar[0].CampaignID)
	assert.Equal(t, "worse", similar[1].CampaignID)

	rate := l.SuccessRate(ctx, action.TypeBudgetIncrease)
	assert.Equal(t, 3, rate.Total)
	assert.Equal(t, 1, rate.Improved)
	assert.Equal(t, 1, rate.Worsened)
	assert.Equal(t, 1, rate.Neutral)
	assert.InDelta(t, 33.33, rate.SuccessRate, 0.01)
	assert.Equal(t, Rate{}, l.SuccessRate(ctx, action.TypeResume))

	summary := l.Summary(ctx)
	assert.Equal(t, 4, summary.TotalLearnings)
	assert.Zero(t, summary.PendingAnalysis)
	assert.Equal(t, 1, summary.ByActionType[action.TypePause].Improved)
	assert.Len(t, summary.ByActionType, 4)
	assert.Len(t, summary.RecentLearnings, 4)
}

func TestFormatForPrompt(t *testing.T) {
	l, _, _ := newTestLearner(t, nil)

	assert.Equal(t, "過去の類似アクションの学習データはありません。", l.FormatForPrompt(nil))

	got := l.FormatForPrompt([]Record{{
		Action:       action.Action{Type: action.TypeBudgetIncrease},
		ExecutedAt:   time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC),
		Baseline:     Metrics{CPA: 2000, ROAS: 2.5},
		After:        &Metrics{CPA: 1500, ROAS: 3.1},
		Effect:       EffectImproved,
		EffectDetail: "CPA改善: ¥2,000→¥1,500 (-25%)",
	}})
	want := "## 過去の類似アクションの結果\n" +
		"\n### 1. ✅ CPA改善: ¥2,000→¥1,500 (-25%)\n" +
		"- 実行日: 2026-10-15\n" +
		"- アクション: budget_increase\n" +
		"- CPA: ¥2,000 → ¥1,500\n" +
		"- ROAS: 2.50 → 3.10"
	assert.Equal(t, want, got)
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{snapshots: map[string]insight.Snapshot{"c1": snapshot(0, 0, 0, 0), "c2": snapshot(1000, 2000, 0, 0)}}
	l, c, _ := newTestLearner(t, source)

	assert.Equal(t, "まだ学習データがありません（アクション実行後24時間で効果が学習されます）", l.Context(ctx))

	_, err := l.RecordBaseline(ctx, action.Action{Type: action.TypePause, CampaignID: "c1"}, snapshot(5000, 0, 0, 0))
	require.NoError(t, err)
	_, err = l.RecordBaseline(ctx, action.Action{Type: action.TypeBudgetIncrease, CampaignID: "c2"}, snapshot(1000, 1000, 0, 0))
	require.NoError(t, err)
	c.t = c.t.Add(25 * time.Hour)
	_, err = l.AnalyzePending(ctx)
	require.NoError(t, err)

	want := "- budget_increase: 成功率0% (成功0/失敗1/中立0)\n" +
		"- pause: 成功率100% (成功1/失敗0/中立0)\n" +
		"\n### 直近の学習事例:\n" +
		"✅ 消化停止: ¥5,000/日の消化を停止\n" +
		"❌ CPA悪化: ¥1,000→¥2,000 (+100%)"
	assert.Equal(t, want, l.Context(ctx))
}
