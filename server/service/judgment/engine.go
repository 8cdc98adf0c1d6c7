package judgment

import (
	"fmt"
	"time"

	"github.com/hrygo/adpilot/internal/format"
	"github.com/hrygo/adpilot/internal/observability"
	"github.com/hrygo/adpilot/server/service/insight"
	"github.com/hrygo/adpilot/server/service/objective"
	"github.com/hrygo/adpilot/server/service/target"
	"github.com/hrygo/adpilot/server/timezone"
)

// DefaultMinDailySpend is the noise floor below which a campaign is not judged.
const DefaultMinDailySpend = 1000

// Drops larger than this share (percent) day over day raise a warning.
const sharpDropPercent = -50

// Config holds the engine settings.
type Config struct {
	// MinDailySpend is the noise floor in account currency.
	MinDailySpend float64
	// Location is the zone the account reports its day in.
	Location *time.Location
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MinDailySpend: DefaultMinDailySpend,
		Location:      timezone.LocationAsiaTokyo,
	}
}

// Engine judges campaigns. It holds no per-campaign state and is safe for
// concurrent use.
type Engine struct {
	config  Config
	now     func() time.Time
	metrics *observability.Metrics
}

// NewEngine creates a judgment engine; zero config values take defaults.
func NewEngine(config Config) *Engine {
	if config.MinDailySpend <= 0 {
		config.MinDailySpend = DefaultMinDailySpend
	}
	if config.Location == nil {
		config.Location = timezone.LocationAsiaTokyo
	}
	return &Engine{
		config: config,
		now:    time.Now,
	}
}

// SetClock overrides the clock used for pacing (tests).
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// SetMetrics attaches Prometheus collectors.
func (e *Engine) SetMetrics(m *observability.Metrics) {
	e.metrics = m
}

// Judge renders the verdict for one campaign.
func (e *Engine) Judge(c CampaignProfile, kpi objective.KPIProfile, targets target.TargetSet) Judgment {
	j := e.judge(c, kpi, targets)
	pacing := e.Pace(c.Periods.Today.Spend, c.DailyBudget)
	j.Pacing = &pacing
	e.metrics.RecordJudgment(string(kpi.PrimaryKPI), string(j.Status))
	return j
}

func (e *Engine) judge(c CampaignProfile, kpi objective.KPIProfile, targets target.TargetSet) Judgment {
	today := c.Periods.Today
	if today.Spend < e.config.MinDailySpend {
		reason := fmt.Sprintf("消化が少ないため分析スキップ（%s < %s）",
			format.Yen(today.Spend), format.Yen(e.config.MinDailySpend))
		return Judgment{
			Status:      StatusInsufficientData,
			Severity:    SeverityNone,
			Summary:     reason,
			SkipReason:  reason,
			Issues:      []Issue{},
			Positives:   []string{},
			Comparisons: []Comparison{},
		}
	}

	r := &rules{
		periods:     c.Periods,
		kpi:         kpi,
		targets:     targets,
		issues:      []Issue{},
		positives:   []string{},
		comparisons: []Comparison{},
	}

	switch kpi.PrimaryKPI {
	case objective.KPICPF:
		r.checkCPF()
	case objective.KPIROAS:
		r.checkROAS()
	case objective.KPICPA:
		r.checkCPA()
	case objective.KPICPM:
		r.checkCPM()
	case objective.KPISpend:
		// No primary evaluation.
	}

	r.checkCTR()
	if !kpi.IgnoreConversions {
		r.checkCVR()
	}
	r.compareSpend()

	return r.verdict()
}

// verdict applies the tie-break: a warning needs strictly more warnings than
// positives, an opportunity strictly more positives than warnings.
func (r *rules) verdict() Judgment {
	j := Judgment{
		Issues:      r.issues,
		Positives:   r.positives,
		Comparisons: r.comparisons,
	}
	critical := j.Count(IssueCritical)
	warnings := j.Count(IssueWarning)
	positives := len(r.positives)

	switch {
	case critical > 0:
		j.Status, j.Severity = StatusCritical, SeverityHigh
		j.Summary = fmt.Sprintf("🔴 要対応: %d件の重大な問題", critical)
	case positives > warnings:
		j.Status, j.Severity = StatusOpportunity, SeverityNone
		j.Summary = fmt.Sprintf("🟢 好調: %d件のポジティブ要素", positives)
	case warnings > positives:
		j.Status, j.Severity = StatusWarning, SeverityMedium
		j.Summary = fmt.Sprintf("🟡 注意: %d件の確認事項", warnings)
	default:
		j.Status, j.Severity = StatusNormal, SeverityNone
		j.Summary = "✅ 正常稼働中"
	}
	return j
}

// rules accumulates the findings of one judgment.
type rules struct {
	periods insight.Periods
	kpi     objective.KPIProfile
	targets target.TargetSet

	issues      []Issue
	positives   []string
	comparisons []Comparison
}

func (r *rules) issue(level IssueLevel, msg string, args ...any) {
	r.issues = append(r.issues, Issue{Severity: level, Message: fmt.Sprintf(msg, args...)})
}

func (r *rules) positive(msg string, args ...any) {
	r.positives = append(r.positives, fmt.Sprintf(msg, args...))
}

// compare records a comparison when both values are positive.
func (r *rules) compare(metric string, today, ref float64, label, note string) (float64, bool) {
	if today <= 0 {
		return 0, false
	}
	change, ok := insight.ChangePercent(today, ref)
	if !ok {
		return 0, false
	}
	r.comparisons = append(r.comparisons, Comparison{
		Metric:         metric,
		TodayValue:     today,
		ReferenceValue: ref,
		ChangePercent:  change,
		ReferenceLabel: label,
		Note:           note,
	})
	return change, true
}

// line returns the operator override when set, else the classifier threshold,
// else fallback.
func (r *rules) line(targetName, thresholdName string, fallback float64) float64 {
	if v, ok := r.targets.Value(targetName); ok {
		return v
	}
	if v, ok := r.kpi.Threshold(thresholdName); ok {
		return v
	}
	return fallback
}

func (r *rules) checkCPF() {
	today, avg7 := r.periods.Today, r.periods.Last7dAvg

	targetCPF := r.line(target.TargetCPF, objective.CPFGood, 50)
	critical := r.line(target.CPFCritical, objective.CPFCritical, 200)
	// An explicit operator target tightens the warning line unless a
	// dedicated warning override exists.
	warning, ok := r.targets.Value(target.CPFWarning)
	if !ok {
		if explicit, set := r.targets.Value(target.TargetCPF); set {
			warning = explicit
		} else {
			warning = r.line("", objective.CPFWarning, 100)
		}
	}

	if today.Follows > 0 {
		r.positive("本日のフォロー: %s件", format.Number(today.Follows))
	}

	switch {
	case today.CPF > 0:
		switch {
		case today.CPF <= targetCPF:
			r.positive("CPF良好: ¥%.0f (目標: ¥%s)", today.CPF, format.Number(targetCPF))
		case today.CPF > critical:
			r.issue(IssueCritical, "CPF高騰: ¥%.0f (目標: ¥%s)", today.CPF, format.Number(targetCPF))
		case today.CPF > warning:
			r.issue(IssueWarning, "CPF注意: ¥%.0f (目標: ¥%s)", today.CPF, format.Number(targetCPF))
		}
		r.compare("CPF", today.CPF, avg7.CPF, Vs7DayAvg, "")
	case today.Follows == 0 && today.Spend > 0:
		r.issue(IssueWarning, "フォロー0件で%s消化中", format.Yen(today.Spend))
	}
}

func (r *rules) checkROAS() {
	today, avg7 := r.periods.Today, r.periods.Last7dAvg

	targetROAS := r.line(target.TargetROAS, objective.ROASGood, 3.0)
	critical := r.line(target.ROASCritical, objective.ROASCritical, 1.0)
	warning := r.line(target.ROASWarning, objective.ROASWarning, 2.0)

	if today.ROAS > 0 {
		switch {
		case today.ROAS >= targetROAS:
			r.positive("ROAS達成: %.2fx (目標: %sx)", today.ROAS, format.Number(targetROAS))
		case today.ROAS < critical:
			r.issue(IssueCritical, "ROAS赤字: %.2fx (目標: %sx)", today.ROAS, format.Number(targetROAS))
		case today.ROAS < warning:
			r.issue(IssueWarning, "ROAS低下: %.2fx (目標: %sx)", today.ROAS, format.Number(targetROAS))
		}
	}
	r.compare("ROAS", today.ROAS, avg7.ROAS, Vs7DayAvg, "")
}

func (r *rules) checkCPA() {
	today := r.periods.Today

	targetCPA, ok := r.targets.Value(target.TargetCPA)
	if ok && targetCPA > 0 && today.CPA > 0 {
		ratio := today.CPA / targetCPA
		good, _ := r.kpi.Threshold(objective.CPAGoodRatio)
		if good == 0 {
			good = 0.7
		}
		critical, _ := r.kpi.Threshold(objective.CPACriticalRatio)
		if critical == 0 {
			critical = 1.3
		}
		warning, _ := r.kpi.Threshold(objective.CPAWarningRatio)
		if warning == 0 {
			warning = 1.0
		}

		switch {
		case ratio <= good:
			r.positive("CPA好調: %s (目標: %s)", format.Yen(today.CPA), format.Yen(targetCPA))
		case ratio >= critical:
			r.issue(IssueCritical, "CPA超過: %s (目標: %sの%.0f%%)", format.Yen(today.CPA), format.Yen(targetCPA), ratio*100)
		case ratio >= warning:
			r.issue(IssueWarning, "CPA注意: %s (目標: %s)", format.Yen(today.CPA), format.Yen(targetCPA))
		}
	}

	r.compare("CPA", today.CPA, r.periods.Yesterday.CPA, VsYesterday, "")
	r.compare("CPA", today.CPA, r.periods.Last7dAvg.CPA, Vs7DayAvg, "")
}

func (r *rules) checkCPM() {
	today := r.periods.Today

	if good, ok := r.kpi.Threshold(objective.CPMGood); ok && today.CPM > 0 {
		warning, _ := r.kpi.Threshold(objective.CPMWarning)
		switch {
		case today.CPM <= good:
			r.positive("CPM良好: %s (基準: %s)", format.Yen(today.CPM), format.Yen(good))
		case warning > 0 && today.CPM > warning:
			r.issue(IssueWarning, "CPM高騰: %s (基準: %s)", format.Yen(today.CPM), format.Yen(warning))
		}
	}

	if limit, ok := r.kpi.Threshold(objective.FrequencyWarning); ok && today.Reach > 0 {
		if freq := today.Impressions / today.Reach; freq > limit {
			r.issue(IssueWarning, "フリークエンシー過多: %.1f回 (上限: %s回)", freq, format.Number(limit))
		}
	}
	r.compare("CPM", today.CPM, r.periods.Last7dAvg.CPM, Vs7DayAvg, "")
}

func (r *rules) checkCTR() {
	today, yesterday := r.periods.Today, r.periods.Yesterday

	note := ""
	if r.kpi.IsTrafficCampaign {
		note = "（トラフィックでは参考値）"
	}
	change, ok := r.compare("CTR", today.CTR, yesterday.CTR, VsYesterday, note)
	if ok && !r.kpi.IsTrafficCampaign && change < sharpDropPercent {
		r.issue(IssueWarning, "CTR急落: %.2f%% → %.2f%% (%+.0f%%)", yesterday.CTR, today.CTR, change)
	}
}

func (r *rules) checkCVR() {
	today, yesterday := r.periods.Today, r.periods.Yesterday

	change, ok := r.compare("CVR", today.CVR, yesterday.CVR, VsYesterday, "")
	if ok && change < sharpDropPercent {
		r.issue(IssueWarning, "CVR急落: %.2f%% → %.2f%% (%+.0f%%)", yesterday.CVR, today.CVR, change)
	}
}

// compareSpend records spend movement; spend swings never raise issues.
func (r *rules) compareSpend() {
	today := r.periods.Today.Spend
	r.compare("消化", today, r.periods.Yesterday.Spend, VsYesterday, "")
	r.compare("消化", today, r.periods.Last7dAvg.Spend, Vs7DayAvg, "")
}
