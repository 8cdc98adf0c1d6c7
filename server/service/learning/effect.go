package learning

import (
	"fmt"

	"github.com/hrygo/adpilot/internal/format"
	"github.com/hrygo/adpilot/server/service/action"
	"github.com/hrygo/adpilot/server/service/insight"
)

// Effect classifies the measured outcome of an action.
type Effect string

const (
	EffectImproved Effect = "improved"
	EffectWorsened Effect = "worsened"
	EffectNeutral  Effect = "neutral"
)

// Icon returns the marker used in prompts and reports.
func (e Effect) Icon() string {
	switch e {
	case EffectImproved:
		return "✅"
	case EffectWorsened:
		return "❌"
	case EffectNeutral:
		return "➖"
	}
	return "❓"
}

// Metrics is the subset of a snapshot compared before and after an action.
type Metrics struct {
	Spend float64 `json:"spend"`
	CPA   float64 `json:"cpa"`
	ROAS  float64 `json:"roas"`
	CTR   float64 `json:"ctr"`
	CPF   float64 `json:"cpf"`
}

// MetricsFrom extracts the compared metrics of a snapshot.
func MetricsFrom(s insight.Snapshot) Metrics {
	return Metrics{
		Spend: s.Spend,
		CPA:   s.CPA,
		ROAS:  s.ROAS,
		CTR:   s.CTR,
		CPF:   s.CPF,
	}
}

// Verdict is the classified effect of one action.
type Verdict struct {
	Effect     Effect  `json:"effect"`
	Detail     string  `json:"effect_detail"`
	Confidence float64 `json:"confidence"`
}

func change(before, after float64) float64 {
	if before > 0 {
		return (after - before) / before * 100
	}
	return 0
}

// DetermineEffect compares the metrics after an action with its baseline.
// For budget increases CPA is checked first, then ROAS, then CPF; the first
// rule that fires wins. A metric is only compared when both values are
// positive.
func DetermineEffect(t action.Type, baseline, current Metrics) Verdict {
	switch t {
	case action.TypeBudgetIncrease, action.TypeBudgetChange:
		if current.CPA > 0 && baseline.CPA > 0 {
			chg := change(baseline.CPA, current.CPA)
			if chg < -10 {
				return Verdict{EffectImproved, fmt.Sprintf("CPA改善: %s→%s (%+.0f%%)", format.Yen(baseline.CPA), format.Yen(current.CPA), chg), 0.8}
			}
			if chg > 20 {
				return Verdict{EffectWorsened, fmt.Sprintf("CPA悪化: %s→%s (%+.0f%%)", format.Yen(baseline.CPA), format.Yen(current.CPA), chg), 0.8}
			}
		}
		if current.ROAS > 0 && baseline.ROAS > 0 {
			chg := change(baseline.ROAS, current.ROAS)
			if chg > 10 {
				return Verdict{EffectImproved, fmt.Sprintf("ROAS改善: %.2f→%.2f (%+.0f%%)", baseline.ROAS, current.ROAS, chg), 0.8}
			}
			if chg < -20 {
				return Verdict{EffectWorsened, fmt.Sprintf("ROAS悪化: %.2f→%.2f (%+.0f%%)", baseline.ROAS, current.ROAS, chg), 0.8}
			}
		}
		if current.CPF > 0 && baseline.CPF > 0 {
			chg := change(baseline.CPF, current.CPF)
			if chg < -10 {
				return Verdict{EffectImproved, fmt.Sprintf("CPF改善: %s→%s (%+.0f%%)", format.Yen(baseline.CPF), format.Yen(current.CPF), chg), 0.8}
			}
			if chg > 20 {
				return Verdict{EffectWorsened, fmt.Sprintf("CPF悪化: %s→%s (%+.0f%%)", format.Yen(baseline.CPF), format.Yen(current.CPF), chg), 0.8}
			}
		}
	case action.TypeBudgetDecrease:
		if current.CPA > 0 && baseline.CPA > 0 && change(baseline.CPA, current.CPA) < 10 {
			return Verdict{EffectImproved, fmt.Sprintf("予算削減しつつCPA維持: %s→%s", format.Yen(baseline.CPA), format.Yen(current.CPA)), 0.7}
		}
	case action.TypePause:
		// Stopping spend counts as a win whatever the later metrics show.
		return Verdict{EffectImproved, fmt.Sprintf("消化停止: %s/日の消化を停止", format.Yen(baseline.Spend)), 0.9}
	case action.TypeResume, action.TypeStatusChange:
	}
	return Verdict{EffectNeutral, "明確な効果は確認できず", 0.5}
}
