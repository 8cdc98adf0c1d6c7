package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/adpilot/server/service/action"
)

func TestDetermineEffect(t *testing.T) {
	tests := []struct {
		name     string
		typ      action.Type
		baseline Metrics
		current  Metrics
		want     Verdict
	}{
		{
			name:     "increase cpa improved",
			typ:      action.TypeBudgetIncrease,
			baseline: Metrics{CPA: 2000},
			current:  Metrics{CPA: 1500},
			want:     Verdict{EffectImproved, "CPA改善: ¥2,000→¥1,500 (-25%)", 0.8},
		},
		{
			name:     "increase cpa worsened",
			typ:      action.TypeBudgetChange,
			baseline: Metrics{CPA: 2000},
			current:  Metrics{CPA: 2600},
			want:     Verdict{EffectWorsened, "CPA悪化: ¥2,000→¥2,600 (+30%)", 0.8},
		},
		{
			name:     "cpa wins over roas",
			typ:      action.TypeBudgetIncrease,
			baseline: Metrics{CPA: 2000, ROAS: 2.0},
			current:  Metrics{CPA: 1500, ROAS: 1.0},
			want:     Verdict{EffectImproved, "CPA改善: ¥2,000→¥1,500 (-25%)", 0.8},
		},
		{
			name:     "cpa flat falls through to roas",
			typ:      action.TypeBudgetIncrease,
			baseline: Metrics{CPA: 2000, ROAS: 2.0},
			current:  Metrics{CPA: 2100, ROAS: 2.5},
			want:     Verdict{EffectImproved, "ROAS改善: 2.00→2.50 (+25%)", 0.8},
		},
		{
			name:     "roas worsened",
			typ:      action.TypeBudgetIncrease,
			baseline: Metrics{ROAS: 3.0},
			current:  Metrics{ROAS: 2.0},
			want:     Verdict{EffectWorsened, "ROAS悪化: 3.00→2.00 (-33%)", 0.8},
		},
		{
			name:     "cpf improved",
			typ:      action.TypeBudgetIncrease,
			baseline: Metrics{CPF: 100},
			current:  Metrics{CPF: 80},
			want:     Verdict{EffectImproved, "CPF改善: ¥100→¥80 (-20%)", 0.8},
		},
		{
			name:     "cpf worsened",
			typ:      action.TypeBudgetIncrease,
			baseline: Metrics{CPF: 100},
			current:  Metrics{CPF: 130},
			want:     Verdict{EffectWorsened, "CPF悪化: ¥100→¥130 (+30%)", 0.8},
		},
		{
			name:     "missing current cpa is ignored",
			typ:      action.TypeBudgetIncrease,
			baseline: Metrics{CPA: 2000},
			current:  Metrics{},
			want:     Verdict{EffectNeutral, "明確な効果は確認できず", 0.5},
		},
		{
			name:     "decrease held cpa",
			typ:      action.TypeBudgetDecrease,
			baseline: Metrics{CPA: 2000},
			current:  Metrics{CPA: 2150},
			want:     Verdict{EffectImproved, "予算削減しつつCPA維持: ¥2,000→¥2,150", 0.7},
		},
		{
			name:     "decrease lost cpa",
			typ:      action.TypeBudgetDecrease,
			baseline: Metrics{CPA: 2000},
			current:  Metrics{CPA: 2400},
			want:     Verdict{EffectNeutral, "明確な効果は確認できず", 0.5},
		},
		{
			name:     "pause always improved",
			typ:      action.TypePause,
			baseline: Metrics{Spend: 20000},
			current:  Metrics{Spend: 30000, CPA: 99999},
			want:     Verdict{EffectImproved, "消化停止: ¥20,000/日の消化を停止", 0.9},
		},
		{
			name:     "resume neutral",
			typ:      action.TypeResume,
			baseline: Metrics{CPA: 2000},
			current:  Metrics{CPA: 1000},
			want:     Verdict{EffectNeutral, "明確な効果は確認できず", 0.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineEffect(tt.typ, tt.baseline, tt.current))
		})
	}
}

func TestEffectIcon(t *testing.T) {
	assert.Equal(t, "✅", EffectImproved.Icon())
	assert.Equal(t, "❌", EffectWorsened.Icon())
	assert.Equal(t, "➖", EffectNeutral.Icon())
	assert.Equal(t, "❓", Effect("").Icon())
}
