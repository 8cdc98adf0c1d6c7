package objective

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestClassify_Table(t *testing.T) {
	tests := []struct {
		objective   string
		advantage   bool
		wantKPI     KPI
		wantTraffic bool
		wantIgnore  bool
		wantFamily  Family
	}{
		{"LINK_CLICKS", false, KPICPF, true, true, FamilyTraffic},
		{"POST_ENGAGEMENT", false, KPICPF, true, true, FamilyTraffic},
		{"OUTCOME_TRAFFIC", false, KPICPF, true, true, FamilyTraffic},
		{"OUTCOME_ENGAGEMENT", false, KPICPF, true, true, FamilyTraffic},
		{"CONVERSIONS", false, KPICPA, false, false, FamilyConversions},
		{"PRODUCT_CATALOG_SALES", false, KPIROAS, false, false, FamilySales},
		{"OUTCOME_SALES", false, KPIROAS, false, false, FamilySales},
		{"REACH", false, KPICPM, false, true, FamilyReach},
		{"BRAND_AWARENESS", false, KPICPM, false, true, FamilyAwareness},
		{"OUTCOME_LEADS", false, KPISpend, false, false, FamilyDefault},
		{"", false, KPISpend, false, false, FamilyDefault},
		{"outcome_traffic", false, KPICPF, true, true, FamilyTraffic},
	}

	for _, tt := range tests {
		t.Run(tt.objective, func(t *testing.T) {
			p := Classify(tt.objective, tt.advantage)
			assert.Equal(t, tt.wantKPI, p.PrimaryKPI)
			assert.Equal(t, tt.wantTraffic, p.IsTrafficCampaign)
			assert.Equal(t, tt.wantIgnore, p.IgnoreConversions)
			assert.Equal(t, tt.wantFamily, p.Family)
		})
	}
}

func TestClassify_AdvantagePlusOverridesObjective(t *testing.T) {
	for _, obj := range []string{"OUTCOME_TRAFFIC", "CONVERSIONS", "REACH", "UNKNOWN"} {
		p := Classify(obj, true)
		assert.Equal(t, FamilyAdvantagePlus, p.Family, obj)
		assert.Equal(t, KPIROAS, p.PrimaryKPI, obj)

		v, ok := p.Threshold(ROASCritical)
		assert.True(t, ok)
		assert.Equal(t, 1.0, v)
		v, _ = p.Threshold(CPAWarningRatio)
		assert.Equal(t, 1.2, v)
		v, _ = p.Threshold(LearningMinConversions)
		assert.Equal(t, 50.0, v)
		assert.NotEmpty(t, p.SpecialNotes)
	}
}

func TestClassify_Pure(t *testing.T) {
	objectives := []string{"LINK_CLICKS", "CONVERSIONS", "OUTCOME_SALES", "REACH", "BRAND_AWARENESS", "X"}
	for _, obj := range objectives {
		for _, adv := range []bool{false, true} {
			first := Classify(obj, adv)
			second := Classify(obj, adv)
			if diff := cmp.Diff(first, second); diff != "" {
				t.Errorf("Classify(%q, %v) not stable (-first +second):\n%s", obj, adv, diff)
			}
		}
	}
}

func TestClassify_ReturnsFreshThresholds(t *testing.T) {
	p := Classify("OUTCOME_TRAFFIC", false)
	p.Thresholds[CPFGood] = 1

	again := Classify("OUTCOME_TRAFFIC", false)
	assert.Equal(t, 50.0, again.Thresholds[CPFGood])
}

func TestCampaignType(t *testing.T) {
	assert.Equal(t, "traffic", Classify("LINK_CLICKS", false).CampaignType())
	assert.Equal(t, "sales", Classify("CONVERSIONS", false).CampaignType())
	assert.Equal(t, "sales", Classify("", true).CampaignType())
}

func TestIsAdvantagePlus(t *testing.T) {
	tests := []struct {
		promotion string
		want      bool
	}{
		{"AUTOMATED_SHOPPING_ADS", true},
		{"ADVANTAGE_PLUS_SHOPPING", true},
		{"automated_shopping_ads", true},
		{"GUIDED_CREATION", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.promotion, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAdvantagePlus(tt.promotion))
		})
	}
}
