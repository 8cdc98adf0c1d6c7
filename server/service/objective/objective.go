// Package objective maps a campaign objective to the KPI profile used to judge it.
package objective

import "strings"

// KPI is the metric a campaign is primarily judged on.
type KPI string

const (
	KPICPF   KPI = "cpf"
	KPICPA   KPI = "cpa"
	KPIROAS  KPI = "roas"
	KPICPM   KPI = "cpm"
	KPISpend KPI = "spend"
)

// Family groups objectives that share one KPI profile.
type Family string

const (
	FamilyTraffic       Family = "traffic"
	FamilyConversions   Family = "conversions"
	FamilySales         Family = "sales"
	FamilyAdvantagePlus Family = "advantage_plus_shopping"
	FamilyReach         Family = "reach"
	FamilyAwareness     Family = "awareness"
	FamilyDefault       Family = "default"
)

// Threshold names.
const (
	CPFGood                = "cpf_good"
	CPFWarning             = "cpf_warning"
	CPFCritical            = "cpf_critical"
	CPAGoodRatio           = "cpa_good_ratio"
	CPAWarningRatio        = "cpa_warning_ratio"
	CPACriticalRatio       = "cpa_critical_ratio"
	CVRWarning             = "cvr_warning"
	ROASGood               = "roas_good"
	ROASWarning            = "roas_warning"
	ROASCritical           = "roas_critical"
	LearningMinConversions = "learning_min_conversions"
	CPMGood                = "cpm_good"
	CPMWarning             = "cpm_warning"
	FrequencyWarning       = "frequency_warning"
)

// Smart promotion types that mark an advantage+ shopping campaign. The
// Marketing API reports AUTOMATED_SHOPPING_ADS; the other spelling appears in
// older exports.
const (
	AutomatedShoppingAds  = "AUTOMATED_SHOPPING_ADS"
	AdvantagePlusShopping = "ADVANTAGE_PLUS_SHOPPING"
)

// IsAdvantagePlus reports whether smartPromotionType marks an advantage+
// shopping campaign.
func IsAdvantagePlus(smartPromotionType string) bool {
	switch strings.ToUpper(strings.TrimSpace(smartPromotionType)) {
	case AutomatedShoppingAds, AdvantagePlusShopping:
		return true
	}
	return false
}

// KPIProfile is the classifier output for one campaign.
type KPIProfile struct {
	Family            Family             `json:"family"`
	DisplayName       string             `json:"display_name"`
	PrimaryKPI        KPI                `json:"primary_kpi"`
	SecondaryKPIs     []string           `json:"secondary_kpis"`
	Thresholds        map[string]float64 `json:"thresholds"`
	IsTrafficCampaign bool               `json:"is_traffic_campaign"`
	IgnoreConversions bool               `json:"ignore_conversions"`
	SpecialNotes      []string           `json:"special_notes,omitempty"`
}

// Threshold returns the named threshold and whether it is defined.
func (p KPIProfile) Threshold(name string) (float64, bool) {
	v, ok := p.Thresholds[name]
	return v, ok
}

// CampaignType returns the target-store key for this profile: "traffic" or "sales".
func (p KPIProfile) CampaignType() string {
	if p.IsTrafficCampaign {
		return "traffic"
	}
	return "sales"
}

// objectiveFamilies maps platform objective strings onto families.
var objectiveFamilies = map[string]Family{
	"LINK_CLICKS":           FamilyTraffic,
	"POST_ENGAGEMENT":       FamilyTraffic,
	"OUTCOME_TRAFFIC":       FamilyTraffic,
	"OUTCOME_ENGAGEMENT":    FamilyTraffic,
	"CONVERSIONS":           FamilyConversions,
	"PRODUCT_CATALOG_SALES": FamilySales,
	"OUTCOME_SALES":         FamilySales,
	"REACH":                 FamilyReach,
	"BRAND_AWARENESS":       FamilyAwareness,
}

// FamilyOf returns the family for an objective string. The advantage-plus
// flag wins over any objective.
func FamilyOf(objective string, advantagePlus bool) Family {
	if advantagePlus {
		return FamilyAdvantagePlus
	}
	if f, ok := objectiveFamilies[strings.ToUpper(strings.TrimSpace(objective))]; ok {
		return f
	}
	return FamilyDefault
}

// Classify returns the KPI profile for the objective and advantage-plus flag.
// It is a pure function; every call builds a fresh profile.
func Classify(objective string, advantagePlus bool) KPIProfile {
	return ForFamily(FamilyOf(objective, advantagePlus))
}

// ForFamily returns the KPI profile of a family.
func ForFamily(f Family) KPIProfile {
	switch f {
	case FamilyTraffic:
		return KPIProfile{
			Family:            f,
			DisplayName:       "トラフィック/フォロー獲得",
			PrimaryKPI:        KPICPF,
			SecondaryKPIs:     []string{"follows", "cpc"},
			Thresholds:        map[string]float64{CPFGood: 50, CPFWarning: 100, CPFCritical: 200},
			IsTrafficCampaign: true,
			IgnoreConversions: true,
		}
	case FamilyConversions:
		return KPIProfile{
			Family:        f,
			DisplayName:   "コンバージョン",
			PrimaryKPI:    KPICPA,
			SecondaryKPIs: []string{"roas", "cvr", "ctr"},
			Thresholds: map[string]float64{
				CPAGoodRatio:     0.7,
				CPAWarningRatio:  1.0,
				CPACriticalRatio: 1.3,
				CVRWarning:       0.5,
			},
		}
	case FamilySales:
		return KPIProfile{
			Family:        f,
			DisplayName:   "売上",
			PrimaryKPI:    KPIROAS,
			SecondaryKPIs: []string{"cpa", "cvr", "purchase_value"},
			Thresholds:    map[string]float64{ROASGood: 3.0, ROASWarning: 2.0, ROASCritical: 1.0},
		}
	case FamilyAdvantagePlus:
		return KPIProfile{
			Family:        f,
			DisplayName:   "Advantage+ ショッピング（ASC）",
			PrimaryKPI:    KPIROAS,
			SecondaryKPIs: []string{"cpa", "purchase_value", "cvr"},
			Thresholds: map[string]float64{
				ROASGood:               3.0,
				ROASWarning:            2.0,
				ROASCritical:           1.0,
				CPAWarningRatio:        1.2,
				LearningMinConversions: 50,
			},
			SpecialNotes: []string{
				"機械学習で最適化されているため、頻繁な変更は避ける",
				"クリエイティブの追加は効果的",
				"予算変更は20%以内に抑える",
				"学習フェーズ中は7日間は様子を見る",
			},
		}
	case FamilyReach:
		return KPIProfile{
			Family:            f,
			DisplayName:       "リーチ",
			PrimaryKPI:        KPICPM,
			SecondaryKPIs:     []string{"reach", "frequency"},
			Thresholds:        map[string]float64{CPMGood: 300, CPMWarning: 500, FrequencyWarning: 3.0},
			IgnoreConversions: true,
		}
	case FamilyAwareness:
		return KPIProfile{
			Family:            f,
			DisplayName:       "ブランド認知",
			PrimaryKPI:        KPICPM,
			SecondaryKPIs:     []string{"reach", "frequency"},
			Thresholds:        map[string]float64{CPMGood: 400, CPMWarning: 600, FrequencyWarning: 2.5},
			IgnoreConversions: true,
		}
	case FamilyDefault:
		return defaultProfile()
	}
	return defaultProfile()
}

func defaultProfile() KPIProfile {
	return KPIProfile{
		Family:        FamilyDefault,
		DisplayName:   "不明",
		PrimaryKPI:    KPISpend,
		SecondaryKPIs: []string{"ctr", "cpc"},
		Thresholds:    map[string]float64{},
	}
}
