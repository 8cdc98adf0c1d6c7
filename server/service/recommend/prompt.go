package recommend

import (
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/adpilot/server/service/judgment"
	"github.com/hrygo/adpilot/server/service/objective"
)

// CampaignResult is one judged campaign of the monitoring pass.
type CampaignResult struct {
	Profile  judgment.CampaignProfile
	KPI      objective.KPIProfile
	Judgment judgment.Judgment
}

// Highlight is an alert or opportunity raised for a campaign.
type Highlight struct {
	CampaignName    string   `json:"campaign_name"`
	Severity        string   `json:"severity,omitempty"`
	Message         string   `json:"message"`
	Issues          []string `json:"issues,omitempty"`
	SuggestedAction string   `json:"suggested_action,omitempty"`
}

// Input is everything the prompt is built from.
type Input struct {
	Campaigns       []CampaignResult
	Alerts          []Highlight
	Opportunities   []Highlight
	LearningContext string
	Now             time.Time
}

const systemPrompt = `あなたはMeta広告の運用責任者です。ユーザーメッセージのJSONは監視システムが集計したキャンペーンデータです。
このデータに基づき、今すぐ取るべき具体的なアクションを提案してください。

## ルール
1. 「クリエイティブを見直す」のような抽象的な提案は禁止。予算額や変更率など具体的な数値で示すこと
2. キャンペーンの目的を考慮すること。is_traffic_campaign が true のキャンペーンはCPF（フォロー単価）で評価し、CTRやCVの不足を問題にしない。売上系・Advantage+ショッピングはROASとCPAで評価する
3. 短期（vs_yesterday）と長期（vs_7d_avg）の両方を見ること
4. 昨日より悪化していても7日平均と比べて問題なければ「様子見」とすること
5. 現在時刻（日本時間）に対する予算消化ペース（budget_status）を考慮すること
6. 早朝はデータが少ないため、それだけを理由にアラートや停止を提案しないこと
7. 学習データ（learning_context）で過去に失敗したアクションは慎重に扱うこと

## 出力形式
JSON配列のみを出力してください。最大3件、優先度の高い順。
[
  {
    "priority": "high | medium | low",
    "campaign_name": "データ内のキャンペーン名と完全一致",
    "action_type": "budget_increase | budget_decrease | pause | resume | none",
    "action_display": "表示用の短い説明",
    "params": {"current_value": 10000, "new_value": 12000, "change_percent": 20},
    "reason": "数値を含む理由",
    "risk": "想定されるリスク",
    "expected_impact": "期待される効果"
  }
]
問題がなければ空の配列 [] を返してください。`

type todayMetrics struct {
	Spend       float64 `json:"spend"`
	DailyBudget float64 `json:"daily_budget"`
	Follows     float64 `json:"follows"`
	CPF         float64 `json:"cpf"`
	CPA         float64 `json:"cpa"`
	ROAS        float64 `json:"roas"`
	CTR         float64 `json:"ctr"`
	CVR         float64 `json:"cvr"`
}

type yesterdayChange struct {
	SpendChange float64 `json:"spend_change"`
	CPFChange   float64 `json:"cpf_change"`
	CPAChange   float64 `json:"cpa_change"`
	CTRChange   float64 `json:"ctr_change"`
}

type averageChange struct {
	SpendChange float64 `json:"spend_change"`
	CPFChange   float64 `json:"cpf_change"`
	CPAChange   float64 `json:"cpa_change"`
}

type campaignSummary struct {
	Name              string                 `json:"name"`
	Objective         string                 `json:"objective"`
	IsTrafficCampaign bool                   `json:"is_traffic_campaign"`
	Status            judgment.Status        `json:"status"`
	Issues            []string               `json:"issues"`
	Positives         []string               `json:"positives"`
	Today             todayMetrics           `json:"today"`
	VsYesterday       yesterdayChange        `json:"vs_yesterday"`
	Vs7dAvg           averageChange          `json:"vs_7d_avg"`
	BudgetStatus      *judgment.BudgetPacing `json:"budget_status,omitempty"`
	SpecialNotes      []string               `json:"special_notes,omitempty"`
}

type promptPayload struct {
	CurrentTime     string            `json:"current_time"`
	Campaigns       []campaignSummary `json:"campaigns"`
	Alerts          []Highlight       `json:"alerts"`
	Opportunities   []Highlight       `json:"opportunities"`
	LearningContext string            `json:"learning_context"`
}

// change returns the rounded percent change, or 0 without a reference.
func change(current, reference float64) float64 {
	if reference <= 0 {
		return 0
	}
	return math.Round((current-reference)/reference*1000) / 10
}

func summarize(r CampaignResult) campaignSummary {
	today := r.Profile.Periods.Today
	yesterday := r.Profile.Periods.Yesterday
	avg := r.Profile.Periods.Last7dAvg

	issues := make([]string, 0, len(r.Judgment.Issues))
	for _, i := range r.Judgment.Issues {
		issues = append(issues, i.Message)
	}
	positives := r.Judgment.Positives
	if positives == nil {
		positives = []string{}
	}

	return campaignSummary{
		Name:              r.Profile.Name,
		Objective:         r.KPI.DisplayName,
		IsTrafficCampaign: r.KPI.IsTrafficCampaign,
		Status:            r.Judgment.Status,
		Issues:            issues,
		Positives:         positives,
		Today: todayMetrics{
			Spend:       today.Spend,
			DailyBudget: r.Profile.DailyBudget,
			Follows:     today.Follows,
			CPF:         today.CPF,
			CPA:         today.CPA,
			ROAS:        today.ROAS,
			CTR:         today.CTR,
			CVR:         today.CVR,
		},
		VsYesterday: yesterdayChange{
			SpendChange: change(today.Spend, yesterday.Spend),
			CPFChange:   change(today.CPF, yesterday.CPF),
			CPAChange:   change(today.CPA, yesterday.CPA),
			CTRChange:   change(today.CTR, yesterday.CTR),
		},
		Vs7dAvg: averageChange{
			SpendChange: change(today.Spend, avg.Spend),
			CPFChange:   change(today.CPF, avg.CPF),
			CPAChange:   change(today.CPA, avg.CPA),
		},
		BudgetStatus: r.Judgment.Pacing,
		SpecialNotes: r.KPI.SpecialNotes,
	}
}

// BuildPrompt returns the system and user messages for in. The user message
// is a JSON document built only from aggregated metrics and verdicts.
func BuildPrompt(in Input, loc *time.Location) (system, user string, err error) {
	if loc == nil {
		loc = time.UTC
	}
	payload := promptPayload{
		CurrentTime:     in.Now.In(loc).Format("2006-01-02 15:04") + " (" + loc.String() + ")",
		Campaigns:       make([]campaignSummary, 0, len(in.Campaigns)),
		Alerts:          in.Alerts,
		Opportunities:   in.Opportunities,
		LearningContext: in.LearningContext,
	}
	if payload.Alerts == nil {
		payload.Alerts = []Highlight{}
	}
	if payload.Opportunities == nil {
		payload.Opportunities = []Highlight{}
	}
	for _, c := range in.Campaigns {
		payload.Campaigns = append(payload.Campaigns, summarize(c))
	}

	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", "", errors.Wrap(err, "failed to marshal recommendation prompt")
	}
	return systemPrompt, string(b), nil
}
