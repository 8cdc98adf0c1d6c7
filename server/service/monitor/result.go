package monitor

import (
	"fmt"
	"time"

	"github.com/hrygo/adpilot/internal/format"
	"github.com/hrygo/adpilot/server/service/action"
	"github.com/hrygo/adpilot/server/service/insight"
	"github.com/hrygo/adpilot/server/service/judgment"
	"github.com/hrygo/adpilot/server/service/objective"
	"github.com/hrygo/adpilot/server/service/recommend"
)

// CampaignResult is one judged campaign.
type CampaignResult struct {
	judgment.CampaignProfile
	ObjectiveDisplay string               `json:"objective_display"`
	KPI              objective.KPIProfile `json:"kpi"`
	Judgment         judgment.Judgment    `json:"judgment"`
	SpecialNotes     []string             `json:"special_notes,omitempty"`
}

// AlertData is the raw context attached to an alert.
type AlertData struct {
	Today        insight.Snapshot       `json:"today"`
	Yesterday    insight.Snapshot       `json:"yesterday"`
	BudgetStatus *judgment.BudgetPacing `json:"budget_status,omitempty"`
}

// Alert is raised for a critical campaign.
type Alert struct {
	Type         string           `json:"type"`
	Severity     string           `json:"severity"`
	AccountID    string           `json:"account_id"`
	CampaignID   string           `json:"campaign_id"`
	CampaignName string           `json:"campaign_name"`
	Objective    string           `json:"objective"`
	Message      string           `json:"message"`
	Issues       []judgment.Issue `json:"issues"`
	Comparisons  []string         `json:"comparisons"`
	Data         AlertData        `json:"data"`
}

// Opportunity is raised for a campaign performing above target.
type Opportunity struct {
	Type            string   `json:"type"`
	AccountID       string   `json:"account_id"`
	CampaignID      string   `json:"campaign_id"`
	CampaignName    string   `json:"campaign_name"`
	Objective       string   `json:"objective"`
	Message         string   `json:"message"`
	Positives       []string `json:"positives"`
	SuggestedAction string   `json:"suggested_action"`
}

// SubmittedAction is a recommendation handed to the executor.
type SubmittedAction struct {
	Action  action.Action  `json:"action"`
	ID      string         `json:"id,omitempty"`
	Result  *action.Result `json:"result,omitempty"`
	Skipped string         `json:"skipped,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// AccountResult is the outcome of checking one ad account.
type AccountResult struct {
	AccountID            string                     `json:"account_id"`
	CheckedAt            time.Time                  `json:"checked_at"`
	Campaigns            []CampaignResult           `json:"campaigns"`
	Alerts               []Alert                    `json:"alerts"`
	Opportunities        []Opportunity              `json:"opportunities"`
	Recommendations      []recommend.Recommendation `json:"recommendations"`
	RecommendationStatus recommend.Status           `json:"recommendation_status,omitempty"`
	Actions              []SubmittedAction          `json:"actions,omitempty"`
	Error                string                     `json:"error,omitempty"`
}

// Summary condenses a run into one status line.
type Summary struct {
	Status             judgment.Status `json:"status"`
	StatusMessage      string          `json:"status_message"`
	TotalAlerts        int             `json:"total_alerts"`
	HighAlerts         int             `json:"high_alerts"`
	TotalOpportunities int             `json:"total_opportunities"`
	AccountsChecked    int             `json:"accounts_checked"`
}

// RunResult is the outcome of one monitoring pass over every account.
type RunResult struct {
	RunID         string                    `json:"run_id"`
	Trigger       string                    `json:"trigger"`
	CheckedAt     time.Time                 `json:"checked_at"`
	Duration      time.Duration             `json:"duration"`
	Accounts      map[string]*AccountResult `json:"accounts"`
	AccountOrder  []string                  `json:"-"`
	Alerts        []Alert                   `json:"alerts"`
	Opportunities []Opportunity             `json:"opportunities"`
	Learned       int                       `json:"learned"`
	Summary       Summary                   `json:"summary"`
}

// Recommendations returns the recommendations of every account in check order.
func (r *RunResult) Recommendations() []recommend.Recommendation {
	var recs []recommend.Recommendation
	for _, id := range r.AccountOrder {
		if acc := r.Accounts[id]; acc != nil {
			recs = append(recs, acc.Recommendations...)
		}
	}
	return recs
}

const (
	severityHigh   = "high"
	severityMedium = "medium"
)

func newAlert(accountID string, c CampaignResult) Alert {
	j := c.Judgment
	comparisons := []string{}
	for _, cmp := range j.Comparisons {
		if cmp.ChangePercent == 0 {
			continue
		}
		comparisons = append(comparisons,
			fmt.Sprintf("%s: %.2f (%+.0f%% %s)", cmp.Metric, cmp.TodayValue, cmp.ChangePercent, cmp.ReferenceLabel))
	}
	severity := severityMedium
	if j.Status == judgment.StatusCritical {
		severity = severityHigh
	}
	return Alert{
		Type:         "performance_issue",
		Severity:     severity,
		AccountID:    accountID,
		CampaignID:   c.ID,
		CampaignName: c.Name,
		Objective:    c.ObjectiveDisplay,
		Message:      j.Summary,
		Issues:       j.Issues,
		Comparisons:  comparisons,
		Data: AlertData{
			Today:        c.Periods.Today,
			Yesterday:    c.Periods.Yesterday,
			BudgetStatus: j.Pacing,
		},
	}
}

func newOpportunity(accountID string, c CampaignResult) Opportunity {
	return Opportunity{
		Type:            "opportunity",
		AccountID:       accountID,
		CampaignID:      c.ID,
		CampaignName:    c.Name,
		Objective:       c.ObjectiveDisplay,
		Message:         c.Judgment.Summary,
		Positives:       c.Judgment.Positives,
		SuggestedAction: SuggestIncrease(c.DailyBudget),
	}
}

// SuggestIncrease renders the +20% budget suggestion of an opportunity.
func SuggestIncrease(budget float64) string {
	if budget <= 0 {
		return "予算増額を検討"
	}
	b := float64(int64(budget))
	return fmt.Sprintf("予算を%s → %sに増額検討（+20%%）", format.Yen(b), format.Yen(b+float64(int64(b*0.2))))
}

// Summarize builds the run summary, most urgent condition first.
func Summarize(alerts []Alert, opportunities []Opportunity, accounts int) Summary {
	high := 0
	for _, a := range alerts {
		if a.Severity == severityHigh {
			high++
		}
	}
	s := Summary{
		TotalAlerts:        len(alerts),
		HighAlerts:         high,
		TotalOpportunities: len(opportunities),
		AccountsChecked:    accounts,
	}
	switch {
	case high > 0:
		s.Status = judgment.StatusCritical
		s.StatusMessage = fmt.Sprintf("🔴 緊急対応が必要: %d件の重大なアラート", high)
	case len(alerts) > 0:
		s.Status = judgment.StatusWarning
		s.StatusMessage = fmt.Sprintf("🟡 確認が必要: %d件のアラート", len(alerts))
	case len(opportunities) > 0:
		s.Status = judgment.StatusOpportunity
		s.StatusMessage = fmt.Sprintf("🟢 拡大チャンス: %d件", len(opportunities))
	default:
		s.Status = judgment.StatusNormal
		s.StatusMessage = "✅ 全て正常"
	}
	return s
}

func toHighlights(alerts []Alert, opportunities []Opportunity) (a, o []recommend.Highlight) {
	for _, al := range alerts {
		issues := make([]string, 0, len(al.Issues))
		for _, i := range al.Issues {
			issues = append(issues, i.Message)
		}
		a = append(a, recommend.Highlight{
			CampaignName: al.CampaignName,
			Severity:     al.Severity,
			Message:      al.Message,
			Issues:       issues,
		})
	}
	for _, op := range opportunities {
		o = append(o, recommend.Highlight{
			CampaignName:    op.CampaignName,
			Message:         op.Message,
			Issues:          op.Positives,
			SuggestedAction: op.SuggestedAction,
		})
	}
	return a, o
}
