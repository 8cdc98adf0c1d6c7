// Package judgment applies the objective-specific threshold rules to a
// campaign's multi-period performance and renders a verdict.
package judgment

import (
	"github.com/hrygo/adpilot/server/service/insight"
)

// Status is the verdict of one judgment.
type Status string

const (
	StatusCritical         Status = "critical"
	StatusWarning          Status = "warning"
	StatusOpportunity      Status = "opportunity"
	StatusNormal           Status = "normal"
	StatusInsufficientData Status = "insufficient_data"
)

// Severity ranks how urgently a judgment needs attention.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities for threshold filtering (none < low < medium < high).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// IssueLevel is the severity of a single issue.
type IssueLevel string

const (
	IssueCritical IssueLevel = "critical"
	IssueWarning  IssueLevel = "warning"
)

// Reference labels of comparisons.
const (
	VsYesterday = "vs昨日"
	Vs7DayAvg   = "vs7日平均"
)

// Issue is one detected problem.
type Issue struct {
	Severity IssueLevel `json:"severity"`
	Message  string     `json:"message"`
}

// Comparison records how a metric moved against a reference period.
type Comparison struct {
	Metric         string  `json:"metric"`
	TodayValue     float64 `json:"today"`
	ReferenceValue float64 `json:"reference"`
	ChangePercent  float64 `json:"change_percent"`
	ReferenceLabel string  `json:"comparison"`
	Note           string  `json:"note,omitempty"`
}

// CampaignProfile is one campaign with its performance across the four periods.
type CampaignProfile struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Objective       string          `json:"objective"`
	Status          string          `json:"status,omitempty"`
	IsAdvantagePlus bool            `json:"is_advantage_plus"`
	DailyBudget     float64         `json:"daily_budget"`
	Periods         insight.Periods `json:"periods"`
}

// Judgment is the verdict for one campaign in one monitoring pass.
type Judgment struct {
	Status      Status        `json:"status"`
	Severity    Severity      `json:"severity"`
	Summary     string        `json:"summary"`
	Issues      []Issue       `json:"issues"`
	Positives   []string      `json:"positives"`
	Comparisons []Comparison  `json:"comparisons"`
	SkipReason  string        `json:"skip_reason,omitempty"`
	Pacing      *BudgetPacing `json:"budget_status,omitempty"`
}

// Count returns the number of issues at the given level.
func (j Judgment) Count(level IssueLevel) int {
	n := 0
	for _, i := range j.Issues {
		if i.Severity == level {
			n++
		}
	}
	return n
}

// Actionable reports whether the judgment can produce an alert or an opportunity.
func (j Judgment) Actionable() bool {
	return j.Status == StatusCritical || j.Status == StatusOpportunity
}
