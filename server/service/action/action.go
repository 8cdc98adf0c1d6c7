// Package action queues proposed campaign mutations for operator approval and
// executes them against the ad platform within safety bounds.
package action

import (
	"time"

	"github.com/hrygo/adpilot/plugin/meta"
)

// Type is the kind of mutation an action performs.
type Type string

const (
	TypeBudgetIncrease Type = "budget_increase"
	TypeBudgetDecrease Type = "budget_decrease"
	TypeBudgetChange   Type = "budget_change"
	TypeStatusChange   Type = "status_change"
	TypePause          Type = "pause"
	TypeResume         Type = "resume"
)

// Types lists every action type.
var Types = []Type{
	TypeBudgetIncrease,
	TypeBudgetDecrease,
	TypeBudgetChange,
	TypeStatusChange,
	TypePause,
	TypeResume,
}

// IsBudget reports whether t changes the daily budget.
func (t Type) IsBudget() bool {
	return t == TypeBudgetIncrease || t == TypeBudgetDecrease || t == TypeBudgetChange
}

// Valid reports whether t is a known action type.
func (t Type) Valid() bool {
	switch t {
	case TypeBudgetIncrease, TypeBudgetDecrease, TypeBudgetChange,
		TypeStatusChange, TypePause, TypeResume:
		return true
	}
	return false
}

// Source records who created an action.
type Source string

const (
	SourceRecommendation Source = "recommendation"
	SourceManual         Source = "manual"
	SourceDirect         Source = "direct"
)

// Params are the typed action parameters. Budgets are whole currency units.
type Params struct {
	CurrentBudget   float64     `json:"current_budget,omitempty"`
	NewBudget       float64     `json:"new_budget,omitempty"`
	IncreasePercent float64     `json:"increase_percent,omitempty"`
	ChangePercent   float64     `json:"change_percent,omitempty"`
	NewStatus       meta.Status `json:"new_status,omitempty"`
}

// EffectiveIncreasePercent returns the largest of IncreasePercent,
// ChangePercent and the percentage derived from the current and new budgets,
// so a stated percentage can never understate the real change.
func (p Params) EffectiveIncreasePercent() float64 {
	pct := max(p.IncreasePercent, p.ChangePercent)
	if p.CurrentBudget > 0 && p.NewBudget > 0 {
		pct = max(pct, (p.NewBudget-p.CurrentBudget)/p.CurrentBudget*100)
	}
	return pct
}

// Action is a proposed mutation of one campaign.
type Action struct {
	Type         Type   `json:"type"`
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name,omitempty"`
	AccountID    string `json:"account_id,omitempty"`
	Params       Params `json:"params"`
	Reason       string `json:"reason,omitempty"`
	Source       Source `json:"source,omitempty"`
}

// NewBudgetAction builds a budget_change action with its change percentage.
func NewBudgetAction(campaignID, campaignName, accountID string, currentBudget, newBudget float64, reason string) Action {
	var change float64
	if currentBudget > 0 {
		change = (newBudget - currentBudget) / currentBudget * 100
	}
	return Action{
		Type:         TypeBudgetChange,
		CampaignID:   campaignID,
		CampaignName: campaignName,
		AccountID:    accountID,
		Params: Params{
			CurrentBudget: currentBudget,
			NewBudget:     newBudget,
			ChangePercent: change,
		},
		Reason: reason,
		Source: SourceManual,
	}
}

// NewStatusAction builds a status_change action.
func NewStatusAction(campaignID, campaignName, accountID string, status meta.Status, reason string) Action {
	return Action{
		Type:         TypeStatusChange,
		CampaignID:   campaignID,
		CampaignName: campaignName,
		AccountID:    accountID,
		Params:       Params{NewStatus: status},
		Reason:       reason,
		Source:       SourceManual,
	}
}

// Status is the lifecycle state of a queued action.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
)

// KindDirectExecution marks history entries that bypassed the queue.
const KindDirectExecution = "direct_execution"

// Record is a queued action or a history entry.
type Record struct {
	ID           string     `json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	Status       Status     `json:"status"`
	Action       Action     `json:"action"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`
	RejectReason string     `json:"reject_reason,omitempty"`
	ExecutedAt   *time.Time `json:"executed_at,omitempty"`
	Result       *Result    `json:"result,omitempty"`
	Kind         string     `json:"type,omitempty"`
}

// Mode controls whether approved actions reach the ad platform.
type Mode string

const (
	ModeNotifyOnly       Mode = "notify_only"
	ModeApprovalRequired Mode = "approval_required"
	ModeAutoExecute      Mode = "auto_execute"
)

// Result is the outcome of executing an action. A safety refusal is a result
// with Success false and Refusal set, not an error.
type Result struct {
	Success    bool   `json:"success"`
	Executed   bool   `json:"executed"`
	Mode       Mode   `json:"mode,omitempty"`
	Message    string `json:"message"`
	Refusal    string `json:"refusal,omitempty"`
	Error      string `json:"error,omitempty"`
	LearningID string `json:"learning_id,omitempty"`
}

// Refused reports whether the action was stopped by a safety check.
func (r Result) Refused() bool {
	return r.Refusal != ""
}
