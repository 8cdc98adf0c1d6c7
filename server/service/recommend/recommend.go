// Package recommend asks the LLM for concrete actions on the campaigns a
// monitoring pass flagged and validates what comes back.
package recommend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/hrygo/adpilot/server/service/action"
	"github.com/hrygo/adpilot/server/service/judgment"
)

// ActionType is the action a recommendation proposes.
type ActionType string

const (
	ActionBudgetIncrease ActionType = "budget_increase"
	ActionBudgetDecrease ActionType = "budget_decrease"
	ActionPause          ActionType = "pause"
	ActionResume         ActionType = "resume"
	ActionNone           ActionType = "none"
)

// Valid reports whether t is one of the five accepted action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionBudgetIncrease, ActionBudgetDecrease, ActionPause, ActionResume, ActionNone:
		return true
	}
	return false
}

// Priority orders recommendations.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// number accepts JSON numbers and numeric strings such as "5,000".
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.NewReplacer(",", "", "¥", "", "%", "", "+", "").Replace(strings.TrimSpace(s))
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*n = number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = number(v)
	return nil
}

// Params are the numeric details of a budget recommendation.
type Params struct {
	CurrentValue  number `json:"current_value"`
	NewValue      number `json:"new_value"`
	ChangePercent number `json:"change_percent"`
}

// Recommendation is one validated LLM suggestion.
type Recommendation struct {
	Priority       Priority   `json:"priority"`
	CampaignName   string     `json:"campaign_name"`
	CampaignID     string     `json:"campaign_id,omitempty"`
	ActionType     ActionType `json:"action_type"`
	ActionDisplay  string     `json:"action_display"`
	Params         Params     `json:"params"`
	Reason         string     `json:"reason"`
	Risk           string     `json:"risk"`
	ExpectedImpact string     `json:"expected_impact"`
}

// Actionable reports whether the recommendation maps onto an executable action.
func (r Recommendation) Actionable() bool {
	return r.ActionType.Valid() && r.ActionType != ActionNone
}

// ToAction converts an actionable recommendation for campaign c into a
// proposed action. It returns false for "none" and for budget changes
// without a new budget or without a known daily budget. The current budget
// and the change percentage always come from the campaign, never from the
// model's output.
func ToAction(r Recommendation, c judgment.CampaignProfile, accountID string) (action.Action, bool) {
	a := action.Action{
		CampaignID:   c.ID,
		CampaignName: c.Name,
		AccountID:    accountID,
		Reason:       r.Reason,
		Source:       action.SourceRecommendation,
	}

	switch r.ActionType {
	case ActionBudgetIncrease, ActionBudgetDecrease:
		current := c.DailyBudget
		next := float64(r.Params.NewValue)
		if current <= 0 || next <= 0 {
			return action.Action{}, false
		}
		pct := (next - current) / current * 100
		a.Params = action.Params{CurrentBudget: current, NewBudget: next, ChangePercent: pct}
		if r.ActionType == ActionBudgetIncrease {
			a.Type = action.TypeBudgetIncrease
			a.Params.IncreasePercent = pct
		} else {
			a.Type = action.TypeBudgetDecrease
		}
	case ActionPause:
		a.Type = action.TypePause
	case ActionResume:
		a.Type = action.TypeResume
	case ActionNone:
		return action.Action{}, false
	default:
		return action.Action{}, false
	}
	return a, true
}

// Status summarizes how a recommendation request ended.
type Status string

const (
	StatusOK          Status = "ok"
	StatusEmpty       Status = "empty"
	StatusDisabled    Status = "disabled"
	StatusError       Status = "error"
	StatusUnparseable Status = "unparseable"
)

// Outcome is the result of one request. Failures never surface as errors;
// they leave Recommendations empty and set Status.
type Outcome struct {
	Recommendations []Recommendation `json:"recommendations"`
	Status          Status           `json:"status"`
	Dropped         int              `json:"dropped,omitempty"`
	Err             error            `json:"-"`
}
