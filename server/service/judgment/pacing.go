package judgment

import (
	"fmt"

	"github.com/hrygo/adpilot/server/timezone"
)

// PacingStatus classifies today's spend against the elapsed share of the day.
type PacingStatus string

const (
	PacingUnknown     PacingStatus = "unknown"
	PacingEarlyPeriod PacingStatus = "early_period"
	PacingUnder       PacingStatus = "under_pacing"
	PacingOver        PacingStatus = "over_pacing"
	PacingOnTrack     PacingStatus = "on_track"
)

// Before this local hour spend is too sparse to judge.
const earlyHoursCutoff = 6

const (
	underPacingFactor = 0.3
	overPacingFactor  = 1.5
)

// BudgetPacing is the informational pacing sub-check.
type BudgetPacing struct {
	Status       PacingStatus `json:"status"`
	Message      string       `json:"message"`
	DailyBudget  float64      `json:"daily_budget,omitempty"`
	TodaySpend   float64      `json:"today_spend,omitempty"`
	SpendRate    float64      `json:"spend_rate,omitempty"`
	ExpectedRate float64      `json:"expected_rate,omitempty"`
	LocalTime    string       `json:"current_time,omitempty"`
}

// Pace compares today's spend with the share of the daily budget expected at
// the current local time.
func (e *Engine) Pace(todaySpend, dailyBudget float64) BudgetPacing {
	if dailyBudget <= 0 {
		return BudgetPacing{Status: PacingUnknown, Message: "日予算未設定"}
	}

	now := e.now()
	loc := e.config.Location
	hours := timezone.HoursElapsed(now, loc)
	clock := timezone.FormatClock(now, loc)

	p := BudgetPacing{
		DailyBudget:  dailyBudget,
		TodaySpend:   todaySpend,
		SpendRate:    todaySpend / dailyBudget * 100,
		ExpectedRate: hours / 24 * 100,
		LocalTime:    timezone.FormatDateTime(now, loc),
	}

	switch {
	case hours < earlyHoursCutoff:
		p.Status = PacingEarlyPeriod
		p.Message = fmt.Sprintf("早朝のため判定保留（現在: %s, 消化: %.0f%%）", clock, p.SpendRate)
	case p.SpendRate < p.ExpectedRate*underPacingFactor:
		p.Status = PacingUnder
		p.Message = fmt.Sprintf("消化ペース遅れ: %.0f%%消化 (現在%sで期待%.0f%%)", p.SpendRate, clock, p.ExpectedRate)
	case p.SpendRate > p.ExpectedRate*overPacingFactor:
		p.Status = PacingOver
		p.Message = fmt.Sprintf("消化ペース早い: %.0f%%消化 (期待%.0f%%)", p.SpendRate, p.ExpectedRate)
	default:
		p.Status = PacingOnTrack
		p.Message = fmt.Sprintf("消化ペース正常: %.0f%%消化（%s時点）", p.SpendRate, clock)
	}
	return p
}
