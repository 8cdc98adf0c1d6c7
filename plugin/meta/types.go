// Package meta is a client for the Meta Marketing (Graph) API: campaigns,
// insights, and the two mutations the executor performs.
package meta

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/hrygo/adpilot/server/service/insight"
	"github.com/hrygo/adpilot/server/service/objective"
)

// Status is a campaign delivery status that can be set through the API.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusPaused Status = "PAUSED"
)

// Valid reports whether s can be sent in a status update.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusPaused
}

// Level is the aggregation level of an insights query.
type Level string

const (
	LevelAccount  Level = "account"
	LevelCampaign Level = "campaign"
	LevelAdSet    Level = "adset"
	LevelAd       Level = "ad"
)

// DatePreset is the Graph API date_preset parameter.
type DatePreset string

// PresetFor maps a reporting period onto its date preset.
func PresetFor(p insight.Period) DatePreset {
	return DatePreset(p)
}

// Campaign is one campaign as returned by /act_<id>/campaigns. Budgets are in
// whole currency units; the API's minor-unit values are divided by 100.
type Campaign struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Objective          string  `json:"objective"`
	Status             string  `json:"status"`
	EffectiveStatus    string  `json:"effective_status"`
	DailyBudget        float64 `json:"daily_budget"`
	LifetimeBudget     float64 `json:"lifetime_budget"`
	SmartPromotionType string  `json:"smart_promotion_type,omitempty"`
	CreatedTime        string  `json:"created_time,omitempty"`
}

// IsAdvantagePlus reports whether the campaign is an Advantage+ shopping campaign.
func (c Campaign) IsAdvantagePlus() bool {
	return objective.IsAdvantagePlus(c.SmartPromotionType)
}

// number decodes Graph API numerics, which arrive as JSON strings.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
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

type wireCampaign struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Objective          string `json:"objective"`
	Status             string `json:"status"`
	EffectiveStatus    string `json:"effective_status"`
	DailyBudget        number `json:"daily_budget"`
	LifetimeBudget     number `json:"lifetime_budget"`
	SmartPromotionType string `json:"smart_promotion_type"`
	CreatedTime        string `json:"created_time"`
}

func (w wireCampaign) campaign() Campaign {
	return Campaign{
		ID:                 w.ID,
		Name:               w.Name,
		Objective:          w.Objective,
		Status:             w.Status,
		EffectiveStatus:    w.EffectiveStatus,
		DailyBudget:        float64(w.DailyBudget) / budgetScale,
		LifetimeBudget:     float64(w.LifetimeBudget) / budgetScale,
		SmartPromotionType: w.SmartPromotionType,
		CreatedTime:        w.CreatedTime,
	}
}

type wireAction struct {
	ActionType string `json:"action_type"`
	Value      number `json:"value"`
}

type wireInsight struct {
	CampaignID        string       `json:"campaign_id"`
	CampaignName      string       `json:"campaign_name"`
	DateStart         string       `json:"date_start"`
	DateStop          string       `json:"date_stop"`
	Spend             number       `json:"spend"`
	Impressions       number       `json:"impressions"`
	Clicks            number       `json:"clicks"`
	Reach             number       `json:"reach"`
	Frequency         number       `json:"frequency"`
	Actions           []wireAction `json:"actions"`
	ActionValues      []wireAction `json:"action_values"`
	Conversions       []wireAction `json:"conversions"`
	ConversionValues  []wireAction `json:"conversion_values"`
	CostPerActionType []wireAction `json:"cost_per_action_type"`
}

func stats(in []wireAction) []insight.ActionStat {
	if len(in) == 0 {
		return nil
	}
	out := make([]insight.ActionStat, len(in))
	for i, a := range in {
		out[i] = insight.ActionStat{Type: a.ActionType, Value: float64(a.Value)}
	}
	return out
}

// sum returns nil for an absent list so the aggregator falls back to actions.
func sum(in []wireAction) *float64 {
	if len(in) == 0 {
		return nil
	}
	var total float64
	for _, a := range in {
		total += float64(a.Value)
	}
	return &total
}

func (w wireInsight) raw() insight.RawInsight {
	return insight.RawInsight{
		CampaignID:      w.CampaignID,
		CampaignName:    w.CampaignName,
		DateStart:       w.DateStart,
		DateStop:        w.DateStop,
		Spend:           float64(w.Spend),
		Impressions:     float64(w.Impressions),
		Clicks:          float64(w.Clicks),
		Reach:           float64(w.Reach),
		Frequency:       float64(w.Frequency),
		Conversions:     sum(w.Conversions),
		ConversionValue: sum(w.ConversionValues),
		Actions:         stats(w.Actions),
		ActionValues:    stats(w.ActionValues),
		CostPerAction:   stats(w.CostPerActionType),
	}
}

type page[T any] struct {
	Data   []T `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type graphErrorBody struct {
	Error *APIError `json:"error"`
}

// decodePage decodes one page of a list response.
func decodePage[T any](b []byte) (page[T], error) {
	var p page[T]
	err := json.Unmarshal(b, &p)
	return p, err
}
