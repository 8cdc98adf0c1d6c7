// Package insight turns raw per-period ad insight records into performance
// snapshots with derived rate metrics.
package insight

import (
	"math"
)

// Action types that count as a conversion when no direct conversions field is present.
var conversionActionTypes = map[string]bool{
	"purchase":              true,
	"lead":                  true,
	"complete_registration": true,
}

// Action types whose value counts as conversion value.
var conversionValueActionTypes = map[string]bool{
	"purchase":      true,
	"omni_purchase": true,
}

// Action types that count as a follow.
var followActionTypes = map[string]bool{
	"follow": true,
	"like":   true,
}

// ActionStat is one {action_type, value} pair as reported by the ad platform.
type ActionStat struct {
	Type  string  `json:"action_type"`
	Value float64 `json:"value"`
}

// RawInsight is one insight row for one campaign and one reporting period.
// Conversions and ConversionValue are nil when the platform did not report a
// direct value; the aggregator then falls back to the action lists.
type RawInsight struct {
	CampaignID   string `json:"campaign_id,omitempty"`
	CampaignName string `json:"campaign_name,omitempty"`
	DateStart    string `json:"date_start,omitempty"`
	DateStop     string `json:"date_stop,omitempty"`

	Spend       float64 `json:"spend"`
	Impressions float64 `json:"impressions"`
	Clicks      float64 `json:"clicks"`
	Reach       float64 `json:"reach"`
	Frequency   float64 `json:"frequency,omitempty"`

	Conversions     *float64 `json:"conversions,omitempty"`
	ConversionValue *float64 `json:"conversion_value,omitempty"`

	Actions       []ActionStat `json:"actions,omitempty"`
	ActionValues  []ActionStat `json:"action_values,omitempty"`
	CostPerAction []ActionStat `json:"cost_per_action_type,omitempty"`
}

// Counts holds the additive metrics of a period.
type Counts struct {
	Spend           float64 `json:"spend"`
	Impressions     float64 `json:"impressions"`
	Clicks          float64 `json:"clicks"`
	Conversions     float64 `json:"conversions"`
	ConversionValue float64 `json:"conversion_value"`
	Reach           float64 `json:"reach"`
	Follows         float64 `json:"follows"`
	PageEngagements float64 `json:"page_engagements"`
	LinkClicks      float64 `json:"link_clicks"`
}

func (c Counts) add(o Counts) Counts {
	return Counts{
		Spend:           c.Spend + o.Spend,
		Impressions:     c.Impressions + o.Impressions,
		Clicks:          c.Clicks + o.Clicks,
		Conversions:     c.Conversions + o.Conversions,
		ConversionValue: c.ConversionValue + o.ConversionValue,
		Reach:           c.Reach + o.Reach,
		Follows:         c.Follows + o.Follows,
		PageEngagements: c.PageEngagements + o.PageEngagements,
		LinkClicks:      c.LinkClicks + o.LinkClicks,
	}
}

func (c Counts) divide(n float64) Counts {
	return Counts{
		Spend:           c.Spend / n,
		Impressions:     c.Impressions / n,
		Clicks:          c.Clicks / n,
		Conversions:     c.Conversions / n,
		ConversionValue: c.ConversionValue / n,
		Reach:           c.Reach / n,
		Follows:         c.Follows / n,
		PageEngagements: c.PageEngagements / n,
		LinkClicks:      c.LinkClicks / n,
	}
}

// Snapshot is one period's raw and derived metrics for one campaign.
// For multi-day windows the embedded Counts are daily averages and Totals
// keeps the window sums.
type Snapshot struct {
	Counts

	CTR  float64 `json:"ctr"`
	CPC  float64 `json:"cpc"`
	CVR  float64 `json:"cvr"`
	CPA  float64 `json:"cpa"`
	ROAS float64 `json:"roas"`
	CPM  float64 `json:"cpm"`
	CPF  float64 `json:"cpf"`

	Days   int     `json:"days,omitempty"`
	Totals *Counts `json:"totals,omitempty"`
}

// IsEmpty reports whether the snapshot carries no delivery at all.
func (s Snapshot) IsEmpty() bool {
	return s.Spend == 0 && s.Impressions == 0 && s.Clicks == 0
}

// Parse extracts the additive metrics of one raw record. The second return
// value is the platform-supplied cost per follow, or 0 when absent.
func Parse(r RawInsight) (Counts, float64) {
	c := Counts{
		Spend:       r.Spend,
		Impressions: r.Impressions,
		Clicks:      r.Clicks,
		Reach:       r.Reach,
	}

	var actionConversions float64
	for _, a := range r.Actions {
		switch {
		case conversionActionTypes[a.Type]:
			actionConversions += a.Value
		case followActionTypes[a.Type]:
			c.Follows += a.Value
		case a.Type == "page_engagement":
			c.PageEngagements += a.Value
		case a.Type == "link_click":
			c.LinkClicks += a.Value
		}
	}
	if r.Conversions != nil {
		c.Conversions = *r.Conversions
	} else {
		c.Conversions = actionConversions
	}

	if r.ConversionValue != nil {
		c.ConversionValue = *r.ConversionValue
	} else {
		for _, a := range r.ActionValues {
			if conversionValueActionTypes[a.Type] {
				c.ConversionValue += a.Value
			}
		}
	}

	var platformCPF float64
	for _, a := range r.CostPerAction {
		if followActionTypes[a.Type] && a.Value > 0 {
			platformCPF = a.Value
		}
	}
	return c, platformCPF
}

// Derive computes the rate metrics from additive counts.
func Derive(c Counts) Snapshot {
	s := Snapshot{Counts: c}
	if c.Impressions > 0 {
		s.CTR = round2(c.Clicks / c.Impressions * 100)
		s.CPM = round2(c.Spend / c.Impressions * 1000)
	}
	if c.Clicks > 0 {
		s.CPC = round2(c.Spend / c.Clicks)
		s.CVR = round2(c.Conversions / c.Clicks * 100)
	}
	if c.Conversions > 0 {
		s.CPA = round2(c.Spend / c.Conversions)
	}
	if c.Spend > 0 {
		s.ROAS = round2(c.ConversionValue / c.Spend)
	}
	if c.Follows > 0 {
		s.CPF = round2(c.Spend / c.Follows)
	}
	return s
}

// FromRecords sums the given records into a single-period snapshot.
// A platform cost-per-follow is used only when it describes the whole
// period, i.e. when exactly one record was supplied.
func FromRecords(records ...RawInsight) Snapshot {
	var total Counts
	var platformCPF float64
	for _, r := range records {
		c, cpf := Parse(r)
		total = total.add(c)
		platformCPF = cpf
	}

	s := Derive(total)
	if len(records) == 1 && platformCPF > 0 {
		s.CPF = round2(platformCPF)
	}
	return s
}

// Window aggregates a multi-day window into daily averages. Additive metrics
// are divided by days, the window sums are kept in Totals, and the rate metrics
// are recomputed from the averaged counts.
func Window(records []RawInsight, days int) Snapshot {
	if days <= 1 {
		return FromRecords(records...)
	}

	var total Counts
	for _, r := range records {
		c, _ := Parse(r)
		total = total.add(c)
	}

	s := Derive(total.divide(float64(days)))
	s.Days = days
	totals := total
	s.Totals = &totals
	return s
}

// ChangePercent returns the relative change of current against reference in
// percent. ok is false when the reference is not positive.
func ChangePercent(current, reference float64) (change float64, ok bool) {
	if reference <= 0 {
		return 0, false
	}
	return (current - reference) / reference * 100, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
