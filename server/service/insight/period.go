package insight

// Period names a reporting window; the value doubles as the platform date preset.
type Period string

const (
	PeriodToday     Period = "today"
	PeriodYesterday Period = "yesterday"
	PeriodLast7d    Period = "last_7d"
	PeriodLast30d   Period = "last_30d"
)

// AllPeriods lists the windows fetched for every campaign in a monitoring pass.
var AllPeriods = []Period{PeriodToday, PeriodYesterday, PeriodLast7d, PeriodLast30d}

// Days returns the window length used for daily averaging.
func (p Period) Days() int {
	switch p {
	case PeriodLast7d:
		return 7
	case PeriodLast30d:
		return 30
	default:
		return 1
	}
}

// Periods groups the four snapshots compared by the judgment rules.
type Periods struct {
	Today      Snapshot `json:"today"`
	Yesterday  Snapshot `json:"yesterday"`
	Last7dAvg  Snapshot `json:"last_7d"`
	Last30dAvg Snapshot `json:"last_30d"`
}

// Set stores s under the given period.
func (p *Periods) Set(period Period, s Snapshot) {
	switch period {
	case PeriodToday:
		p.Today = s
	case PeriodYesterday:
		p.Yesterday = s
	case PeriodLast7d:
		p.Last7dAvg = s
	case PeriodLast30d:
		p.Last30dAvg = s
	}
}

// Build aggregates the records of a period into its snapshot.
func Build(period Period, records []RawInsight) Snapshot {
	return Window(records, period.Days())
}
