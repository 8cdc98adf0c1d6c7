package learning

import (
	"context"
	"fmt"
	"strings"

	"github.com/hrygo/adpilot/internal/format"
	"github.com/hrygo/adpilot/server/service/action"
)

// summaryTypes are the action types broken out in Summary, in display order.
var summaryTypes = []action.Type{
	action.TypeBudgetIncrease,
	action.TypeBudgetDecrease,
	action.TypePause,
	action.TypeResume,
}

// Rate counts the effects of one action type.
type Rate struct {
	Total       int     `json:"total"`
	Improved    int     `json:"improved"`
	Worsened    int     `json:"worsened"`
	Neutral     int     `json:"neutral"`
	SuccessRate float64 `json:"success_rate"`
}

// Summary is an overview of the learning store.
type Summary struct {
	TotalLearnings  int                  `json:"total_learnings"`
	PendingAnalysis int                  `json:"pending_analysis"`
	ByActionType    map[action.Type]Rate `json:"by_action_type"`
	RecentLearnings []Record             `json:"recent_learnings"`
}

// SimilarLearnings returns up to limit analyzed records of type t, newest first.
func (l *Learner) SimilarLearnings(ctx context.Context, t action.Type, limit int) []Record {
	if limit <= 0 {
		limit = 3
	}
	learnings := l.Learnings(ctx)

	var similar []Record
	for i := len(learnings) - 1; i >= 0 && len(similar) < limit; i-- {
		if learnings[i].Action.Type == t {
			similar = append(similar, learnings[i])
		}
	}
	return similar
}

// SuccessRate returns the effect counts of type t.
func (l *Learner) SuccessRate(ctx context.Context, t action.Type) Rate {
	return successRate(l.Learnings(ctx), t)
}

func successRate(learnings []Record, t action.Type) Rate {
	var r Rate
	for _, rec := range learnings {
		if rec.Action.Type != t {
			continue
		}
		r.Total++
		switch rec.Effect {
		case EffectImproved:
			r.Improved++
		case EffectWorsened:
			r.Worsened++
		}
	}
	r.Neutral = r.Total - r.Improved - r.Worsened
	if r.Total > 0 {
		r.SuccessRate = float64(r.Improved) / float64(r.Total) * 100
	}
	return r
}

// Summary returns totals, per-type rates and the five latest learnings.
func (l *Learner) Summary(ctx context.Context) Summary {
	l.mu.Lock()
	learnings := l.loadLearnings(ctx)
	pending := l.loadPending(ctx)
	l.mu.Unlock()

	s := Summary{
		TotalLearnings:  len(learnings),
		PendingAnalysis: len(pending),
		ByActionType:    make(map[action.Type]Rate, len(summaryTypes)),
		RecentLearnings: []Record{},
	}
	for _, t := range summaryTypes {
		s.ByActionType[t] = successRate(learnings, t)
	}
	if n := len(learnings); n > 0 {
		s.RecentLearnings = learnings[max(0, n-5):]
	}
	return s
}

// FormatForPrompt renders records as a Markdown section for the
// recommendation prompt.
func (l *Learner) FormatForPrompt(records []Record) string {
	if len(records) == 0 {
		return "過去の類似アクションの学習データはありません。"
	}

	lines := []string{"## 過去の類似アクションの結果"}
	for i, r := range records {
		lines = append(lines,
			fmt.Sprintf("\n### %d. %s %s", i+1, r.Effect.Icon(), r.EffectDetail),
			"- 実行日: "+r.ExecutedAt.In(l.config.Location).Format("2006-01-02"),
			"- アクション: "+string(r.Action.Type),
		)
		if r.After == nil {
			continue
		}
		if r.Baseline.CPA != 0 && r.After.CPA != 0 {
			lines = append(lines, fmt.Sprintf("- CPA: %s → %s", format.Yen(r.Baseline.CPA), format.Yen(r.After.CPA)))
		}
		if r.Baseline.ROAS != 0 && r.After.ROAS != 0 {
			lines = append(lines, fmt.Sprintf("- ROAS: %.2f → %.2f", r.Baseline.ROAS, r.After.ROAS))
		}
	}
	return strings.Join(lines, "\n")
}

// Context renders per-type success rates and the latest effects for the
// recommendation prompt.
func (l *Learner) Context(ctx context.Context) string {
	s := l.Summary(ctx)
	if s.TotalLearnings == 0 {
		return "まだ学習データがありません（アクション実行後24時間で効果が学習されます）"
	}

	var lines []string
	for _, t := range summaryTypes {
		r := s.ByActionType[t]
		if r.Total == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: 成功率%.0f%% (成功%d/失敗%d/中立%d)",
			t, r.SuccessRate, r.Improved, r.Worsened, r.Neutral))
	}

	recent := s.RecentLearnings
	if len(recent) > 0 {
		lines = append(lines, "\n### 直近の学習事例:")
		for _, r := range recent[max(0, len(recent)-3):] {
			detail := r.EffectDetail
			if detail == "" {
				detail = "詳細なし"
			}
			lines = append(lines, r.Effect.Icon()+" "+detail)
		}
	}
	if len(lines) == 0 {
		return "学習データなし"
	}
	return strings.Join(lines, "\n")
}
