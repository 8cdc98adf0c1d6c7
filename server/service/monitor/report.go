package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/adpilot/internal/format"
	"github.com/hrygo/adpilot/plugin/notify"
	"github.com/hrygo/adpilot/server/service/judgment"
	"github.com/hrygo/adpilot/server/service/recommend"
)

// maxListed caps the alerts, opportunities and recommendations listed in a message.
const maxListed = 5

var severityOrder = map[string]int{"low": 0, "medium": 1, "high": 2}

// FilterAlerts keeps alerts at or above the threshold (low, medium, high).
// Unknown values count as medium.
func FilterAlerts(alerts []Alert, threshold string) []Alert {
	level, ok := severityOrder[threshold]
	if !ok {
		level = severityOrder["medium"]
	}
	var out []Alert
	for _, a := range alerts {
		s, ok := severityOrder[a.Severity]
		if !ok {
			s = severityOrder["medium"]
		}
		if s >= level {
			out = append(out, a)
		}
	}
	return out
}

func severityIcon(severity string) string {
	if severity == severityHigh {
		return "🔴"
	}
	return "🟡"
}

func priorityIcon(p recommend.Priority) string {
	switch p {
	case recommend.PriorityHigh:
		return "🔴"
	case recommend.PriorityMedium:
		return "🟡"
	case recommend.PriorityLow:
		return "🟢"
	}
	return "⚪"
}

func levelOf(s judgment.Status) notify.Level {
	switch s {
	case judgment.StatusCritical:
		return notify.LevelCritical
	case judgment.StatusWarning:
		return notify.LevelWarning
	default:
		return notify.LevelInfo
	}
}

// DailyReport renders the daily Slack report of a run.
func DailyReport(r *RunResult, now time.Time) notify.Message {
	s := r.Summary
	blocks := []notify.Block{
		notify.Header(fmt.Sprintf("📊 Meta広告 日次レポート (%s)", now.Format("2006/01/02"))),
		notify.Section(s.StatusMessage),
		notify.Divider(),
		notify.Fields(
			fmt.Sprintf("*チェックアカウント数*\n%d", s.AccountsChecked),
			fmt.Sprintf("*アラート*\n%d件", s.TotalAlerts),
			fmt.Sprintf("*緊急アラート*\n%d件", s.HighAlerts),
			fmt.Sprintf("*拡大チャンス*\n%d件", s.TotalOpportunities),
		),
	}

	if len(r.Alerts) > 0 {
		blocks = append(blocks, notify.Divider(), notify.Section("*🚨 アラート*"))
		for _, a := range r.Alerts[:min(len(r.Alerts), maxListed)] {
			blocks = append(blocks, notify.Section(fmt.Sprintf("%s *%s*\n%s", severityIcon(a.Severity), a.CampaignName, a.Message)))
		}
	}

	if len(r.Opportunities) > 0 {
		blocks = append(blocks, notify.Divider(), notify.Section("*🚀 拡大チャンス*"))
		for _, o := range r.Opportunities[:min(len(r.Opportunities), maxListed)] {
			blocks = append(blocks, notify.Section(fmt.Sprintf("🟢 *%s*\n%s", o.CampaignName, o.Message)))
		}
	}

	if recs := r.Recommendations(); len(recs) > 0 {
		blocks = append(blocks, notify.Divider(), notify.Section("*💡 推奨アクション*"))
		for i, rec := range recs[:min(len(recs), maxListed)] {
			blocks = append(blocks, notify.Section(fmt.Sprintf("%s *%d. %s*\n%s",
				priorityIcon(rec.Priority), i+1, rec.ActionDisplay, rec.Reason)))
		}
	}

	blocks = append(blocks,
		notify.Divider(),
		notify.Context(fmt.Sprintf("🤖 adpilot | %s", now.Format("2006-01-02 15:04:05"))),
	)
	return notify.Message{
		Level:  notify.LevelInfo,
		Text:   "📊 Meta広告日次レポート - " + s.StatusMessage,
		Blocks: blocks,
	}
}

// AlertSummary renders the hourly summary of alerts. It returns false when
// there is nothing to send.
func AlertSummary(alerts []Alert, now time.Time) (notify.Message, bool) {
	if len(alerts) == 0 {
		return notify.Message{}, false
	}

	high := 0
	for _, a := range alerts {
		if a.Severity == severityHigh {
			high++
		}
	}
	header := fmt.Sprintf("🟡 アラート %d件検知", len(alerts))
	level := notify.LevelWarning
	if high > 0 {
		header = fmt.Sprintf("🔴 緊急アラート %d件検知", high)
		level = notify.LevelCritical
	}

	blocks := []notify.Block{
		notify.Header(header),
		notify.Context("⏰ 定期チェック | " + now.Format("2006-01-02 15:04")),
		notify.Divider(),
	}
	for _, a := range alerts[:min(len(alerts), maxListed)] {
		text := fmt.Sprintf("%s *%s*", severityIcon(a.Severity), a.CampaignName)
		if a.Objective != "" {
			text += " [" + a.Objective + "]"
		}
		text += "\n" + a.Message
		for _, i := range a.Issues[:min(len(a.Issues), 3)] {
			text += "\n• " + i.Message
		}
		blocks = append(blocks, notify.Section(text))
	}
	blocks = append(blocks, notify.Divider(), notify.Context("💡 詳細はダッシュボードで確認してください"))

	return notify.Message{Level: level, Text: header + " - 定期チェック", Blocks: blocks}, true
}

// AlertMessage renders one urgent alert.
func AlertMessage(a Alert, now time.Time) notify.Message {
	icon := severityIcon(a.Severity)
	level := notify.LevelWarning
	if a.Severity == severityHigh {
		level = notify.LevelCritical
	}
	return notify.Message{
		Level: level,
		Text:  fmt.Sprintf("%s アラート: %s", icon, a.Message),
		Blocks: []notify.Block{
			notify.Header(icon + " アラート検知"),
			notify.Section(fmt.Sprintf("*キャンペーン:* %s\n*内容:* %s", a.CampaignName, a.Message)),
			notify.Context("検知時刻: " + now.Format("2006-01-02 15:04:05")),
		},
	}
}

// Markdown renders a run as a Markdown document.
func Markdown(r *RunResult, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# 監視レポート %s\n\n", r.CheckedAt.In(loc).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "**%s**\n\n", r.Summary.StatusMessage)
	fmt.Fprintf(&b, "- チェックアカウント数: %d\n", r.Summary.AccountsChecked)
	fmt.Fprintf(&b, "- アラート: %d件（緊急 %d件）\n", r.Summary.TotalAlerts, r.Summary.HighAlerts)
	fmt.Fprintf(&b, "- 拡大チャンス: %d件\n", r.Summary.TotalOpportunities)
	if r.Learned > 0 {
		fmt.Fprintf(&b, "- 効果分析: %d件\n", r.Learned)
	}

	for _, id := range r.AccountOrder {
		acc := r.Accounts[id]
		if acc == nil {
			continue
		}
		fmt.Fprintf(&b, "\n## アカウント %s\n\n", id)
		if acc.Error != "" {
			fmt.Fprintf(&b, "> エラー: %s\n", acc.Error)
			continue
		}
		if len(acc.Campaigns) == 0 {
			b.WriteString("分析対象のキャンペーンはありません。\n")
			continue
		}

		b.WriteString("| キャンペーン | 目的 | 判定 | 本日消化 | 日予算 | 概要 |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, c := range acc.Campaigns {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				escapeCell(c.Name), c.ObjectiveDisplay, c.Judgment.Status,
				format.Yen(c.Periods.Today.Spend), format.Yen(c.DailyBudget), escapeCell(c.Judgment.Summary))
		}

		if len(acc.Alerts) > 0 {
			b.WriteString("\n### アラート\n\n")
			for _, a := range acc.Alerts {
				fmt.Fprintf(&b, "- %s **%s**: %s\n", severityIcon(a.Severity), a.CampaignName, a.Message)
				for _, c := range a.Comparisons {
					fmt.Fprintf(&b, "  - %s\n", c)
				}
			}
		}
		if len(acc.Opportunities) > 0 {
			b.WriteString("\n### 拡大チャンス\n\n")
			for _, o := range acc.Opportunities {
				fmt.Fprintf(&b, "- 🟢 **%s**: %s（%s）\n", o.CampaignName, o.Message, o.SuggestedAction)
			}
		}
		if len(acc.Recommendations) > 0 {
			b.WriteString("\n### 推奨アクション\n\n")
			for i, rec := range acc.Recommendations {
				fmt.Fprintf(&b, "%d. %s **%s** %s: %s\n", i+1, priorityIcon(rec.Priority), rec.CampaignName, rec.ActionDisplay, rec.Reason)
			}
		}
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// Level maps the run status onto a notification level.
func (r *RunResult) Level() notify.Level {
	return levelOf(r.Summary.Status)
}
