package v1

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"
	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/adpilot/internal/errors"
	"github.com/hrygo/adpilot/server/service/action"
	"github.com/hrygo/adpilot/server/service/monitor"
	"github.com/hrygo/adpilot/server/timezone"
)

// RunNow runs a manual monitoring pass and returns its result.
// POST /api/v1/runs
func (s *APIV1Service) RunNow(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		res *monitor.RunResult
		err error
	)
	switch {
	case s.Scheduler != nil:
		res, err = s.Scheduler.RunNow(ctx)
	case s.Monitor != nil:
		res, err = s.Monitor.Run(ctx, monitor.TriggerManual)
	default:
		return s.writeError(c, apperrors.NotConfigured("monitor"))
	}
	if err != nil {
		return s.writeError(c, err)
	}
	s.logger.Info("manual run via api", "operator", operator(c), "run_id", res.RunID, "status", res.Summary.Status)
	return c.JSON(http.StatusOK, res)
}

func (s *APIV1Service) lastRun() (*monitor.RunResult, error) {
	if s.Monitor == nil {
		return nil, apperrors.NotConfigured("monitor")
	}
	res := s.Monitor.Last()
	if res == nil {
		return nil, apperrors.NotFound("run", "latest")
	}
	return res, nil
}

// GetLatestRun returns the result of the latest completed run.
// GET /api/v1/runs/latest
func (s *APIV1Service) GetLatestRun(c echo.Context) error {
	res, err := s.lastRun()
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

const reportPage = `<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>body{font-family:sans-serif;max-width:960px;margin:2em auto}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:4px 8px}</style>
</head>
<body>
%s</body>
</html>
`

// GetReport renders the latest run as HTML, or as Markdown with
// ?format=markdown.
// GET /api/v1/report
func (s *APIV1Service) GetReport(c echo.Context) error {
	res, err := s.lastRun()
	if err != nil {
		return s.writeError(c, err)
	}
	md := monitor.Markdown(res, s.location())

	switch c.QueryParam("format") {
	case "", "html":
	case "markdown", "md":
		return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
	default:
		return s.writeError(c, apperrors.InvalidArgument("format must be html or markdown"))
	}

	var body bytes.Buffer
	if err := s.markdown.Convert([]byte(md), &body); err != nil {
		return s.writeError(c, fmt.Errorf("render report: %w", err))
	}
	title := "監視レポート " + res.CheckedAt.In(s.location()).Format("2006-01-02 15:04")
	return c.HTML(http.StatusOK, fmt.Sprintf(reportPage, html.EscapeString(title), body.String()))
}

// ActionFeed publishes the action history as an Atom feed, newest first.
// GET /api/v1/actions/feed.atom
func (s *APIV1Service) ActionFeed(c echo.Context) error {
	history := s.Executor.Queue().History(c.Request().Context(), action.DefaultHistoryLimit)
	base := c.Scheme() + "://" + c.Request().Host + "/api/v1/actions/"

	feed := &feeds.Feed{
		Title:       "adpilot action history",
		Link:        &feeds.Link{Href: base + "history"},
		Description: "Executed, approved and rejected campaign actions",
		Author:      &feeds.Author{Name: "adpilot"},
		Created:     time.Now().UTC(),
	}
	for i := len(history) - 1; i >= 0; i-- {
		feed.Items = append(feed.Items, feedItem(history[i], base))
	}
	if len(history) > 0 {
		feed.Updated = feed.Items[0].Updated
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return s.writeError(c, fmt.Errorf("render feed: %w", err))
	}
	return c.Blob(http.StatusOK, "application/atom+xml; charset=utf-8", []byte(atom))
}

func feedItem(r action.Record, base string) *feeds.Item {
	name := r.Action.CampaignName
	if name == "" {
		name = r.Action.CampaignID
	}

	var desc []string
	if r.Action.Reason != "" {
		desc = append(desc, "理由: "+r.Action.Reason)
	}
	if r.RejectReason != "" {
		desc = append(desc, "却下理由: "+r.RejectReason)
	}
	if r.Result != nil {
		desc = append(desc, "結果: "+r.Result.Message)
	}

	updated := r.CreatedAt
	for _, t := range []*time.Time{r.ApprovedAt, r.RejectedAt, r.ExecutedAt} {
		if t != nil && t.After(updated) {
			updated = *t
		}
	}
	return &feeds.Item{
		Id:          r.ID,
		Title:       fmt.Sprintf("[%s] %s %s", r.Status, r.Action.Type, name),
		Link:        &feeds.Link{Href: base + r.ID},
		Description: strings.Join(desc, "\n"),
		Created:     r.CreatedAt,
		Updated:     updated,
	}
}

// GetSchedulerStatus returns the schedule and the next trigger times.
// GET /api/v1/scheduler
func (s *APIV1Service) GetSchedulerStatus(c echo.Context) error {
	if s.Scheduler == nil {
		return s.writeError(c, apperrors.NotConfigured("scheduler"))
	}
	return c.JSON(http.StatusOK, s.Scheduler.Status())
}

// GetLearningSummary returns success rates and the latest learnings.
// GET /api/v1/learnings
func (s *APIV1Service) GetLearningSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Learner.Summary(c.Request().Context()))
}

// AnalyzeLearningsResponse lists the records analyzed by a pass.
type AnalyzeLearningsResponse struct {
	Analyzed int `json:"analyzed"`
}

// AnalyzeLearnings analyzes every pending record that is due.
// POST /api/v1/learnings/analyze
func (s *APIV1Service) AnalyzeLearnings(c echo.Context) error {
	records, err := s.Learner.AnalyzePending(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, AnalyzeLearningsResponse{Analyzed: len(records)})
}

func (s *APIV1Service) location() *time.Location {
	if s.Profile != nil {
		return s.Profile.Location()
	}
	return timezone.LocationAsiaTokyo
}
