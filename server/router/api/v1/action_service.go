package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/adpilot/internal/errors"
	"github.com/hrygo/adpilot/server/service/action"
)

// ActionListResponse wraps a list of queued or historical actions.
type ActionListResponse struct {
	Actions []action.Record `json:"actions"`
	Count   int             `json:"count"`
}

func newActionList(records []action.Record) ActionListResponse {
	if records == nil {
		records = []action.Record{}
	}
	return ActionListResponse{Actions: records, Count: len(records)}
}

// ListPendingActions returns the actions waiting for approval.
// GET /api/v1/actions/pending
func (s *APIV1Service) ListPendingActions(c echo.Context) error {
	return c.JSON(http.StatusOK, newActionList(s.Executor.Pending(c.Request().Context())))
}

// ListActionHistory returns the latest history entries, oldest first.
// GET /api/v1/actions/history?limit=50
func (s *APIV1Service) ListActionHistory(c echo.Context) error {
	limit := action.DefaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return s.writeError(c, apperrors.InvalidArgument("limit must be a positive integer"))
		}
		limit = n
	}
	return c.JSON(http.StatusOK, newActionList(s.Executor.Queue().History(c.Request().Context(), limit)))
}

// GetAction returns one pending or historical action.
// GET /api/v1/actions/:id
func (s *APIV1Service) GetAction(c echo.Context) error {
	rec, err := s.Executor.Queue().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// ProposeActionResponse is returned for a queued action.
type ProposeActionResponse struct {
	ID string `json:"id"`
}

// ProposeAction queues an operator action for approval.
// POST /api/v1/actions
func (s *APIV1Service) ProposeAction(c echo.Context) error {
	var a action.Action
	if err := s.bind(c, &a); err != nil {
		return s.writeError(c, err)
	}
	if a.Source == "" {
		a.Source = action.SourceManual
	}
	id, err := s.Executor.Propose(c.Request().Context(), a)
	if err != nil {
		return s.writeError(c, err)
	}
	s.logger.Info("action proposed via api", "id", id, "operator", operator(c), "type", a.Type)
	return c.JSON(http.StatusCreated, ProposeActionResponse{ID: id})
}

// ExecuteActionResponse carries the outcome of an executed action. A safety
// refusal is a successful request with result.refusal set.
type ExecuteActionResponse struct {
	ID     string        `json:"id,omitempty"`
	Result action.Result `json:"result"`
}

// ApproveAction approves and executes a pending action.
// POST /api/v1/actions/:id/approve
func (s *APIV1Service) ApproveAction(c echo.Context) error {
	id := c.Param("id")
	res, err := s.Executor.ApproveAndExecute(c.Request().Context(), id)
	if err != nil {
		return s.writeError(c, err)
	}
	s.logger.Info("action approved via api", "id", id, "operator", operator(c), "success", res.Success)
	return c.JSON(http.StatusOK, ExecuteActionResponse{ID: id, Result: res})
}

// RejectActionRequest is the body of a rejection.
type RejectActionRequest struct {
	Reason string `json:"reason"`
}

// RejectAction rejects a pending action.
// POST /api/v1/actions/:id/reject
func (s *APIV1Service) RejectAction(c echo.Context) error {
	var req RejectActionRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}
	rec, err := s.Executor.Reject(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return s.writeError(c, err)
	}
	s.logger.Info("action rejected via api", "id", rec.ID, "operator", operator(c))
	return c.JSON(http.StatusOK, rec)
}

// ExecuteAction runs an operator action without the approval step.
// POST /api/v1/actions/execute
func (s *APIV1Service) ExecuteAction(c echo.Context) error {
	var a action.Action
	if err := s.bind(c, &a); err != nil {
		return s.writeError(c, err)
	}
	if !a.Type.Valid() {
		return s.writeError(c, apperrors.InvalidArgument("unknown action type: "+string(a.Type)))
	}
	if a.CampaignID == "" {
		return s.writeError(c, apperrors.InvalidArgument("campaign id is required"))
	}
	a.Source = action.SourceDirect

	res, err := s.Executor.ExecuteDirect(c.Request().Context(), a)
	if err != nil {
		return s.writeError(c, err)
	}
	s.logger.Info("action executed via api",
		"operator", operator(c),
		"type", a.Type,
		"campaign_id", a.CampaignID,
		"success", res.Success)
	return c.JSON(http.StatusOK, ExecuteActionResponse{Result: res})
}
