package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/adpilot/internal/errors"
	"github.com/hrygo/adpilot/server/service/target"
)

// TargetListResponse is the whole target document.
type TargetListResponse struct {
	Defaults  map[string]target.TargetSet       `json:"defaults"`
	Campaigns map[string]target.CampaignTargets `json:"campaigns"`
}

// ListTargets returns the default and campaign-specific targets.
// GET /api/v1/targets
func (s *APIV1Service) ListTargets(c echo.Context) error {
	ctx := c.Request().Context()
	return c.JSON(http.StatusOK, TargetListResponse{
		Defaults:  s.Targets.Defaults(ctx),
		Campaigns: s.Targets.Campaigns(ctx),
	})
}

// TargetResponse is the effective target set of one campaign.
type TargetResponse struct {
	CampaignID string           `json:"campaign_id"`
	Type       string           `json:"type"`
	Targets    target.TargetSet `json:"targets"`
}

// GetTargets resolves the targets a campaign is judged against.
// GET /api/v1/targets/:campaign_id?type=sales
func (s *APIV1Service) GetTargets(c echo.Context) error {
	campaignType := c.QueryParam("type")
	if campaignType == "" {
		campaignType = target.TypeSales
	}
	if campaignType != target.TypeTraffic && campaignType != target.TypeSales {
		return s.writeError(c, apperrors.InvalidArgument("type must be traffic or sales"))
	}
	id := c.Param("campaign_id")
	return c.JSON(http.StatusOK, TargetResponse{
		CampaignID: id,
		Type:       campaignType,
		Targets:    s.Targets.Get(c.Request().Context(), id, campaignType),
	})
}

// SetTargetsRequest is the body of a target update.
type SetTargetsRequest struct {
	Name    string           `json:"name"`
	Targets target.TargetSet `json:"targets"`
}

// SetCampaignTargets replaces the targets of one campaign.
// PUT /api/v1/targets/:campaign_id
func (s *APIV1Service) SetCampaignTargets(c echo.Context) error {
	var req SetTargetsRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}
	if len(req.Targets) == 0 {
		return s.writeError(c, apperrors.InvalidArgument("targets are required"))
	}
	id := c.Param("campaign_id")
	if err := s.Targets.SetCampaignTargets(c.Request().Context(), id, req.Name, req.Targets); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, TargetResponse{CampaignID: id, Targets: req.Targets})
}

// SetDefaultTargets replaces the default set of a campaign type.
// PUT /api/v1/targets/defaults/:type
func (s *APIV1Service) SetDefaultTargets(c echo.Context) error {
	var req SetTargetsRequest
	if err := s.bind(c, &req); err != nil {
		return s.writeError(c, err)
	}
	campaignType := c.Param("type")
	if err := s.Targets.SetDefaultTargets(c.Request().Context(), campaignType, req.Targets); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, TargetResponse{Type: campaignType, Targets: req.Targets})
}

// RemoveTargets drops the campaign-specific targets.
// DELETE /api/v1/targets/:campaign_id
func (s *APIV1Service) RemoveTargets(c echo.Context) error {
	id := c.Param("campaign_id")
	removed, err := s.Targets.Remove(c.Request().Context(), id)
	if err != nil {
		return s.writeError(c, err)
	}
	if !removed {
		return s.writeError(c, apperrors.NotFound("campaign targets", id))
	}
	return c.NoContent(http.StatusNoContent)
}
