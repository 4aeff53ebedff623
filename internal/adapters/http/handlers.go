package http

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/core/usecases"
)

// SiteView is a catalog site with the engine's current view of it.
type SiteView struct {
	domain.Site
	State domain.SiteState `json:"state"`
}

// MotionView reports the classifier and the tracking subscription.
type MotionView struct {
	Sample    domain.MotionSample `json:"sample"`
	InVehicle bool                `json:"in_vehicle"`
	OnFoot    bool                `json:"on_foot"`
	Still     bool                `json:"still"`
	Tracking  bool                `json:"tracking"`
}

func motionView(e *usecases.Engine) MotionView {
	cl := e.Classifier()
	return MotionView{
		Sample:    cl.Sample(),
		InVehicle: cl.IsInVehicle(),
		OnFoot:    cl.IsOnFoot(),
		Still:     cl.IsStill(),
		Tracking:  e.Tracker().Tracking(),
	}
}

// ListSitesHandler returns the sites the engine currently knows, with the
// tier they were loaded from in X-Site-Source.
func ListSitesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		catalog := deps.Engine.Catalog()
		arbiter := deps.Engine.Arbiter()

		sites := catalog.Sites()
		views := make([]SiteView, len(sites))
		for i, s := range sites {
			views[i] = SiteView{Site: s, State: arbiter.State(s.ID)}
		}

		page, pg := paginate(c, views, 100, 200)
		SetLinkHeaders(c, pg)
		c.Set("X-Site-Source", catalog.Source())
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// GetSiteHandler returns a single site by id.
func GetSiteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		site, ok := deps.Engine.Catalog().Site(id)
		if !ok {
			return errNotFound(c, "site not found")
		}
		return c.JSON(SiteView{Site: site, State: deps.Engine.Arbiter().State(id)})
	}
}

// SiteTransitionsHandler returns the recorded transitions of a site.
func SiteTransitionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Transitions == nil {
			return errUnavailable(c, "transition history is not configured")
		}
		limit := c.QueryInt("limit", 50)
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		events, err := deps.Transitions.ListBySite(c.UserContext(), c.Params("id"), limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if events == nil {
			events = []domain.ConfirmedTransitionEvent{}
		}
		c.Set("Cache-Control", "no-cache")
		return c.JSON(events)
	}
}

// UpsertSitesHandler stores sites in the site repository and triggers a
// re-registration.
func UpsertSitesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Sites == nil {
			return errUnavailable(c, "site repository is not configured")
		}
		var sites []domain.Site
		if err := c.BodyParser(&sites); err != nil {
			return errBadRequest(c, "body must be a JSON array of sites")
		}
		if len(sites) == 0 {
			return errBadRequest(c, "no sites provided")
		}
		if len(sites) > 1000 {
			return errBadRequest(c, "too many sites (max 1000)")
		}
		for _, s := range sites {
			if err := s.Validate(); err != nil {
				return errBadRequest(c, err.Error())
			}
		}

		if err := deps.Sites.UpsertBatch(c.UserContext(), sites); err != nil {
			return errInternal(c, err.Error())
		}
		deps.Engine.SyncAndRegister()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"upserted": len(sites)})
	}
}

// DeactivateSiteHandler removes a site from the active list and triggers a
// re-registration.
func DeactivateSiteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Sites == nil {
			return errUnavailable(c, "site repository is not configured")
		}
		if err := deps.Sites.Deactivate(c.UserContext(), []string{c.Params("id")}); err != nil {
			return errInternal(c, err.Error())
		}
		deps.Engine.SyncAndRegister()
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ListRegionsHandler returns the regions currently registered with the
// facility.
func ListRegionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reg := deps.Engine.Registry()
		regions := reg.Regions()
		if regions == nil {
			regions = []domain.MonitoredRegion{}
		}
		c.Set("Cache-Control", "no-cache")
		return c.JSON(fiber.Map{
			"handle":  reg.Handle(),
			"count":   len(regions),
			"regions": regions,
		})
	}
}

// StateHandler returns the arbiter's per-site state. ?inside=true keeps only
// the sites the user is in.
func StateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snapshot := deps.Engine.Arbiter().Snapshot()
		if c.QueryBool("inside", false) {
			filtered := snapshot[:0:0]
			for _, s := range snapshot {
				if s.State == domain.Inside {
					filtered = append(filtered, s)
				}
			}
			snapshot = filtered
		}
		if snapshot == nil {
			snapshot = []usecases.SiteStatus{}
		}
		c.Set("Cache-Control", "no-cache")
		return c.JSON(snapshot)
	}
}

// MotionHandler returns the current motion classification.
func MotionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-cache")
		return c.JSON(motionView(deps.Engine))
	}
}

// StartMotionHandler (re-)requests motion updates.
func StartMotionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := deps.Engine.StartMotionTracking(c.UserContext())
		switch {
		case errors.Is(err, domain.ErrPermission):
			return errForbidden(c, "motion capability not granted")
		case err != nil:
			return errInternal(c, err.Error())
		}
		return c.JSON(motionView(deps.Engine))
	}
}

// StopMotionHandler removes the motion subscription.
func StopMotionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deps.Engine.StopMotionTracking(c.UserContext())
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// SyncStatusHandler returns the outcome of the last sync cycle.
func SyncStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-cache")
		return c.JSON(deps.Engine.LastSync())
	}
}

// TriggerSyncHandler starts a fetch-and-register cycle in the background.
func TriggerSyncHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		deps.Engine.SyncAndRegister()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
	}
}

type bootRequest struct {
	Action string `json:"action"`
}

// BootHandler delivers a device boot signal to the engine.
func BootHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req bootRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if !usecases.IsBootAction(req.Action) {
			return errBadRequest(c, fmt.Sprintf("unsupported boot action %q", req.Action))
		}
		deps.Engine.OnBoot(c.UserContext(), req.Action)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "rehydrating"})
	}
}

type permissionsRequest struct {
	Location *bool `json:"location"`
	Motion   *bool `json:"motion"`
}

// PermissionsHandler grants or revokes device capabilities.
func PermissionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Permissions == nil {
			return errConflict(c, "capabilities are managed by the device")
		}
		var req permissionsRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Location != nil {
			deps.Permissions.SetLocation(*req.Location)
		}
		if req.Motion != nil {
			deps.Permissions.SetMotion(*req.Motion)
		}
		return c.JSON(fiber.Map{
			"location": deps.Permissions.HasLocationCapability(),
			"motion":   deps.Permissions.HasMotionCapability(),
		})
	}
}
