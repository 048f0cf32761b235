package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-review-engine/internal/dto"
	"github.com/noah-isme/gema-review-engine/internal/service"
	"github.com/noah-isme/gema-review-engine/internal/utils"
)

// AdminHandler exposes operational endpoints: on-demand sweeps and the audit trail.
type AdminHandler struct {
	sweeper  service.Sweeper
	activity service.ActivityService
	logger   zerolog.Logger
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(sweeper service.Sweeper, activity service.ActivityService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		sweeper:  sweeper,
		activity: activity,
		logger:   logger.With().Str("component", "admin_handler").Logger(),
	}
}

// Register binds admin routes on the /admin group.
func (h *AdminHandler) Register(router fiber.Router, guards RouteGuards) {
	router.Post("/sweeps", guards.admin(), guards.batch(), h.triggerSweep)
	router.Get("/activities", guards.admin(), h.listActivities)
}

func (h *AdminHandler) triggerSweep(c *fiber.Ctx) error {
	ctx := c.UserContext()
	actor := actorFromContext(c)

	summary, err := h.sweeper.RunOnce(ctx)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	if h.activity != nil {
		entry := service.ActivityEntry{
			Actor:      actor,
			Action:     service.ActionSweepTriggered,
			EntityType: "sweep",
			Metadata: map[string]interface{}{
				"sweep_run": summary.RunToken,
				"skipped":   summary.Skipped,
				"published": summary.Published,
				"closed":    summary.Closed,
				"reminded":  summary.Reminded,
				"errors":    len(summary.Errors),
			},
		}
		if err := h.activity.Record(ctx, entry); err != nil {
			requestLogger(h.logger, c).Warn().Err(err).Msg("failed to record sweep activity")
		}
	}

	message := "sweep completed"
	if summary.Skipped {
		message = "sweep skipped: another run holds the lock"
	}
	return utils.SendSuccess(c, message, summary)
}

func (h *AdminHandler) listActivities(c *fiber.Ctx) error {
	var req dto.ActivityListRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	activities, err := h.activity.List(c.UserContext(), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "activities retrieved", activities)
}
