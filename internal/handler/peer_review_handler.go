package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-review-engine/internal/dto"
	"github.com/noah-isme/gema-review-engine/internal/service"
	"github.com/noah-isme/gema-review-engine/internal/utils"
)

// PeerReviewHandler exposes matching, reviewing, and aggregation endpoints.
type PeerReviewHandler struct {
	service service.PeerReviewService
	logger  zerolog.Logger
}

// NewPeerReviewHandler constructs the handler.
func NewPeerReviewHandler(service service.PeerReviewService, logger zerolog.Logger) *PeerReviewHandler {
	return &PeerReviewHandler{
		service: service,
		logger:  logger.With().Str("component", "peer_review_handler").Logger(),
	}
}

// Register binds peer review routes on the versioned API root.
func (h *PeerReviewHandler) Register(router fiber.Router, guards RouteGuards) {
	router.Post("/assignments/:id/peer-reviews/generate", guards.staff(), guards.batch(), h.generate)
	router.Post("/peer-reviews/manual", guards.staff(), h.assignManual)
	router.Get("/peer-reviews/mine", h.mine)
	router.Post("/peer-reviews/:id/start", h.start)
	router.Post("/peer-reviews/:id/review", h.submitReview)
	router.Put("/peer-reviews/:id/review", h.editReview)
	router.Post("/peer-reviews/:id/skip", h.skip)
	router.Get("/submissions/:id/reviews", h.reviewsForAuthor)
	router.Get("/submissions/:id/review-summary", h.summary)
}

func (h *PeerReviewHandler) generate(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.PeerReviewGenerateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.service.GenerateRandom(c.UserContext(), assignmentID, payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "peer review matching completed", result)
}

func (h *PeerReviewHandler) assignManual(c *fiber.Ctx) error {
	var payload dto.PeerReviewManualRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	edge, err := h.service.AssignManual(c.UserContext(), payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "reviewer assigned", edge)
}

func (h *PeerReviewHandler) mine(c *fiber.Ctx) error {
	var assignmentID *uint
	if raw := c.Query("assignment_id"); raw != "" {
		parsed, err := parseQueryInt(c, "assignment_id")
		if err != nil || parsed <= 0 {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid assignment_id")
		}
		id := uint(parsed)
		assignmentID = &id
	}

	edges, err := h.service.ListForReviewer(c.UserContext(), actorFromContext(c), assignmentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "peer reviews retrieved", edges)
}

func (h *PeerReviewHandler) start(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	edge, err := h.service.Start(c.UserContext(), id, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "peer review started", edge)
}

func (h *PeerReviewHandler) submitReview(c *fiber.Ctx) error {
	id, payload, ok, err := h.reviewPayload(c)
	if !ok {
		return err
	}

	edge, err := h.service.SubmitReview(c.UserContext(), id, payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "peer review submitted", edge)
}

func (h *PeerReviewHandler) editReview(c *fiber.Ctx) error {
	id, payload, ok, err := h.reviewPayload(c)
	if !ok {
		return err
	}

	edge, err := h.service.EditReview(c.UserContext(), id, payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "peer review updated", edge)
}

// reviewPayload parses the edge id and review body. When ok is false the
// error response has already been written and err is its send result.
func (h *PeerReviewHandler) reviewPayload(c *fiber.Ctx) (uint, dto.PeerReviewSubmitRequest, bool, error) {
	var payload dto.PeerReviewSubmitRequest

	id, err := parseUintParam(c, "id")
	if err != nil {
		return 0, payload, false, utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := c.BodyParser(&payload); err != nil {
		return 0, payload, false, utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	return id, payload, true, nil
}

func (h *PeerReviewHandler) skip(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	edge, err := h.service.Skip(c.UserContext(), id, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "peer review skipped", edge)
}

func (h *PeerReviewHandler) reviewsForAuthor(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	views, err := h.service.ReviewsForAuthor(c.UserContext(), submissionID, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "reviews retrieved", views)
}

func (h *PeerReviewHandler) summary(c *fiber.Ctx) error {
	submissionID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	summary, err := h.service.Summary(c.UserContext(), submissionID, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "review summary retrieved", summary)
}
