package handler

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-review-engine/internal/middleware"
	"github.com/noah-isme/gema-review-engine/internal/models"
	"github.com/noah-isme/gema-review-engine/internal/repository"
	"github.com/noah-isme/gema-review-engine/internal/service"
	"github.com/noah-isme/gema-review-engine/internal/utils"
)

// RouteGuards carries the authorization middlewares handlers attach per route.
// Nil guards allow every request through.
type RouteGuards struct {
	Staff fiber.Handler
	Admin fiber.Handler
	Batch fiber.Handler
}

func passThrough(c *fiber.Ctx) error {
	return c.Next()
}

func (g RouteGuards) staff() fiber.Handler {
	if g.Staff == nil {
		return passThrough
	}
	return g.Staff
}

func (g RouteGuards) admin() fiber.Handler {
	if g.Admin == nil {
		return passThrough
	}
	return g.Admin
}

func (g RouteGuards) batch() fiber.Handler {
	if g.Batch == nil {
		return passThrough
	}
	return g.Batch
}

func parseUintParam(c *fiber.Ctx, name string) (uint, error) {
	parsed, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || parsed == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(parsed), nil
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

func actorFromContext(c *fiber.Ctx) service.Actor {
	id, role := middleware.ActorFromContext(c)
	return service.Actor{ID: id, Role: role}
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func validationDetails(err validator.ValidationErrors) []fieldError {
	details := make([]fieldError, 0, len(err))
	for _, fe := range err {
		details = append(details, fieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return details
}

// respondError maps service and repository errors onto the response envelope.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var (
		validationErrors validator.ValidationErrors
		violation        *service.ConstraintViolation
		parseErr         *time.ParseError
	)

	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(validationErrors))
	case errors.As(err, &parseErr):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &violation):
		return utils.Fail(c, fiber.StatusConflict, violation.Error(), fiber.Map{"reason": violation.Reason})
	case errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrPeerReviewAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrScheduleInvalid),
		errors.Is(err, service.ErrScheduleLocked),
		errors.Is(err, service.ErrInvalidPenaltyPolicy),
		errors.Is(err, service.ErrScoreExceedsMax),
		errors.Is(err, service.ErrInvalidReviewerCount):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrNotOnRoster),
		errors.Is(err, service.ErrNotReviewer),
		errors.Is(err, service.ErrNotSubmissionAuthor):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrDuplicateSubmission),
		errors.Is(err, service.ErrAssignmentNotOpen),
		errors.Is(err, service.ErrCloseNotDue),
		errors.Is(err, service.ErrReviewNotOpen),
		errors.Is(err, service.ErrReviewNotEditable),
		errors.Is(err, service.ErrReviewVersionMismatch),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, repository.ErrStaleWrite):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	default:
		requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
