package service

import (
	"math"
	"time"

	"github.com/noah-isme/gema-review-engine/internal/models"
)

// Lateness is measured in units of 1/10000 day so the ceiling is exact integer math.
const (
	lateUnitsPerDay = 10000
	lateUnit        = 24 * time.Hour / lateUnitsPerDay
)

// LatePenaltyResult is the outcome of ComputeLatePenalty.
type LatePenaltyResult struct {
	IsLate bool
	// DaysLate is fractional and never negative.
	DaysLate float64
	// PenaltyApplied is expressed in score points relative to max_score.
	PenaltyApplied float64
	// PenaltyPercent is the share of the score removed, in [0, 100].
	PenaltyPercent float64
	// FinalScoreCap is the best score still reachable after the penalty.
	FinalScoreCap float64
}

// ComputeLatePenalty derives lateness and penalty from the due and submission
// instants. It has no side effects.
func ComputeLatePenalty(dueAt, submittedAt time.Time, policy models.LatePenaltyPolicy, maxScore float64) LatePenaltyResult {
	result := LatePenaltyResult{FinalScoreCap: maxScore}

	lateness := submittedAt.Sub(dueAt)
	if lateness <= 0 {
		return result
	}

	units := int64(lateness / lateUnit)
	if lateness%lateUnit != 0 {
		units++
	}

	result.IsLate = true
	result.DaysLate = float64(units) / lateUnitsPerDay

	switch policy.Type {
	case models.LatePenaltyFixed:
		result.PenaltyApplied = roundScore(math.Max(0, policy.Value))
		if maxScore > 0 {
			result.PenaltyPercent = math.Min(100, result.PenaltyApplied/maxScore*100)
		}
	case models.LatePenaltyPercentagePerDay:
		percent := math.Min(100, math.Max(0, policy.Value)*result.DaysLate)
		result.PenaltyPercent = roundScore(percent)
		result.PenaltyApplied = roundScore(percent / 100 * maxScore)
	}

	result.FinalScoreCap = roundScore(math.Max(0, maxScore-result.PenaltyApplied))
	return result
}

// ApplyLatePenalty turns a raw score into a final score using the penalty
// snapshotted on the submission. Fixed penalties subtract points, percentage
// penalties scale the raw score. The result stays within [0, maxScore].
func ApplyLatePenalty(raw float64, penaltyType models.LatePenaltyType, penaltyApplied, maxScore float64) float64 {
	final := raw
	switch penaltyType {
	case models.LatePenaltyFixed:
		final = raw - penaltyApplied
	case models.LatePenaltyPercentagePerDay:
		if maxScore > 0 {
			final = raw * (1 - math.Min(1, penaltyApplied/maxScore))
		}
	}
	if maxScore > 0 {
		final = math.Min(final, maxScore)
	}
	return roundScore(math.Max(0, final))
}

// ValidatePenaltyPolicy checks the policy type and value range.
func ValidatePenaltyPolicy(policy models.LatePenaltyPolicy) error {
	switch policy.Type {
	case models.LatePenaltyNone:
		return nil
	case models.LatePenaltyFixed:
		if policy.Value < 0 {
			return ErrInvalidPenaltyPolicy
		}
		return nil
	case models.LatePenaltyPercentagePerDay:
		if policy.Value < 0 || policy.Value > 100 {
			return ErrInvalidPenaltyPolicy
		}
		return nil
	default:
		return ErrInvalidPenaltyPolicy
	}
}

func roundScore(value float64) float64 {
	return math.Round(value*100) / 100
}
