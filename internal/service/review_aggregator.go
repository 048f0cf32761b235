package service

import (
	"github.com/noah-isme/gema-review-engine/internal/dto"
	"github.com/noah-isme/gema-review-engine/internal/models"
)

// AggregateReviews summarises the completed edges of one submission. Edges in
// any other status are ignored, and a criterion missing from a review does not
// count toward that criterion's denominator.
func AggregateReviews(submissionID uint, edges []models.PeerReviewAssignment) dto.ReviewSummaryResponse {
	summary := dto.ReviewSummaryResponse{
		SubmissionID: submissionID,
		RubricMeans:  map[string]float64{},
	}

	var scoreTotal float64
	rubricTotals := map[string]float64{}
	rubricCounts := map[string]int{}

	for _, edge := range edges {
		if edge.SubmissionID != submissionID || edge.Status != models.PeerReviewStatusCompleted || edge.Review == nil {
			continue
		}

		summary.ReviewCount++
		scoreTotal += edge.Review.Score

		for criterion, value := range dto.RubricFromJSONMap(edge.Review.RubricScores) {
			rubricTotals[criterion] += value
			rubricCounts[criterion]++
		}
	}

	if summary.ReviewCount == 0 {
		return summary
	}

	mean := roundScore(scoreTotal / float64(summary.ReviewCount))
	summary.MeanScore = &mean
	for criterion, total := range rubricTotals {
		summary.RubricMeans[criterion] = roundScore(total / float64(rubricCounts[criterion]))
	}
	return summary
}
