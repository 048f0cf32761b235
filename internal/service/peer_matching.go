package service

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sort"

	"github.com/noah-isme/gema-review-engine/internal/dto"
	"github.com/noah-isme/gema-review-engine/internal/models"
)

// RandFactory returns a fresh random source for one matching batch.
type RandFactory func() *rand.Rand

// SecureRand seeds a ChaCha8 generator from crypto/rand.
func SecureRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand only fails on a broken platform; fall back to the runtime source.
		binary.LittleEndian.PutUint64(seed[:8], rand.Uint64())
		binary.LittleEndian.PutUint64(seed[8:16], rand.Uint64())
	}
	return rand.New(rand.NewChaCha8(seed))
}

// SeededRand returns a RandFactory yielding an identical PCG stream on every call.
func SeededRand(seed1, seed2 uint64) RandFactory {
	return func() *rand.Rand {
		return rand.New(rand.NewPCG(seed1, seed2))
	}
}

type excludedKey struct {
	reviewerID   uint
	submissionID uint
}

// MatchingPool is a snapshot of one assignment's roster, submissions and
// existing edges that matching decisions are made against.
type MatchingPool struct {
	members     []uint
	roster      map[uint]struct{}
	submitted   map[uint]uint
	submissions []models.Submission
	reviewers   map[uint]map[uint]models.PeerReviewStatus
	excluded    map[excludedKey]struct{}
}

// NewMatchingPool indexes the inputs. Roster order does not matter.
func NewMatchingPool(roster []uint, submissions []models.Submission, edges []models.PeerReviewAssignment, excluded []dto.ExcludedPair) *MatchingPool {
	pool := &MatchingPool{
		roster:    make(map[uint]struct{}, len(roster)),
		submitted: make(map[uint]uint, len(submissions)),
		reviewers: make(map[uint]map[uint]models.PeerReviewStatus),
		excluded:  make(map[excludedKey]struct{}, len(excluded)),
	}

	for _, id := range roster {
		if _, ok := pool.roster[id]; ok {
			continue
		}
		pool.roster[id] = struct{}{}
		pool.members = append(pool.members, id)
	}
	sort.Slice(pool.members, func(i, j int) bool { return pool.members[i] < pool.members[j] })

	pool.submissions = append(pool.submissions, submissions...)
	sort.Slice(pool.submissions, func(i, j int) bool { return pool.submissions[i].ID < pool.submissions[j].ID })
	for _, submission := range pool.submissions {
		pool.submitted[submission.StudentID] = submission.ID
	}

	for _, edge := range edges {
		set, ok := pool.reviewers[edge.SubmissionID]
		if !ok {
			set = make(map[uint]models.PeerReviewStatus)
			pool.reviewers[edge.SubmissionID] = set
		}
		set[edge.ReviewerID] = edge.Status
	}

	for _, pair := range excluded {
		pool.excluded[excludedKey{reviewerID: pair.ReviewerID, submissionID: pair.SubmissionID}] = struct{}{}
	}

	return pool
}

// CheckReviewer applies the matching invariants to one candidate edge. The
// random and manual paths both go through it.
func (p *MatchingPool) CheckReviewer(reviewerID uint, submission models.Submission) error {
	if reviewerID == submission.StudentID {
		return &ConstraintViolation{Reason: ReasonSelfReview}
	}
	if _, ok := p.roster[reviewerID]; !ok {
		return &ConstraintViolation{Reason: ReasonNotAParticipant}
	}
	if _, ok := p.submitted[reviewerID]; !ok {
		return &ConstraintViolation{Reason: ReasonNotSubmitted}
	}
	if _, ok := p.reviewers[submission.ID][reviewerID]; ok {
		return &ConstraintViolation{Reason: ReasonDuplicateAssignment}
	}
	return nil
}

// ActiveReviewers counts the non-skipped reviewers already on a submission.
func (p *MatchingPool) ActiveReviewers(submissionID uint) int {
	count := 0
	for _, status := range p.reviewers[submissionID] {
		if status != models.PeerReviewStatusSkipped {
			count++
		}
	}
	return count
}

func (p *MatchingPool) candidates(submission models.Submission) []uint {
	var out []uint
	for _, id := range p.members {
		if _, skip := p.excluded[excludedKey{reviewerID: id, submissionID: submission.ID}]; skip {
			continue
		}
		if p.CheckReviewer(id, submission) == nil {
			out = append(out, id)
		}
	}
	return out
}

// SubmissionDraw is the set of reviewers chosen for one submission.
type SubmissionDraw struct {
	Submission models.Submission
	Reviewers  []uint
}

// MatchingPlan is the output of PeerMatchingEngine.Plan before persistence.
type MatchingPlan struct {
	Draws   []SubmissionDraw
	Skipped []dto.MatchingSkip
}

// PeerMatchingEngine draws reviewers uniformly without replacement.
// SpareCandidates is the number of eligible candidates a submission must have
// beyond the reviewers it still needs before it is matched at all.
type PeerMatchingEngine struct {
	SpareCandidates int
}

// Plan decides every submission independently. A submission is either fully
// drawn or skipped; it is never partially drawn.
func (e PeerMatchingEngine) Plan(pool *MatchingPool, reviewersPerSubmission int, rng *rand.Rand) MatchingPlan {
	var plan MatchingPlan
	spare := e.SpareCandidates
	if spare < 0 {
		spare = 0
	}

	for _, submission := range pool.submissions {
		need := reviewersPerSubmission - pool.ActiveReviewers(submission.ID)
		if need <= 0 {
			plan.Skipped = append(plan.Skipped, dto.MatchingSkip{SubmissionID: submission.ID, Reason: ReasonQuotaMet})
			continue
		}

		candidates := pool.candidates(submission)
		if len(candidates) < need+spare {
			plan.Skipped = append(plan.Skipped, dto.MatchingSkip{SubmissionID: submission.ID, Reason: ReasonInsufficientPool})
			continue
		}

		plan.Draws = append(plan.Draws, SubmissionDraw{
			Submission: submission,
			Reviewers:  sampleWithoutReplacement(candidates, need, rng),
		})
	}

	return plan
}

// sampleWithoutReplacement runs a partial Fisher-Yates shuffle over a copy of items.
func sampleWithoutReplacement(items []uint, n int, rng *rand.Rand) []uint {
	pool := make([]uint, len(items))
	copy(pool, items)
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}
