package processor

import (
	"math"

	"tallyflow/models"
)

// TrendWindowVotes is how many relevant votes the moving average aggregates
// before it stops walking back through history.
const TrendWindowVotes = 30000

// MovingAverage estimates the trailing candidate's recent share of newly
// counted relevant votes. It seeds the accumulator with the newest batch and
// walks the region's prior summaries from most recent to oldest until at
// least TrendWindowVotes relevant votes are covered, weighting the final
// batch fractionally so the window closes at exactly the threshold.
//
// summaries must be ordered most-recent-first. When a historical summary's
// trailing candidate is not the candidate of interest, its leading partition
// is used as a proxy. That attribution is wrong for three-way races; it is
// kept because downstream output depends on it.
//
// Returns nil when no relevant votes have been accumulated.
func MovingAverage(summaries []models.Summary, newestRelevant int, newestTrailingPartition float64, trailingName string) *float64 {
	totalRelevant := float64(newestRelevant)
	trailingVotes := math.Round(newestTrailingPartition * float64(newestRelevant))

	for _, s := range summaries {
		if totalRelevant >= TrendWindowVotes {
			break
		}
		if s.NewVotesRelevant <= 0 {
			continue
		}

		partition := s.TrailingPartition
		if s.TrailingName != trailingName {
			partition = s.LeadingPartition
		}

		batch := float64(s.NewVotesRelevant)
		if totalRelevant+batch > TrendWindowVotes {
			batch = TrendWindowVotes - totalRelevant
		}
		trailingVotes += math.Round(partition * batch)
		totalRelevant += batch
	}

	if totalRelevant == 0 {
		return nil
	}
	avg := trailingVotes / totalRelevant
	return &avg
}
