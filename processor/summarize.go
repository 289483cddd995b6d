package processor

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"

	"tallyflow/models"
)

// ErrSubregionMismatch signals that consecutive snapshots of the same region
// disagree on their subregion key set. The feed is corrupt or incompatible;
// the region's summarization is aborted rather than emitting partial data.
var ErrSubregionMismatch = errors.New("subregion key sets differ between consecutive snapshots")

var errTooFewCandidates = errors.New("snapshot has fewer than two candidates")

// CarryState is the minimal memory of where the count last stood, needed to
// derive a delta for the next snapshot. The zero value is the "unknown"
// state before a region's first snapshot.
type CarryState struct {
	known              bool
	voteDiff           int
	totalVotes         int
	precinctsReporting int
	hurdle             float64
	leadingName        string
	subregionVotes     map[string]int
	candidateVotes     map[string]int
}

func (c CarryState) equal(o CarryState) bool {
	return c.known == o.known &&
		c.voteDiff == o.voteDiff &&
		c.totalVotes == o.totalVotes &&
		c.precinctsReporting == o.precinctsReporting &&
		c.hurdle == o.hurdle &&
		c.leadingName == o.leadingName &&
		maps.Equal(c.subregionVotes, o.subregionVotes) &&
		maps.Equal(c.candidateVotes, o.candidateVotes)
}

// Summarize folds a region's chronological snapshot sequence into its
// chronological summary sequence. One summary is emitted per snapshot that
// changes the carry state; structurally identical consecutive snapshots are
// suppressed.
//
// The share of votes belonging to the top two candidates is estimated once,
// from the final snapshot, and applied to every snapshot in the sequence:
// the largest sample is the best estimate of third-party share, at the cost
// of recomputing history with hindsight.
func Summarize(region string, snapshots []models.Snapshot) ([]models.Summary, error) {
	if len(snapshots) == 0 {
		return nil, nil
	}

	share, err := latestRelevantShare(snapshots[len(snapshots)-1])
	if err != nil {
		return nil, fmt.Errorf("region %s: %w", region, err)
	}

	var carry CarryState
	// Most-recent-first while folding; the trend estimator walks backward
	// through history from the newest batch.
	recent := make([]models.Summary, 0, len(snapshots))

	for i, snap := range snapshots {
		next, summary, err := step(carry, snap, region, share, recent)
		if err != nil {
			return nil, fmt.Errorf("region %s snapshot %d: %w", region, i, err)
		}
		if summary != nil {
			recent = append(recent, models.Summary{})
			copy(recent[1:], recent)
			recent[0] = *summary
		}
		carry = next
	}

	out := make([]models.Summary, len(recent))
	for i := range recent {
		out[len(recent)-1-i] = recent[i]
	}
	return out, nil
}

// step is the reducer: it advances the carry state by one snapshot and
// yields the summary for that snapshot, or nil when the snapshot carries no
// new information. recent holds the region's already-emitted summaries,
// most recent first.
func step(carry CarryState, snap models.Snapshot, region string, relevantShare float64, recent []models.Summary) (CarryState, *models.Summary, error) {
	if len(snap.Candidates) < 2 {
		return carry, nil, errTooFewCandidates
	}

	leader := snap.Leader()
	trailer := snap.Trailer()

	newVotes := 0
	if carry.known {
		newVotes = snap.TotalVotes - carry.totalVotes
	}

	votesRemaining := snap.ExpectedTotalVotes - snap.TotalVotes
	remainingRelevant := float64(votesRemaining) * relevantShare
	voteDiff := leader.Votes - trailer.Votes
	hurdle := Hurdle(voteDiff, remainingRelevant)

	// Deltas are keyed by stable candidate ID: the trailing candidate can
	// overtake between snapshots, so leaderboard position is not identity.
	newRelevant := 0
	trailingPartition := 0.0
	leadingPartition := 0.0
	if newVotes != 0 {
		newRelevant = (leader.Votes - carry.candidateVotes[leader.ID]) +
			(trailer.Votes - carry.candidateVotes[trailer.ID])
	}
	if newRelevant != 0 {
		trailingPartition = float64(trailer.Votes-carry.candidateVotes[trailer.ID]) / float64(newRelevant)
		leadingPartition = 1 - trailingPartition
	}

	var gains map[string]int
	if newVotes != 0 {
		var err error
		gains, err = subregionGains(carry.subregionVotes, snap.SubregionVotes)
		if err != nil {
			return carry, nil, err
		}
	}

	hurdleDelta := hurdle - carry.hurdle
	if carry.known && carry.leadingName != leader.Name {
		// Lead flip: restate the previous hurdle from the new leader's
		// perspective before differencing.
		hurdleDelta = hurdle - (1 - carry.hurdle)
	}

	trend := MovingAverage(recent, newRelevant, trailingPartition, trailer.Name)

	next := CarryState{
		known:              true,
		voteDiff:           voteDiff,
		totalVotes:         snap.TotalVotes,
		precinctsReporting: snap.PrecinctsReporting,
		hurdle:             hurdle,
		leadingName:        leader.Name,
		subregionVotes:     maps.Clone(snap.SubregionVotes),
		candidateVotes:     snap.CandidateVotes(),
	}

	if next.equal(carry) {
		return carry, nil, nil
	}

	summary := &models.Summary{
		Timestamp:          snap.Timestamp,
		Region:             region,
		LeadingName:        leader.Name,
		TrailingName:       trailer.Name,
		LeadingVotes:       leader.Votes,
		TrailingVotes:      trailer.Votes,
		VoteDiff:           voteDiff,
		VotesRemaining:     votesRemaining,
		NewVotes:           newVotes,
		NewVotesRelevant:   newRelevant,
		LeadingPartition:   leadingPartition,
		TrailingPartition:  trailingPartition,
		PrecinctsReporting: snap.PrecinctsReporting,
		PrecinctsTotal:     snap.PrecinctsTotal,
		Hurdle:             hurdle,
		HurdleDelta:        hurdleDelta,
		HurdleTrend:        trend,
		SubregionGains:     gains,
		TotalVotes:         snap.TotalVotes,
	}
	return next, summary, nil
}

// subregionGains diffs cumulative subregion counts, keeping strictly
// positive gains. A key-set mismatch between consecutive snapshots is fatal.
func subregionGains(prev, cur map[string]int) (map[string]int, error) {
	if prev != nil {
		if len(prev) != len(cur) {
			return nil, ErrSubregionMismatch
		}
		for name := range cur {
			if _, ok := prev[name]; !ok {
				return nil, ErrSubregionMismatch
			}
		}
	}

	gains := make(map[string]int)
	for name, votes := range cur {
		if gain := votes - prev[name]; gain > 0 {
			gains[name] = gain
		}
	}
	return gains, nil
}

// latestRelevantShare estimates, from the final snapshot, what fraction of
// all votes belongs to the top two candidates.
func latestRelevantShare(last models.Snapshot) (float64, error) {
	if len(last.Candidates) < 2 {
		return 0, errTooFewCandidates
	}
	total := 0
	for _, c := range last.Candidates {
		total += c.Votes
	}
	if total == 0 {
		return 0, nil
	}
	top2 := last.Leader().Votes + last.Trailer().Votes
	return float64(top2) / float64(total), nil
}

// JustUpdated returns, sorted, the regions whose most recent summary carries
// the given timestamp: the regions that received a batch in the most recent
// feed observation. latest should be the most recent snapshot timestamp
// across all regions.
func JustUpdated(byRegion map[string][]models.Summary, latest time.Time) []string {
	var regions []string
	for region, summaries := range byRegion {
		if len(summaries) == 0 {
			continue
		}
		if summaries[len(summaries)-1].Timestamp.Equal(latest) {
			regions = append(regions, region)
		}
	}
	sort.Strings(regions)
	return regions
}
