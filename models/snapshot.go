package models

import (
	"time"
)

// RawFeedMessage wraps one undecoded results-feed document as read from disk.
type RawFeedMessage struct {
	Source    string
	Path      string
	Data      []byte
	Timestamp time.Time
}

// Candidate is one candidate line within a region's race. ID is the stable
// feed identifier; leaderboard position changes between snapshots, ID never
// does.
type Candidate struct {
	Name  string `json:"name"`
	ID    string `json:"id"`
	Votes int    `json:"votes"`
}

// Snapshot is one observation of a region's race at a point in time.
// Candidates are ordered by current vote count: index 0 leads, index 1
// trails, anything beyond that is ignored by the summarizer.
type Snapshot struct {
	Timestamp          time.Time      `json:"timestamp"`
	Region             string         `json:"region"`
	ElectoralWeight    int            `json:"electoral_weight"`
	Candidates         []Candidate    `json:"candidates"`
	TotalVotes         int            `json:"total_votes"`
	ExpectedTotalVotes int            `json:"expected_total_votes"`
	PrecinctsTotal     int            `json:"precincts_total"`
	PrecinctsReporting int            `json:"precincts_reporting"`
	SubregionVotes     map[string]int `json:"subregion_votes"`
}

// Leader returns the currently leading candidate.
func (s Snapshot) Leader() Candidate {
	return s.Candidates[0]
}

// Trailer returns the currently trailing candidate.
func (s Snapshot) Trailer() Candidate {
	return s.Candidates[1]
}

// CandidateVotes returns cumulative votes keyed by stable candidate ID.
func (s Snapshot) CandidateVotes() map[string]int {
	votes := make(map[string]int, len(s.Candidates))
	for _, c := range s.Candidates {
		votes[c.ID] = c.Votes
	}
	return votes
}

// FeedDocument mirrors the on-disk results-feed document: one observation of
// every region's race, as the upstream scraper leaves it.
type FeedDocument struct {
	Timestamp time.Time      `json:"timestamp"`
	Races     []FeedRace     `json:"races"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// FeedRace is one region's race inside a feed document.
type FeedRace struct {
	Region             string         `json:"region"`
	ElectoralWeight    int            `json:"electoral_weight"`
	Candidates         []Candidate    `json:"candidates"`
	TotalVotes         int            `json:"total_votes"`
	ExpectedTotalVotes int            `json:"expected_total_votes"`
	PrecinctsTotal     int            `json:"precincts_total"`
	PrecinctsReporting int            `json:"precincts_reporting"`
	Counties           map[string]int `json:"counties"`
}
