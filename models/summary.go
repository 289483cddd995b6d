package models

import "time"

// Summary is one emitted row per region per processed snapshot: the derived
// view of how the count moved since the previous snapshot. Field names and
// types are relied on by downstream writers; renaming or reordering them is a
// breaking change.
type Summary struct {
	Timestamp          time.Time      `json:"timestamp"`
	Region             string         `json:"region"`
	LeadingName        string         `json:"leading_name"`
	TrailingName       string         `json:"trailing_name"`
	LeadingVotes       int            `json:"leading_votes"`
	TrailingVotes      int            `json:"trailing_votes"`
	VoteDiff           int            `json:"vote_diff"`
	VotesRemaining     int            `json:"votes_remaining"`
	NewVotes           int            `json:"new_votes"`
	NewVotesRelevant   int            `json:"new_votes_relevant"`
	LeadingPartition   float64        `json:"leading_partition"`
	TrailingPartition  float64        `json:"trailing_partition"`
	PrecinctsReporting int            `json:"precincts_reporting"`
	PrecinctsTotal     int            `json:"precincts_total"`
	Hurdle             float64        `json:"hurdle"`
	HurdleDelta        float64        `json:"hurdle_delta"`
	HurdleTrend        *float64       `json:"hurdle_trend,omitempty"`
	SubregionGains     map[string]int `json:"subregion_gains,omitempty"`
	TotalVotes         int            `json:"total_votes"`
}

// SummaryBatch carries one region's full summary sequence through the
// processed channel, chronological order.
type SummaryBatch struct {
	BatchID     string    `json:"batch_id"`
	Region      string    `json:"region"`
	Summaries   []Summary `json:"summaries"`
	RecordCount int       `json:"record_count"`
	Timestamp   time.Time `json:"timestamp"`
	ProcessedAt time.Time `json:"processed_at"`
}
