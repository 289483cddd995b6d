package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSnapshotHelpers(t *testing.T) {
	snap := Snapshot{
		Region: "Georgia",
		Candidates: []Candidate{
			{Name: "Alvarez", ID: "alvarez", Votes: 1200},
			{Name: "Burke", ID: "burke", Votes: 1100},
			{Name: "Wright", ID: "wright", Votes: 50},
		},
	}
	if snap.Leader().ID != "alvarez" {
		t.Fatalf("expected leader alvarez, got %s", snap.Leader().ID)
	}
	if snap.Trailer().ID != "burke" {
		t.Fatalf("expected trailer burke, got %s", snap.Trailer().ID)
	}
	votes := snap.CandidateVotes()
	if len(votes) != 3 || votes["wright"] != 50 {
		t.Fatalf("unexpected candidate vote map: %v", votes)
	}
}

func TestFeedDocumentJSON(t *testing.T) {
	doc := FeedDocument{
		Timestamp: time.Unix(1600000000, 0).UTC(),
		Races: []FeedRace{{
			Region:             "Nevada",
			ElectoralWeight:    6,
			Candidates:         []Candidate{{Name: "Alvarez", ID: "alvarez", Votes: 10}},
			TotalVotes:         12,
			ExpectedTotalVotes: 100,
			PrecinctsTotal:     40,
			PrecinctsReporting: 3,
			Counties:           map[string]int{"Clark": 8, "Washoe": 4},
		}},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out FeedDocument
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Races) != 1 || out.Races[0].Region != "Nevada" || out.Races[0].Counties["Clark"] != 8 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if !out.Timestamp.Equal(doc.Timestamp) {
		t.Fatalf("timestamp mismatch: %v != %v", out.Timestamp, doc.Timestamp)
	}
}
