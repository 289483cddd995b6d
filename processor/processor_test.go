package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	appconfig "tallyflow/config"
	"tallyflow/internal/channel"
	"tallyflow/models"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Processor: appconfig.ProcessorConfig{MaxWorkers: 2},
	}
}

func feedMessage(t *testing.T, path string, doc models.FeedDocument) models.RawFeedMessage {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal feed document: %v", err)
	}
	return models.RawFeedMessage{
		Source:    "feed",
		Path:      path,
		Data:      data,
		Timestamp: doc.Timestamp,
	}
}

func TestProcessorStartStop(t *testing.T) {
	ch := channel.NewChannels(4, 4)
	p := NewProcessor(testConfig(), ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}

	cancel()
	p.Stop()
}

func TestProcessorEndToEnd(t *testing.T) {
	ch := channel.NewChannels(8, 8)
	p := NewProcessor(testConfig(), ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	t0 := time.Date(2024, 11, 5, 20, 0, 0, 0, time.UTC)
	race := func(x, y int) []models.FeedRace {
		return []models.FeedRace{{
			Region: "GA",
			Candidates: []models.Candidate{
				{Name: "X", ID: "x", Votes: x},
				{Name: "Y", ID: "y", Votes: y},
			},
			TotalVotes:         x + y,
			ExpectedTotalVotes: 5000,
		}}
	}

	ch.SendRaw(ctx, feedMessage(t, "0001.json", models.FeedDocument{Timestamp: t0, Races: race(1000, 900)}))
	ch.SendRaw(ctx, feedMessage(t, "0002.json", models.FeedDocument{Timestamp: t0.Add(5 * time.Minute), Races: race(1500, 1400)}))
	ch.CloseRaw()

	var batch models.SummaryBatch
	select {
	case batch = <-ch.Summaries:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for summary batch")
	}

	if batch.Region != "Georgia" {
		t.Errorf("batch region = %q, want %q (normalized from postal code)", batch.Region, "Georgia")
	}
	if batch.RecordCount != 2 || len(batch.Summaries) != 2 {
		t.Fatalf("batch has %d summaries, want 2", len(batch.Summaries))
	}
	if batch.BatchID == "" {
		t.Error("batch ID should be set")
	}
	if !batch.Timestamp.Equal(t0.Add(5 * time.Minute)) {
		t.Errorf("batch timestamp = %v, want final summary timestamp", batch.Timestamp)
	}
	if got := batch.Summaries[1].NewVotes; got != 1000 {
		t.Errorf("second summary NewVotes = %d, want 1000", got)
	}

	// The archive channel receives the same batch.
	select {
	case archived := <-ch.Archive:
		if archived.BatchID != batch.BatchID {
			t.Errorf("archive batch ID = %q, want %q", archived.BatchID, batch.BatchID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for archive batch")
	}

	// The processor closes the batch channels once every region is folded.
	if _, open := <-ch.Summaries; open {
		t.Error("summaries channel should be closed after the feed is exhausted")
	}

	p.Stop()
}

func TestProcessorSkipsMalformedDocuments(t *testing.T) {
	ch := channel.NewChannels(4, 4)
	p := NewProcessor(testConfig(), ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ch.SendRaw(ctx, models.RawFeedMessage{Source: "feed", Path: "bad.json", Data: []byte("{not json")})
	ch.CloseRaw()

	select {
	case _, open := <-ch.Summaries:
		if open {
			t.Error("no batches expected from a malformed document")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch channel close")
	}

	p.Stop()
}

func TestProcessorOrdersCandidatesByVotes(t *testing.T) {
	ch := channel.NewChannels(4, 4)
	p := NewProcessor(testConfig(), ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The feed lists candidates in ballot order, not vote order.
	doc := models.FeedDocument{
		Timestamp: time.Date(2024, 11, 5, 20, 0, 0, 0, time.UTC),
		Races: []models.FeedRace{{
			Region: "Nevada",
			Candidates: []models.Candidate{
				{Name: "X", ID: "x", Votes: 400},
				{Name: "Y", ID: "y", Votes: 600},
			},
			TotalVotes:         1000,
			ExpectedTotalVotes: 2000,
		}},
	}
	ch.SendRaw(ctx, feedMessage(t, "0001.json", doc))
	ch.CloseRaw()

	select {
	case batch := <-ch.Summaries:
		if len(batch.Summaries) != 1 {
			t.Fatalf("batch has %d summaries, want 1", len(batch.Summaries))
		}
		if got := batch.Summaries[0].LeadingName; got != "Y" {
			t.Errorf("leading candidate = %q, want %q", got, "Y")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for summary batch")
	}

	p.Stop()
}
