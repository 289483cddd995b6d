package writer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	appconfig "tallyflow/config"
	"tallyflow/models"
)

func TestTextWriterRendersBatches(t *testing.T) {
	output := filepath.Join(t.TempDir(), "summaries.txt")
	cfg := &appconfig.Config{}
	cfg.Writer.Text.Output = output

	batches := make(chan models.SummaryBatch, 1)
	w, err := NewTextWriter(cfg, batches)
	if err != nil {
		t.Fatalf("NewTextWriter failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}

	trend := 0.42
	batches <- models.SummaryBatch{
		BatchID: "b1",
		Region:  "Georgia",
		Summaries: []models.Summary{{
			Timestamp:      time.Date(2024, 11, 5, 20, 0, 0, 0, time.UTC),
			Region:         "Georgia",
			LeadingName:    "X",
			TrailingName:   "Y",
			VoteDiff:       12345,
			VotesRemaining: 100000,
			Hurdle:         0.525,
			HurdleTrend:    &trend,
		}},
		RecordCount: 1,
	}
	close(batches)

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for text writer to drain")
	}
	w.Stop()

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	text := string(data)

	for _, want := range []string{"Georgia", "X over Y", "12,345", "100,000", "52.5%", "42.0%"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestTextWriterSkipsEmptyBatches(t *testing.T) {
	output := filepath.Join(t.TempDir(), "summaries.txt")
	cfg := &appconfig.Config{}
	cfg.Writer.Text.Output = output

	batches := make(chan models.SummaryBatch, 1)
	w, err := NewTextWriter(cfg, batches)
	if err != nil {
		t.Fatalf("NewTextWriter failed: %v", err)
	}

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	batches <- models.SummaryBatch{BatchID: "empty", Region: "Nevada"}
	close(batches)

	<-w.Done()
	w.Stop()

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("empty batch should produce no output, got:\n%s", data)
	}
}
