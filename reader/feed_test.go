package reader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	appconfig "tallyflow/config"
	"tallyflow/internal/channel"
)

func feedConfig(dir string) *appconfig.Config {
	return &appconfig.Config{
		Reader: appconfig.ReaderConfig{
			Feed: appconfig.FeedConfig{Dir: dir},
		},
	}
}

func writeDoc(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
}

func TestFeedReaderStartStop(t *testing.T) {
	dir := t.TempDir()
	ch := channel.NewChannels(4, 4)
	r := NewFeedReader(feedConfig(dir), ch)

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Start(ctx); err == nil {
		t.Fatalf("expected error on second start")
	}
	cancel()
	r.Stop()
}

func TestFeedReaderStreamsInOrderAndClosesRaw(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "results_002.json", `{"timestamp":"2020-11-04T02:00:00Z","races":[]}`)
	writeDoc(t, dir, "results_001.json", `{"timestamp":"2020-11-04T01:00:00Z","races":[]}`)
	writeDoc(t, dir, "notes.txt", "not a feed document")

	ch := channel.NewChannels(4, 4)
	r := NewFeedReader(feedConfig(dir), ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	var paths []string
	for msg := range ch.Raw {
		paths = append(paths, filepath.Base(msg.Path))
	}
	r.Stop()

	if len(paths) != 2 {
		t.Fatalf("expected 2 documents, got %v", paths)
	}
	if paths[0] != "results_001.json" || paths[1] != "results_002.json" {
		t.Fatalf("documents out of order: %v", paths)
	}
}

func TestDocumentTimestamp(t *testing.T) {
	data := []byte(`{"timestamp":"2020-11-04T03:15:00Z","races":[]}`)
	got := documentTimestamp(data, "missing.json")
	want := time.Date(2020, 11, 4, 3, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected embedded timestamp %v, got %v", want, got)
	}
}

func TestFeedReaderReplayPacing(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.json", "b.json", "c.json"} {
		writeDoc(t, dir, name, `{"timestamp":"2020-11-04T01:00:00Z","races":[]}`)
	}

	cfg := feedConfig(dir)
	cfg.Reader.Feed.Replay = appconfig.ReplayConfig{Enabled: true, DocumentsPerSecond: 1000, Burst: 1}

	ch := channel.NewChannels(4, 4)
	r := NewFeedReader(cfg, ch)
	if r.limiter == nil {
		t.Fatalf("expected limiter when replay is enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	count := 0
	for range ch.Raw {
		count++
	}
	r.Stop()
	if count != 3 {
		t.Fatalf("expected 3 documents, got %d", count)
	}
}
