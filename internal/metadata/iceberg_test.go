package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGeneratorCreatesMetadata(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir, "region_summaries")
	df := DataFile{
		Path:        "s3://bucket/region=Georgia/year=2024/month=11/day=05/hour=20/file.parquet",
		FileSize:    100,
		RecordCount: 10,
		Partition: map[string]any{
			"region": "Georgia",
			"date":   "2024-11-05",
		},
		Timestamp: time.Date(2024, 11, 5, 20, 0, 0, 0, time.UTC),
	}
	if err := gen.AddFile(df); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	metaPath := filepath.Join(dir, "metadata", "metadata.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("metadata not written: %v", err)
	}
	var tm TableMetadata
	if err := json.Unmarshal(data, &tm); err != nil {
		t.Fatalf("metadata not valid JSON: %v", err)
	}
	if tm.TotalRecords != 10 {
		t.Errorf("TotalRecords = %d, want 10", tm.TotalRecords)
	}
	if len(tm.Snapshots) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(tm.Snapshots))
	}

	catalogDir := filepath.Join(dir, "catalog")
	if err := gen.WriteCatalogEntry(catalogDir); err != nil {
		t.Fatalf("catalog entry: %v", err)
	}
	if _, err := os.Stat(filepath.Join(catalogDir, "region_summaries.json")); err != nil {
		t.Fatalf("catalog entry not written: %v", err)
	}
}

func TestGeneratorAccumulatesSnapshots(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir, "region_summaries")

	base := time.Date(2024, 11, 5, 20, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		df := DataFile{
			Path:        "s3://bucket/file.parquet",
			RecordCount: 5,
			Timestamp:   base.Add(time.Duration(i) * time.Hour),
		}
		if err := gen.AddFile(df); err != nil {
			t.Fatalf("AddFile %d: %v", i, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "metadata", "metadata.json"))
	if err != nil {
		t.Fatalf("metadata not written: %v", err)
	}
	var tm TableMetadata
	if err := json.Unmarshal(data, &tm); err != nil {
		t.Fatalf("metadata not valid JSON: %v", err)
	}
	if tm.TotalRecords != 15 {
		t.Errorf("TotalRecords = %d, want 15", tm.TotalRecords)
	}
	if tm.CurrentSnapshotID != tm.Snapshots[len(tm.Snapshots)-1].SnapshotID {
		t.Error("current snapshot should be the most recent")
	}
}
