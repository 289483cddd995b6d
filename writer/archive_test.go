package writer

import (
	"strings"
	"testing"
	"time"

	appconfig "tallyflow/config"
	"tallyflow/logger"
	"tallyflow/models"
)

func TestAddBatchBuffersByRegion(t *testing.T) {
	w := &ArchiveWriter{
		log:    logger.GetLogger(),
		buffer: make(map[string][]models.Summary),
	}
	batch := models.SummaryBatch{
		BatchID:     "b1",
		Region:      "Georgia",
		Summaries:   []models.Summary{{Region: "Georgia"}},
		RecordCount: 1,
	}
	w.addBatch(batch)
	w.addBatch(batch)
	if got := len(w.buffer["Georgia"]); got != 2 {
		t.Fatalf("expected 2 buffered summaries, got %d", got)
	}
}

func TestGenerateS3Key(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Writer.Partitioning.TimeFormat = "year={year}/month={month}/day={day}/hour={hour}"
	cfg.Writer.Partitioning.AdditionalKeys = []string{"region"}

	w := &ArchiveWriter{config: cfg, log: logger.GetLogger()}
	batch := models.SummaryBatch{
		Region:      "New Hampshire",
		RecordCount: 1,
		Timestamp:   time.Date(2024, 11, 6, 3, 15, 0, 0, time.UTC),
	}

	key := w.generateS3Key(batch)
	if !strings.HasPrefix(key, "region=New_Hampshire/year=2024/month=11/day=06/hour=03/") {
		t.Errorf("unexpected key prefix: %s", key)
	}
	if !strings.HasSuffix(key, ".parquet") {
		t.Errorf("key should end in .parquet: %s", key)
	}
	if strings.Contains(key, " ") {
		t.Errorf("key should not contain spaces: %s", key)
	}
}

func TestCreateParquetFile(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Writer.Formats.Parquet.Compression = "snappy"
	w := &ArchiveWriter{config: cfg, log: logger.GetLogger()}

	trend := 0.45
	summaries := []models.Summary{
		{
			Region:       "Georgia",
			Timestamp:    time.Date(2024, 11, 5, 20, 0, 0, 0, time.UTC),
			LeadingName:  "X",
			TrailingName: "Y",
			VoteDiff:     100,
			Hurdle:       0.525,
		},
		{
			Region:      "Georgia",
			Timestamp:   time.Date(2024, 11, 5, 20, 5, 0, 0, time.UTC),
			HurdleTrend: &trend,
		},
	}

	data, size, err := w.createParquetFile(summaries)
	if err != nil {
		t.Fatalf("createParquetFile failed: %v", err)
	}
	if size == 0 || int64(len(data)) != size {
		t.Errorf("size = %d, data length = %d", size, len(data))
	}
}

func TestToParquetRecordTrend(t *testing.T) {
	rec := toParquetRecord(models.Summary{})
	if rec.HasHurdleTrend {
		t.Error("nil trend should not set HasHurdleTrend")
	}

	trend := 0.3
	rec = toParquetRecord(models.Summary{HurdleTrend: &trend})
	if !rec.HasHurdleTrend || rec.HurdleTrend != 0.3 {
		t.Errorf("trend record = %+v, want HasHurdleTrend with 0.3", rec)
	}
}
