package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "tallyflow/config"
	"tallyflow/internal/metadata"
	"tallyflow/logger"
	"tallyflow/models"
)

// ParquetRecord is the flattened archive row for one summary.
type ParquetRecord struct {
	Region             string  `parquet:"name=region, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp          int64   `parquet:"name=timestamp, type=INT64"`
	LeadingName        string  `parquet:"name=leading_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	TrailingName       string  `parquet:"name=trailing_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	LeadingVotes       int64   `parquet:"name=leading_votes, type=INT64"`
	TrailingVotes      int64   `parquet:"name=trailing_votes, type=INT64"`
	VoteDiff           int64   `parquet:"name=vote_diff, type=INT64"`
	VotesRemaining     int64   `parquet:"name=votes_remaining, type=INT64"`
	NewVotes           int64   `parquet:"name=new_votes, type=INT64"`
	NewVotesRelevant   int64   `parquet:"name=new_votes_relevant, type=INT64"`
	LeadingPartition   float64 `parquet:"name=leading_partition, type=DOUBLE"`
	TrailingPartition  float64 `parquet:"name=trailing_partition, type=DOUBLE"`
	PrecinctsReporting int32   `parquet:"name=precincts_reporting, type=INT32"`
	PrecinctsTotal     int32   `parquet:"name=precincts_total, type=INT32"`
	Hurdle             float64 `parquet:"name=hurdle, type=DOUBLE"`
	HurdleDelta        float64 `parquet:"name=hurdle_delta, type=DOUBLE"`
	HurdleTrend        float64 `parquet:"name=hurdle_trend, type=DOUBLE"`
	HasHurdleTrend     bool    `parquet:"name=has_hurdle_trend, type=BOOLEAN"`
	TotalVotes         int64   `parquet:"name=total_votes, type=INT64"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)  { return mfw, nil }

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

type archiveWriter struct {
	config      *appconfig.Config
	batches     <-chan models.SummaryBatch
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
	buffer      map[string][]models.Summary
	flushTicker *time.Ticker
	metaGen     *metadata.Generator
	done        chan struct{}
}

// ArchiveWriter persists summary batches as parquet files in S3, partitioned
// by region and observation date, with Iceberg-style table metadata alongside.
type ArchiveWriter = archiveWriter

func NewArchiveWriter(cfg *appconfig.Config, batches <-chan models.SummaryBatch) (*ArchiveWriter, error) {
	log := logger.GetLogger()

	ctx := context.Background()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("archive_writer").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	metaDir, err := os.MkdirTemp("", "iceberg")
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	gen := metadata.NewGenerator(metaDir, "region_summaries")

	w := &archiveWriter{
		config:   cfg,
		batches:  batches,
		s3Client: s3Client,
		wg:       &sync.WaitGroup{},
		log:      log,
		metaGen:  gen,
		done:     make(chan struct{}),
	}

	log.WithComponent("archive_writer").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("archive writer initialized")

	return w, nil
}

func (w *archiveWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting archive writer")

	w.buffer = make(map[string][]models.Summary)
	flushInterval := w.config.Writer.Buffer.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 30 * time.Second
	}
	w.flushTicker = time.NewTicker(flushInterval)

	w.wg.Add(1)
	go w.worker()

	log.Info("archive writer started successfully")
	return nil
}

func (w *archiveWriter) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	w.log.WithComponent("archive_writer").Info("stopping archive writer")
	w.wg.Wait()
	w.log.WithComponent("archive_writer").Info("archive writer stopped")
}

// Done is closed once the batch channel has been drained and every buffered
// summary is flushed.
func (w *archiveWriter) Done() <-chan struct{} {
	return w.done
}

func (w *archiveWriter) worker() {
	defer w.wg.Done()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{"worker": "archive"})
	log.Info("starting archive writer worker")

	for {
		select {
		case <-w.ctx.Done():
			w.flushBuffers("shutdown")
			log.Info("worker stopped due to context cancellation")
			return
		case <-w.flushTicker.C:
			w.flushBuffers("interval")
		case batch, ok := <-w.batches:
			if !ok {
				w.flushBuffers("channel_closed")
				log.Info("batch channel closed, worker stopping")
				close(w.done)
				return
			}
			w.addBatch(batch)
		}
	}
}

func (w *archiveWriter) addBatch(batch models.SummaryBatch) {
	w.mu.Lock()
	w.buffer[batch.Region] = append(w.buffer[batch.Region], batch.Summaries...)
	w.mu.Unlock()
}

func (w *archiveWriter) flushBuffers(reason string) {
	w.mu.Lock()
	buffers := w.buffer
	w.buffer = make(map[string][]models.Summary)
	w.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing buffers")

	for region, summaries := range buffers {
		if len(summaries) == 0 {
			continue
		}
		batch := models.SummaryBatch{
			BatchID:     uuid.New().String(),
			Region:      region,
			Summaries:   summaries,
			RecordCount: len(summaries),
			Timestamp:   summaries[len(summaries)-1].Timestamp,
			ProcessedAt: time.Now(),
		}
		w.processBatch(batch)
	}
}

func (w *archiveWriter) processBatch(batch models.SummaryBatch) {
	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"batch_id":     batch.BatchID,
		"region":       batch.Region,
		"record_count": batch.RecordCount,
		"timestamp":    batch.Timestamp,
		"operation":    "process_batch",
	})

	log.Info("processing batch")

	if batch.RecordCount == 0 {
		log.Debug("batch has no records, skipping")
		return
	}

	s3Key := w.generateS3Key(batch)
	log = log.WithFields(logger.Fields{"s3_key": s3Key})

	parquetData, fileSize, err := w.createParquetFile(batch.Summaries)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	if err := w.uploadToS3(s3Key, parquetData); err != nil {
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": w.config.Storage.S3.Bucket, "s3_key": s3Key}).
			Error("failed to upload to S3")
		return
	}

	logger.IncrementArchiveWrite(fileSize)
	log.WithFields(logger.Fields{
		"file_size": fileSize,
	}).Info("batch processed and uploaded successfully")

	df := metadata.DataFile{
		Path:        fmt.Sprintf("s3://%s/%s", w.config.Storage.S3.Bucket, s3Key),
		FileSize:    fileSize,
		RecordCount: int64(batch.RecordCount),
		Partition: map[string]any{
			"region": batch.Region,
			"date":   batch.Timestamp.Format("2006-01-02"),
		},
		Timestamp: batch.Timestamp,
	}
	if err := w.metaGen.AddFile(df); err != nil {
		log.WithError(err).Warn("failed to update metadata")
	}
}

func (w *archiveWriter) generateS3Key(batch models.SummaryBatch) string {
	timestamp := batch.Timestamp

	var parts []string
	for _, k := range w.config.Writer.Partitioning.AdditionalKeys {
		if k == "region" {
			parts = append(parts, fmt.Sprintf("region=%s", strings.ReplaceAll(batch.Region, " ", "_")))
		}
	}

	timeFormat := w.config.Writer.Partitioning.TimeFormat
	timePath := strings.ReplaceAll(timeFormat, "{year}", fmt.Sprintf("%04d", timestamp.Year()))
	timePath = strings.ReplaceAll(timePath, "{month}", fmt.Sprintf("%02d", timestamp.Month()))
	timePath = strings.ReplaceAll(timePath, "{day}", fmt.Sprintf("%02d", timestamp.Day()))
	timePath = strings.ReplaceAll(timePath, "{hour}", fmt.Sprintf("%02d", timestamp.Hour()))

	parts = append(parts, timePath)

	ts := timestamp.UTC().Format("20060102150405")
	filename := fmt.Sprintf("summaries_%s_%s.parquet",
		strings.ReplaceAll(batch.Region, " ", "_"),
		ts)

	key := filepath.Join(append(parts, filename)...)

	return filepath.ToSlash(key)
}

func (w *archiveWriter) createParquetFile(summaries []models.Summary) ([]byte, int64, error) {
	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"summaries_count": len(summaries),
		"operation":       "create_parquet_file",
	})
	log.Info("creating parquet file")

	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch w.config.Writer.Formats.Parquet.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	case "lzo":
		pw.CompressionType = parquet.CompressionCodec_LZO
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, s := range summaries {
		record := toParquetRecord(s)
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, 0, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	data := fw.Bytes()

	log.WithFields(logger.Fields{
		"file_size":       len(data),
		"summaries_count": len(summaries),
		"compression":     w.config.Writer.Formats.Parquet.Compression,
	}).Info("parquet file created successfully")

	return data, int64(len(data)), nil
}

func toParquetRecord(s models.Summary) ParquetRecord {
	record := ParquetRecord{
		Region:             s.Region,
		Timestamp:          s.Timestamp.UnixMilli(),
		LeadingName:        s.LeadingName,
		TrailingName:       s.TrailingName,
		LeadingVotes:       int64(s.LeadingVotes),
		TrailingVotes:      int64(s.TrailingVotes),
		VoteDiff:           int64(s.VoteDiff),
		VotesRemaining:     int64(s.VotesRemaining),
		NewVotes:           int64(s.NewVotes),
		NewVotesRelevant:   int64(s.NewVotesRelevant),
		LeadingPartition:   s.LeadingPartition,
		TrailingPartition:  s.TrailingPartition,
		PrecinctsReporting: int32(s.PrecinctsReporting),
		PrecinctsTotal:     int32(s.PrecinctsTotal),
		Hurdle:             s.Hurdle,
		HurdleDelta:        s.HurdleDelta,
		TotalVotes:         int64(s.TotalVotes),
	}
	if s.HurdleTrend != nil {
		record.HurdleTrend = *s.HurdleTrend
		record.HasHurdleTrend = true
	}
	return record
}

func (w *archiveWriter) uploadToS3(key string, data []byte) error {
	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"operation": "upload_to_s3",
		"data_size": len(data),
	})
	log.Info("uploading to S3")

	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":      "parquet",
			"compression":       w.config.Writer.Formats.Parquet.Compression,
			"tallyflow-version": w.config.Tallyflow.Version,
		},
	}

	ctx := context.WithoutCancel(w.ctx)
	_, err := w.s3Client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}

	log.Info("successfully uploaded to S3")
	return nil
}
