package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	appconfig "tallyflow/config"
	"tallyflow/internal/channel"
	"tallyflow/logger"
	"tallyflow/models"
)

const defaultPattern = "*.json"

// FeedReader streams a directory of historical results-feed documents into
// the raw channel in chronological order, then closes the channel so the
// processor knows the feed is exhausted. With replay enabled, emission is
// paced by a rate limiter to simulate a live count.
type FeedReader struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	limiter  *rate.Limiter

	// Metrics
	filesRead   int64
	bytesRead   int64
	errorsCount int64
}

func NewFeedReader(cfg *appconfig.Config, ch *channel.Channels) *FeedReader {
	log := logger.GetLogger()

	var limiter *rate.Limiter
	replay := cfg.Reader.Feed.Replay
	if replay.Enabled {
		burst := replay.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(replay.DocumentsPerSecond), burst)
	}

	log.WithComponent("feed_reader").WithFields(logger.Fields{
		"dir":     cfg.Reader.Feed.Dir,
		"pattern": cfg.Reader.Feed.Pattern,
		"replay":  replay.Enabled,
	}).Info("feed reader initialized")

	return &FeedReader{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      log,
		limiter:  limiter,
	}
}

// Start discovers the feed documents and begins streaming them. It returns
// immediately; streaming happens on a background goroutine.
func (r *FeedReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("feed reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{"operation": "start"})

	files, err := r.discoverFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.WithFields(logger.Fields{"dir": r.config.Reader.Feed.Dir}).Warn("no feed documents found")
	}

	log.WithFields(logger.Fields{"files": len(files)}).Info("starting feed reader")

	r.wg.Add(1)
	go r.streamFiles(files)

	go r.metricsReporter(ctx)

	return nil
}

func (r *FeedReader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("feed_reader").Info("stopping feed reader")
	r.wg.Wait()
	r.log.WithComponent("feed_reader").Info("feed reader stopped")
}

// discoverFiles lists feed documents sorted by file name. Dumps carry the
// observation time in the name, so lexical order is chronological; the
// processor re-sorts by embedded timestamp regardless.
func (r *FeedReader) discoverFiles() ([]string, error) {
	pattern := r.config.Reader.Feed.Pattern
	if pattern == "" {
		pattern = defaultPattern
	}

	glob := filepath.Join(r.config.Reader.Feed.Dir, pattern)
	files, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed documents %s: %w", glob, err)
	}
	sort.Strings(files)
	return files, nil
}

func (r *FeedReader) streamFiles(files []string) {
	defer r.wg.Done()
	// The processor folds once the raw channel closes; closing on every
	// exit path keeps shutdown from hanging the ingest worker.
	defer r.channels.CloseRaw()

	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{"worker": "stream"})
	log.Info("starting feed stream worker")

	for _, path := range files {
		if r.limiter != nil {
			if err := r.limiter.Wait(r.ctx); err != nil {
				log.Info("feed stream stopped during replay pacing")
				return
			}
		}

		select {
		case <-r.ctx.Done():
			log.Info("feed stream stopped due to context cancellation")
			return
		default:
		}

		if !r.readFile(path) {
			return
		}
	}

	log.WithFields(logger.Fields{"files_read": r.filesRead}).Info("feed directory exhausted")
}

// readFile reads and forwards one document. Returns false only when the
// context ended; unreadable files are logged and skipped.
func (r *FeedReader) readFile(path string) bool {
	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{"path": path})

	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		r.mu.Lock()
		r.errorsCount++
		r.mu.Unlock()
		log.WithError(err).Warn("failed to read feed document")
		return true
	}

	msg := models.RawFeedMessage{
		Source:    "feed_dir",
		Path:      path,
		Data:      data,
		Timestamp: documentTimestamp(data, path),
	}

	if !r.channels.SendRaw(r.ctx, msg) {
		log.Warn("feed document not accepted, stopping stream")
		return false
	}

	r.mu.Lock()
	r.filesRead++
	r.bytesRead += int64(len(data))
	r.mu.Unlock()

	logger.IncrementFeedRead(len(data))
	logger.LogPerformanceEntry(log, "feed_reader", "read_file", time.Since(start), logger.Fields{
		"bytes": len(data),
	})
	return true
}

// documentTimestamp peeks at the document's embedded timestamp, falling back
// to the file's modification time for dumps that predate the field.
func documentTimestamp(data []byte, path string) time.Time {
	var peek struct {
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &peek); err == nil && !peek.Timestamp.IsZero() {
		return peek.Timestamp
	}
	if info, err := os.Stat(path); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}

func (r *FeedReader) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reportMetrics()
		}
	}
}

func (r *FeedReader) reportMetrics() {
	r.mu.RLock()
	filesRead := r.filesRead
	bytesRead := r.bytesRead
	errorsCount := r.errorsCount
	r.mu.RUnlock()

	r.log.LogMetric("feed_reader", "files_read", filesRead, "counter", logger.Fields{})
	r.log.LogMetric("feed_reader", "bytes_read", bytesRead, "counter", logger.Fields{})
	r.log.LogMetric("feed_reader", "errors_count", errorsCount, "counter", logger.Fields{})

	r.log.WithComponent("feed_reader").WithFields(logger.Fields{
		"files_read":   filesRead,
		"bytes_read":   bytesRead,
		"errors_count": errorsCount,
	}).Info("feed reader metrics")
}
