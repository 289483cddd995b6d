package channel

import (
	"context"
	"sync"
	"time"

	"tallyflow/logger"
	"tallyflow/models"
)

type ChannelStats struct {
	RawSent        int64
	BatchSent      int64
	RawDropped     int64
	BatchDropped   int64
	ArchiveSent    int64
	ArchiveDropped int64
}

// Channels holds the pipeline's hand-off points: raw feed documents from the
// reader, and per-region summary batches fanned out to the text writer
// (Summaries) and the parquet archive writer (Archive).
type Channels struct {
	Raw       chan models.RawFeedMessage
	Summaries chan models.SummaryBatch
	Archive   chan models.SummaryBatch

	stats      ChannelStats
	statsMutex sync.RWMutex
	rawOnce    sync.Once
	batchOnce  sync.Once
	log        *logger.Log
}

func NewChannels(rawBufferSize, batchBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:       make(chan models.RawFeedMessage, rawBufferSize),
		Summaries: make(chan models.SummaryBatch, batchBufferSize),
		Archive:   make(chan models.SummaryBatch, batchBufferSize),
		log:       log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size":   rawBufferSize,
		"batch_buffer_size": batchBufferSize,
	}).Info("pipeline channels initialized")

	return c
}

// CloseRaw closes the raw channel; the reader calls it once the feed
// directory is exhausted. Safe to call more than once.
func (c *Channels) CloseRaw() {
	c.rawOnce.Do(func() {
		close(c.Raw)
		c.log.WithComponent("channels").Info("raw channel closed")
	})
}

// CloseBatches closes both batch channels; the processor calls it after the
// last region's fold. Safe to call more than once.
func (c *Channels) CloseBatches() {
	c.batchOnce.Do(func() {
		close(c.Summaries)
		close(c.Archive)
		c.log.WithComponent("channels").Info("batch channels closed")
	})
}

func (c *Channels) Close() {
	c.CloseRaw()
	c.CloseBatches()
}

func (c *Channels) StartMetricsReporting(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.logChannelStats()
			}
		}
	}()
}

func (c *Channels) logChannelStats() {
	c.statsMutex.RLock()
	stats := c.stats
	c.statsMutex.RUnlock()

	c.log.WithComponent("channels").WithFields(logger.Fields{
		"raw_sent":            stats.RawSent,
		"batch_sent":          stats.BatchSent,
		"archive_sent":        stats.ArchiveSent,
		"raw_dropped":         stats.RawDropped,
		"batch_dropped":       stats.BatchDropped,
		"archive_dropped":     stats.ArchiveDropped,
		"raw_channel_len":     len(c.Raw),
		"raw_channel_cap":     cap(c.Raw),
		"summary_channel_len": len(c.Summaries),
		"summary_channel_cap": cap(c.Summaries),
		"archive_channel_len": len(c.Archive),
		"archive_channel_cap": cap(c.Archive),
	}).Info("channel statistics")
}

// SendRaw blocks until the message is accepted or the context ends. Feed
// documents must not be dropped: a missing observation would corrupt every
// downstream delta for the affected regions.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawFeedMessage) bool {
	select {
	case c.Raw <- msg:
		c.statsMutex.Lock()
		c.stats.RawSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		c.statsMutex.Lock()
		c.stats.RawDropped++
		c.statsMutex.Unlock()
		return false
	}
}

// SendBatch fans a summary batch out to both writer channels, dropping per
// channel when full. Writers are lossy consumers; the fold can always be
// rerun.
func (c *Channels) SendBatch(ctx context.Context, batch models.SummaryBatch) bool {
	delivered := false

	select {
	case <-ctx.Done():
		c.statsMutex.Lock()
		c.stats.BatchDropped++
		c.stats.ArchiveDropped++
		c.statsMutex.Unlock()
		return false
	default:
	}

	select {
	case c.Summaries <- batch:
		c.statsMutex.Lock()
		c.stats.BatchSent++
		c.statsMutex.Unlock()
		delivered = true
	default:
		c.statsMutex.Lock()
		c.stats.BatchDropped++
		c.statsMutex.Unlock()
	}

	select {
	case c.Archive <- batch:
		c.statsMutex.Lock()
		c.stats.ArchiveSent++
		c.statsMutex.Unlock()
		delivered = true
	default:
		c.statsMutex.Lock()
		c.stats.ArchiveDropped++
		c.statsMutex.Unlock()
	}

	return delivered
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
