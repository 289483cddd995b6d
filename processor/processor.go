package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "tallyflow/config"
	"tallyflow/internal/channel"
	"tallyflow/internal/regions"
	"tallyflow/logger"
	"tallyflow/models"
)

// Processor consumes raw feed documents, accumulates each region's
// chronological snapshot sequence, and once the feed is exhausted folds every
// region into its summary sequence. The relevant-share estimate is taken from
// a region's final snapshot, so folding cannot start before the feed ends.
type Processor struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	// Accumulation; each region's slice is only appended to by the single
	// ingest worker, so arrival order is preserved.
	snapshots map[string][]models.Snapshot

	// Metrics
	documentsProcessed int64
	racesProcessed     int64
	regionsSummarized  int64
	summariesEmitted   int64
	errorsCount        int64
}

func NewProcessor(cfg *appconfig.Config, ch *channel.Channels) *Processor {
	return &Processor{
		config:    cfg,
		channels:  ch,
		wg:        &sync.WaitGroup{},
		log:       logger.GetLogger(),
		snapshots: make(map[string][]models.Snapshot),
	}
}

func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	log := p.log.WithComponent("processor").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting processor")

	p.wg.Add(1)
	go p.ingestWorker()

	go p.metricsReporter(ctx)

	log.Info("processor started successfully")
	return nil
}

func (p *Processor) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("processor").Info("stopping processor")
	p.wg.Wait()
	p.log.WithComponent("processor").Info("processor stopped")
}

// ingestWorker drains the raw channel in arrival order. Documents must be
// ingested sequentially so per-region snapshot sequences stay chronological;
// parallelism belongs to the fold stage, where regions are independent.
func (p *Processor) ingestWorker() {
	defer p.wg.Done()

	log := p.log.WithComponent("processor").WithFields(logger.Fields{"worker": "ingest"})
	log.Info("starting ingest worker")

	for {
		select {
		case <-p.ctx.Done():
			log.Info("ingest worker stopped due to context cancellation")
			return
		case rawMsg, ok := <-p.channels.Raw:
			if !ok {
				log.Info("raw channel closed, feed exhausted")
				p.summarizeAll()
				p.channels.CloseBatches()
				return
			}

			start := time.Now()
			races := p.processDocument(rawMsg)
			duration := time.Since(start)

			p.mu.Lock()
			p.documentsProcessed++
			p.racesProcessed += int64(races)
			p.mu.Unlock()

			logger.LogPerformanceEntry(log, "processor", "process_document", duration, logger.Fields{
				"source":          rawMsg.Source,
				"path":            rawMsg.Path,
				"races_processed": races,
			})
		}
	}
}

func (p *Processor) processDocument(rawMsg models.RawFeedMessage) int {
	log := p.log.WithComponent("processor").WithFields(logger.Fields{
		"source":    rawMsg.Source,
		"path":      rawMsg.Path,
		"operation": "process_document",
	})

	var doc models.FeedDocument
	if err := json.Unmarshal(rawMsg.Data, &doc); err != nil {
		p.mu.Lock()
		p.errorsCount++
		p.mu.Unlock()
		log.WithError(err).Warn("failed to unmarshal feed document")
		return 0
	}

	timestamp := doc.Timestamp
	if timestamp.IsZero() {
		timestamp = rawMsg.Timestamp
	}
	if timestamp.IsZero() {
		p.mu.Lock()
		p.errorsCount++
		p.mu.Unlock()
		log.Warn("feed document has no timestamp")
		return 0
	}

	processed := 0
	for _, race := range doc.Races {
		if len(race.Candidates) < 2 {
			p.mu.Lock()
			p.errorsCount++
			p.mu.Unlock()
			log.WithFields(logger.Fields{"region": race.Region}).Warn("race has fewer than two candidates, skipping")
			continue
		}

		region := regions.Normalize(race.Region)
		candidates := make([]models.Candidate, len(race.Candidates))
		copy(candidates, race.Candidates)
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Votes > candidates[j].Votes
		})
		snap := models.Snapshot{
			Timestamp:          timestamp,
			Region:             region,
			ElectoralWeight:    race.ElectoralWeight,
			Candidates:         candidates,
			TotalVotes:         race.TotalVotes,
			ExpectedTotalVotes: race.ExpectedTotalVotes,
			PrecinctsTotal:     race.PrecinctsTotal,
			PrecinctsReporting: race.PrecinctsReporting,
			SubregionVotes:     race.Counties,
		}

		p.mu.Lock()
		p.snapshots[region] = append(p.snapshots[region], snap)
		p.mu.Unlock()
		processed++
	}

	logger.LogDataFlowEntry(log, "raw_channel", "region_sequences", processed, "snapshots")
	return processed
}

// summarizeAll folds every accumulated region and emits one summary batch
// per region. Regions share no state, so the folds run across a bounded
// worker pool. A region whose fold fails is dropped with an error; the rest
// are unaffected.
func (p *Processor) summarizeAll() {
	p.mu.RLock()
	names := make([]string, 0, len(p.snapshots))
	for region := range p.snapshots {
		names = append(names, region)
	}
	p.mu.RUnlock()
	sort.Strings(names)

	log := p.log.WithComponent("processor").WithFields(logger.Fields{
		"regions":   len(names),
		"operation": "summarize_all",
	})
	log.Info("summarizing regions")

	numWorkers := p.config.Processor.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	var (
		foldWG    sync.WaitGroup
		resultsMu sync.Mutex
	)
	byRegion := make(map[string][]models.Summary, len(names))
	queue := make(chan string)

	for i := 0; i < numWorkers; i++ {
		foldWG.Add(1)
		go func(workerID int) {
			defer foldWG.Done()
			for region := range queue {
				summaries, ok := p.summarizeRegion(workerID, region)
				if !ok {
					continue
				}
				resultsMu.Lock()
				byRegion[region] = summaries
				resultsMu.Unlock()
			}
		}(i)
	}

	for _, region := range names {
		queue <- region
	}
	close(queue)
	foldWG.Wait()

	latest := p.latestSnapshotTime()
	log.WithFields(logger.Fields{
		"latest_snapshot": latest,
		"updated_regions": JustUpdated(byRegion, latest),
	}).Info("summarization complete")
}

func (p *Processor) summarizeRegion(workerID int, region string) ([]models.Summary, bool) {
	log := p.log.WithComponent("processor").WithFields(logger.Fields{
		"worker_id": workerID,
		"region":    region,
		"operation": "summarize_region",
	})

	p.mu.RLock()
	snapshots := p.snapshots[region]
	p.mu.RUnlock()

	// Arrival order already matches feed order; the stable sort only
	// reorders if a document carried an out-of-line timestamp.
	sort.SliceStable(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.Before(snapshots[j].Timestamp)
	})

	start := time.Now()
	summaries, err := Summarize(region, snapshots)
	if err != nil {
		p.mu.Lock()
		p.errorsCount++
		p.mu.Unlock()
		log.WithError(err).Error("region summarization failed, dropping region")
		return nil, false
	}

	batch := models.SummaryBatch{
		BatchID:     uuid.New().String(),
		Region:      region,
		Summaries:   summaries,
		RecordCount: len(summaries),
		ProcessedAt: time.Now(),
	}
	if len(summaries) > 0 {
		batch.Timestamp = summaries[len(summaries)-1].Timestamp
	}

	if !p.channels.SendBatch(p.ctx, batch) {
		log.Warn("summary channel full, batch dropped")
		return summaries, true
	}

	p.mu.Lock()
	p.regionsSummarized++
	p.summariesEmitted += int64(len(summaries))
	p.mu.Unlock()

	logger.LogPerformanceEntry(log, "processor", "summarize_region", time.Since(start), logger.Fields{
		"snapshots": len(snapshots),
		"summaries": len(summaries),
	})
	logger.LogDataFlowEntry(log, "region_sequences", "summary_channel", len(summaries), "summaries")

	return summaries, true
}

func (p *Processor) latestSnapshotTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var latest time.Time
	for _, snapshots := range p.snapshots {
		for _, snap := range snapshots {
			if snap.Timestamp.After(latest) {
				latest = snap.Timestamp
			}
		}
	}
	return latest
}

func (p *Processor) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reportMetrics()
		}
	}
}

func (p *Processor) reportMetrics() {
	p.mu.RLock()
	documentsProcessed := p.documentsProcessed
	racesProcessed := p.racesProcessed
	regionsSummarized := p.regionsSummarized
	summariesEmitted := p.summariesEmitted
	errorsCount := p.errorsCount
	activeRegions := len(p.snapshots)
	p.mu.RUnlock()

	errorRate := float64(0)
	if documentsProcessed+errorsCount > 0 {
		errorRate = float64(errorsCount) / float64(documentsProcessed+errorsCount)
	}

	log := p.log.WithComponent("processor")
	p.log.LogMetric("processor", "documents_processed", documentsProcessed, "counter", logger.Fields{})
	p.log.LogMetric("processor", "races_processed", racesProcessed, "counter", logger.Fields{})
	p.log.LogMetric("processor", "regions_summarized", regionsSummarized, "counter", logger.Fields{})
	p.log.LogMetric("processor", "summaries_emitted", summariesEmitted, "counter", logger.Fields{})
	p.log.LogMetric("processor", "errors_count", errorsCount, "counter", logger.Fields{})
	p.log.LogMetric("processor", "error_rate", errorRate, "gauge", logger.Fields{})
	p.log.LogMetric("processor", "active_regions", activeRegions, "gauge", logger.Fields{})

	log.WithFields(logger.Fields{
		"documents_processed": documentsProcessed,
		"races_processed":     racesProcessed,
		"regions_summarized":  regionsSummarized,
		"summaries_emitted":   summariesEmitted,
		"errors_count":        errorsCount,
		"error_rate":          errorRate,
		"active_regions":      activeRegions,
		"raw_channel_len":     len(p.channels.Raw),
		"raw_channel_cap":     cap(p.channels.Raw),
		"batch_channel_len":   len(p.channels.Summaries),
		"batch_channel_cap":   cap(p.channels.Summaries),
	}).Info("processor metrics")
}
