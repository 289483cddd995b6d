package writer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	appconfig "tallyflow/config"
	"tallyflow/logger"
	"tallyflow/models"
)

// TextWriter renders summary batches as human-readable tables, one table per
// region, to stdout or a file.
type TextWriter struct {
	config  *appconfig.Config
	batches <-chan models.SummaryBatch
	out     io.Writer
	file    *os.File
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
	done    chan struct{}
}

func NewTextWriter(cfg *appconfig.Config, batches <-chan models.SummaryBatch) (*TextWriter, error) {
	w := &TextWriter{
		config:  cfg,
		batches: batches,
		out:     os.Stdout,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
		done:    make(chan struct{}),
	}

	if output := cfg.Writer.Text.Output; output != "" && output != "stdout" {
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open text output %s: %w", output, err)
		}
		w.file = f
		w.out = f
	}

	w.log.WithComponent("text_writer").WithFields(logger.Fields{
		"output": cfg.Writer.Text.Output,
	}).Info("text writer initialized")

	return w, nil
}

func (w *TextWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("text writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	log := w.log.WithComponent("text_writer").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting text writer")

	w.wg.Add(1)
	go w.worker()

	log.Info("text writer started successfully")
	return nil
}

func (w *TextWriter) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.log.WithComponent("text_writer").Info("stopping text writer")
	w.wg.Wait()

	if w.file != nil {
		w.file.Close()
	}
	w.log.WithComponent("text_writer").Info("text writer stopped")
}

// Done is closed once the batch channel has been drained.
func (w *TextWriter) Done() <-chan struct{} {
	return w.done
}

func (w *TextWriter) worker() {
	defer w.wg.Done()

	log := w.log.WithComponent("text_writer").WithFields(logger.Fields{"worker": "text"})
	log.Info("starting text writer worker")

	for {
		select {
		case <-w.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case batch, ok := <-w.batches:
			if !ok {
				log.Info("batch channel closed, worker stopping")
				close(w.done)
				return
			}
			w.renderBatch(batch)
		}
	}
}

func (w *TextWriter) renderBatch(batch models.SummaryBatch) {
	if batch.RecordCount == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w.out)
	t.SetTitle("%s - %s updates", batch.Region, humanize.Comma(int64(batch.RecordCount)))
	t.AppendHeader(table.Row{
		"Time", "Leader", "Margin", "New", "Remaining", "Precincts", "Hurdle", "Δ Hurdle", "Trend",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Margin", Align: text.AlignRight},
		{Name: "New", Align: text.AlignRight},
		{Name: "Remaining", Align: text.AlignRight},
		{Name: "Hurdle", Align: text.AlignRight},
		{Name: "Δ Hurdle", Align: text.AlignRight},
		{Name: "Trend", Align: text.AlignRight},
	})

	for _, s := range batch.Summaries {
		trend := "-"
		if s.HurdleTrend != nil {
			trend = fmt.Sprintf("%.1f%%", *s.HurdleTrend*100)
		}
		t.AppendRow(table.Row{
			s.Timestamp.Format("15:04:05"),
			fmt.Sprintf("%s over %s", s.LeadingName, s.TrailingName),
			humanize.Comma(int64(s.VoteDiff)),
			humanize.Comma(int64(s.NewVotes)),
			humanize.Comma(int64(s.VotesRemaining)),
			fmt.Sprintf("%d/%d", s.PrecinctsReporting, s.PrecinctsTotal),
			fmt.Sprintf("%.1f%%", s.Hurdle*100),
			fmt.Sprintf("%+.2f%%", s.HurdleDelta*100),
			trend,
		})
	}
	t.Render()
	fmt.Fprintln(w.out)

	logger.IncrementSummariesWritten(batch.RecordCount)
	logger.LogDataFlowEntry(w.log.WithComponent("text_writer"), "summary_channel", "text_output", batch.RecordCount, "summaries")
}
