package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tallyflow/config"
	"tallyflow/internal/channel"
	"tallyflow/logger"
	"tallyflow/processor"
	"tallyflow/reader"
	"tallyflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Tallyflow.Name,
		"version": cfg.Tallyflow.Version,
	}).Info("starting tallyflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Storage.S3.Enabled {
		logger.InitCloudWatch(cfg.Storage.S3.Region, "Tallyflow", cfg.Logging.DashboardName)
	}

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(
		cfg.Channels.RawBuffer,
		cfg.Channels.ProcessedBuffer,
	)
	defer channels.Close()

	channels.StartMetricsReporting(ctx)

	feedReader := reader.NewFeedReader(cfg, channels)
	proc := processor.NewProcessor(cfg, channels)

	var textWriter *writer.TextWriter
	if cfg.Writer.Text.Enabled {
		textWriter, err = writer.NewTextWriter(cfg, channels.Summaries)
		if err != nil {
			log.WithError(err).Error("failed to create text writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("text output disabled; skipping text writer")
	}

	var archiveWriter *writer.ArchiveWriter
	if cfg.Storage.S3.Enabled && cfg.Writer.Formats.Parquet.Enabled {
		archiveWriter, err = writer.NewArchiveWriter(cfg, channels.Archive)
		if err != nil {
			log.WithError(err).Error("failed to create archive writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 archive disabled; skipping archive writer")
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feedReader.Start(ctx); err != nil {
			log.WithError(err).Warn("feed reader failed to start")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := proc.Start(ctx); err != nil {
			log.WithError(err).Warn("processor failed to start")
		}
	}()

	if textWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := textWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("text writer failed to start")
			}
		}()
	}
	if archiveWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := archiveWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("archive writer failed to start")
			}
		}()
	}

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// The pipeline finishes on its own once the feed directory is
	// exhausted and every writer has drained its channel.
	pipelineDone := make(chan struct{})
	go func() {
		if textWriter != nil {
			<-textWriter.Done()
		}
		if archiveWriter != nil {
			<-archiveWriter.Done()
		}
		if textWriter == nil && archiveWriter == nil {
			// No writers: wait for the processor to close the batch
			// channels, then drain them so nothing blocks.
			for range channels.Summaries {
			}
			for range channels.Archive {
			}
		}
		close(pipelineDone)
	}()

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-pipelineDone:
		log.Info("feed exhausted and all summaries written")
	}

	log.Info("starting graceful shutdown")
	cancel()

	if archiveWriter != nil {
		log.Info("stopping archive writer")
		archiveWriter.Stop()
	}
	if textWriter != nil {
		log.Info("stopping text writer")
		textWriter.Stop()
	}

	log.Info("stopping processor")
	proc.Stop()

	log.Info("stopping feed reader")
	feedReader.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("tallyflow stopped")
}
