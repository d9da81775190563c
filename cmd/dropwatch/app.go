package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/dropwatch/pkg/config"
	"github.com/ethpandaops/dropwatch/pkg/dedup"
	"github.com/ethpandaops/dropwatch/pkg/notify"
	"github.com/ethpandaops/dropwatch/pkg/store"
	"github.com/ethpandaops/dropwatch/pkg/upload"
	"github.com/ethpandaops/dropwatch/pkg/worker"
)

// pipeline is the set of components shared by the commands that upload.
type pipeline struct {
	store      store.Store
	tracker    *dedup.Tracker
	uploader   upload.Uploader
	dispatcher *notify.Dispatcher
	history    *notify.History
	worker     *worker.Worker
}

// openStore starts the state database.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	db := store.NewStore(log, &cfg.State.Database)
	if err := db.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting store: %w", err)
	}

	return db, nil
}

// newPipeline opens the store, seeds dedup from the recorded uploads,
// checks the upload destination and starts status delivery.
func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	maxSize, err := cfg.Watch.MaxFileSizeBytes()
	if err != nil {
		return nil, err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p := &pipeline{store: db}

	uploaded, err := db.UploadedPaths(ctx)
	if err != nil {
		p.close()

		return nil, fmt.Errorf("loading upload history: %w", err)
	}

	p.tracker = dedup.New(uploaded...)

	log.WithField("uploaded", len(uploaded)).Debug("Seeded dedup tracker")

	p.uploader, err = upload.New(log, &cfg.Upload)
	if err != nil {
		p.close()

		return nil, fmt.Errorf("creating uploader: %w", err)
	}

	if err := p.uploader.Preflight(ctx); err != nil {
		p.close()

		return nil, fmt.Errorf("checking upload destination: %w", err)
	}

	p.history = notify.NewHistory(cfg.Notify.History)
	p.dispatcher = notify.NewDispatcher(
		log, cfg.Notify.Buffer, notify.NewLogSink(log), p.history,
	)

	if err := p.dispatcher.Start(ctx); err != nil {
		p.close()

		return nil, fmt.Errorf("starting notifier: %w", err)
	}

	p.worker = worker.New(log, worker.Config{
		Concurrency:      cfg.Watch.Concurrency,
		UploadsPerSecond: cfg.Watch.UploadsPerSecond,
		MaxFileSize:      maxSize,
	}, p.uploader, p.tracker, db, p.dispatcher)

	return p, nil
}

// close stops status delivery and the store.
func (p *pipeline) close() {
	if p.dispatcher != nil {
		if err := p.dispatcher.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop notifier")
		}
	}

	if err := p.store.Stop(); err != nil {
		log.WithError(err).Warn("Failed to stop store")
	}
}
