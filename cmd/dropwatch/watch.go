package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/dropwatch/pkg/api"
	"github.com/ethpandaops/dropwatch/pkg/session"
	"github.com/ethpandaops/dropwatch/pkg/settings"
	"github.com/ethpandaops/dropwatch/pkg/watcher"
	"github.com/spf13/cobra"
)

var watchRoot string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a folder and upload finished files",
	Long: `Run the watch daemon. The session resumes on the stored root when watching
was enabled on the last run. --root (or watch.root) starts a session on that
root instead. The API, when enabled, starts and stops sessions at runtime.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchRoot, "root", "",
		"directory to watch, overrides watch.root and the stored root")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	quiet, err := cfg.Watch.QuietPeriodDuration()
	if err != nil {
		return err
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	controller := session.New(
		log,
		watcher.New(log, watcher.Config{QuietPeriod: quiet}),
		p.worker,
		settings.New(p.store),
		p.dispatcher,
	)

	root := watchRoot
	if root == "" {
		root = cfg.Watch.Root
	}

	if root != "" {
		err = controller.StartSession(ctx, root)
	} else {
		err = controller.Resume(ctx)
	}

	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	var srv api.Server

	if cfg.API.Enabled {
		srv = api.NewServer(log, &cfg.API, api.Deps{
			Sessions: controller,
			Uploads:  p.worker,
			Store:    p.store,
			History:  p.history,
		})

		if err := srv.Start(ctx); err != nil {
			controller.Shutdown(ctx)

			return fmt.Errorf("starting api server: %w", err)
		}
	}

	if controller.State().Phase == session.PhaseIdle {
		log.Info("No session running, waiting for a start request")
	}

	// Wait for shutdown signal.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down")

	if srv != nil {
		if err := srv.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop api server")
		}
	}

	controller.Shutdown(ctx)
	p.worker.Wait()

	return nil
}
