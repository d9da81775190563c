package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/dropwatch/pkg/worker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload FILE...",
	Short: "Upload files once",
	Long: `Upload the given files one after another, whether or not they were
uploaded before. Successful uploads are recorded so the watcher skips them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.close()

	result := p.worker.UploadBatch(ctx, args, func(state worker.BatchState) {
		if !state.Uploading {
			return
		}

		log.WithFields(logrus.Fields{
			"current": state.Current,
			"total":   state.Total,
		}).Debug("Batch progress")
	})

	for _, r := range result.Results {
		if r.Succeeded() {
			fmt.Fprintf(os.Stdout, "%s\t%s\n", r.Path, r.RemoteLink)
		} else {
			fmt.Fprintf(os.Stderr, "%s\tFAILED: %s\n", r.Path, r.Error)
		}
	}

	if failed := result.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, result.Total)
	}

	return nil
}
