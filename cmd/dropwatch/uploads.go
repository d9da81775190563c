package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/dropwatch/pkg/fsutil"
	"github.com/spf13/cobra"
)

var (
	listLimit int
	resetYes  bool
)

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "Inspect and manage the upload history",
}

var uploadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded uploads, newest first",
	RunE:  runUploadsList,
}

var uploadsForgetCmd = &cobra.Command{
	Use:   "forget PATH...",
	Short: "Forget recorded uploads so those files are uploaded again",
	Long: `Forget the given files so they are uploaded again when they are written
next. Stop the watch daemon first, or use DELETE /api/v1/uploads?path=.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUploadsForget,
}

var uploadsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget every recorded upload",
	Long: `Forget every recorded upload so those files are uploaded again when they
are written next. Stop the watch daemon first, it keeps its own copy of
the history in memory.`,
	RunE: runUploadsReset,
}

func init() {
	rootCmd.AddCommand(uploadsCmd)
	uploadsCmd.AddCommand(uploadsListCmd, uploadsForgetCmd, uploadsResetCmd)

	uploadsListCmd.Flags().IntVar(&listLimit, "limit", 50,
		"maximum number of uploads to show (0 for all)")
	uploadsResetCmd.Flags().BoolVar(&resetYes, "yes", false,
		"confirm the reset")
}

func runUploadsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Stop() }()

	recs, err := db.ListUploads(ctx, listLimit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UPLOADED\tSIZE\tPATH\tREMOTE")

	for _, rec := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			rec.UploadedAt.Local().Format(time.DateTime),
			units.HumanSize(float64(rec.Size)),
			rec.Path,
			rec.RemoteID,
		)
	}

	return tw.Flush()
}

func runUploadsForget(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Stop() }()

	for _, arg := range args {
		path, err := fsutil.Canonical(arg)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", arg, err)
		}

		if err := db.DeleteUpload(ctx, path); err != nil {
			return err
		}

		log.WithField("path", path).Info("Upload forgotten")
	}

	return nil
}

func runUploadsReset(cmd *cobra.Command, args []string) error {
	if !resetYes {
		return fmt.Errorf("refusing to reset the upload history without --yes")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Stop() }()

	removed, err := db.ResetUploads(ctx)
	if err != nil {
		return err
	}

	log.WithField("removed", removed).Info("Upload history reset")

	return nil
}
