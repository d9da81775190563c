package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethpandaops/dropwatch/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Version information set at build time.
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFiles []string
	logLevel string
	log      *logrus.Logger
)

func main() {
	log = logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("Failed to execute command")
	}
}

var rootCmd = &cobra.Command{
	Use:   "dropwatch",
	Short: "Watch a folder and upload finished files",
	Long: `Dropwatch watches a directory tree and uploads every file that finishes
being written to S3-compatible storage or a local mirror directory. Each
file is uploaded at most once.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel == "" {
			return nil
		}

		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}

		log.SetLevel(level)

		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dropwatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&cfgFiles, "config", nil,
		"config file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level, overrides global.log_level ("+strings.Join(logLevels(), ", ")+")")

	rootCmd.AddCommand(versionCmd)
}

func logLevels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}

	return levels
}

// loadConfig loads and validates the configured files. Environment
// variables apply even when no file is given.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	configureLogging(&cfg.Global)

	return cfg, nil
}

// configureLogging applies the configured level unless --log-level was
// given, and mirrors output to a rotating file when global.log_file is set.
func configureLogging(g *config.GlobalConfig) {
	if logLevel == "" {
		if level, err := logrus.ParseLevel(g.LogLevel); err == nil {
			log.SetLevel(level)
		}
	}

	if g.LogFile == "" {
		return
	}

	log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   g.LogFile,
		MaxSize:    g.LogMaxSizeMB,
		MaxBackups: g.LogMaxBackups,
		Compress:   true,
	}))
}
