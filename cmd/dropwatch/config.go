package main

import (
	"fmt"
	"os"

	"github.com/ethpandaops/dropwatch/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFiles...)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if err := cfg.Validate(); err != nil {
			log.WithError(err).Warn("Configuration is not valid")
		}

		out, err := cfg.Redacted().YAML()
		if err != nil {
			return err
		}

		_, err = os.Stdout.Write(out)

		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
