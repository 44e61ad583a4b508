package main

import (
	"github.com/spf13/cobra"

	"github.com/kittclouds/skillscan/internal/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "skillscan",
		Short:         "Taxonomy-backed competence extraction",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	cmd.AddCommand(
		newExtractCmd(opts),
		newRefreshCmd(opts),
		newDiscoveryCmd(opts),
	)
	return cmd
}

// loadConfig applies the command line overrides on top of config.Load.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}
