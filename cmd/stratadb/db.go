package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratadb-labs/strata-core/pkg/config"
	"github.com/stratadb-labs/strata-core/pkg/strata"
)

// resolveConfig builds a config.Config from --config if given, else
// from the persistent path/ephemeral/temp flags.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		return config.LoadFile(configPath)
	}

	dataDir, _ := cmd.Flags().GetString("data-dir")
	ephemeral, _ := cmd.Flags().GetBool("ephemeral")
	temp, _ := cmd.Flags().GetBool("temp")

	var opts []config.Option
	switch {
	case ephemeral:
		opts = append(opts, config.WithEphemeral())
	case temp:
		opts = append(opts, config.WithTemp())
	case dataDir != "":
		opts = append(opts, config.WithPath(dataDir))
	default:
		return config.Config{}, fmt.Errorf("one of --data-dir, --ephemeral, or --temp is required")
	}
	return config.New(opts...)
}

func openDB(cmd *cobra.Command) (*strata.DB, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	return strata.OpenFromConfig(cfg)
}
