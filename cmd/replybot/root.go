package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-reply-bot/internal/config"
	"github.com/tbourn/go-reply-bot/internal/sysutil"
)

type rootOptions struct {
	configFile string
	envFiles   []string
}

// NewRootCmd returns the replybot command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "replybot",
		Short:         "Rate-limited reply publishing pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML file of configuration keys (overrides the environment)")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env", nil, ".env files to load (default: .env when present)")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newOnceCmd(opts))
	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// load resolves configuration with precedence config file > environment >
// .env files, then installs the global logger.
func (o *rootOptions) load() (config.Config, error) {
	if err := config.LoadDotenv(o.envFiles...); err != nil {
		return config.Config{}, fmt.Errorf("load env files: %w", err)
	}
	if o.configFile != "" {
		if err := config.ApplyFile(o.configFile); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
