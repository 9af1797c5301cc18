package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"webpconv/config"
	"webpconv/credentials"
	"webpconv/failures"
	"webpconv/logger"
	"webpconv/success"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevelFlag: logLevelFlag}
}

// ensureConfig loads the configuration once and applies its log settings.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if lvl := strings.TrimSpace(*c.logLevelFlag); lvl != "" {
			cfg.Log.Level = lvl
		}
		if cfg.Log.File != "" {
			if err := logger.Init(cfg.Log.File, true); err != nil {
				c.configErr = err
				return
			}
		}
		logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
		c.config = &cfg
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevelFlag string

	ctx := newCommandContext(&configFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "webpconv",
		Short:         "Convert WebP images to PNG and animated WebP to GIF",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default $WEBPCONV_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(newConvertCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newPruneCommand(ctx))
	rootCmd.AddCommand(newCredsCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))
	rootCmd.AddCommand(newManifestCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// openHistory opens the success and failure stores under the data dir.
func openHistory(cfg *config.Config) (func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	logger.Debug("Initializing success database")
	if err := success.Init(cfg.SuccessDBPath()); err != nil {
		return nil, err
	}
	logger.Debug("Initializing failures database")
	if err := failures.Init(cfg.FailuresDBPath()); err != nil {
		success.Close()
		return nil, err
	}
	return func() {
		if err := failures.Close(); err != nil {
			logger.Errorf("Failed to close failure store: %v", err)
		}
		if err := success.Close(); err != nil {
			logger.Errorf("Failed to close success store: %v", err)
		}
	}, nil
}

func openCredentials(cfg *config.Config) (func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	logger.Debug("Initializing credentials database")
	if err := credentials.OpenDB(cfg.CredentialsDBPath()); err != nil {
		return nil, fmt.Errorf("failed to initialize credentials store: %w", err)
	}
	return func() {
		if err := credentials.CloseDB(); err != nil {
			logger.Errorf("Failed to close credentials store: %v", err)
		}
	}, nil
}
