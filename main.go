package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Perceptus-Labs/perceptus-object-detector/config"
	"github.com/Perceptus-Labs/perceptus-object-detector/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	app := &appContext{}
	if err := execute(app, newRootCommand(app)); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// execute runs cmd and flushes the logger afterwards, including when the
// command fails.
func execute(app *appContext, cmd *cobra.Command) error {
	defer app.close()
	return cmd.Execute()
}

type appContext struct {
	configPath string
	cfg        config.Config
	logger     *zap.Logger
}

func (a *appContext) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := utils.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *appContext) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newRootCommand(app *appContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "object-detector",
		Short:         "Identify the object in a photo with a vision model",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Configuration file path (YAML)")

	rootCmd.AddCommand(newConsoleCommand(app))
	rootCmd.AddCommand(newServeCommand(app))
	rootCmd.AddCommand(newAnalyzeCommand(app))

	return rootCmd
}
