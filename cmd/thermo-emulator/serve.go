package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/thermo-emulator/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
	"github.com/taoyao-code/thermo-emulator/internal/logging"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the emulator",
	Long: `Loads configuration (--config, THERMO_CONFIG or configs/example.yaml),
then serves the device protocol on every enabled transport until SIGINT/SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Config file path")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := cfgpkg.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return bootstrap.Run(ctx, cfg, logger)
}
