package main

import (
	"github.com/joho/godotenv"
	"github.com/reelqueue/reelqueue/internal/config"
	"github.com/reelqueue/reelqueue/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:          "reelqueue-api",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)

	rootCmd.PersistentFlags().StringSliceVarP(&envFiles, "env-file", "e", nil, "Dotenv files loaded before reading the environment (default .env when present)")
}

// loadConfig reads the dotenv files, then the environment, and installs the
// global zap logger. The returned func flushes and restores it.
func loadConfig() (*config.Config, func(), error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, nil, err
		}
	} else {
		// .env is optional
		_ = godotenv.Load()
	}

	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
	if err != nil {
		logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger := log.InitLog(logLvl, cfg.Service.LogFormat)
	undo := zap.ReplaceGlobals(logger)

	return cfg, func() {
		_ = logger.Sync()
		undo()
	}, nil
}
