package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/config"
	logpkg "github.com/kailas-cloud/lexdrill/internal/logger"
	"github.com/kailas-cloud/lexdrill/internal/version"
)

var (
	envName string
	cfg     config.Config
	logger  *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "lexdrill",
	Short:         "Vocabulary drill scheduling service",
	Long:          "lexdrill selects study items, serves pre-generated drills and commits spaced-repetition progress.",
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		if envName == "" {
			envName = config.GetEnv()
		}

		var err error
		cfg, err = config.Load(envName)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger, err = logpkg.NewLogger(envName, cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", "", "Config environment (local, dev, prod); defaults to $ENV")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(inventoryCmd)
	rootCmd.AddCommand(catalogCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(*cobra.Command, []string) {
		fmt.Println("lexdrill", version.String())
	},
}
