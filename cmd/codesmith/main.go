// Command codesmith is the CLI front-end for the autonomous
// code-improvement agent.
package main

import (
	"fmt"
	"os"

	"codesmith/internal/config"
	"codesmith/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgPath string
	cfg     *config.Config
	log     *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:           "codesmith",
	Short:         "codesmith - autonomous code-improvement agent",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zl, err := zap.NewProduction()
		if err != nil {
			return err
		}
		log = zl.Sugar()

		if cfgPath != "" {
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
		} else {
			cfg = config.DefaultConfig()
			cfg.ApplyEnvOverrides()
		}

		return logging.Initialize(logging.Options{
			Enabled:    cfg.Logging.Enabled,
			Dir:        cfg.Logging.Dir,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
		if log != nil {
			log.Sync()
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to the configuration file")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(objectiveCmd)
	rootCmd.AddCommand(loadObjectivesCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(improveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
