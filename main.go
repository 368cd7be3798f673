package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"watchfront/config"
	"watchfront/logging"
)

var (
	cfg     *config.Config
	logFile *logging.RotatingWriter

	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "watchfront",
	Short: "Vintage watch storefront and listing acquisition",
	Long: `watchfront keeps a seller's marketplace listings in a local JSON file
and serves them as a filterable storefront, on the web or in the terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

		// the terminal UI owns the screen, so it logs to the file only
		if cmd.Name() == browseCmd.Name() {
			logFile, err = logging.NewRotatingWriter(cfg.LogPath, 0)
			if err != nil {
				log.SetOutput(io.Discard)
				return nil
			}
			log.SetOutput(logFile)
			return nil
		}

		logFile, err = logging.Setup(cfg.LogPath, 0)
		if err != nil {
			log.Printf("Warning: could not set up file logging: %v", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(fetchCmd, daemonCmd, serveCmd, browseCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
