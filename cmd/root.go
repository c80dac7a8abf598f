package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// errFindingsFound distinguishes "checks ran and found regressions" (exit 1)
// from execution errors (exit 2).
var errFindingsFound = errors.New("findings were recorded")

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "nbcheck",
	Short: "Output regression checks for executed Jupyter notebooks",
	Long: `nbcheck validates the stored outputs of already-executed Jupyter
notebooks against a declarative check suite: no cell may carry an error
output, and tracked result cells must hold their accepted values. It never
executes notebooks — it only reads what execution left behind.

Get started:
  nbcheck init        Interactive setup wizard
  nbcheck doctor      Verify configuration and database health
  nbcheck check       Check a directory or repository of notebooks
  nbcheck serve       Start the results server with REST API and scheduler
  nbcheck ui          Launch the terminal dashboard`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go. Exit codes: 0 all checks
// passed, 1 findings recorded, 2 execution error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errFindingsFound) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.nbcheck/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		initCmd,
		checkCmd,
		serveCmd,
		uiCmd,
		repoCmd,
		suiteCmd,
		configCmd,
		doctorCmd,
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
