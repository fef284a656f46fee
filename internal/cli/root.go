package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dl-alexandre/mirrorsync/internal/config"
	"github.com/dl-alexandre/mirrorsync/internal/logging"
	"github.com/dl-alexandre/mirrorsync/internal/utils"
	"github.com/dl-alexandre/mirrorsync/pkg/version"
)

// GlobalFlags are the persistent flags shared by all commands.
type GlobalFlags struct {
	Account      string
	OutputFormat string
	Quiet        bool
	Verbose      bool
	LogFile      string
}

var (
	globalFlags GlobalFlags
	cfg         *config.Config
	logger      logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mirrorsync",
	Short: "Bidirectional sync between a remote drive and a local mirror",
	Long: `mirrorsync keeps a local directory and a remote drive in step.
It ingests the remote change feed incrementally, reconciles both sides
against a durable state store, and transfers only what changed.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateGlobalFlags(); err != nil {
			return err
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if globalFlags.Account == "" {
			globalFlags.Account = cfg.DefaultAccount
		}
		if globalFlags.LogFile == "" {
			globalFlags.LogFile = cfg.LogFile
		}

		logger = buildLogger()
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get().String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.Account, "account", "", "Account profile to use")
	rootCmd.PersistentFlags().StringVar(&globalFlags.OutputFormat, "output", "table", "Output format (json, table)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogFile, "log-file", "", "Path to JSON log file")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags() error {
	if globalFlags.OutputFormat != "json" && globalFlags.OutputFormat != "table" {
		return fmt.Errorf("invalid output format: %s", globalFlags.OutputFormat)
	}
	return nil
}

func buildLogger() logging.Logger {
	level := logging.ParseLevel(cfg.LogLevel)
	if globalFlags.Verbose {
		level = logging.DEBUG
	}

	if globalFlags.LogFile != "" {
		return logging.NewFileLogger(logging.FileLoggerConfig{
			FilePath: globalFlags.LogFile,
			Level:    level,
		})
	}
	if globalFlags.Quiet {
		return logging.NewNoOpLogger()
	}
	return logging.NewConsoleLogger(logging.ConsoleLoggerConfig{
		Level:            level,
		ColorEnabled:     cfg.ColorOutput,
		TimestampEnabled: globalFlags.Verbose,
	})
}

// Execute runs the root command and maps the failure onto a process exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(utils.GetExitCode(utils.CodeOf(err)))
	}
}
