// Fieldsync-client joins a fieldsync server from the terminal.
//
// It can find servers on the local network over mDNS and shows the shared
// field, the player list and chat in an interactive terminal UI.
//
// Usage:
//
//	fieldsync-client [command] [flags]
//
// See 'fieldsync-client --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/fieldsync/internal/logging"
	"github.com/muurk/fieldsync/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fieldsync-client",
	Short: "Fieldsync terminal client",
	Long: `A terminal client for fieldsync servers.

Join a server by URL or let the client find one on the local network, then
move around the field with the arrow keys and chat with other players.

Logging is off unless FIELDSYNC_LOG_LEVEL is set. The terminal UI owns the
screen, so 'join' only logs when --log-file is given.`,
	Version:           version.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// Logging flags
var (
	logLevel string
	logFile  string
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error; default: $FIELDSYNC_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write JSON logs to this rotating file instead of the console")

	rootCmd.AddCommand(versionCmd)
}

// setupLogging picks the log sink for cmd. A log file always wins; otherwise
// the interactive UI stays silent and other commands log to the console.
func setupLogging(cmd *cobra.Command, args []string) error {
	var err error
	switch {
	case logFile != "":
		err = logging.InitializeFileOnly(logLevel, logFile)
	case cmd == joinCmd:
		logging.SetLogger(nil)
	default:
		err = logging.Initialize(logLevel)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fieldsync-client %s\n", version.Get())
	},
}
