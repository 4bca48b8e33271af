package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ============================================================================
// lazerctl - command-line client for the lazercore daemon
// ============================================================================
//
//	lazerctl key tap KEY_A
//	lazerctl op socd_mode
//	lazerctl alchemy add shrug '¯\_(ツ)_/¯'
//	lazerctl state
//	lazerctl watch
//
// Event types are duplicated from the daemon so this binary stays standalone.
// ============================================================================

var (
	socketPath string
	httpAddr   string
)

var rootCmd = &cobra.Command{
	Use:           "lazerctl",
	Short:         "Control the lazercore keyboard daemon",
	Long:          `lazerctl sends events to lazercore over its IPC socket and reads state over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/tmp/lazercore.sock", "daemon IPC socket path")
	rootCmd.PersistentFlags().StringVar(&httpAddr, "http", "127.0.0.1:3001", "daemon HTTP address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
