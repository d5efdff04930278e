/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/futures-signal-executor/internal/bootstrap"
	"github.com/spf13/cobra"
)

// signalWorkerCmd represents the signal worker command
var signalWorkerCmd = &cobra.Command{
	Use:   "signal-worker",
	Short: "Execute queued signals",
	Long:  `The signal worker consumes signals queued by the webhook gateway and executes them against the exchange.`,
	Run:   bootstrap.StartSignalWorker,
}

func init() {
	rootCmd.AddCommand(signalWorkerCmd)
}
