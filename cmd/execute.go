/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/futures-signal-executor/internal/bootstrap"
	"github.com/spf13/cobra"
)

// executeCmd represents the execute command
var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Execute a single signal",
	Long:  `Execute a single signal and print the execution result as JSON. Exits with a non-zero code unless the status is SUCCESS.`,
	Run:   bootstrap.StartExecute,
}

func init() {
	rootCmd.AddCommand(executeCmd)
	executeCmd.Flags().String("action", "", "buy|sell")
	executeCmd.Flags().String("symbol", "", "symbol, e.g. BTC_USDT, btc-usdt or BTCUSDT")
	executeCmd.Flags().String("quantity", "", "order volume")
	executeCmd.Flags().String("leverage", "1", "leverage")
	_ = executeCmd.MarkFlagRequired("action")
	_ = executeCmd.MarkFlagRequired("symbol")
	_ = executeCmd.MarkFlagRequired("quantity")
}
