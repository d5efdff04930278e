/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/futures-signal-executor/internal/bootstrap"
	"github.com/spf13/cobra"
)

// webhookGatewayCmd represents the webhook gateway command
var webhookGatewayCmd = &cobra.Command{
	Use:   "webhook-gateway",
	Short: "Start the signal webhook gateway",
	Long: `The webhook gateway accepts trading signals over HTTP. POST /webhook executes the
signal and answers with the aggregated result, POST /webhook/async queues it on
NATS JetStream for the signal worker.`,
	Run: bootstrap.StartWebhookGateway,
}

func init() {
	rootCmd.AddCommand(webhookGatewayCmd)
}
