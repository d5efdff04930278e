package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/krobus00/futures-signal-executor/internal/entity"
	"github.com/krobus00/futures-signal-executor/internal/util"
	"github.com/spf13/cobra"
)

// StartExecute runs a single signal from the command line and prints the result.
func StartExecute(cmd *cobra.Command, args []string) {
	action, _ := cmd.Flags().GetString("action")
	symbol, _ := cmd.Flags().GetString("symbol")
	quantity, _ := cmd.Flags().GetString("quantity")
	leverage, _ := cmd.Flags().GetString("leverage")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := newPipeline(ctx)
	util.ContinueOrFatal(err)
	defer p.close()

	result := p.executor.Execute(ctx, entity.RawIntent{
		Action:   action,
		Symbol:   symbol,
		Quantity: entity.RawNumber(quantity),
		Leverage: entity.RawNumber(leverage),
	})

	payload, err := json.MarshalIndent(result, "", "  ")
	util.ContinueOrFatal(err)
	fmt.Fprintln(os.Stdout, string(payload))

	if result.Status != entity.ExecutionStatusSuccess {
		p.close()
		os.Exit(1)
	}
}
