package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/askcarbuddy/advisor-cli/internal/store"
)

var (
	tracesVIN   string
	tracesLimit int
)

var tracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "Inspect stored analysis traces",
}

var tracesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent traces",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		traces, err := st.ListTraces(ctx, store.TraceFilter{
			VIN:   tracesVIN,
			Limit: tracesLimit,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(traces)
	},
}

var tracesGetCmd = &cobra.Command{
	Use:   "get <trace-id>",
	Short: "Show a single trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		trace, err := st.GetTrace(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(trace)
	},
}

func init() {
	tracesListCmd.Flags().StringVar(&tracesVIN, "vin", "", "filter by VIN")
	tracesListCmd.Flags().IntVar(&tracesLimit, "limit", 20, "maximum traces to list")
	tracesCmd.AddCommand(tracesListCmd)
	tracesCmd.AddCommand(tracesGetCmd)
	rootCmd.AddCommand(tracesCmd)
}
