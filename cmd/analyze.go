package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askcarbuddy/advisor-cli/internal/model"
)

var (
	analyzeURL     string
	analyzeVIN     string
	analyzeYear    int
	analyzeMake    string
	analyzeModel   string
	analyzeTrim    string
	analyzePrice   string
	analyzeMileage string
	analyzeZip     string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a single listing and print the advisory report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		in := model.ListingInput{
			URL:     analyzeURL,
			VIN:     analyzeVIN,
			Year:    analyzeYear,
			Make:    analyzeMake,
			Model:   analyzeModel,
			Trim:    analyzeTrim,
			ZipCode: analyzeZip,
		}
		if analyzePrice != "" {
			in.Price = analyzePrice
		}
		if analyzeMileage != "" {
			in.Mileage = analyzeMileage
		}

		report, err := e.Pipeline.Analyze(ctx, in)
		if err != nil {
			return err
		}

		zap.L().Info("report generated",
			zap.String("trace_id", report.TraceID),
			zap.String("vehicle", report.Vehicle.Label()),
			zap.Float64("score", report.Overall.Score))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeURL, "url", "", "listing URL")
	analyzeCmd.Flags().StringVar(&analyzeVIN, "vin", "", "vehicle identification number")
	analyzeCmd.Flags().IntVar(&analyzeYear, "year", 0, "model year")
	analyzeCmd.Flags().StringVar(&analyzeMake, "make", "", "vehicle make")
	analyzeCmd.Flags().StringVar(&analyzeModel, "model", "", "vehicle model")
	analyzeCmd.Flags().StringVar(&analyzeTrim, "trim", "", "trim level")
	analyzeCmd.Flags().StringVar(&analyzePrice, "price", "", "asking price")
	analyzeCmd.Flags().StringVar(&analyzeMileage, "mileage", "", "odometer reading")
	analyzeCmd.Flags().StringVar(&analyzeZip, "zip", "", "zip code for market search")
	rootCmd.AddCommand(analyzeCmd)
}
