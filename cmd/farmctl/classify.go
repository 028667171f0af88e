package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rkm/farm-health/internal/health"
)

var classifyCmd = &cobra.Command{
	Use:   "classify LABEL",
	Short: "Print the overlay color for a health label",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), health.Classify(args[0]))
		return nil
	},
}
