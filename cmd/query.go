package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var areasCmd = &cobra.Command{
	Use:   "areas",
	Short: "List the areas present in the record store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.close()

		areas, err := a.service.ListAreas(cmd.Context())
		if err != nil {
			return err
		}
		for _, area := range areas {
			fmt.Fprintln(cmd.OutOrStdout(), area)
		}
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:     "summary <area> <YYYY-MM>",
	Short:   "Print the crime type breakdown of one area and month",
	Example: "  crime_service summary greater-manchester 2024-12",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer a.close()

		summary, err := a.service.Breakdown(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CRIME TYPE\tCOUNT")
		for _, c := range summary.TopCrimeTypes {
			fmt.Fprintf(w, "%s\t%d\n", c.CrimeType, c.Count)
		}
		fmt.Fprintf(w, "TOTAL\t%d\n", summary.Total)
		return w.Flush()
	},
}
