package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func seedHistoryCmd(opts *options) *cobra.Command {
	var (
		city     string
		points   int
		interval int
	)
	cmd := &cobra.Command{
		Use:   "seed-history",
		Short: "Write a rising congestion series for every road in a city",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.services.Traffic.SeedHistory(cmd.Context(), city, points, interval)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d points for %d segments in %s\n", res.Points, res.Segments, res.City)
			return nil
		},
	}
	cmd.Flags().StringVar(&city, "city", "Mumbai", "city to seed")
	cmd.Flags().IntVar(&points, "points", 6, "points per segment")
	cmd.Flags().IntVar(&interval, "interval", 30, "bucket interval in minutes")
	return cmd
}
