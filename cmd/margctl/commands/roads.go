package commands

import (
	"encoding/json"

	"github.com/couchcryptid/margdarshak/internal/domain"
	"github.com/spf13/cobra"
)

type roadSummary struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Points  int     `json:"points"`
	LengthM float64 `json:"length_m"`
}

func roadsCmd(opts *options) *cobra.Command {
	var (
		city   string
		limit  int
		target int
		full   bool
	)
	cmd := &cobra.Command{
		Use:   "roads",
		Short: "Fetch, prepare and cache the road set for a city",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			roads, err := opts.services.Roads.ForCity(cmd.Context(), city, limit, target)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if full {
				return enc.Encode(roads)
			}
			return enc.Encode(summarize(roads))
		},
	}
	cmd.Flags().StringVar(&city, "city", "Mumbai", "city name")
	cmd.Flags().IntVar(&limit, "max", 200, "maximum number of roads")
	cmd.Flags().IntVar(&target, "target", 0, "target segment count (0 uses --max)")
	cmd.Flags().BoolVar(&full, "full", false, "print coordinates instead of a summary")
	return cmd
}

func summarize(roads []domain.Road) []roadSummary {
	out := make([]roadSummary, 0, len(roads))
	for _, r := range roads {
		out = append(out, roadSummary{ID: r.ID, Name: r.Name, Points: len(r.Coordinates), LengthM: r.LengthM})
	}
	return out
}
