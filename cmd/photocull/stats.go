package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"photocull/internal/report"
)

func newStatsCmd() *cobra.Command {
	var (
		ratings []int
		species string
		sortBy  string
	)

	cmd := &cobra.Command{
		Use:   "stats <dir>",
		Short: "Print analysis report statistics for a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, args[0], ratings, species, sortBy)
		},
	}

	cmd.Flags().IntSliceVar(&ratings, "rating", nil, "list photos with these ratings")
	cmd.Flags().StringVar(&species, "species", "", "list photos of this species")
	cmd.Flags().StringVar(&sortBy, "sort", report.SortByFilename, "listing order: filename, sharpness_desc or aesthetic_desc")
	return cmd
}

func runStats(cmd *cobra.Command, dir string, ratings []int, species, sortBy string) error {
	root := report.FindRoot(dir)
	if root == "" {
		return fmt.Errorf("no report database found for %s", dir)
	}
	db, err := report.OpenIfExists(cmd.Context(), root)
	if err != nil {
		return err
	}
	if db == nil {
		return fmt.Errorf("no report database found for %s", dir)
	}
	defer db.Close()

	out := cmd.OutOrStdout()

	// a rating or species constraint turns stats into a filtered listing
	if len(ratings) > 0 || species != "" {
		rows, err := db.QueryRows(cmd.Context(), report.Query{
			Ratings: ratings,
			Species: species,
			SortBy:  sortBy,
		})
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Fprintf(out, "%s\trating=%d\tfocus=%s\tspecies=%s\n",
				r.Filename, r.Rating, r.FocusStatus, r.Species)
		}
		fmt.Fprintf(out, "%d photos matched\n", len(rows))
		return nil
	}

	stats, err := db.Statistics(cmd.Context())
	if err != nil {
		return err
	}
	schema, err := db.Meta(cmd.Context(), "schema_version")
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "report: %s (schema v%s)\n", db.Path(), schema)
	fmt.Fprintf(out, "photos: %d\n", stats.Total)
	fmt.Fprintf(out, "flying: %d\n", stats.Flying)

	keys := make([]int, 0, len(stats.ByRating))
	for r := range stats.ByRating {
		keys = append(keys, r)
	}
	sort.Ints(keys)
	for _, r := range keys {
		fmt.Fprintf(out, "rating %d: %d\n", r, stats.ByRating[r])
	}

	names, err := db.DistinctSpecies(cmd.Context())
	if err != nil {
		return err
	}
	if len(names) > 0 {
		fmt.Fprintf(out, "species:")
		for _, s := range names {
			fmt.Fprintf(out, " %s", s)
		}
		fmt.Fprintln(out)
	}
	return nil
}
