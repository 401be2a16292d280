package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"photocull/internal/browse"
)

func newLsCmd(configPath *string) *cobra.Command {
	var (
		recursive bool
		nameText  string
		pickOnly  bool
		minRating int
	)

	cmd := &cobra.Command{
		Use:   "ls <dir>",
		Short: "Scan a directory and print the resolved metadata table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(cmd, *configPath, args[0], browse.Filters{
				NameText:  nameText,
				PickOnly:  pickOnly,
				MinRating: minRating,
			}, recursive)
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "scan subdirectories (requires an active filter)")
	cmd.Flags().StringVar(&nameText, "filter", "", "keep only files whose name contains this text")
	cmd.Flags().BoolVar(&pickOnly, "picked", false, "keep only picked files")
	cmd.Flags().IntVar(&minRating, "min-rating", 0, "keep only files rated at least this")
	return cmd
}

func runLs(cmd *cobra.Command, configPath, dir string, filters browse.Filters, recursive bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	session, err := browse.NewSession(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	if _, err := session.SetFilters(cmd.Context(), filters); err != nil {
		return err
	}
	files, err := session.ScanDirectory(cmd.Context(), dir, recursive)
	if err != nil {
		return err
	}

	recs := session.ResolveMetadata(cmd.Context(), files, nil)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tTITLE\tRATING\tPICK\tFOCUS\tSHARP\tAESTHETIC\tLABEL")
	for _, f := range files {
		rec := recs[filepath.Clean(f)]
		if filters.PickOnly && rec.Pick != 1 {
			continue
		}
		if rec.Rating < filters.MinRating {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			filepath.Base(f), rec.Title, rec.Rating, rec.Pick,
			rec.Focus, rec.Sharpness, rec.Aesthetic, rec.Color)
	}
	return w.Flush()
}
