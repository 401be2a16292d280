package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"photocull/internal/exiftool"
	"photocull/internal/report"
	"photocull/internal/resolve"
	"photocull/internal/sidecar"
)

func newMetaCmd(configPath *string) *cobra.Command {
	var (
		raw         bool
		sidecarOnly bool
	)

	cmd := &cobra.Command{
		Use:   "meta <file>...",
		Short: "Resolve and print display metadata for files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sidecarOnly {
				return runMetaSidecar(cmd, args)
			}
			return runMeta(cmd, *configPath, args, raw)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "dump the raw tag map instead of the display record")
	cmd.Flags().BoolVar(&sidecarOnly, "sidecar", false, "dump the XMP sidecar tags only, skipping the file itself")
	return cmd
}

// runMetaSidecar prints only what the discovered XMP sidecar carries, without
// touching the image file or the report database.
func runMetaSidecar(cmd *cobra.Command, paths []string) error {
	out := cmd.OutOrStdout()
	for _, p := range paths {
		fmt.Fprintf(out, "%s:\n", p)
		xmpPath := sidecar.Find(p)
		if xmpPath == "" {
			fmt.Fprintln(out, "  (no sidecar)")
			continue
		}
		fmt.Fprintf(out, "  sidecar: %s\n", xmpPath)

		rec := sidecar.FlatMap(p, sidecar.Read(p))
		keys := make([]string, 0, len(rec))
		for key := range rec {
			if key != "SourceFile" {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(out, "  %s = %v\n", key, rec[key])
		}
	}
	return nil
}

func runMeta(cmd *cobra.Command, configPath string, paths []string, raw bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	reader, err := exiftool.NewReader(cmd.Context(), cfg.ExifTool)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if raw {
		recs := reader.ReadBatch(cmd.Context(), paths, exiftool.DefaultTags, nil)
		for _, p := range paths {
			rec := recs[filepath.Clean(p)]
			fmt.Fprintf(out, "%s:\n", p)
			for key, value := range rec {
				fmt.Fprintf(out, "  %s = %v\n", key, value)
			}
		}
		return nil
	}

	// the report index, when one covers the first file, enriches resolution
	var ix *report.Index
	if len(paths) > 0 {
		ix, err = report.LoadIndex(cmd.Context(), filepath.Dir(paths[0]))
		if err != nil {
			return err
		}
		if ix != nil {
			defer ix.Close()
		}
	}

	resolver := resolve.New(reader, cfg.Cache.MetadataCeiling)
	recs := resolver.Resolve(cmd.Context(), paths, ix, nil)
	for _, p := range paths {
		rec := recs[filepath.Clean(p)]
		fmt.Fprintf(out, "%s:\n", p)
		if rec.Empty() {
			fmt.Fprintln(out, "  (no metadata)")
			continue
		}
		fmt.Fprintf(out, "  title:     %s\n", rec.Title)
		fmt.Fprintf(out, "  rating:    %d\n", rec.Rating)
		fmt.Fprintf(out, "  pick:      %d\n", rec.Pick)
		fmt.Fprintf(out, "  label:     %s\n", rec.Color)
		fmt.Fprintf(out, "  focus:     %s\n", rec.Focus)
		fmt.Fprintf(out, "  sharpness: %s\n", rec.Sharpness)
		fmt.Fprintf(out, "  aesthetic: %s\n", rec.Aesthetic)
	}
	return nil
}
