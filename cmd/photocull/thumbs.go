package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"photocull/internal/report"
	"photocull/internal/scanner"
	"photocull/internal/thumbs"
	"photocull/internal/workers"
)

func newThumbsCmd(configPath *string) *cobra.Command {
	var (
		size   int
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "thumbs <dir>",
		Short: "Batch-generate square thumbnails for a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runThumbs(cmd, *configPath, args[0], size, outDir)
		},
	}

	cmd.Flags().IntVar(&size, "size", 256, "thumbnail edge length in pixels")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (required)")
	cmd.MarkFlagRequired("out")
	return cmd
}

func runThumbs(cmd *cobra.Command, configPath, dir string, size int, outDir string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	pipeline, err := thumbs.NewPipeline(cfg.Thumbs)
	if err != nil {
		return err
	}
	if cfg.Thumbs.UseVips {
		defer thumbs.ShutdownVips()
	}

	ix, err := report.LoadIndex(cmd.Context(), dir)
	if err != nil {
		return err
	}
	if ix != nil {
		defer ix.Close()
	}

	files, err := scanner.Scan(cmd.Context(), dir, false, ix)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	var root string
	if ix != nil {
		root = ix.Root()
	}

	// decode-heavy: one worker per CPU, each file writes a distinct target
	g, gctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(workers.ForCPU(0))

	var built, failed atomic.Int64
	var errMu sync.Mutex
	for _, f := range files {
		f := f
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			var row *report.Row
			if ix != nil {
				row = ix.Lookup(f)
			}
			img, err := pipeline.GetOrBuild(gctx, f, size, row, root)
			if err != nil {
				errMu.Lock()
				fmt.Fprintf(cmd.ErrOrStderr(), "skip %s: %v\n", filepath.Base(f), err)
				errMu.Unlock()
				failed.Add(1)
				return nil
			}

			base := filepath.Base(f)
			stem := strings.TrimSuffix(base, filepath.Ext(base))
			target := filepath.Join(outDir, fmt.Sprintf("%s_%d.jpg", stem, size))
			if err := imaging.Save(img, target); err != nil {
				return fmt.Errorf("failed to save %s: %w", target, err)
			}
			built.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats := pipeline.CacheStats()
	fmt.Fprintf(cmd.OutOrStdout(), "%d thumbnails written to %s (%d failed, cache %d bytes)\n",
		built.Load(), outDir, failed.Load(), stats.Bytes)
	return nil
}
