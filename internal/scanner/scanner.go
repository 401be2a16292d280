package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"photocull/internal/logging"
	"photocull/internal/metrics"
	"photocull/internal/report"
)

// imageExtensions covers the common encoded formats plus the per-vendor raw
// container extensions.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
	".tiff": true, ".tif": true,
	".heic": true, ".heif": true, ".hif": true,
	// Canon
	".cr2": true, ".cr3": true, ".crw": true,
	// Nikon
	".nef": true, ".nrw": true,
	// Sony
	".arw": true, ".srf": true, ".sr2": true,
	// Fujifilm
	".raf": true,
	// Olympus
	".orf": true,
	// Panasonic
	".rw2": true, ".raw": true,
	// Adobe / generic
	".dng": true,
	// Pentax
	".pef": true, ".ptx": true,
	// Sigma
	".x3f": true,
	// Leica
	".rwl": true,
	// other raw
	".3fr": true, ".dcr": true, ".kdc": true, ".mef": true, ".mrw": true, ".rwz": true,
}

// IsImage reports whether path has a supported image extension.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// pathKey normalizes a path for case-insensitive identity comparison.
func pathKey(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

// Scan lists the image files under dir in display order. With a report
// index, the database rows scoped to dir drive the list and a filesystem
// walk supplements it; without one, a plain walk is used. recursive only
// affects the plain walk; report-scoped listing is subtree-based already.
func Scan(ctx context.Context, dir string, recursive bool, ix *report.Index) ([]string, error) {
	dir = filepath.Clean(dir)

	var files []string
	var err error
	if ix != nil {
		metrics.ScansTotal.WithLabelValues("report").Inc()
		files, err = scanWithReport(ctx, dir, ix)
	} else {
		metrics.ScansTotal.WithLabelValues("walk").Inc()
		files, err = walkImages(ctx, dir, recursive)
	}
	if err != nil {
		return nil, err
	}

	metrics.ScanFilesListed.Observe(float64(len(files)))
	logging.Debug("Scanned %s: %d files (report=%v recursive=%v)", dir, len(files), ix != nil, recursive)
	return files, nil
}

// scanWithReport builds the list from the report rows scoped to dir, then
// walks the directory to pick up report-known files the recorded paths
// missed: new files are appended, and rows whose resolved path no longer
// exists are repointed at the file found on disk.
func scanWithReport(ctx context.Context, dir string, ix *report.Index) ([]string, error) {
	files := ix.ScopedFiles(dir)

	actual, err := walkImages(ctx, dir, true)
	if err != nil {
		// report list alone is still usable
		logging.Warn("supplement walk failed for %s: %v", dir, err)
		return files, nil
	}

	existing := make(map[string]bool, len(files))
	indexByStem := make(map[string]int, len(files))
	for i, f := range files {
		existing[pathKey(f)] = true
		indexByStem[stemOf(f)] = i
	}

	for _, actualPath := range actual {
		stem := stemOf(actualPath)
		if ix.Get(stem) == nil {
			// not analyzed, stays out of the report-driven list
			continue
		}
		key := pathKey(actualPath)
		if existing[key] {
			continue
		}
		if i, ok := indexByStem[stem]; ok {
			// same photo recorded at a stale location
			if _, statErr := os.Stat(files[i]); statErr != nil {
				delete(existing, pathKey(files[i]))
				files[i] = actualPath
				existing[key] = true
				syncCurrentPath(ctx, ix, stem, actualPath)
			}
			continue
		}
		files = append(files, actualPath)
		existing[key] = true
		indexByStem[stem] = len(files) - 1
	}

	return files, nil
}

// syncCurrentPath writes the location a moved file was actually found at
// back onto its report row, so later sessions skip the stale recorded path.
// Paths outside the report root are left alone.
func syncCurrentPath(ctx context.Context, ix *report.Index, stem, actualPath string) {
	rel, err := filepath.Rel(ix.Root(), actualPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		logging.Debug("current_path sync skipped for %s: outside report root", stem)
		return
	}
	if row := ix.Get(stem); row != nil && row.CurrentPath == rel {
		return
	}
	if err := ix.SetCurrentPath(ctx, stem, rel); err != nil {
		logging.Warn("failed to sync current_path for %s: %v", stem, err)
	}
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// walkImages lists image files under dir. Recursive walks skip hidden and
// internal state directories (names starting with "."). Names are ordered
// case-insensitively per directory.
func walkImages(ctx context.Context, dir string, recursive bool) ([]string, error) {
	var files []string

	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		sortEntries(entries)
		for _, entry := range entries {
			if entry.IsDir() || !IsImage(entry.Name()) {
				continue
			}
			files = append(files, filepath.Join(dir, entry.Name()))
		}
		return files, nil
	}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			logging.Debug("walk error at %s: %v", path, err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsImage(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(files[i]) < strings.ToLower(files[j])
	})
	return files, nil
}

func sortEntries(entries []os.DirEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})
}
