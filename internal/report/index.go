package report

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"photocull/internal/logging"
)

// Index is the in-memory view of a report database: every row keyed by
// filename stem. It is built once per directory selection and read-mostly;
// only the species and current_path patches mutate it, under the mutex.
type Index struct {
	mu   sync.Mutex
	db   *DB
	root string
	rows map[string]*Row
}

// LoadIndex walks up from dir to the nearest report database and loads all
// of its rows. Returns (nil, nil) when no database covers dir.
func LoadIndex(ctx context.Context, dir string) (*Index, error) {
	root := FindRoot(dir)
	if root == "" {
		return nil, nil
	}
	db, err := OpenIfExists(ctx, root)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil
	}

	rows, err := db.AllRows(ctx)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Warn("failed to close report database: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to load report rows: %w", err)
	}

	ix := &Index{db: db, root: root, rows: make(map[string]*Row, len(rows))}
	for _, r := range rows {
		ix.rows[r.Filename] = r
	}
	logging.Info("Report index loaded: %d rows from %s", len(rows), db.Path())
	return ix, nil
}

// Close releases the underlying database handle. Patches fail afterwards.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.db == nil {
		return nil
	}
	err := ix.db.Close()
	ix.db = nil
	return err
}

// Root returns the directory the report database governs.
func (ix *Index) Root() string {
	return ix.root
}

// Len returns the number of indexed rows.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.rows)
}

// Get returns the row for a filename stem, or nil.
func (ix *Index) Get(stem string) *Row {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.rows[stem]
}

// Lookup returns the row matching the stem of path, or nil. Matching is by
// stem only; the directory part of path does not participate.
func (ix *Index) Lookup(path string) *Row {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return ix.Get(stem)
}

// Stems returns all indexed stems in sorted order.
func (ix *Index) Stems() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]string, 0, len(ix.rows))
	for stem := range ix.rows {
		out = append(out, stem)
	}
	sort.Strings(out)
	return out
}

// normRel normalizes a relative path for case-insensitive prefix matching.
func normRel(p string) string {
	s := strings.TrimSpace(p)
	if s == "" {
		return ""
	}
	s = filepath.FromSlash(strings.ReplaceAll(s, "\\", "/"))
	s = filepath.Clean(s)
	if s == "." {
		return ""
	}
	return strings.ToLower(s)
}

// ScopedFiles returns the resolved full paths of every row whose recorded
// current_path falls under selectedDir, sorted by stem. Rows without a
// usable path are skipped.
func (ix *Index) ScopedFiles(selectedDir string) []string {
	selectedDir = filepath.Clean(selectedDir)

	selectedRel := ""
	if rel, err := filepath.Rel(ix.root, selectedDir); err == nil && !strings.HasPrefix(rel, "..") {
		selectedRel = normRel(rel)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	stems := make([]string, 0, len(ix.rows))
	for stem := range ix.rows {
		stems = append(stems, stem)
	}
	sort.Slice(stems, func(i, j int) bool {
		return strings.ToLower(stems[i]) < strings.ToLower(stems[j])
	})

	var files []string
	for _, stem := range stems {
		row := ix.rows[stem]
		cp := row.CurrentPath
		if selectedRel != "" && cp != "" && !filepath.IsAbs(cp) {
			cpNorm := normRel(cp)
			// the row must live at or below the selected subtree
			if cpNorm != selectedRel && !strings.HasPrefix(cpNorm, selectedRel+string(filepath.Separator)) {
				continue
			}
		}
		full := row.FullPath(ix.root, selectedDir)
		if full == "" {
			continue
		}
		files = append(files, full)
	}
	return files
}

// SetSpecies patches the species fields of a row, writing through to the
// database. Used when the user pastes a species name onto a photo.
func (ix *Index) SetSpecies(ctx context.Context, stem, species, speciesLatin string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	row, ok := ix.rows[stem]
	if !ok {
		return fmt.Errorf("no report row for %q", stem)
	}
	if ix.db == nil {
		return fmt.Errorf("report index closed")
	}
	if err := ix.db.UpdateSpecies(ctx, stem, species, speciesLatin); err != nil {
		return err
	}
	row.Species = species
	row.SpeciesLatin = speciesLatin
	return nil
}

// SetCurrentPath patches the recorded current_path of a row after the file
// was found at a new location, writing through to the database.
func (ix *Index) SetCurrentPath(ctx context.Context, stem, currentPath string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	row, ok := ix.rows[stem]
	if !ok {
		return fmt.Errorf("no report row for %q", stem)
	}
	if ix.db == nil {
		return fmt.Errorf("report index closed")
	}
	if err := ix.db.UpdateCurrentPath(ctx, stem, currentPath); err != nil {
		return err
	}
	row.RawCurrentPath = currentPath
	row.CurrentPath = currentPath
	row.normalizePaths()
	return nil
}
