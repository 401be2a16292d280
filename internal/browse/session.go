package browse

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"

	"photocull/internal/config"
	"photocull/internal/exiftool"
	"photocull/internal/logging"
	"photocull/internal/report"
	"photocull/internal/resolve"
	"photocull/internal/scanner"
	"photocull/internal/thumbs"
	"photocull/internal/viewport"
)

// State is the directory session lifecycle phase.
type State int

const (
	// StateIdle means no directory is loaded.
	StateIdle State = iota
	// StateScanning means the file list is being enumerated.
	StateScanning
	// StateMetadataLoading means the file list exists and display records
	// are being resolved.
	StateMetadataLoading
	// StateReady means the session is fully loaded.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateMetadataLoading:
		return "metadata-loading"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Filters are the content filters the caller can apply to a directory.
// Any active filter enables recursive scanning.
type Filters struct {
	NameText  string
	PickOnly  bool
	MinRating int
}

// Active reports whether any content filter is set.
func (f Filters) Active() bool {
	return f.NameText != "" || f.PickOnly || f.MinRating > 0
}

// Session is the browsing facade: it owns the resolver, the thumbnail
// pipeline, the viewport scheduler and the per-directory report index, and
// walks the Idle -> Scanning -> MetadataLoading -> Ready state machine.
type Session struct {
	cfg config.Config

	resolver  *resolve.Resolver
	pipeline  *thumbs.Pipeline
	scheduler *viewport.Scheduler
	reader    *exiftool.Reader

	mu      sync.Mutex
	state   State
	dir     string
	files   []string
	filters Filters
	index   *report.Index

	// metadata resolution is a single sequential worker: one batch of
	// external-tool subprocesses at a time
	metaMu sync.Mutex
}

// NewSession wires a session from cfg.
func NewSession(ctx context.Context, cfg config.Config) (*Session, error) {
	reader, err := exiftool.NewReader(ctx, cfg.ExifTool)
	if err != nil {
		return nil, err
	}
	pipeline, err := thumbs.NewPipeline(cfg.Thumbs)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:      cfg,
		reader:   reader,
		resolver: resolve.New(reader, cfg.Cache.MetadataCeiling),
		pipeline: pipeline,
		state:    StateIdle,
	}
	s.scheduler = viewport.NewScheduler(s.buildThumb, pipeline.Cached, cfg.Thumbs.Workers)
	return s, nil
}

// Close releases the report index. The session is unusable afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.Invalidate()
	s.state = StateIdle
	if s.index != nil {
		err := s.index.Close()
		s.index = nil
		return err
	}
	return nil
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Files returns the current file list.
func (s *Session) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.files))
	copy(out, s.files)
	return out
}

// Index returns the report index for the current directory, or nil.
func (s *Session) Index() *report.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// ScanDirectory loads dir as the session's directory and returns its ordered
// file list. A directory switch drops the previous session state and bumps
// the generation token, so outstanding background results are discarded.
// recursive only takes effect while a content filter is active.
func (s *Session) ScanDirectory(ctx context.Context, dir string, recursive bool) ([]string, error) {
	dir = filepath.Clean(dir)

	s.mu.Lock()
	if dir != s.dir {
		// new directory selection: back to Idle, everything in flight is stale
		s.state = StateIdle
		s.scheduler.Invalidate()
		s.resolver.ClearCache()
		if s.index != nil {
			if err := s.index.Close(); err != nil {
				logging.Warn("failed to close report index: %v", err)
			}
			s.index = nil
		}
		s.dir = dir
		s.files = nil
	}
	s.state = StateScanning
	filters := s.filters
	s.mu.Unlock()

	ix, err := report.LoadIndex(ctx, dir)
	if err != nil {
		logging.Warn("report index unavailable for %s: %v", dir, err)
		ix = nil
	}

	files, err := scanner.Scan(ctx, dir, recursive && filters.Active(), ix)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		if ix != nil {
			ix.Close()
		}
		return nil, err
	}
	files = applyNameFilter(files, filters.NameText)

	s.mu.Lock()
	if s.dir != dir {
		// a concurrent switch superseded this scan
		s.mu.Unlock()
		if ix != nil {
			ix.Close()
		}
		return nil, ctx.Err()
	}
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			logging.Warn("failed to close report index: %v", err)
		}
	}
	s.index = ix
	s.files = files
	s.state = StateMetadataLoading
	s.mu.Unlock()

	out := make([]string, len(files))
	copy(out, files)
	return out, nil
}

// SetFilters replaces the content filters. A Ready session re-enters
// MetadataLoading through a rescan; the generation token advances so stale
// viewport results are dropped.
func (s *Session) SetFilters(ctx context.Context, f Filters) ([]string, error) {
	s.mu.Lock()
	s.filters = f
	dir := s.dir
	ready := s.state == StateReady || s.state == StateMetadataLoading
	s.mu.Unlock()

	if dir == "" || !ready {
		return nil, nil
	}
	s.scheduler.Invalidate()
	return s.ScanDirectory(ctx, dir, f.Active())
}

// ResolveMetadata resolves display records for paths. Runs as a single
// sequential worker: concurrent calls queue rather than multiplying
// subprocesses. Moves a MetadataLoading session to Ready. Never errors;
// paths with no data yield empty records.
func (s *Session) ResolveMetadata(ctx context.Context, paths []string, progress func(done, total int)) map[string]resolve.DisplayRecord {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()

	s.mu.Lock()
	ix := s.index
	s.mu.Unlock()

	recs := s.resolver.Resolve(ctx, paths, ix, progress)

	s.mu.Lock()
	if s.state == StateMetadataLoading && ctx.Err() == nil {
		s.state = StateReady
	}
	s.mu.Unlock()
	return recs
}

// Thumbnail builds (or fetches) the square thumbnail for path synchronously.
func (s *Session) Thumbnail(ctx context.Context, path string, size int) (*image.NRGBA, error) {
	return s.buildThumb(ctx, path, size)
}

// buildThumb is the scheduler's build function: it attaches the report row
// and root so HEIF-like sources can redirect to their pre-rendered preview.
func (s *Session) buildThumb(ctx context.Context, path string, size int) (*image.NRGBA, error) {
	s.mu.Lock()
	ix := s.index
	s.mu.Unlock()

	var row *report.Row
	var root string
	if ix != nil {
		row = ix.Lookup(path)
		root = ix.Root()
	}
	return s.pipeline.GetOrBuild(ctx, path, size, row, root)
}

// UpdateViewport schedules thumbnails for the visible row interval plus the
// configured overscan. Returns the job id and whether a new job started; an
// unchanged viewport is a no-op.
func (s *Session) UpdateViewport(ctx context.Context, rng viewport.Range) (string, bool) {
	s.mu.Lock()
	files := s.files
	s.mu.Unlock()

	if rng.ThumbSize < 1 {
		rng.ThumbSize = s.cfg.Thumbs.SizeSteps[0]
	}
	cols := rng.GridWidth / rng.ThumbSize
	if cols < 1 {
		cols = 1
	}
	startRow := rng.StartRow - s.cfg.Viewport.OverscanRows
	if startRow < 0 {
		startRow = 0
	}
	endRow := rng.EndRow + s.cfg.Viewport.OverscanRows

	start := startRow * cols
	end := (endRow + 1) * cols
	if start > len(files) {
		start = len(files)
	}
	if end > len(files) {
		end = len(files)
	}

	slice := files[start:end]
	rng.EntryCount = len(slice)
	rng.TotalItems = len(files)
	return s.scheduler.Update(ctx, rng, slice)
}

// Results is the per-item delivery channel for viewport thumbnail jobs.
func (s *Session) Results() <-chan viewport.Result {
	return s.scheduler.Results()
}

// ClearThumbnailCache drops every cached bitmap and returns the stats from
// just before.
func (s *Session) ClearThumbnailCache() thumbs.Stats {
	return s.pipeline.ClearCache()
}

// PasteSpecies writes species onto every path's report row and, when the
// external tool is present, onto the file's title tags as well. Paths with
// no report row are skipped with a warning; tag-write failures do not fail
// the paste.
func (s *Session) PasteSpecies(ctx context.Context, paths []string, species, speciesLatin string) error {
	s.mu.Lock()
	ix := s.index
	s.mu.Unlock()
	if ix == nil {
		return fmt.Errorf("no report database for the current directory")
	}

	tool := s.reader.Tool()
	for _, path := range paths {
		base := filepath.Base(path)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if err := ix.SetSpecies(ctx, stem, species, speciesLatin); err != nil {
			logging.Warn("species paste skipped for %s: %v", base, err)
			continue
		}
		if tool != nil {
			if err := tool.WriteTitle(ctx, path, species); err != nil {
				logging.Warn("failed to write title tag on %s: %v", base, err)
			}
		}
	}

	// pasted species invalidate cached display records
	s.resolver.ClearCache()
	return nil
}

// PasteCaption writes caption into every path's description tags. Captions
// have no report column, so the external tool is required; without it the
// paste fails up front rather than silently dropping the write.
func (s *Session) PasteCaption(ctx context.Context, paths []string, caption string) error {
	tool := s.reader.Tool()
	if tool == nil {
		return fmt.Errorf("caption paste requires the external tag tool")
	}

	var firstErr error
	for _, path := range paths {
		if err := tool.WriteDescription(ctx, path, caption); err != nil {
			logging.Warn("failed to write caption on %s: %v", filepath.Base(path), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.resolver.ClearCache()
	return firstErr
}

// applyNameFilter keeps paths whose base name contains text,
// case-insensitively. Empty text keeps everything.
func applyNameFilter(files []string, text string) []string {
	if text == "" {
		return files
	}
	needle := strings.ToLower(text)
	out := files[:0]
	for _, f := range files {
		if strings.Contains(strings.ToLower(filepath.Base(f)), needle) {
			out = append(out, f)
		}
	}
	return out
}
