package thumbs

import (
	"context"
	"image"
	"image/color"
	"time"

	"photocull/internal/config"
	"photocull/internal/logging"
	"photocull/internal/metrics"
	"photocull/internal/report"
)

// Pipeline builds square thumbnails, consulting the memory cache and the
// analysis database's pre-rendered previews before decoding anything.
type Pipeline struct {
	cache    *Cache
	baseSize int
	canvas   color.NRGBA
	useVips  bool
}

// NewPipeline builds a thumbnail pipeline from cfg. When the vips fast path
// is requested but fails to initialize, the pipeline falls back to pure-Go
// decoding rather than erroring out.
func NewPipeline(cfg config.ThumbsConfig) (*Pipeline, error) {
	canvas, err := ParseHexColor(cfg.CanvasColor)
	if err != nil {
		return nil, err
	}

	useVips := cfg.UseVips
	if useVips {
		if err := InitVips(); err != nil {
			logging.Warn("vips unavailable, using pure-Go decoding: %v", err)
			useVips = false
		}
	}

	return &Pipeline{
		cache:    NewCache(),
		baseSize: cfg.BaseSize,
		canvas:   canvas,
		useVips:  useVips,
	}, nil
}

// GetOrBuild returns the size x size thumbnail for path. A report row, when
// known, can redirect the load to the pre-rendered JPEG preview of a
// HEIF-like source. The returned image is freshly composited and owned by
// the caller.
func (p *Pipeline) GetOrBuild(ctx context.Context, path string, size int, row *report.Row, root string) (*image.NRGBA, error) {
	start := time.Now()

	// the cache is keyed by the source path the caller asked about, never
	// by the redirected preview file, so viewport probes see the hit
	if img := p.cache.Get(path, size); img != nil {
		metrics.ThumbnailBuildsTotal.WithLabelValues("cache").Inc()
		return composite(img, size, p.canvas), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loadPath := path
	if row != nil {
		loadPath = row.PreviewPath(path, root)
	}
	redirected := loadPath != path

	// JPEG-likes re-decode cheaply at the exact size; everything else is
	// decoded once at base resolution and rescaled on later reads.
	loadSize := size
	if !IsJPEGLike(path) {
		loadSize = p.baseSize
	}

	img, source, err := loadSource(loadPath, loadSize, p.useVips)
	if err != nil {
		return nil, err
	}
	if redirected {
		source = "preview_file"
	}

	p.cache.Put(path, loadSize, img)

	out := p.cache.Get(path, size)
	if out == nil {
		out = fitDown(img, size)
	}

	metrics.ThumbnailBuildsTotal.WithLabelValues(source).Inc()
	metrics.ThumbnailBuildDuration.Observe(time.Since(start).Seconds())
	return composite(out, size, p.canvas), nil
}

// Cached reports whether a thumbnail for (path, size) can be served without
// touching the file.
func (p *Pipeline) Cached(path string, size int) bool {
	return p.cache.Contains(path, size)
}

// ClearCache drops every cached bitmap and returns the pre-clear stats.
func (p *Pipeline) ClearCache() Stats {
	stats := p.cache.Clear()
	logging.Info("Thumbnail cache cleared: %d mips, %d base images, %d bytes",
		stats.MipEntries, stats.BaseEntries, stats.Bytes)
	return stats
}

// CacheStats returns a snapshot of the cache accounting.
func (p *Pipeline) CacheStats() Stats {
	return p.cache.Stats()
}
