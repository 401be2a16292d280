package thumbs

import (
	"image"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"photocull/internal/metrics"
)

// jpegMipExts are the formats cheap enough to re-decode at every requested
// size. Everything else is decoded once at base resolution and rescaled.
var jpegMipExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
}

// IsJPEGLike reports whether path gets per-size mip caching.
func IsJPEGLike(path string) bool {
	return jpegMipExts[strings.ToLower(filepath.Ext(path))]
}

func cacheKey(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

type mipKey struct {
	path string
	size int
}

// Stats is a cache snapshot for diagnostics.
type Stats struct {
	MipEntries  int
	BaseEntries int
	Bytes       int64
}

// Cache is the thumbnail memory cache. JPEG-like sources get one entry per
// (path, size); other sources keep a single base-resolution bitmap that is
// rescaled on read. No automatic eviction; Clear is the only way out.
type Cache struct {
	mu    sync.Mutex
	mips  map[mipKey]*image.NRGBA
	base  map[string]*image.NRGBA
	bytes int64
}

func NewCache() *Cache {
	return &Cache{
		mips: make(map[mipKey]*image.NRGBA),
		base: make(map[string]*image.NRGBA),
	}
}

func imageBytes(img *image.NRGBA) int64 {
	if img == nil {
		return 0
	}
	return int64(len(img.Pix))
}

// Get returns a bitmap for (path, size), or nil on a miss. For non-JPEG
// sources the cached base bitmap is rescaled to fit the requested size.
// Returned images are shared; callers must not mutate them.
func (c *Cache) Get(path string, size int) *image.NRGBA {
	key := cacheKey(path)

	c.mu.Lock()
	if IsJPEGLike(path) {
		img := c.mips[mipKey{key, size}]
		c.mu.Unlock()
		return img
	}
	base := c.base[key]
	c.mu.Unlock()

	if base == nil {
		return nil
	}
	if base.Bounds().Dx() <= size && base.Bounds().Dy() <= size {
		return base
	}
	return imaging.Fit(base, size, size, imaging.Lanczos)
}

// Contains reports whether Get(path, size) would hit without doing the
// rescale work. A cached base bitmap serves every size.
func (c *Cache) Contains(path string, size int) bool {
	key := cacheKey(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	if IsJPEGLike(path) {
		return c.mips[mipKey{key, size}] != nil
	}
	return c.base[key] != nil
}

// Put stores a bitmap. size is only meaningful for JPEG-like sources; other
// sources always occupy the single base slot regardless of size.
func (c *Cache) Put(path string, size int, img *image.NRGBA) {
	if img == nil {
		return
	}
	key := cacheKey(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if IsJPEGLike(path) {
		k := mipKey{key, size}
		c.bytes -= imageBytes(c.mips[k])
		c.mips[k] = img
		c.bytes += imageBytes(img)
	} else {
		c.bytes -= imageBytes(c.base[key])
		c.base[key] = img
		c.bytes += imageBytes(img)
	}

	metrics.ThumbnailCacheEntries.WithLabelValues("mips").Set(float64(len(c.mips)))
	metrics.ThumbnailCacheEntries.WithLabelValues("base").Set(float64(len(c.base)))
	metrics.ThumbnailCacheBytes.Set(float64(c.bytes))
}

// Clear drops everything and returns the stats from just before.
func (c *Cache) Clear() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		MipEntries:  len(c.mips),
		BaseEntries: len(c.base),
		Bytes:       c.bytes,
	}
	c.mips = make(map[mipKey]*image.NRGBA)
	c.base = make(map[string]*image.NRGBA)
	c.bytes = 0

	metrics.ThumbnailCacheEntries.WithLabelValues("mips").Set(0)
	metrics.ThumbnailCacheEntries.WithLabelValues("base").Set(0)
	metrics.ThumbnailCacheBytes.Set(0)
	return stats
}

// Stats returns a snapshot of the cache accounting.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		MipEntries:  len(c.mips),
		BaseEntries: len(c.base),
		Bytes:       c.bytes,
	}
}
