package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// ExifToolConfig controls the external metadata extraction tool.
type ExifToolConfig struct {
	// Path is an explicit path to the exiftool executable. Empty means
	// discover it on PATH.
	Path string `toml:"path"`
	// Mode is "auto", "on" or "off". "on" makes a missing tool a hard
	// error; "off" always uses the in-process decoder.
	Mode string `toml:"mode"`
	// ChunkSize is the maximum number of files per exiftool invocation.
	ChunkSize int `toml:"chunk_size"`
	// TimeoutSeconds bounds a single batch invocation. 0 means no timeout.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// CacheConfig controls the metadata memory cache.
type CacheConfig struct {
	// MetadataCeiling is the maximum number of cached display records
	// before FIFO eviction kicks in.
	MetadataCeiling int `toml:"metadata_ceiling"`
}

// ThumbsConfig controls thumbnail generation.
type ThumbsConfig struct {
	// SizeSteps are the discrete thumbnail sizes offered to the UI.
	SizeSteps []int `toml:"size_steps"`
	// BaseSize is the resolution cached for sources that are not cheap to
	// re-decode; requested sizes are produced by rescaling it.
	BaseSize int `toml:"base_size"`
	// CanvasColor is the hex RGB color of the square canvas thumbnails are
	// composited onto, e.g. "#2d2d2d".
	CanvasColor string `toml:"canvas_color"`
	// Workers caps the thumbnail worker pool. 0 means CPU-relative.
	Workers int `toml:"workers"`
	// UseVips enables the libvips decode-time-shrink fast path.
	UseVips bool `toml:"use_vips"`
}

// ViewportConfig controls viewport-driven scheduling.
type ViewportConfig struct {
	// OverscanRows is the number of extra rows loaded above and below the
	// visible range.
	OverscanRows int `toml:"overscan_rows"`
}

// Config is the full photocull configuration.
type Config struct {
	ExifTool ExifToolConfig `toml:"exiftool"`
	Cache    CacheConfig    `toml:"cache"`
	Thumbs   ThumbsConfig   `toml:"thumbs"`
	Viewport ViewportConfig `toml:"viewport"`
}

// Default returns the tuned default configuration.
func Default() Config {
	return Config{
		ExifTool: ExifToolConfig{
			Mode:           "auto",
			ChunkSize:      128,
			TimeoutSeconds: 120,
		},
		Cache: CacheConfig{
			MetadataCeiling: 20000,
		},
		Thumbs: ThumbsConfig{
			SizeSteps:   []int{128, 256, 512, 1024},
			BaseSize:    1024,
			CanvasColor: "#2d2d2d",
		},
		Viewport: ViewportConfig{
			OverscanRows: 1,
		},
	}
}

// Load reads the TOML file at path (if path is non-empty and the file
// exists) on top of the defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PHOTOCULL_EXIFTOOL"); v != "" {
		cfg.ExifTool.Path = v
	}
	if v := os.Getenv("PHOTOCULL_EXIF_MODE"); v != "" {
		cfg.ExifTool.Mode = v
	}
	if v := envInt("PHOTOCULL_EXIF_CHUNK"); v > 0 {
		cfg.ExifTool.ChunkSize = v
	}
	if v := envInt("PHOTOCULL_METADATA_CACHE"); v > 0 {
		cfg.Cache.MetadataCeiling = v
	}
	if v := envInt("THUMBNAIL_WORKERS"); v > 0 {
		cfg.Thumbs.Workers = v
	}
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Validate checks invariants that later stages rely on.
func (c Config) Validate() error {
	switch c.ExifTool.Mode {
	case "auto", "on", "off":
	default:
		return fmt.Errorf("invalid exiftool mode %q (want auto, on or off)", c.ExifTool.Mode)
	}
	if c.ExifTool.ChunkSize < 1 {
		return fmt.Errorf("exiftool chunk_size must be >= 1, got %d", c.ExifTool.ChunkSize)
	}
	if c.Cache.MetadataCeiling < 1 {
		return fmt.Errorf("metadata_ceiling must be >= 1, got %d", c.Cache.MetadataCeiling)
	}
	if len(c.Thumbs.SizeSteps) == 0 {
		return fmt.Errorf("thumbs size_steps must not be empty")
	}
	for _, s := range c.Thumbs.SizeSteps {
		if s < 16 {
			return fmt.Errorf("thumbnail size step %d too small", s)
		}
	}
	if c.Thumbs.BaseSize < maxInt(c.Thumbs.SizeSteps) {
		return fmt.Errorf("thumbs base_size %d smaller than largest size step", c.Thumbs.BaseSize)
	}
	if c.Viewport.OverscanRows < 0 {
		return fmt.Errorf("overscan_rows must be >= 0, got %d", c.Viewport.OverscanRows)
	}
	return nil
}

func maxInt(xs []int) int {
	m := 0
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}
