package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.ExifTool.Mode != "auto" {
		t.Errorf("Mode = %q, want auto", cfg.ExifTool.Mode)
	}
	if cfg.Cache.MetadataCeiling != 20000 {
		t.Errorf("MetadataCeiling = %d, want 20000", cfg.Cache.MetadataCeiling)
	}
	if cfg.Thumbs.BaseSize != 1024 {
		t.Errorf("BaseSize = %d, want 1024", cfg.Thumbs.BaseSize)
	}
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photocull.toml")
	doc := `
[exiftool]
mode = "off"
chunk_size = 16

[cache]
metadata_ceiling = 500
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ExifTool.Mode != "off" || cfg.ExifTool.ChunkSize != 16 {
		t.Errorf("exiftool = %+v", cfg.ExifTool)
	}
	if cfg.Cache.MetadataCeiling != 500 {
		t.Errorf("MetadataCeiling = %d, want 500", cfg.Cache.MetadataCeiling)
	}
	// untouched sections keep their defaults
	if cfg.Thumbs.BaseSize != 1024 {
		t.Errorf("BaseSize = %d, want default 1024", cfg.Thumbs.BaseSize)
	}
}

func TestEnvOverridesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photocull.toml")
	if err := os.WriteFile(path, []byte("[exiftool]\nmode = \"on\"\nchunk_size = 16\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PHOTOCULL_EXIF_MODE", "off")
	t.Setenv("PHOTOCULL_EXIF_CHUNK", "64")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ExifTool.Mode != "off" {
		t.Errorf("Mode = %q, env should win over TOML", cfg.ExifTool.Mode)
	}
	if cfg.ExifTool.ChunkSize != 64 {
		t.Errorf("ChunkSize = %d, env should win over TOML", cfg.ExifTool.ChunkSize)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ExifTool.Mode != "auto" {
		t.Errorf("missing file should fall back to defaults, got %+v", cfg.ExifTool)
	}
}

func TestValidate(t *testing.T) {
	bad := Default()
	bad.ExifTool.Mode = "sometimes"
	if err := bad.Validate(); err == nil {
		t.Error("invalid mode should fail validation")
	}

	bad = Default()
	bad.Thumbs.BaseSize = 256 // smaller than the largest size step
	if err := bad.Validate(); err == nil {
		t.Error("base size below the largest step should fail validation")
	}

	bad = Default()
	bad.ExifTool.ChunkSize = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero chunk size should fail validation")
	}
}
