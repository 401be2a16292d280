package thumbs

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register webp decoding

	"photocull/internal/exiftool"
	"photocull/internal/logging"
)

// Decode guards. Camera bodies top out well under these; anything bigger is
// a stitched panorama or a corrupt header, and decoding it would blow the
// memory budget of a thumbnail worker.
const (
	maxImageDimension = 16384
	maxImagePixels    = 150_000_000
)

// rawExtensions are the vendor raw containers the stdlib decoders cannot
// read. Thumbnails for these come from the embedded JPEG preview.
var rawExtensions = map[string]bool{
	".cr2": true, ".cr3": true, ".crw": true,
	".nef": true, ".nrw": true,
	".arw": true, ".srf": true, ".sr2": true,
	".raf": true, ".orf": true,
	".rw2": true, ".raw": true,
	".dng": true,
	".pef": true, ".ptx": true,
	".x3f": true, ".rwl": true,
	".3fr": true, ".dcr": true, ".kdc": true, ".mef": true, ".mrw": true, ".rwz": true,
}

// IsRaw reports whether path is a vendor raw container.
func IsRaw(path string) bool {
	return rawExtensions[strings.ToLower(filepath.Ext(path))]
}

// decodeConstrained opens and decodes path with auto-orientation, rejecting
// images whose header reports dimensions beyond the decode guards.
func decodeConstrained(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(f)
	f.Close()
	if err == nil {
		if cfg.Width > maxImageDimension || cfg.Height > maxImageDimension {
			return nil, fmt.Errorf("image %s too large: %dx%d exceeds %d pixel dimension limit",
				filepath.Base(path), cfg.Width, cfg.Height, maxImageDimension)
		}
		if cfg.Width*cfg.Height > maxImagePixels {
			return nil, fmt.Errorf("image %s too large: %d pixels exceeds %d pixel limit",
				filepath.Base(path), cfg.Width*cfg.Height, maxImagePixels)
		}
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return imaging.Clone(img), nil
}

// decodeEmbedded decodes the embedded JPEG preview extracted from a raw
// container.
func decodeEmbedded(path string) (*image.NRGBA, error) {
	data := exiftool.EmbeddedThumbnail(path)
	if data == nil {
		return nil, fmt.Errorf("no embedded preview in %s", filepath.Base(path))
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedded preview of %s: %w", filepath.Base(path), err)
	}
	return imaging.Clone(img), nil
}

// fitDown shrinks img to fit within target x target. Images already inside
// the box are returned unchanged; thumbnails never upscale.
func fitDown(img *image.NRGBA, target int) *image.NRGBA {
	if img.Bounds().Dx() <= target && img.Bounds().Dy() <= target {
		return img
	}
	return imaging.Fit(img, target, target, imaging.Lanczos)
}

// composite centers img on a size x size canvas of the given color. Alpha is
// blended away so transparent sources render the way opaque ones do.
func composite(img *image.NRGBA, size int, canvas color.NRGBA) *image.NRGBA {
	out := imaging.New(size, size, canvas)
	return imaging.OverlayCenter(out, fitDown(img, size), 1.0)
}

// ParseHexColor parses "#rrggbb" into an opaque color.
func ParseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// loadSource decodes path at up to target x target, picking the cheapest
// viable decoder. The returned source labels what produced the pixels.
func loadSource(path string, target int, useVips bool) (*image.NRGBA, string, error) {
	if IsRaw(path) {
		img, err := decodeEmbedded(path)
		if err != nil {
			return nil, "", err
		}
		return fitDown(img, target), "embedded", nil
	}

	if useVips && IsVipsAvailable() {
		img, err := loadWithVips(path, target)
		if err == nil {
			return img, "vips", nil
		}
		logging.Debug("vips load failed for %s, falling back: %v", filepath.Base(path), err)
	}

	img, err := decodeConstrained(path)
	if err != nil {
		return nil, "", err
	}
	return fitDown(img, target), "decode", nil
}
