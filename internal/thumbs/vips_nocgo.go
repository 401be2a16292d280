//go:build !cgo

package thumbs

import (
	"fmt"
	"image"
)

// InitVips reports that libvips is unavailable: govips is a cgo binding and
// this binary was built with CGO_ENABLED=0. Callers fall back to pure-Go
// decoding.
func InitVips() error {
	return fmt.Errorf("libvips support not compiled in (built without cgo)")
}

// ShutdownVips is a no-op without cgo.
func ShutdownVips() {}

// IsVipsAvailable returns false without cgo.
func IsVipsAvailable() bool {
	return false
}

func loadWithVips(path string, target int) (*image.NRGBA, error) {
	return nil, fmt.Errorf("libvips not available")
}
