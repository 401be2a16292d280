package exiftool

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"photocull/internal/config"
	"photocull/internal/logging"
)

// Tool is a located, health-checked exiftool executable.
type Tool struct {
	path    string
	timeout time.Duration
}

// Locate finds the exiftool executable according to cfg. In "off" mode it
// returns (nil, nil); in "auto" mode a missing tool also returns (nil, nil)
// and callers fall back to the in-process decoder; in "on" mode a missing
// tool is an error.
func Locate(ctx context.Context, cfg config.ExifToolConfig) (*Tool, error) {
	if cfg.Mode == "off" {
		logging.Debug("ExifTool disabled by configuration")
		return nil, nil
	}

	path := cfg.Path
	if path == "" {
		found, err := exec.LookPath("exiftool")
		if err != nil {
			if cfg.Mode == "on" {
				return nil, fmt.Errorf("exiftool not found on PATH: %w", err)
			}
			logging.Info("exiftool not found, using in-process metadata decoding")
			return nil, nil
		}
		path = found
	}

	tool := &Tool{path: path, timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	version, err := tool.version(ctx)
	if err != nil {
		if cfg.Mode == "on" {
			return nil, fmt.Errorf("exiftool health check failed: %w", err)
		}
		logging.Warn("exiftool at %s failed health check: %v", path, err)
		return nil, nil
	}

	logging.Info("Using exiftool %s at %s", version, path)
	return tool, nil
}

// version runs `exiftool -ver` as a health check.
func (t *Tool) version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, t.path, "-ver").Output()
	if err != nil {
		return "", err
	}
	version := strings.TrimSpace(string(out))
	if version == "" {
		return "", fmt.Errorf("empty version output")
	}
	return version, nil
}

// Path returns the executable path.
func (t *Tool) Path() string {
	return t.path
}
