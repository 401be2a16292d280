package exiftool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"photocull/internal/config"
	"photocull/internal/logging"
	"photocull/internal/metrics"
	"photocull/internal/sidecar"
)

// Reader reads display metadata for batches of image files. The external
// tool is used when available, in chunks of at most chunkSize files per
// invocation; files the tool cannot cover fall back to the in-process
// decoder and the XMP sidecar. Batch size never changes the per-file result.
type Reader struct {
	tool  *Tool
	chunk int
}

// NewReader locates the tool per cfg and returns a reader. A nil tool
// (mode "off", or "auto" with no executable) is valid; everything then goes
// through the fallback path.
func NewReader(ctx context.Context, cfg config.ExifToolConfig) (*Reader, error) {
	tool, err := Locate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Reader{tool: tool, chunk: cfg.ChunkSize}, nil
}

// ToolAvailable reports whether the external tool passed its health check.
func (r *Reader) ToolAvailable() bool {
	return r.tool != nil
}

// Tool returns the located external tool, or nil when reads run on the
// fallback path only. Needed by callers that also write tags.
func (r *Reader) Tool() *Tool {
	return r.tool
}

// ReadBatch reads metadata for paths and returns records keyed by cleaned
// path. Every requested path gets a record, even if only a bare SourceFile.
// progress, when non-nil, is called after each chunk with (done, total).
func (r *Reader) ReadBatch(ctx context.Context, paths []string, tags []string, progress func(done, total int)) map[string]Record {
	result := make(map[string]Record, len(paths))
	if len(paths) == 0 {
		return result
	}
	if tags == nil {
		tags = DefaultTags
	}

	// dedupe while preserving order
	var unique []string
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		norm := filepath.Clean(p)
		if !seen[norm] {
			seen[norm] = true
			unique = append(unique, norm)
		}
	}

	total := len(unique)
	done := 0

	if r.tool != nil {
		for start := 0; start < total; start += r.chunk {
			if ctx.Err() != nil {
				return result
			}
			end := start + r.chunk
			if end > total {
				end = total
			}
			chunk := unique[start:end]
			recs, err := r.tool.readChunk(ctx, chunk, tags)
			if err != nil {
				logging.Warn("exiftool chunk failed (%d files): %v", len(chunk), err)
			}
			for norm, rec := range recs {
				result[norm] = rec
			}
			done = end
			if progress != nil {
				progress(done, total)
			}
		}
	}

	// files the tool produced nothing for: in-process EXIF plus sidecar
	for _, norm := range unique {
		if _, ok := result[norm]; ok {
			continue
		}
		rec := Record{"SourceFile": norm}
		if native := ReadNative(norm); native != nil {
			for k, v := range native {
				rec[k] = v
			}
		}
		MergeSidecar(rec, sidecar.Read(norm))
		result[norm] = rec
	}

	// records with no display metadata at all (raw files without embedded
	// XMP): overlay the sidecar, filling only missing keys
	for _, norm := range unique {
		rec := result[norm]
		if HasRichMetadata(rec) {
			continue
		}
		if tags := sidecar.Read(norm); len(tags) > 0 {
			MergeSidecar(rec, tags)
		}
	}

	if progress != nil && done < total {
		progress(total, total)
	}
	return result
}

// readChunk runs one tool invocation over a set of files. Arguments always
// go through a temporary argfile: batch paths routinely blow past command
// line limits and may carry non-ASCII names.
func (t *Tool) readChunk(ctx context.Context, paths []string, tags []string) (map[string]Record, error) {
	args := []string{"-j", "-G1", "-n", "-a", "-u", "-charset", "filename=UTF8", "-api", "largefilesupport=1"}
	args = append(args, tags...)
	args = append(args, paths...)

	argfile, err := writeArgFile(args)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(argfile); err != nil {
			logging.Warn("failed to remove argfile %s: %v", argfile, err)
		}
	}()

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, t.path, "-@", argfile)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	metrics.ExifToolInvocationDuration.Observe(time.Since(start).Seconds())

	if runErr != nil && stdout.Len() == 0 {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.ExifToolInvocationsTotal.WithLabelValues("timeout").Inc()
			return nil, fmt.Errorf("exiftool timed out after %s", t.timeout)
		}
		metrics.ExifToolInvocationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("exiftool failed: %v: %s", runErr, stderr.String())
	}

	// exiftool exits non-zero when any file in the batch errors but still
	// emits JSON for the rest; parse whatever came back.
	var records []Record
	if err := json.Unmarshal(stdout.Bytes(), &records); err != nil {
		metrics.ExifToolInvocationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to parse exiftool output: %w", err)
	}
	metrics.ExifToolInvocationsTotal.WithLabelValues("ok").Inc()

	wanted := make(map[string]bool, len(paths))
	for _, p := range paths {
		wanted[filepath.Clean(p)] = true
	}

	out := make(map[string]Record, len(records))
	for _, rec := range records {
		src := filepath.Clean(String(rec, "SourceFile"))
		if !wanted[src] {
			continue
		}
		ApplyAliases(rec)
		out[src] = rec
	}
	return out, nil
}

// writeArgFile writes one argument per line to a temp file and returns its
// path. The caller removes it.
func writeArgFile(args []string) (string, error) {
	f, err := os.CreateTemp("", "et_batch_*.args")
	if err != nil {
		return "", fmt.Errorf("failed to create argfile: %w", err)
	}
	var buf bytes.Buffer
	for _, a := range args {
		buf.WriteString(a)
		buf.WriteByte('\n')
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write argfile: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close argfile: %w", err)
	}
	return f.Name(), nil
}
