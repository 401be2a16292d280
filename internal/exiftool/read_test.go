package exiftool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"photocull/internal/config"
)

// stubTool writes a shell script that mimics exiftool: it answers -ver,
// counts invocations into a log file, and emits one JSON record per path
// found in the argfile.
func stubTool(t *testing.T) (toolPath, invocationLog string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub tool requires a POSIX shell")
	}

	dir := t.TempDir()
	invocationLog = filepath.Join(dir, "calls.log")
	toolPath = filepath.Join(dir, "exiftool")

	script := `#!/bin/sh
if [ "$1" = "-ver" ]; then echo "12.70"; exit 0; fi
echo run >> "` + invocationLog + `"
argfile="$2"
printf '['
first=1
while IFS= read -r line; do
  case "$line" in
    /*)
      if [ $first -eq 0 ]; then printf ','; fi
      first=0
      printf '{"SourceFile":"%s","XMP-dc:title":"Stub","XMP-xmp:Rating":3}' "$line"
      ;;
  esac
done < "$argfile"
printf ']\n'
`
	if err := os.WriteFile(toolPath, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return toolPath, invocationLog
}

func invocations(t *testing.T, log string) int {
	t.Helper()
	data, err := os.ReadFile(log)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Count(string(data), "run")
}

func testPaths(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("IMG_%04d.ARW", i))
		if err := os.WriteFile(paths[i], []byte("raw"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

func newStubReader(t *testing.T, chunk int) (*Reader, string) {
	t.Helper()
	tool, log := stubTool(t)
	r, err := NewReader(context.Background(), config.ExifToolConfig{
		Path:      tool,
		Mode:      "on",
		ChunkSize: chunk,
	})
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if !r.ToolAvailable() {
		t.Fatal("stub tool did not pass the health check")
	}
	return r, log
}

func TestReadBatchChunkTransparency(t *testing.T) {
	paths := testPaths(t, 5)

	var results []map[string]Record
	chunks := []int{1, 2, 5}
	for _, chunk := range chunks {
		r, _ := newStubReader(t, chunk)
		results = append(results, r.ReadBatch(context.Background(), paths, nil, nil))
	}

	for i := 1; i < len(results); i++ {
		if len(results[i]) != len(results[0]) {
			t.Fatalf("chunk %d produced %d records, chunk %d produced %d",
				chunks[i], len(results[i]), chunks[0], len(results[0]))
		}
		for norm, rec := range results[0] {
			other := results[i][norm]
			if other == nil {
				t.Fatalf("chunk %d missing record for %s", chunks[i], norm)
			}
			if String(rec, "XMP-dc:Title") != String(other, "XMP-dc:Title") {
				t.Errorf("chunk %d: title differs for %s", chunks[i], norm)
			}
		}
	}
}

func TestReadBatchChunkCount(t *testing.T) {
	paths := testPaths(t, 5)
	r, log := newStubReader(t, 2)

	recs := r.ReadBatch(context.Background(), paths, nil, nil)
	if len(recs) != 5 {
		t.Fatalf("got %d records, want 5", len(recs))
	}
	// 5 files at chunk size 2: ceil(5/2) = 3 invocations
	if got := invocations(t, log); got != 3 {
		t.Errorf("invocations = %d, want 3", got)
	}
}

func TestReadBatchProgress(t *testing.T) {
	paths := testPaths(t, 5)
	r, _ := newStubReader(t, 2)

	var calls [][2]int
	r.ReadBatch(context.Background(), paths, nil, func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})

	if len(calls) == 0 {
		t.Fatal("progress callback never fired")
	}
	last := calls[len(calls)-1]
	if last[0] != 5 || last[1] != 5 {
		t.Errorf("final progress = %v, want (5, 5)", last)
	}
	for i := 1; i < len(calls); i++ {
		if calls[i][0] < calls[i-1][0] {
			t.Errorf("progress went backwards: %v", calls)
		}
	}
}

func TestReadBatchAliasesApplied(t *testing.T) {
	paths := testPaths(t, 1)
	r, _ := newStubReader(t, 10)

	recs := r.ReadBatch(context.Background(), paths, nil, nil)
	rec := recs[filepath.Clean(paths[0])]
	if rec == nil {
		t.Fatal("record missing")
	}
	// stub emits lowercase dc:title; the canonical key must be backfilled
	if got := String(rec, "XMP-dc:Title"); got != "Stub" {
		t.Errorf("XMP-dc:Title = %q, want Stub", got)
	}
}

func TestReadBatchDeduplicates(t *testing.T) {
	paths := testPaths(t, 2)
	doubled := append(append([]string{}, paths...), paths...)

	r, _ := newStubReader(t, 10)
	recs := r.ReadBatch(context.Background(), doubled, nil, nil)
	if len(recs) != 2 {
		t.Errorf("got %d records for duplicated input, want 2", len(recs))
	}
}

func TestReadBatchWithoutTool(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "IMG_0001.ARW")
	if err := os.WriteFile(img, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	xmp := `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
	 <rdf:Description rdf:about=""
	   xmlns:dc="http://purl.org/dc/elements/1.1/"
	   xmlns:xmp="http://ns.adobe.com/xap/1.0/"
	   xmp:Rating="2">
	  <dc:title><rdf:Alt><rdf:li>Heron</rdf:li></rdf:Alt></dc:title>
	 </rdf:Description>
	</rdf:RDF>`
	if err := os.WriteFile(filepath.Join(dir, "IMG_0001.xmp"), []byte(xmp), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(context.Background(), config.ExifToolConfig{Mode: "off", ChunkSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if r.ToolAvailable() {
		t.Fatal("tool should be unavailable in off mode")
	}

	recs := r.ReadBatch(context.Background(), []string{img}, nil, nil)
	rec := recs[filepath.Clean(img)]
	if rec == nil {
		t.Fatal("record missing without tool")
	}
	if got := String(rec, "XMP-dc:Title"); got != "Heron" {
		t.Errorf("sidecar title = %q, want Heron", got)
	}
	if got := String(rec, "XMP-xmp:Rating"); got != "2" {
		t.Errorf("sidecar rating = %q, want 2", got)
	}
}

func TestLocateModes(t *testing.T) {
	ctx := context.Background()

	tool, err := Locate(ctx, config.ExifToolConfig{Mode: "off"})
	if err != nil || tool != nil {
		t.Errorf("off mode: tool=%v err=%v, want nil/nil", tool, err)
	}

	missing := filepath.Join(t.TempDir(), "nope")
	tool, err = Locate(ctx, config.ExifToolConfig{Mode: "auto", Path: missing})
	if err != nil {
		t.Errorf("auto mode with broken tool should not error, got %v", err)
	}
	if tool != nil {
		t.Error("auto mode with broken tool should return nil tool")
	}

	if _, err = Locate(ctx, config.ExifToolConfig{Mode: "on", Path: missing}); err == nil {
		t.Error("on mode with broken tool should error")
	}
}
