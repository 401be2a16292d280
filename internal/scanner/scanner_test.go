package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"photocull/internal/report"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIsImage(t *testing.T) {
	yes := []string{"a.jpg", "b.JPEG", "c.ARW", "d.cr3", "e.heic", "f.dng"}
	no := []string{"a.txt", "b.xmp", "c", "report.db"}
	for _, n := range yes {
		if !IsImage(n) {
			t.Errorf("IsImage(%q) = false, want true", n)
		}
	}
	for _, n := range no {
		if IsImage(n) {
			t.Errorf("IsImage(%q) = true, want false", n)
		}
	}
}

func TestPlainWalkNonRecursive(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.jpg"))
	touch(t, filepath.Join(dir, "A.jpg"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "sub", "c.jpg"))

	files, err := Scan(context.Background(), dir, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2 (no recursion): %v", len(files), files)
	}
	// case-insensitive name order
	if filepath.Base(files[0]) != "A.jpg" || filepath.Base(files[1]) != "b.jpg" {
		t.Errorf("order = %v", files)
	}
}

func TestPlainWalkRecursiveSkipsHidden(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.jpg"))
	touch(t, filepath.Join(dir, "sub", "b.jpg"))
	touch(t, filepath.Join(dir, ".photocull", "previews", "c.jpg"))
	touch(t, filepath.Join(dir, ".hidden", "d.jpg"))

	files, err := Scan(context.Background(), dir, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %v", len(files), files)
	}
	for _, f := range files {
		if filepath.Base(filepath.Dir(f))[0] == '.' {
			t.Errorf("hidden directory leaked into scan: %s", f)
		}
	}
}

func TestScanWithReport(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := report.Create(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	rows := []*report.Row{
		{Filename: "IMG_0001", CurrentPath: "IMG_0001.ARW"},
		{Filename: "IMG_0002", CurrentPath: "IMG_0002.ARW"},
		// recorded at a location that no longer exists
		{Filename: "IMG_0003", CurrentPath: filepath.Join("old", "IMG_0003.ARW")},
	}
	for _, r := range rows {
		if err := db.InsertRow(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	touch(t, filepath.Join(dir, "IMG_0001.ARW"))
	touch(t, filepath.Join(dir, "IMG_0002.ARW"))
	// the file moved; the row's recorded path is stale
	touch(t, filepath.Join(dir, "picked", "IMG_0003.ARW"))
	// on disk but never analyzed: stays out of the report-driven list
	touch(t, filepath.Join(dir, "IMG_9999.ARW"))

	ix, err := report.LoadIndex(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	files, err := Scan(ctx, dir, false, ix)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("got %d files, want 3: %v", len(files), files)
	}

	found := make(map[string]string)
	for _, f := range files {
		base := filepath.Base(f)
		found[base[:len(base)-len(filepath.Ext(base))]] = f
	}
	if _, ok := found["IMG_9999"]; ok {
		t.Error("unanalyzed file should not appear in report-driven list")
	}
	if got := found["IMG_0003"]; filepath.Dir(got) != filepath.Join(dir, "picked") {
		t.Errorf("stale row not repointed at the moved file: %q", got)
	}
}

func TestScanSyncsMovedCurrentPath(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := report.Create(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	err = db.InsertRow(ctx, &report.Row{
		Filename:    "IMG_0007",
		CurrentPath: filepath.Join("old", "IMG_0007.ARW"),
	})
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	// the file moved out from under the recorded path
	touch(t, filepath.Join(dir, "picked", "IMG_0007.ARW"))

	ix, err := report.LoadIndex(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Scan(ctx, dir, false, ix); err != nil {
		t.Fatal(err)
	}

	wantRel := filepath.Join("picked", "IMG_0007.ARW")
	if got := ix.Get("IMG_0007").CurrentPath; got != wantRel {
		t.Errorf("in-memory current_path = %q, want %q", got, wantRel)
	}
	ix.Close()

	// the patch must be durable: a fresh load sees the new location
	fresh, err := report.LoadIndex(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	defer fresh.Close()
	if got := fresh.Get("IMG_0007").CurrentPath; got != wantRel {
		t.Errorf("persisted current_path = %q, want %q", got, wantRel)
	}
	if got := fresh.Get("IMG_0007").FullPath(dir, ""); got != filepath.Join(dir, wantRel) {
		t.Errorf("FullPath after sync = %q", got)
	}
}

func TestScanWithReportSubtree(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := report.Create(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	rows := []*report.Row{
		{Filename: "IMG_0001", CurrentPath: "IMG_0001.ARW"},
		{Filename: "IMG_0002", CurrentPath: filepath.Join("day2", "IMG_0002.ARW")},
	}
	for _, r := range rows {
		if err := db.InsertRow(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	touch(t, filepath.Join(dir, "IMG_0001.ARW"))
	touch(t, filepath.Join(dir, "day2", "IMG_0002.ARW"))

	ix, err := report.LoadIndex(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	files, err := Scan(ctx, filepath.Join(dir, "day2"), false, ix)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("got %d files for subtree, want 1: %v", len(files), files)
	}
	if filepath.Base(files[0]) != "IMG_0002.ARW" {
		t.Errorf("subtree scan = %v", files)
	}
}
