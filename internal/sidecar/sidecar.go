package sidecar

import (
	"os"
	"path/filepath"
	"strings"
)

// Tag is one parsed sidecar value. Group follows the extraction tool's
// per-group naming ("XMP-dc", "XMP-photoshop", ...), Name is the XML local
// name and Value the flattened text.
type Tag struct {
	Group string
	Name  string
	Value string
}

// Key returns the flat "Group:Name" form used in metadata records.
func (t Tag) Key() string {
	return t.Group + ":" + t.Name
}

// derivedExportDirs are subfolder names produced by raw-processing exports.
// An image inside one of these may have its sidecar one level up, next to
// the original raw file.
var derivedExportDirs = map[string]bool{
	"dxo":          true,
	"dxo pureraw":  true,
	"pureraw":      true,
	"exports":      true,
	"export":       true,
}

// derivedStemMarkers are infixes appended by raw-processing tools. A stem
// carrying one is split there to recover the original stem.
var derivedStemMarkers = []string{"-DxO_", "_DxO_"}

var sidecarSuffixes = []string{".xmp", ".XMP", ".Xmp"}

// candidateStems lists the stems a sidecar might carry for the image:
// the image's own stem first, then the pre-export stem recovered from any
// reprocessing marker.
func candidateStems(path string) []string {
	base := filepath.Base(path)
	stem := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		return nil
	}
	stems := []string{stem}
	for _, marker := range derivedStemMarkers {
		pos := strings.Index(stem, marker)
		if pos <= 0 {
			continue
		}
		cut := strings.TrimRight(stem[:pos], " _-")
		if cut != "" && !contains(stems, cut) {
			stems = append(stems, cut)
		}
	}
	return stems
}

// candidateDirs lists the directories to search: the image's own directory,
// plus its parent when the image looks like a derived export.
func candidateDirs(path string, stems []string) []string {
	dir := filepath.Dir(path)
	dirs := []string{dir}

	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stemChanged := false
	for _, s := range stems {
		if s != stem {
			stemChanged = true
			break
		}
	}

	dirName := strings.ToLower(strings.TrimSpace(filepath.Base(dir)))
	if stemChanged || derivedExportDirs[dirName] {
		parent := filepath.Dir(dir)
		if parent != dir && !contains(dirs, parent) {
			dirs = append(dirs, parent)
		}
	}
	return dirs
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// findByStemInDir looks for <stem>.xmp in dir, trying common suffix casings
// first and falling back to a case-insensitive directory scan.
func findByStemInDir(dir, stem string) string {
	if stem == "" {
		return ""
	}
	for _, suffix := range sidecarSuffixes {
		candidate := filepath.Join(dir, stem+suffix)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	target := strings.ToLower(stem) + ".xmp"
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(entry.Name()) == target {
			return filepath.Join(dir, entry.Name())
		}
	}
	return ""
}

// Find locates the XMP sidecar for an image, case-insensitively. Derived
// exports (renamed stems or known export subfolders) also check the original
// stem one directory up. Returns "" when no sidecar exists.
func Find(imagePath string) string {
	stems := candidateStems(imagePath)
	if len(stems) == 0 {
		return ""
	}
	for _, dir := range candidateDirs(imagePath, stems) {
		for _, stem := range stems {
			if found := findByStemInDir(dir, stem); found != "" {
				return found
			}
		}
	}
	return ""
}

// Read finds and parses the sidecar next to imagePath. A missing sidecar or
// a parse failure yields an empty slice, never an error; sidecars are an
// opportunistic source.
func Read(imagePath string) []Tag {
	xmpPath := Find(imagePath)
	if xmpPath == "" {
		return nil
	}
	f, err := os.Open(xmpPath)
	if err != nil {
		return nil
	}
	defer f.Close()
	tags, err := Parse(f)
	if err != nil {
		return nil
	}
	return tags
}

// FlatMap converts parsed tags into the flat per-group record form,
// matching what the extraction tool emits for the same file.
func FlatMap(sourceFile string, tags []Tag) map[string]any {
	rec := map[string]any{"SourceFile": sourceFile}
	for _, t := range tags {
		rec[t.Key()] = t.Value
	}
	return rec
}
