package sidecar

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleXMP = `<?xml version="1.0" encoding="UTF-8"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about=""
    xmlns:dc="http://purl.org/dc/elements/1.1/"
    xmlns:xmp="http://ns.adobe.com/xap/1.0/"
    xmlns:photoshop="http://ns.adobe.com/photoshop/1.0/"
    xmlns:exif="http://ns.adobe.com/exif/1.0/"
    xmp:Rating="3"
    exif:FNumber="28/10"
    photoshop:Country="BEST">
   <dc:title>
    <rdf:Alt>
     <rdf:li xml:lang="x-default">Osprey</rdf:li>
    </rdf:Alt>
   </dc:title>
   <dc:subject>
    <rdf:Bag>
     <rdf:li>bird</rdf:li>
     <rdf:li>raptor</rdf:li>
    </rdf:Bag>
   </dc:subject>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>`

func tagValue(tags []Tag, key string) string {
	for _, t := range tags {
		if t.Key() == key {
			return t.Value
		}
	}
	return ""
}

func TestParse(t *testing.T) {
	tags, err := Parse(strings.NewReader(sampleXMP))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := tagValue(tags, "XMP-dc:title"); got != "Osprey" {
		t.Errorf("dc:title = %q, want Osprey", got)
	}
	if got := tagValue(tags, "XMP-dc:subject"); got != "bird; raptor" {
		t.Errorf("dc:subject = %q, want joined bag items", got)
	}
	if got := tagValue(tags, "XMP-xmp:Rating"); got != "3" {
		t.Errorf("xmp:Rating = %q, want 3 (attribute form)", got)
	}
	if got := tagValue(tags, "XMP-photoshop:Country"); got != "BEST" {
		t.Errorf("photoshop:Country = %q, want BEST", got)
	}
	if got := tagValue(tags, "XMP-exif:FNumber"); got != "28/10" {
		t.Errorf("exif:FNumber = %q, want 28/10", got)
	}
}

func TestParseNestedDescription(t *testing.T) {
	doc := `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
	 <rdf:Description rdf:about="" xmlns:crs="http://ns.adobe.com/camera-raw-settings/1.0/">
	  <crs:Gradient>
	   <rdf:Description crs:What="Correction" crs:Amount="1.0"/>
	  </crs:Gradient>
	 </rdf:Description>
	</rdf:RDF>`

	tags, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got := tagValue(tags, "XMP-crs:Gradient")
	if !strings.Contains(got, "What=Correction") || !strings.Contains(got, "Amount=1.0") {
		t.Errorf("nested description flatten = %q", got)
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := Parse(strings.NewReader("<not-xml")); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestNsToPrefix(t *testing.T) {
	tests := []struct {
		ns   string
		want string
	}{
		{"http://purl.org/dc/elements/1.1/", "dc"},
		{"http://ns.adobe.com/xap/1.0", "xmp"},
		{"http://example.com/ns/custom/", "custom"},
		{"http://example.com/ns/custom#", "custom"},
		// segments longer than 30 chars are skipped
		{"http://example.com/" + strings.Repeat("x", 31) + "/short", "short"},
	}
	for _, tt := range tests {
		if got := nsToPrefix(tt.ns); got != tt.want {
			t.Errorf("nsToPrefix(%q) = %q, want %q", tt.ns, got, tt.want)
		}
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "IMG_0001.ARW")
	if err := os.WriteFile(img, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := Find(img); got != "" {
		t.Errorf("Find without sidecar = %q, want empty", got)
	}

	// case-insensitive match on the extension
	xmp := filepath.Join(dir, "IMG_0001.XMP")
	if err := os.WriteFile(xmp, []byte(sampleXMP), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := Find(img); got != xmp {
		t.Errorf("Find = %q, want %q", got, xmp)
	}
}

func TestFindDerivedExport(t *testing.T) {
	dir := t.TempDir()
	exportDir := filepath.Join(dir, "DxO")
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		t.Fatal(err)
	}

	// sidecar sits next to the original raw, one level above the export
	xmp := filepath.Join(dir, "IMG_0002.xmp")
	if err := os.WriteFile(xmp, []byte(sampleXMP), 0o644); err != nil {
		t.Fatal(err)
	}

	derived := filepath.Join(exportDir, "IMG_0002-DxO_DeepPRIME.jpg")
	if err := os.WriteFile(derived, []byte("jpg"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := Find(derived); got != xmp {
		t.Errorf("Find(derived export) = %q, want %q", got, xmp)
	}
}

func TestCandidateStems(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/p/IMG_0001.ARW", []string{"IMG_0001"}},
		{"/p/IMG_0001-DxO_DeepPRIME.jpg", []string{"IMG_0001-DxO_DeepPRIME", "IMG_0001"}},
		{"/p/IMG_0002_DxO_Pure.jpg", []string{"IMG_0002_DxO_Pure", "IMG_0002"}},
	}
	for _, tt := range tests {
		got := candidateStems(tt.path)
		if len(got) != len(tt.want) {
			t.Errorf("candidateStems(%q) = %v, want %v", tt.path, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("candidateStems(%q) = %v, want %v", tt.path, got, tt.want)
				break
			}
		}
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "IMG_0003.NEF")
	if err := os.WriteFile(img, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "IMG_0003.xmp"), []byte(sampleXMP), 0o644); err != nil {
		t.Fatal(err)
	}

	tags := Read(img)
	if len(tags) == 0 {
		t.Fatal("Read returned no tags")
	}

	rec := FlatMap(img, tags)
	if rec["SourceFile"] != img {
		t.Errorf("SourceFile = %v", rec["SourceFile"])
	}
	if rec["XMP-dc:title"] != "Osprey" {
		t.Errorf("flat title = %v", rec["XMP-dc:title"])
	}
}

func TestReadNoSidecar(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "IMG_0004.CR3")
	if err := os.WriteFile(img, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	if tags := Read(img); len(tags) != 0 {
		t.Errorf("Read without sidecar = %v, want empty", tags)
	}
}
