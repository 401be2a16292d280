package exiftool

import (
	"fmt"
	"strconv"
	"strings"

	"photocull/internal/sidecar"
)

// Record is a flat per-group tag map for one file, the shape exiftool emits
// with -j -G1. Every metadata source in this program converges on it.
type Record = map[string]any

// DefaultTags is the tag list requested for the file-list view. Title and
// focus status may live in the sidecar under lowercase or photoshop-group
// variants, so all spellings are requested.
var DefaultTags = []string{
	"-XMP-dc:Title", "-XMP-dc:title",
	"-XMP-xmp:Label",
	"-XMP-xmp:Rating",
	"-XMP-xmpDM:pick",
	"-XMP-xmp:Pick", "-XMP-xmp:PickLabel",
	"-XMP:Pick", "-XMP:PickLabel",
	"-XMP:City", "-XMP:State", "-XMP:Country",
	"-XMP-photoshop:City",
	"-XMP-photoshop:State",
	"-XMP-photoshop:Country",
	"-XMP-photoshop:Country-PrimaryLocationName",
	"-IPTC:ObjectName",
	"-IPTC:City",
	"-IPTC:Province-State",
	"-IPTC:Country-PrimaryLocationName",
	"-IFD0:XPTitle",
}

// richIndicators are the keys whose presence means a record already carries
// display metadata. Records with none of them get the sidecar merged in.
var richIndicators = []string{
	"XMP-dc:Title", "XMP-dc:title",
	"XMP-xmp:Label", "XMP-xmp:Rating",
	"XMP-xmpDM:pick", "XMP-xmpDM:Pick",
	"XMP-xmp:Pick", "XMP-xmp:PickLabel", "XMP:Pick", "XMP:PickLabel",
	"XMP:City", "XMP:State", "XMP:Country",
	"XMP-photoshop:City", "XMP-photoshop:State",
	"XMP-photoshop:Country",
	"XMP-photoshop:Country-PrimaryLocationName",
	"IPTC:ObjectName", "IPTC:City", "IFD0:XPTitle",
}

func hasValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	default:
		return true
	}
}

// HasRichMetadata reports whether rec carries any of the display-driving
// keys. Raw files often have EXIF but no XMP; those need the sidecar.
func HasRichMetadata(rec Record) bool {
	for _, k := range richIndicators {
		if hasValue(rec[k]) {
			return true
		}
	}
	return false
}

// ApplyAliases backfills the canonical keys the display reads from the
// variant spellings different writers use.
func ApplyAliases(rec Record) {
	if rec == nil {
		return
	}
	if hasValue(rec["XMP-photoshop:Country"]) && !hasValue(rec["XMP:Country"]) {
		rec["XMP:Country"] = rec["XMP-photoshop:Country"]
	}
	if hasValue(rec["XMP-photoshop:Country-PrimaryLocationName"]) && !hasValue(rec["XMP:Country"]) {
		rec["XMP:Country"] = rec["XMP-photoshop:Country-PrimaryLocationName"]
	}
	if hasValue(rec["XMP-dc:title"]) && !hasValue(rec["XMP-dc:Title"]) {
		rec["XMP-dc:Title"] = rec["XMP-dc:title"]
	}
}

// MergeSidecar fills record keys from sidecar tags without replacing
// anything already present, then reapplies the canonical aliases.
func MergeSidecar(rec Record, tags []sidecar.Tag) {
	for _, t := range tags {
		key := t.Key()
		if !hasValue(rec[key]) {
			rec[key] = t.Value
		}
	}
	ApplyAliases(rec)
}

// String returns the string form of a record value, "" for missing.
func String(rec Record, key string) string {
	v, ok := rec[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
