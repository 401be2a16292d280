package resolve

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"photocull/internal/exiftool"
	"photocull/internal/logging"
	"photocull/internal/metrics"
	"photocull/internal/report"
)

// DisplayRecord holds the normalized per-file fields the list and grid views
// render. Never persisted; cached in memory only.
type DisplayRecord struct {
	Title  string
	Color  string // color label: Red, Green, ...
	Rating int    // 0..5
	Pick   int    // 1 = picked, 0 = none, -1 = rejected
	// Sharpness and Aesthetic are zero-padded numeric strings so
	// lexicographic column sort matches numeric order.
	Sharpness string
	Aesthetic string
	Focus     string // bucketed focus quality: best, in focus, drifted, missed
}

// Empty reports whether no source contributed anything.
func (d DisplayRecord) Empty() bool {
	return d.Title == "" && d.Color == "" && d.Rating == 0 && d.Pick == 0 &&
		d.Sharpness == "" && d.Aesthetic == "" && d.Focus == ""
}

// Resolver turns file paths into DisplayRecords, pulling from the memory
// cache, then the report index, then the file/sidecar pipeline. It never
// fails: a path with no data from any source yields an empty record.
type Resolver struct {
	reader *exiftool.Reader
	cache  *recordCache
}

// New builds a resolver over the given batch reader. cacheCeiling bounds the
// metadata memory cache entry count.
func New(reader *exiftool.Reader, cacheCeiling int) *Resolver {
	return &Resolver{
		reader: reader,
		cache:  newRecordCache(cacheCeiling),
	}
}

// ClearCache drops every cached record.
func (r *Resolver) ClearCache() {
	r.cache.clear()
}

// CacheLen returns the number of cached records.
func (r *Resolver) CacheLen() int {
	return r.cache.len()
}

// Resolve produces a DisplayRecord for every path. index may be nil (no
// report database). progress, when non-nil, is called as paths complete.
//
// Order of precedence per path: memory cache; report row (when rich enough
// on its own); the batch file pipeline (tool or native decode, sidecar
// overlay) for the rest. Sparse report rows still contribute as the base
// record under the pipeline result.
func (r *Resolver) Resolve(ctx context.Context, paths []string, index *report.Index, progress func(done, total int)) map[string]DisplayRecord {
	result := make(map[string]DisplayRecord, len(paths))
	if len(paths) == 0 {
		return result
	}

	total := len(paths)
	done := 0
	step := func(n int) {
		done += n
		if progress != nil {
			if done > total {
				done = total
			}
			progress(done, total)
		}
	}

	var uncached []string
	baseRecs := make(map[string]exiftool.Record)

	for _, p := range paths {
		norm := filepath.Clean(p)
		if _, ok := result[norm]; ok {
			step(1)
			continue
		}

		if rec, ok := r.cache.get(norm); ok {
			metrics.ResolveRequestsTotal.WithLabelValues("cache").Inc()
			result[norm] = rec
			step(1)
			continue
		}

		if index != nil {
			if row := index.Lookup(norm); row != nil {
				flat := row.Tags(norm)
				if !row.NeedsFallback() {
					metrics.ResolveRequestsTotal.WithLabelValues("report").Inc()
					rec := parseRecord(flat)
					r.cache.put(norm, rec)
					result[norm] = rec
					step(1)
					continue
				}
				// sparse row: keep what it has and let the file
				// pipeline fill the gaps
				baseRecs[norm] = flat
			}
		}
		uncached = append(uncached, norm)
	}

	if len(uncached) == 0 {
		return result
	}
	if ctx.Err() != nil {
		r.fillEmpty(result, uncached)
		return result
	}

	source := "native"
	if r.reader != nil && r.reader.ToolAvailable() {
		source = "exiftool"
	}

	var fileRecs map[string]exiftool.Record
	if r.reader != nil {
		fileRecs = r.reader.ReadBatch(ctx, uncached, nil, func(batchDone, batchTotal int) {
			if progress != nil {
				progress(min(total, done+batchDone), total)
			}
		})
	}

	for _, norm := range uncached {
		rec := fileRecs[norm]
		if rec == nil {
			rec = exiftool.Record{"SourceFile": norm}
		}
		if base, ok := baseRecs[norm]; ok {
			// file values win; base fills what the file lacks
			for k, v := range base {
				if _, present := rec[k]; !present {
					rec[k] = v
				}
			}
			exiftool.ApplyAliases(rec)
		}

		display := parseRecord(rec)
		if display.Empty() {
			metrics.ResolveRequestsTotal.WithLabelValues("empty").Inc()
		} else {
			metrics.ResolveRequestsTotal.WithLabelValues(source).Inc()
		}
		r.cache.put(norm, display)
		result[norm] = display
	}

	if progress != nil {
		progress(total, total)
	}
	logging.Debug("Resolved %d paths (%d from file pipeline)", total, len(uncached))
	return result
}

func (r *Resolver) fillEmpty(result map[string]DisplayRecord, paths []string) {
	for _, norm := range paths {
		if _, ok := result[norm]; !ok {
			result[norm] = DisplayRecord{}
		}
	}
}

// focusBuckets maps raw focus-quality strings to the display buckets.
var focusBuckets = map[string]string{
	"BEST":     "best",
	"IN FOCUS": "in focus",
	"OK":       "in focus",
	"GOOD":     "in focus",
	"OFF":      "drifted",
	"MISS":     "missed",
	"OUT":      "missed",
	"BAD":      "missed",
}

// focusDisplay buckets a raw focus value; already-bucketed or unknown values
// pass through unchanged.
func focusDisplay(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if b, ok := focusBuckets[strings.ToUpper(s)]; ok {
		return b
	}
	return s
}

// formatOptionalNumber renders a numeric string zero-padded per format;
// non-numeric input passes through trimmed.
func formatOptionalNumber(raw, format string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return fmt.Sprintf(format, f)
}

// firstValue returns the first non-empty string among the record keys.
func firstValue(rec exiftool.Record, keys ...string) string {
	for _, k := range keys {
		if v := exiftool.String(rec, k); v != "" {
			return v
		}
	}
	return ""
}

// parseRecord derives the display fields from a flat tag record.
func parseRecord(rec exiftool.Record) DisplayRecord {
	title := firstValue(rec,
		"XMP-dc:Title", "XMP-dc:title", "IFD0:XPTitle", "IPTC:ObjectName")
	color := exiftool.String(rec, "XMP-xmp:Label")

	ratingNum := 0
	if s := exiftool.String(rec, "XMP-xmp:Rating"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			ratingNum = int(f)
		}
	}
	rating := ratingNum
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}

	pick := parsePick(firstValue(rec,
		"XMP-xmpDM:pick", "XMP-xmpDM:Pick",
		"XMP-xmp:Pick", "XMP-xmp:PickLabel",
		"XMP-lr:Pick", "XMP-lr:PickLabel",
		"XMP:Pick", "XMP:PickLabel"))
	// a negative rating is the reject convention some writers use
	if pick == 0 && ratingNum < 0 {
		pick = -1
	}

	city := firstValue(rec, "XMP:City", "XMP-photoshop:City", "IPTC:City")
	state := firstValue(rec, "XMP:State", "XMP-photoshop:State", "IPTC:Province-State")
	country := firstValue(rec,
		"XMP:Country", "XMP-photoshop:Country",
		"XMP-photoshop:Country-PrimaryLocationName",
		"IPTC:Country-PrimaryLocationName")

	return DisplayRecord{
		Title:     title,
		Color:     color,
		Rating:    rating,
		Pick:      pick,
		Sharpness: formatOptionalNumber(city, "%06.2f"),
		Aesthetic: formatOptionalNumber(state, "%05.2f"),
		Focus:     focusDisplay(country),
	}
}

// parsePick normalizes the pick/reject flag spellings: booleans, signed
// integers and the "reject" keyword.
func parsePick(raw string) int {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "true", "1", "yes":
		return 1
	case "false", "0", "no", "":
		return 0
	case "-1", "reject":
		return -1
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	n := int(f)
	if n > 1 {
		n = 1
	}
	if n < -1 {
		n = -1
	}
	return n
}
