package report

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
)

// Row is one photos-table record, keyed by the base filename without
// extension. Written by the offline analysis process; read-only here except
// for the species and current_path patches.
type Row struct {
	Filename    string
	Rating      int
	IsFlying    bool
	FocusStatus string
	Sharpness   sql.NullFloat64
	Aesthetic   sql.NullFloat64

	ISO          sql.NullInt64
	ShutterSpeed string
	Aperture     string
	FocalLength  sql.NullFloat64
	CameraModel  string
	LensModel    string
	GPSLatitude  sql.NullFloat64
	GPSLongitude sql.NullFloat64

	Title            string
	Caption          string
	City             string
	StateProvince    string
	Country          string
	DateTimeOriginal string

	Species      string
	SpeciesLatin string

	OriginalPath    string
	CurrentPath     string
	PreviewJPEGPath string

	// RawCurrentPath preserves current_path exactly as stored, before any
	// sidecar-suffix normalization. Fallback detection looks at this.
	RawCurrentPath string
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*Row, error) {
	var (
		r       Row
		flying  int
		focus   sql.NullString
		shutter sql.NullString
		apert   sql.NullString
		camera  sql.NullString
		lens    sql.NullString
		title   sql.NullString
		caption sql.NullString
		city    sql.NullString
		state   sql.NullString
		country sql.NullString
		dto     sql.NullString
		species sql.NullString
		latin   sql.NullString
		opath   sql.NullString
		cpath   sql.NullString
		ppath   sql.NullString
	)

	err := s.Scan(
		&r.Filename, &r.Rating, &flying, &focus, &r.Sharpness, &r.Aesthetic,
		&r.ISO, &shutter, &apert, &r.FocalLength, &camera, &lens,
		&r.GPSLatitude, &r.GPSLongitude, &title, &caption, &city, &state, &country,
		&dto, &species, &latin,
		&opath, &cpath, &ppath,
	)
	if err != nil {
		return nil, err
	}

	r.IsFlying = flying == 1
	r.FocusStatus = strings.TrimSpace(focus.String)
	r.ShutterSpeed = shutter.String
	r.Aperture = apert.String
	r.CameraModel = camera.String
	r.LensModel = lens.String
	r.Title = title.String
	r.Caption = caption.String
	r.City = city.String
	r.StateProvince = state.String
	r.Country = country.String
	r.DateTimeOriginal = dto.String
	r.Species = species.String
	r.SpeciesLatin = latin.String
	r.OriginalPath = strings.TrimSpace(opath.String)
	r.CurrentPath = strings.TrimSpace(cpath.String)
	r.PreviewJPEGPath = strings.TrimSpace(ppath.String)
	r.RawCurrentPath = r.CurrentPath

	r.normalizePaths()
	return &r, nil
}

// normalizePaths repairs rows whose current_path points at the sidecar
// instead of the image. The sidecar suffix is replaced by the original
// extension so path resolution lands on the actual file.
func (r *Row) normalizePaths() {
	if r.CurrentPath == "" || r.OriginalPath == "" {
		return
	}
	if !strings.EqualFold(filepath.Ext(r.CurrentPath), ".xmp") {
		return
	}
	extOrig := filepath.Ext(r.OriginalPath)
	if extOrig == "" {
		return
	}
	base := strings.TrimSuffix(r.CurrentPath, filepath.Ext(r.CurrentPath))
	r.CurrentPath = base + extOrig
}

// NeedsFallback reports whether the row is too sparse to drive the display
// on its own. Sparse rows carry only paths and ratings; the caller should
// run the file/sidecar pipeline to fill in the rest.
func (r *Row) NeedsFallback() bool {
	if r == nil {
		return true
	}
	// current_path pointing at a sidecar means display fields live there.
	if strings.EqualFold(filepath.Ext(r.RawCurrentPath), ".xmp") {
		return true
	}
	if r.Title != "" || r.Species != "" || r.Caption != "" {
		return false
	}
	if r.City != "" || r.StateProvince != "" || r.Country != "" {
		return false
	}
	if r.FocusStatus != "" {
		return false
	}
	if r.Sharpness.Valid || r.Aesthetic.Valid {
		return false
	}
	if r.Rating > 0 || r.IsFlying {
		return false
	}
	return true
}

// Tags projects the row into the flat per-group tag map the extraction tool
// would produce for the same file, so the resolver consumes report rows and
// tool output through one code path.
func (r *Row) Tags(sourceFile string) map[string]any {
	out := map[string]any{"SourceFile": sourceFile}
	if r == nil {
		return out
	}

	set := func(k string, v any) {
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				out[k] = t
			}
		default:
			out[k] = v
		}
	}

	// Title prefers the identified species over the stored title.
	title := r.Species
	if strings.TrimSpace(title) == "" {
		title = r.Title
	}
	set("XMP-dc:Title", title)
	set("IPTC:ObjectName", title)
	set("XMP-dc:Description", r.Caption)
	set("IFD0:ImageDescription", r.Caption)

	// The display repurposes the location tags: Country carries the focus
	// status, City the sharpness score and State the aesthetic score.
	country := r.FocusStatus
	if country == "" {
		country = r.Country
	}
	set("XMP:Country", country)
	set("XMP-photoshop:Country", country)

	if r.Sharpness.Valid {
		set("XMP:City", r.Sharpness.Float64)
		set("XMP-photoshop:City", r.Sharpness.Float64)
	} else {
		set("XMP:City", r.City)
		set("XMP-photoshop:City", r.City)
	}
	if r.Aesthetic.Valid {
		set("XMP:State", r.Aesthetic.Float64)
		set("XMP-photoshop:State", r.Aesthetic.Float64)
	} else {
		set("XMP:State", r.StateProvince)
		set("XMP-photoshop:State", r.StateProvince)
	}

	// Color label: Red = in-flight shot, Green = best focus.
	if r.IsFlying {
		set("XMP-xmp:Label", "Red")
	} else if strings.EqualFold(r.FocusStatus, "BEST") {
		set("XMP-xmp:Label", "Green")
	}

	rating := r.Rating
	if rating < 0 {
		rating = 0
	}
	if rating > 5 {
		rating = 5
	}
	out["XMP-xmp:Rating"] = rating

	set("IFD0:Model", r.CameraModel)
	set("EXIF:Model", r.CameraModel)
	set("ExifIFD:LensModel", r.LensModel)
	set("EXIF:LensModel", r.LensModel)

	if r.ISO.Valid {
		set("ExifIFD:ISO", r.ISO.Int64)
		set("EXIF:ISO", r.ISO.Int64)
	}
	set("Composite:ShutterSpeed", r.ShutterSpeed)
	set("ExifIFD:ExposureTime", r.ShutterSpeed)
	set("Composite:Aperture", r.Aperture)
	set("ExifIFD:FNumber", r.Aperture)
	if r.FocalLength.Valid {
		set("ExifIFD:FocalLength", r.FocalLength.Float64)
		set("EXIF:FocalLength", r.FocalLength.Float64)
	}
	set("ExifIFD:DateTimeOriginal", r.DateTimeOriginal)
	set("EXIF:DateTimeOriginal", r.DateTimeOriginal)

	if r.GPSLatitude.Valid {
		set("Composite:GPSLatitude", r.GPSLatitude.Float64)
		set("EXIF:GPSLatitude", r.GPSLatitude.Float64)
	}
	if r.GPSLongitude.Valid {
		set("Composite:GPSLongitude", r.GPSLongitude.Float64)
		set("EXIF:GPSLongitude", r.GPSLongitude.Float64)
	}

	return out
}

// heifLikeExts are container formats whose decode cost makes the analysis
// process stash a pre-rendered JPEG preview next to the report.
var heifLikeExts = map[string]bool{
	".hif":  true,
	".heic": true,
	".heif": true,
}

// PreviewPath returns the pre-rendered JPEG preview for a HEIF-like source
// when the row records one and it still exists on disk; otherwise it returns
// path unchanged.
func (r *Row) PreviewPath(path, root string) string {
	if r == nil || path == "" || root == "" {
		return path
	}
	if !heifLikeExts[strings.ToLower(filepath.Ext(path))] {
		return path
	}
	if r.PreviewJPEGPath == "" {
		return path
	}
	resolved := r.PreviewJPEGPath
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	resolved = filepath.Clean(resolved)
	if info, err := os.Stat(resolved); err == nil && !info.IsDir() {
		return resolved
	}
	return path
}

// FullPath resolves the row's current_path against the report root, then
// re-applies the original extension so sidecar-suffixed paths land on the
// image file. Returns "" when the row carries no usable path.
func (r *Row) FullPath(root, fallbackDir string) string {
	if r == nil || r.CurrentPath == "" {
		return ""
	}
	full := r.CurrentPath
	if !filepath.IsAbs(full) {
		base := root
		if base == "" {
			base = fallbackDir
		}
		full = filepath.Join(base, full)
	}
	full = filepath.Clean(full)

	if r.OriginalPath != "" {
		if extOrig := filepath.Ext(r.OriginalPath); extOrig != "" {
			full = strings.TrimSuffix(full, filepath.Ext(full)) + extOrig
		}
	}
	return full
}
