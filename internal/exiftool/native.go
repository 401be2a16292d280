package exiftool

import (
	"fmt"
	"os"

	"github.com/rwcarlsen/goexif/exif"

	"photocull/internal/logging"
	"photocull/internal/metrics"
)

// ReadNative decodes EXIF from the file in-process, for when the external
// tool is unavailable. It covers JPEG/TIFF-style EXIF blocks only; raw
// containers and XMP-only metadata come back nil. Keys follow the same
// per-group naming as the tool output.
func ReadNative(path string) Record {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		logging.Debug("native EXIF decode failed for %s: %v", path, err)
		return nil
	}
	metrics.ExifNativeFallbacksTotal.Inc()

	rec := Record{}

	if tag, err := x.Get(exif.Model); err == nil {
		if v, err := tag.StringVal(); err == nil && v != "" {
			rec["IFD0:Model"] = v
			rec["EXIF:Model"] = v
		}
	}
	if tag, err := x.Get(exif.LensModel); err == nil {
		if v, err := tag.StringVal(); err == nil && v != "" {
			rec["ExifIFD:LensModel"] = v
			rec["EXIF:LensModel"] = v
		}
	}
	if tag, err := x.Get(exif.ISOSpeedRatings); err == nil {
		if v, err := tag.Int(0); err == nil {
			rec["ExifIFD:ISO"] = float64(v)
			rec["EXIF:ISO"] = float64(v)
		}
	}
	if tag, err := x.Get(exif.FNumber); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			v := float64(num) / float64(den)
			rec["ExifIFD:FNumber"] = v
			rec["Composite:Aperture"] = v
		}
	}
	if tag, err := x.Get(exif.ExposureTime); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			rec["ExifIFD:ExposureTime"] = fmt.Sprintf("%d/%d", num, den)
			rec["Composite:ShutterSpeed"] = fmt.Sprintf("%d/%d", num, den)
		}
	}
	if tag, err := x.Get(exif.FocalLength); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			v := float64(num) / float64(den)
			rec["ExifIFD:FocalLength"] = v
			rec["EXIF:FocalLength"] = v
		}
	}
	if dt, err := x.DateTime(); err == nil {
		s := dt.Format("2006:01:02 15:04:05")
		rec["ExifIFD:DateTimeOriginal"] = s
		rec["EXIF:DateTimeOriginal"] = s
	}
	if lat, long, err := x.LatLong(); err == nil {
		rec["Composite:GPSLatitude"] = lat
		rec["Composite:GPSLongitude"] = long
	}
	if desc, err := x.Get(exif.ImageDescription); err == nil {
		if v, err := desc.StringVal(); err == nil && v != "" {
			rec["IFD0:ImageDescription"] = v
		}
	}

	if len(rec) == 0 {
		return nil
	}
	return rec
}

// EmbeddedThumbnail returns the JPEG thumbnail stored in the file's EXIF
// block, or nil when there is none. Raw files usually carry one large
// enough for grid display.
func EmbeddedThumbnail(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil
	}
	data, err := x.JpegThumbnail()
	if err != nil || len(data) == 0 {
		return nil
	}
	return data
}
