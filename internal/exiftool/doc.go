// Package exiftool reads and writes image metadata through the external
// exiftool executable, with an in-process EXIF decoder as fallback. Batch
// reads are chunked and argument lists always travel through a temporary
// argfile. All sources produce the same flat per-group Record shape.
package exiftool
