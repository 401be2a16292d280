// Package resolve merges the report database, the external extraction tool
// and XMP sidecars into per-file display records, behind a bounded FIFO
// memory cache.
package resolve
