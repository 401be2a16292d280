// Package scanner enumerates image files for a directory selection,
// preferring the analysis database's recorded paths and falling back to a
// filesystem walk.
package scanner
