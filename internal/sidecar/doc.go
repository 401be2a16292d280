// Package sidecar finds and parses XMP sidecar files. Sidecars share the
// image's base name with a .xmp extension; images produced by raw-processing
// exports may keep their sidecar one directory up under the original name.
package sidecar
