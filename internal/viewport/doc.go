// Package viewport schedules thumbnail builds for the visible slice of a
// photo grid, deduplicating unchanged viewports and dropping results that
// outlive their directory generation.
package viewport
