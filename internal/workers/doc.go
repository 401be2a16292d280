// Package workers calculates worker pool sizes relative to the available
// CPU count, with an environment override for manual tuning.
package workers
