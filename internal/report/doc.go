// Package report reads the per-directory analysis database produced by the
// offline culling pass. Rows are keyed by filename stem and projected into
// the same flat tag maps the external extraction tool emits, so downstream
// consumers never care where a value came from.
package report
