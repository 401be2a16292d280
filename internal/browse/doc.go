// Package browse is the UI-facing facade over scanning, metadata resolution
// and thumbnail delivery for one photo directory at a time.
package browse
