// Package logging provides leveled logging for photocull.
//
// The log level is read once from the DEBUG and LOG_LEVEL environment
// variables; it defaults to info. All output goes through the standard
// library logger so callers can redirect it as usual.
package logging
