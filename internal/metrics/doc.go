// Package metrics defines the Prometheus collectors for the metadata and
// thumbnail pipeline. Collectors are registered at import time via promauto;
// exposing them over HTTP is the caller's concern.
package metrics
