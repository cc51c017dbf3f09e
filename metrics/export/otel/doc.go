// Package otel bridges engine counters to an OpenTelemetry meter via
// observable instruments. Counter values are read from snapshots inside a
// registered callback, so collection cost is paid only when the reader pulls.
package otel
