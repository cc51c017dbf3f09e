// Package prometheus exposes engine counters in Prometheus text exposition
// format, either as a rendered string or as an http.Handler suitable for a
// /metrics route.
package prometheus
