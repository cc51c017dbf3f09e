// Package internaldefs holds the shared counter definitions consumed by the
// metric exporters. It exists so the Prometheus and OTel exporters expose
// identical series without either importing the other.
package internaldefs
