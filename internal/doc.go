// Package internal provides shared primitives for the goCred engine: CSPRNG
// secret generation, token hashing, and backup code helpers.
//
// # What this package must NOT do
//
//   - Perform any I/O beyond entropy consumption.
//   - Be imported outside the goCred module.
package internal
