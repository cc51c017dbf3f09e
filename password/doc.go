// Package password implements credential hashing and verification with
// Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The [Hasher] supports transparent parameter upgrades: if a stored hash was
// produced with weaker parameters, [Hasher.NeedsRehash] returns true so the
// caller can re-hash on the next successful verification.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. It hashes whatever
// credential the caller supplies, passwords as well as one-time backup codes.
//
// # What this package must NOT do
//
//   - Store or retrieve credentials. Callers supply plaintext and receive hashes.
//   - Import the root package.
//   - Log plaintext credentials or hash parameters at runtime.
package password
