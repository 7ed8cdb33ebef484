// Package password implements account password hashing with argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and hash are unpadded standard base64. Padded segments are accepted on
// read. Parameter fields must print back exactly, so signs and leading zeros
// are rejected as [ErrMalformedHash].
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash on the next successful login.
//
// # Concurrency
//
// [Pool] caps the number of derivations in flight and makes Hash and Verify
// honor context cancellation.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// strength) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other eduAuth package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
