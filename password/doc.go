// Package password implements password hashing and verification with
// bcrypt defaults.
//
// # Output format
//
// Hashes use bcrypt's modular crypt format ($2a$...), which embeds the
// cost and salt, so cost changes apply to new hashes without migration.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy
// (length, composition) is enforced by the Engine. The algorithm is
// swappable: the Engine accepts any PasswordHasher implementation.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords at runtime.
package password
