// Package postgres is the reference CredentialStore over pgx/v5. It
// owns only the columns the engine touches; applications extend the
// users table with their own profile fields.
//
// The expected schema is in [Schema]; apply it with your migration tool
// of choice.
package postgres
