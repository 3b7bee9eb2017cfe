// Package keys holds signing key material and the capability interfaces the
// signer consumes.
//
// Key material is passed around as a Provider. The signer asks the provider
// for a key once per signing operation and drops it afterwards; nothing in
// this module caches a key in package state.
//
// Stable:
//   - Key, Provider and the Ed25519 / Dilithium3 implementations.
//   - Role-seed derivation (DeriveRoleSeed).
//
// Experimental:
//   - KeyStore, the filesystem-backed seed store used by the CLI.
package keys
