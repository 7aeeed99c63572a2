// Package seal encrypts setting values at rest.
//
// A Sealer binds every ciphertext to the name it is stored under, using
// the name as additional authenticated data. Moving a sealed value to a
// different key makes Open fail.
//
// Sealed layout:
//
//	[nonce][ciphertext+tag]
//
// The AEAD key is derived from the configured master key with HKDF-SHA256,
// or from a passphrase with Argon2id.
package seal
