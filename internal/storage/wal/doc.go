// Package wal implements the append-only log behind the log store.
//
// Every Save and Delete is appended as one entry. Replaying the log in
// order rebuilds the live key set: a later entry for a key shadows every
// earlier one, a delete entry hides the key.
//
// Segment layout:
//
//	wal-<segment-id>.log
//	[magic:8 "SETTWAL\x01"]
//	[Entry]*
//	[checksum:32 SHA-256 of all bytes above] (absent on the active segment)
//
// Entry wire format:
//
//	[Length:4][CRC32:4][Op:1][Payload:Length-5]
//
// Length counts CRC32, Op and Payload (big-endian uint32). CRC32 (IEEE)
// covers Op and Payload. Payload is JSON; values may be sealed per key.
//
// A torn tail entry, as left by a crash during a write, ends the replay
// of its segment without failing recovery.
package wal
