// Package snapshot writes and reads compacted images of the log store.
//
// A snapshot holds every live key with its value and the WAL offset it
// covers. Recovery loads the newest valid snapshot and replays the WAL
// from that offset.
//
//	snapshot-<ulid>.snap
//	[magic:8 "SETTSNAP"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	[DataLen:4][Data:DataLen]   (zstd compressed JSON entries)
//	[checksum:32 SHA-256 of all bytes above]
//
// ULIDs sort by creation time, so the lexical file order is the
// chronological one. A snapshot with a bad checksum is skipped in favor
// of the previous one.
package snapshot
