// Package cache stores synthesized audio keyed by chunk fingerprint.
// The memory level keeps insertion order so entries behind the playback
// position can be evicted; an optional zstd-compressed disk level persists
// audio across sessions with TTL cleanup.
package cache
