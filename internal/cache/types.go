package cache

import (
	"errors"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the disk capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheMiss is returned when an item is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrBadMediaURI is returned for URIs outside the memory media scheme
	ErrBadMediaURI = errors.New("not a media uri")
)

// Level represents the cache tier
type Level int

const (
	// LevelMemory is the insertion-ordered audio cache
	LevelMemory Level = iota

	// LevelDisk is the persistent compressed store
	LevelDisk
)

// String returns the string representation of the cache level
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "memory"
	case LevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Stats holds cache performance metrics
type Stats struct {
	// Current state
	Size      int64 // Current size in bytes
	ItemCount int64 // Number of items in cache

	// Performance metrics
	Hits      int64   // Number of cache hits
	Misses    int64   // Number of cache misses
	Evictions int64   // Number of evicted entries
	HitRate   float64 // Calculated hit rate (hits / (hits + misses))

	LastEvict time.Time
}

func (s *Stats) updateHitRate() {
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
}

// Config holds configuration for the tiered cache
type Config struct {
	// Disk store; an empty DiskPath disables the second level
	DiskPath         string
	DiskCapacity     int64 // Bytes
	CompressionLevel int   // Zstd level (1-22), 0 disables compression

	// Cleanup settings
	TTL             time.Duration // Age before disk items expire
	CleanupInterval time.Duration // How often the janitor runs
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		DiskCapacity:     512 * 1024 * 1024, // 512MB
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}
