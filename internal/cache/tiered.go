package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/dgnsrekt/aloud/internal/metrics"
)

// Tiered combines the insertion-ordered AudioCache with an optional
// DiskStore. Eviction order and playback addressing always follow the
// memory level; the disk level only saves synthesis round trips across
// restarts.
type Tiered struct {
	mem  *AudioCache
	disk *DiskStore

	config  Config
	metrics *metrics.Metrics
	logger  *log.Logger

	// Cleanup goroutine control
	cleanupStop chan struct{}
	cleanupWg   sync.WaitGroup
	closeOnce   sync.Once

	mu    sync.Mutex
	stats struct {
		MemoryHits  int64
		DiskHits    int64
		Promotions  int64
		CleanupRuns int64
		LastCleanup time.Time
	}
}

// NewTiered builds the cache. The disk level is enabled when cfg.DiskPath
// is set.
func NewTiered(cfg Config, m *metrics.Metrics, logger *log.Logger) (*Tiered, error) {
	if logger == nil {
		logger = log.Default()
	}

	t := &Tiered{
		mem:         NewAudioCache(),
		config:      cfg,
		metrics:     m,
		logger:      logger,
		cleanupStop: make(chan struct{}),
	}

	if cfg.DiskPath != "" {
		disk, err := NewDiskStore(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk store: %w", err)
		}
		t.disk = disk
		logger.Debug("audio disk store ready",
			"path", cfg.DiskPath,
			"used", humanize.IBytes(uint64(disk.Size())),
			"capacity", humanize.IBytes(uint64(cfg.DiskCapacity)))

		if cfg.CleanupInterval > 0 && cfg.TTL > 0 {
			t.startCleanupRoutine()
		}
	}

	return t, nil
}

// Memory exposes the memory level.
func (t *Tiered) Memory() *AudioCache {
	return t.mem
}

// Get checks memory, then disk. Disk hits are appended to the memory level.
func (t *Tiered) Get(key string) ([]byte, bool) {
	if data, ok := t.mem.Get(key); ok {
		t.mu.Lock()
		t.stats.MemoryHits++
		t.mu.Unlock()
		t.metrics.ObserveCacheHit(LevelMemory.String())
		return data, true
	}

	if t.disk != nil {
		if data, ok := t.disk.Get(key); ok {
			t.mu.Lock()
			t.stats.DiskHits++
			t.stats.Promotions++
			t.mu.Unlock()
			t.metrics.ObserveCacheHit(LevelDisk.String())
			t.mem.Put(key, data)
			t.updateGauges()
			return data, true
		}
	}

	t.metrics.ObserveCacheMiss()
	return nil, false
}

// Has reports whether either level holds key.
func (t *Tiered) Has(key string) bool {
	if t.mem.Has(key) {
		return true
	}
	return t.disk != nil && t.disk.Contains(key)
}

// Put stores in memory and writes through to disk.
func (t *Tiered) Put(key string, value []byte) {
	t.mem.Put(key, value)
	t.updateGauges()

	if t.disk != nil {
		if err := t.disk.Put(key, value); err != nil {
			t.logger.Warn("failed to persist audio", "fingerprint", key, "size", humanize.IBytes(uint64(len(value))), "err", err)
		}
	}
}

// PutTransient stores in memory only.
func (t *Tiered) PutTransient(key string, value []byte) {
	t.mem.Put(key, value)
	t.updateGauges()
}

// EvictBefore applies to the memory level only.
func (t *Tiered) EvictBefore(key string) int {
	n := t.mem.EvictBefore(key)
	t.metrics.ObserveEvictions(n)
	t.updateGauges()
	return n
}

// Clear drops both levels.
func (t *Tiered) Clear() {
	t.mem.Clear()
	t.updateGauges()
	if t.disk != nil {
		if err := t.disk.Clear(); err != nil {
			t.logger.Warn("failed to clear audio disk store", "err", err)
		}
	}
}

// Open resolves a media URI.
func (t *Tiered) Open(uri string) ([]byte, error) {
	key, err := ParseMediaURI(uri)
	if err != nil {
		return nil, err
	}
	data, ok := t.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	return data, nil
}

// Stats returns a summary of both levels.
func (t *Tiered) Stats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := map[string]interface{}{
		"memory_hits":  t.stats.MemoryHits,
		"disk_hits":    t.stats.DiskHits,
		"promotions":   t.stats.Promotions,
		"cleanup_runs": t.stats.CleanupRuns,
		"memory":       t.mem.Stats(),
	}
	if t.disk != nil {
		out["disk"] = t.disk.Stats()
	}
	return out
}

// Close stops the janitor and saves the disk index.
func (t *Tiered) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.cleanupStop)
		t.cleanupWg.Wait()
		if t.disk != nil {
			if cerr := t.disk.Close(); cerr != nil {
				err = fmt.Errorf("failed to close disk store: %w", cerr)
			}
		}
	})
	return err
}

func (t *Tiered) updateGauges() {
	t.metrics.SetCacheSize(t.mem.Len(), t.mem.Size())
}

// startCleanupRoutine starts the background TTL cleanup goroutine.
func (t *Tiered) startCleanupRoutine() {
	ticker := time.NewTicker(t.config.CleanupInterval)
	t.cleanupWg.Add(1)

	go func() {
		defer t.cleanupWg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.performCleanup()
			case <-t.cleanupStop:
				return
			}
		}
	}()
}

func (t *Tiered) performCleanup() {
	t.mu.Lock()
	t.stats.CleanupRuns++
	t.stats.LastCleanup = time.Now()
	t.mu.Unlock()

	removed := t.disk.RemoveOlderThan(time.Now().Add(-t.config.TTL))
	if removed > 0 {
		t.logger.Debug("expired audio blobs removed", "count", removed)
	}
}
