package cache

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const (
	indexFile = "audio.index"

	// blobs below this size are stored raw
	compressThreshold = 1024
)

// DiskStore is a persistent, optionally zstd-compressed blob store keyed by
// fingerprint. It lets audio survive across process restarts.
type DiskStore struct {
	basePath string
	capacity int64 // Maximum size on disk in bytes
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry

	mu     sync.Mutex
	stats  Stats
	logger *log.Logger
}

// diskEntry represents an entry in the disk index
type diskEntry struct {
	Key          string
	FilePath     string
	Size         int64 // Size on disk
	OriginalSize int64
	Timestamp    time.Time
	LastAccess   time.Time
	Compressed   bool
}

// NewDiskStore opens or creates a store under basePath.
func NewDiskStore(basePath string, capacity int64, compressionLevel int, logger *log.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	ds := &DiskStore{
		basePath: basePath,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		logger:   logger,
	}

	if compressionLevel > 0 {
		var err error
		ds.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		ds.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
	}

	if err := ds.loadIndex(); err != nil {
		logger.Warn("discarding unreadable audio index", "path", basePath, "err", err)
		ds.index = make(map[string]*diskEntry)
	}
	for _, e := range ds.index {
		ds.size += e.Size
	}

	return ds, nil
}

// Get reads a blob. Missing or corrupt files are dropped from the index.
func (ds *DiskStore) Get(key string) ([]byte, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	entry, ok := ds.index[key]
	if !ok {
		ds.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(entry.FilePath)
	if err == nil && entry.Compressed {
		if ds.decoder == nil {
			err = fmt.Errorf("compressed entry without decoder")
		} else {
			data, err = ds.decoder.DecodeAll(data, nil)
		}
	}
	if err != nil {
		ds.logger.Debug("dropping unreadable audio blob", "fingerprint", key, "err", err)
		ds.removeEntry(entry)
		ds.stats.Misses++
		return nil, false
	}

	entry.LastAccess = time.Now()
	ds.stats.Hits++
	return data, true
}

// Contains reports whether key is indexed.
func (ds *DiskStore) Contains(key string) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	_, ok := ds.index[key]
	return ok
}

// Put writes a blob, evicting least recently accessed blobs if needed.
func (ds *DiskStore) Put(key string, value []byte) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	data := value
	compressed := false
	if ds.encoder != nil && len(value) > compressThreshold {
		if c := ds.encoder.EncodeAll(value, nil); len(c) < len(value) {
			data = c
			compressed = true
		}
	}

	diskSize := int64(len(data))
	if diskSize > ds.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := ds.index[key]; ok {
		ds.removeEntry(existing)
	}
	for ds.size+diskSize > ds.capacity && len(ds.index) > 0 {
		ds.evictOldest()
	}

	path := filepath.Join(ds.basePath, key+".blob")
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	ds.index[key] = &diskEntry{
		Key:          key,
		FilePath:     path,
		Size:         diskSize,
		OriginalSize: int64(len(value)),
		Timestamp:    now,
		LastAccess:   now,
		Compressed:   compressed,
	}
	ds.size += diskSize
	return nil
}

// Clear removes every blob.
func (ds *DiskStore) Clear() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	for _, entry := range ds.index {
		os.Remove(entry.FilePath)
	}
	ds.index = make(map[string]*diskEntry)
	ds.size = 0

	return ds.saveIndex()
}

// RemoveOlderThan drops blobs written before cutoff.
func (ds *DiskStore) RemoveOlderThan(cutoff time.Time) int {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	removed := 0
	for _, entry := range ds.index {
		if entry.Timestamp.Before(cutoff) {
			ds.removeEntry(entry)
			removed++
		}
	}
	if removed > 0 {
		if err := ds.saveIndex(); err != nil {
			ds.logger.Warn("failed to save audio index", "err", err)
		}
	}
	return removed
}

// Size returns the bytes used on disk.
func (ds *DiskStore) Size() int64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.size
}

// Stats returns store statistics.
func (ds *DiskStore) Stats() Stats {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	stats := ds.stats
	stats.Size = ds.size
	stats.ItemCount = int64(len(ds.index))
	stats.updateHitRate()
	return stats
}

// Close saves the index.
func (ds *DiskStore) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.encoder != nil {
		ds.encoder.Close()
	}
	if ds.decoder != nil {
		ds.decoder.Close()
	}
	return ds.saveIndex()
}

func (ds *DiskStore) removeEntry(entry *diskEntry) {
	os.Remove(entry.FilePath)
	delete(ds.index, entry.Key)
	ds.size -= entry.Size
}

func (ds *DiskStore) evictOldest() {
	entries := make([]*diskEntry, 0, len(ds.index))
	for _, e := range ds.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})

	ds.removeEntry(entries[0])
	ds.stats.Evictions++
	ds.stats.LastEvict = time.Now()
}

func (ds *DiskStore) loadIndex() error {
	file, err := os.Open(filepath.Join(ds.basePath, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	return gob.NewDecoder(file).Decode(&ds.index)
}

func (ds *DiskStore) saveIndex() error {
	path := filepath.Join(ds.basePath, indexFile)
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	err = gob.NewEncoder(file).Encode(ds.index)
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return err
	}

	return os.Rename(tempPath, path)
}

// writeFileAtomic writes to a temp file first, then renames.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}
