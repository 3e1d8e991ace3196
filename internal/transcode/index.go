package transcode

import (
	"encoding/json/v2"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const indexVersion = 1

const indexFileName = "cache_index.json"

// cacheEntry is a cache index entry held in memory.
type cacheEntry struct {
	RelativePath   string
	SizeBytes      uint64
	LastAccessTime time.Time
}

// indexFileEntry is the on-disk representation of a cache entry.
type indexFileEntry struct {
	Path       string    `json:"path"`
	Size       uint64    `json:"size"`
	LastAccess time.Time `json:"lastAccess"`
}

// indexFile is the on-disk representation of the whole index.
type indexFile struct {
	Version   int                        `json:"version"`
	Entries   map[string]indexFileEntry  `json:"entries"`
	TotalSize uint64                     `json:"totalSize"`
}

// CacheIndex is the persistent mapping fingerprint -> cache entry, plus a
// running total size. It is the single source of truth cache_size() reads
// from and the eviction engine sweeps.
type CacheIndex struct {
	mu        sync.Mutex
	cacheRoot string
	entries   map[string]cacheEntry
	totalSize uint64
	dirty     bool
	logger    *slog.Logger
}

// NewCacheIndex creates an empty index rooted at cacheRoot. Call Load to
// populate it from disk.
func NewCacheIndex(cacheRoot string, logger *slog.Logger) *CacheIndex {
	return &CacheIndex{
		cacheRoot: cacheRoot,
		entries:   make(map[string]cacheEntry),
		logger:    logger,
	}
}

// Load reads the index file. On success it populates the in-memory map and
// total size. On a missing file, parse failure, or version mismatch it
// rebuilds the index by scanning the cache directory.
func (idx *CacheIndex) Load() error {
	path := filepath.Join(idx.cacheRoot, indexFileName)

	data, err := os.ReadFile(path) //#nosec G304 -- cache_root is server-controlled config
	if err != nil {
		idx.logger.Info("cache index missing, rebuilding from disk", "path", path)
		return idx.rebuildFromDisk()
	}

	var file indexFile
	if err := json.Unmarshal(data, &file); err != nil || file.Version != indexVersion {
		idx.logger.Warn("cache index corrupt or version mismatch, rebuilding from disk",
			"path", path, "error", err)
		return idx.rebuildFromDisk()
	}

	entries := make(map[string]cacheEntry, len(file.Entries))
	var total uint64
	for fp, e := range file.Entries {
		entries[fp] = cacheEntry{
			RelativePath:   e.Path,
			SizeBytes:      e.Size,
			LastAccessTime: e.LastAccess,
		}
		total += e.Size
	}

	idx.mu.Lock()
	idx.entries = entries
	idx.totalSize = total
	idx.dirty = false
	idx.mu.Unlock()

	return nil
}

// rebuildFromDisk reconstructs the index by walking the cache directory,
// treating every file whose extension matches a configured preset's
// extension as an entry. last_access_time is taken from the file's mtime.
// Unknown-extension files (including *.tmp leftovers from a crashed tee)
// and the tmp/ ephemeral directory are skipped.
func (idx *CacheIndex) rebuildFromDisk() error {
	extToPreset := make(map[string]string)
	for _, p := range TranscodingPresets() {
		extToPreset["."+p.FileExtension] = p.Name
	}

	entries := make(map[string]cacheEntry)
	var total uint64

	for _, p := range TranscodingPresets() {
		dir := filepath.Join(idx.cacheRoot, p.Name)
		walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			name := d.Name()
			if strings.HasSuffix(name, ".tmp") {
				return nil
			}
			ext := filepath.Ext(name)
			presetName, ok := extToPreset[ext]
			if !ok || presetName != p.Name {
				return nil
			}
			songID := strings.TrimSuffix(name, ext)
			info, err := d.Info()
			if err != nil {
				return nil
			}
			fp := Fingerprint(songID, p.Name)
			rel := relativePath(songID, p.Name, strings.TrimPrefix(ext, "."))
			size := uint64(info.Size())
			entries[fp] = cacheEntry{
				RelativePath:   rel,
				SizeBytes:      size,
				LastAccessTime: info.ModTime(),
			}
			total += size
			return nil
		})
		if walkErr != nil {
			idx.logger.Warn("cache index rebuild: failed to walk preset directory",
				"preset", p.Name, "error", walkErr)
		}
	}

	idx.mu.Lock()
	idx.entries = entries
	idx.totalSize = total
	idx.dirty = false
	idx.mu.Unlock()

	return nil
}

// Insert adds or replaces an entry, updates the running total, and marks
// the index dirty.
func (idx *CacheIndex) Insert(fp, relPath string, size uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.entries[fp]; ok {
		idx.totalSize -= old.SizeBytes
	}
	idx.entries[fp] = cacheEntry{
		RelativePath:   relPath,
		SizeBytes:      size,
		LastAccessTime: time.Now(),
	}
	idx.totalSize += size
	idx.dirty = true
}

// Touch updates an entry's last access time. Returns false if no entry
// exists for fp.
func (idx *CacheIndex) Touch(fp string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	e, ok := idx.entries[fp]
	if !ok {
		return false
	}
	e.LastAccessTime = time.Now()
	idx.entries[fp] = e
	idx.dirty = true
	return true
}

// Get returns the entry for fp along with its absolute path on disk.
func (idx *CacheIndex) Get(fp string) (relPath string, ok bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[fp]
	if !ok {
		return "", false
	}
	return e.RelativePath, true
}

// Remove deletes the entry for fp, subtracting its size from the running
// total. Callers are responsible for deleting the underlying file.
func (idx *CacheIndex) Remove(fp string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if e, ok := idx.entries[fp]; ok {
		idx.totalSize -= e.SizeBytes
		delete(idx.entries, fp)
		idx.dirty = true
	}
}

// TotalSize returns the current running total size.
func (idx *CacheIndex) TotalSize() uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.totalSize
}

// Dirty reports whether the index has unpersisted changes.
func (idx *CacheIndex) Dirty() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.dirty
}

// snapshot is a point-in-time copy of an entry used by the eviction engine,
// sorted independently of the live map.
type snapshot struct {
	Fingerprint string
	Entry       cacheEntry
}

// snapshotSortedByAccess returns every entry sorted by last access time
// ascending (oldest first), for the eviction sweep.
func (idx *CacheIndex) snapshotSortedByAccess() []snapshot {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := make([]snapshot, 0, len(idx.entries))
	for fp, e := range idx.entries {
		out = append(out, snapshot{Fingerprint: fp, Entry: e})
	}
	return out
}

// reset clears the index entirely (used by clear_cache).
func (idx *CacheIndex) reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = make(map[string]cacheEntry)
	idx.totalSize = 0
	idx.dirty = false
}

// Persist writes the index to a sibling tempfile and atomically renames it
// over the index file, clearing the dirty flag on success. Safe against a
// crash mid-write: readers only ever see the old file or the new one.
func (idx *CacheIndex) Persist() error {
	idx.mu.Lock()
	file := indexFile{
		Version:   indexVersion,
		Entries:   make(map[string]indexFileEntry, len(idx.entries)),
		TotalSize: idx.totalSize,
	}
	for fp, e := range idx.entries {
		file.Entries[fp] = indexFileEntry{
			Path:       e.RelativePath,
			Size:       e.SizeBytes,
			LastAccess: e.LastAccessTime,
		}
	}
	idx.mu.Unlock()

	if err := os.MkdirAll(idx.cacheRoot, 0o755); err != nil {
		return fmt.Errorf("create cache root: %w", err)
	}

	path := filepath.Join(idx.cacheRoot, indexFileName)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath) //#nosec G304 -- cache_root is server-controlled config
	if err != nil {
		return fmt.Errorf("create index tempfile: %w", err)
	}
	defer os.Remove(tmpPath) // no-op once renamed

	if err := json.MarshalWrite(f, file); err != nil {
		f.Close()
		return fmt.Errorf("write index tempfile: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index tempfile: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename index tempfile: %w", err)
	}

	idx.mu.Lock()
	idx.dirty = false
	idx.mu.Unlock()

	return nil
}

// PersistIfDirty calls Persist only if the index has unflushed changes.
// Used by the periodic background trigger.
func (idx *CacheIndex) PersistIfDirty() error {
	if !idx.Dirty() {
		return nil
	}
	return idx.Persist()
}
