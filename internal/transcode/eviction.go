package transcode

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// inUseSet is the set of fingerprints the eviction engine must not delete.
// Callers mark entries in-use before streaming begins and release them
// after the last byte is delivered. Never persisted.
type inUseSet struct {
	mu  sync.Mutex
	set map[string]int // refcount, so overlapping streams of the same fp nest safely
}

func newInUseSet() *inUseSet {
	return &inUseSet{set: make(map[string]int)}
}

func (s *inUseSet) mark(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set[fp]++
}

func (s *inUseSet) release(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set[fp] <= 1 {
		delete(s.set, fp)
		return
	}
	s.set[fp]--
}

func (s *inUseSet) contains(fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set[fp] > 0
}

// Evictor is the LRU sweeper invoked after any size-increasing insertion.
type Evictor struct {
	cacheRoot    string
	maxCacheSize uint64
	index        *CacheIndex
	inUse        *inUseSet
	logger       *slog.Logger
}

// NewEvictor creates an evictor bounding index to maxCacheSize bytes.
func NewEvictor(cacheRoot string, maxCacheSize uint64, index *CacheIndex, inUse *inUseSet, logger *slog.Logger) *Evictor {
	return &Evictor{
		cacheRoot:    cacheRoot,
		maxCacheSize: maxCacheSize,
		index:        index,
		inUse:        inUse,
		logger:       logger,
	}
}

// MaybeEvict sweeps the index oldest-first, deleting entries not pinned by
// the in-use set, until total size is at or below the configured maximum
// or every entry has been considered. Persists the index at the end.
func (e *Evictor) MaybeEvict() {
	if e.index.TotalSize() <= e.maxCacheSize {
		return
	}

	entries := e.index.snapshotSortedByAccess()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Entry.LastAccessTime.Before(entries[j].Entry.LastAccessTime)
	})

	for _, s := range entries {
		if e.index.TotalSize() <= e.maxCacheSize {
			break
		}
		if e.inUse.contains(s.Fingerprint) {
			continue
		}

		absPath := filepath.Join(e.cacheRoot, s.Entry.RelativePath)
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("eviction: failed to delete cache file",
				"fingerprint", s.Fingerprint, "path", absPath, "error", err)
			continue
		}
		e.index.Remove(s.Fingerprint)
	}

	if err := e.index.Persist(); err != nil {
		e.logger.Warn("eviction: failed to persist index", "error", err)
	}
}
