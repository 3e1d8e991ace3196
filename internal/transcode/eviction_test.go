package transcode

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakeCacheFile(t *testing.T, dir, preset, songID string, size int) {
	t.Helper()
	presetDir := filepath.Join(dir, preset)
	require.NoError(t, os.MkdirAll(presetDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(presetDir, songID+".m4a"), make([]byte, size), 0o644))
}

func TestEvictor_NoEvictionBelowLimit(t *testing.T) {
	dir := t.TempDir()
	idx := NewCacheIndex(dir, discardLogger())
	idx.Insert("song-1_low", relativePath("song-1", "low", "m4a"), 100)

	ev := NewEvictor(dir, 1000, idx, newInUseSet(), discardLogger())
	ev.MaybeEvict()

	_, ok := idx.Get("song-1_low")
	assert.True(t, ok)
}

func TestEvictor_EvictsOldestFirstUntilUnderLimit(t *testing.T) {
	dir := t.TempDir()
	idx := NewCacheIndex(dir, discardLogger())

	writeFakeCacheFile(t, dir, "low", "song-1", 100)
	writeFakeCacheFile(t, dir, "low", "song-2", 100)
	writeFakeCacheFile(t, dir, "low", "song-3", 100)

	idx.Insert("song-1_low", relativePath("song-1", "low", "m4a"), 100)
	idx.mu.Lock()
	e := idx.entries["song-1_low"]
	e.LastAccessTime = time.Now().Add(-3 * time.Hour)
	idx.entries["song-1_low"] = e
	idx.mu.Unlock()

	idx.Insert("song-2_low", relativePath("song-2", "low", "m4a"), 100)
	idx.mu.Lock()
	e = idx.entries["song-2_low"]
	e.LastAccessTime = time.Now().Add(-2 * time.Hour)
	idx.entries["song-2_low"] = e
	idx.mu.Unlock()

	idx.Insert("song-3_low", relativePath("song-3", "low", "m4a"), 100)

	ev := NewEvictor(dir, 150, idx, newInUseSet(), discardLogger())
	ev.MaybeEvict()

	_, ok1 := idx.Get("song-1_low")
	_, ok2 := idx.Get("song-2_low")
	_, ok3 := idx.Get("song-3_low")
	assert.False(t, ok1, "oldest entry should be evicted first")
	assert.False(t, ok2, "second-oldest entry should be evicted too since limit is still exceeded")
	assert.True(t, ok3, "newest entry should survive")
	assert.LessOrEqual(t, idx.TotalSize(), uint64(150))
}

func TestEvictor_SkipsInUseEntries(t *testing.T) {
	dir := t.TempDir()
	idx := NewCacheIndex(dir, discardLogger())
	writeFakeCacheFile(t, dir, "low", "song-1", 100)
	idx.Insert("song-1_low", relativePath("song-1", "low", "m4a"), 100)

	inUse := newInUseSet()
	inUse.mark("song-1_low")

	ev := NewEvictor(dir, 0, idx, inUse, discardLogger())
	ev.MaybeEvict()

	_, ok := idx.Get("song-1_low")
	assert.True(t, ok, "in-use entry must survive eviction even over budget")
}

func TestInUseSet_RefcountsOverlappingMarks(t *testing.T) {
	s := newInUseSet()
	s.mark("song-1_low")
	s.mark("song-1_low")

	s.release("song-1_low")
	assert.True(t, s.contains("song-1_low"), "still marked once more than released")

	s.release("song-1_low")
	assert.False(t, s.contains("song-1_low"))
}

func TestInUseSet_ReleaseWithoutMarkIsNoop(t *testing.T) {
	s := newInUseSet()
	s.release("never-marked")
	assert.False(t, s.contains("never-marked"))
}
