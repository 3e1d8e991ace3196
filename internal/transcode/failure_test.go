package transcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFailureLedger_ShouldSkip_NoRecord(t *testing.T) {
	l := NewFailureLedger(time.Minute)
	assert.False(t, l.ShouldSkip("song-1_low"))
}

func TestFailureLedger_RecordThenShouldSkip(t *testing.T) {
	l := NewFailureLedger(time.Minute)
	l.Record("song-1_low", "converter exited 1")
	assert.True(t, l.ShouldSkip("song-1_low"))
}

func TestFailureLedger_WindowElapsedExpungesRecord(t *testing.T) {
	l := NewFailureLedger(10 * time.Millisecond)
	l.Record("song-1_low", "converter exited 1")
	time.Sleep(20 * time.Millisecond)
	assert.False(t, l.ShouldSkip("song-1_low"))
	// a second check immediately after should still be false: the record
	// was expunged by the first ShouldSkip call.
	assert.False(t, l.ShouldSkip("song-1_low"))
}

func TestFailureLedger_Clear(t *testing.T) {
	l := NewFailureLedger(time.Minute)
	l.Record("song-1_low", "boom")
	l.Clear("song-1_low")
	assert.False(t, l.ShouldSkip("song-1_low"))
}

func TestFailureLedger_RecordIncrementsCount(t *testing.T) {
	l := NewFailureLedger(time.Minute)
	l.Record("song-1_low", "first")
	l.Record("song-1_low", "second")

	l.mu.Lock()
	rec := l.records["song-1_low"]
	l.mu.Unlock()

	assert.Equal(t, 2, rec.Count)
	assert.Equal(t, "second", rec.Message)
}

func TestFailureLedger_IndependentFingerprints(t *testing.T) {
	l := NewFailureLedger(time.Minute)
	l.Record("song-1_low", "boom")
	assert.True(t, l.ShouldSkip("song-1_low"))
	assert.False(t, l.ShouldSkip("song-2_low"))
}
