package transcode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProber_UnresolvableProberReturnsUnknown(t *testing.T) {
	p := NewProber("/no/such/ffprobe-binary", discardLogger())
	props := p.Probe(context.Background(), "/tmp/does-not-matter.mp3")
	assert.False(t, props.Known)
}

func TestProber_NonFlacSkipsFastPath(t *testing.T) {
	p := NewProber("/no/such/ffprobe-binary", discardLogger())
	props := p.Probe(context.Background(), "/tmp/song.mp3")
	assert.False(t, props.Known)
}

func TestProber_MissingFlacFileFallsThroughToProber(t *testing.T) {
	p := NewProber("/no/such/ffprobe-binary", discardLogger())
	props := p.Probe(context.Background(), "/tmp/does-not-exist.flac")
	assert.False(t, props.Known)
}

func TestFileExt(t *testing.T) {
	assert.Equal(t, ".flac", fileExt("/music/song.flac"))
	assert.Equal(t, ".mp3", fileExt("song.mp3"))
	assert.Equal(t, "", fileExt("no-extension"))
}

func TestShouldSkip_UnknownPropsNeverSkips(t *testing.T) {
	preset, _ := LookupPreset(PresetLow)
	assert.False(t, ShouldSkip(AudioProperties{Known: false}, preset))
}

func TestShouldSkip_ZeroBitrateNeverSkips(t *testing.T) {
	preset, _ := LookupPreset(PresetLow)
	assert.False(t, ShouldSkip(AudioProperties{Known: true, BitrateBps: 0}, preset))
}

func TestShouldSkip_BitrateAtOrBelowTargetSkips(t *testing.T) {
	preset, _ := LookupPreset(PresetLow) // 64kbps target
	assert.True(t, ShouldSkip(AudioProperties{Known: true, BitrateBps: 64_000}, preset))
	assert.True(t, ShouldSkip(AudioProperties{Known: true, BitrateBps: 32_000}, preset))
}

func TestShouldSkip_BitrateAboveTargetDoesNotSkip(t *testing.T) {
	preset, _ := LookupPreset(PresetLow) // 64kbps target
	assert.False(t, ShouldSkip(AudioProperties{Known: true, BitrateBps: 320_000}, preset))
}
