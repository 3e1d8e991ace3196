// Package transcode implements the on-demand audio transcoding cache and
// scheduler: probing, codec selection, an LRU disk cache with a persisted
// index, single-flight coalescing, bounded streaming/download pools, and
// three transcode executors (file, streaming tee, ephemeral).
package transcode

import "fmt"

// Preset is a named quality tier an audio file can be transcoded to.
type Preset struct {
	Name                string
	TargetBitrateKbps   int // 0 for the passthrough preset
	FileExtension       string
	MimeType            string
	RequiresTranscoding bool
}

// Preset names. These are the closed set of quality tiers the facade
// understands; callers never construct a Preset directly.
const (
	PresetOriginal = "original"
	PresetLow      = "low"
	PresetMedium   = "medium"
	PresetHigh     = "high"
)

var presets = map[string]Preset{
	PresetOriginal: {Name: PresetOriginal, RequiresTranscoding: false},
	PresetLow:      {Name: PresetLow, TargetBitrateKbps: 64, FileExtension: "m4a", MimeType: "audio/mp4", RequiresTranscoding: true},
	PresetMedium:   {Name: PresetMedium, TargetBitrateKbps: 128, FileExtension: "m4a", MimeType: "audio/mp4", RequiresTranscoding: true},
	PresetHigh:     {Name: PresetHigh, TargetBitrateKbps: 256, FileExtension: "m4a", MimeType: "audio/mp4", RequiresTranscoding: true},
}

// LookupPreset returns the preset with the given name.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// TranscodingPresets returns every preset whose RequiresTranscoding is true,
// in a stable order. Used by invalidate_song and by index rebuild-from-disk.
func TranscodingPresets() []Preset {
	return []Preset{presets[PresetLow], presets[PresetMedium], presets[PresetHigh]}
}

// ErrUnknownPreset is a programmer-facing error: the caller passed a preset
// name outside the closed set.
type ErrUnknownPreset struct {
	Name string
}

func (e *ErrUnknownPreset) Error() string {
	return fmt.Sprintf("transcode: unknown preset %q", e.Name)
}
