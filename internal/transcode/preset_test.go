package transcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupPreset(t *testing.T) {
	tests := []struct {
		name   string
		preset string
		wantOK bool
	}{
		{"original passes through", PresetOriginal, true},
		{"low is known", PresetLow, true},
		{"medium is known", PresetMedium, true},
		{"high is known", PresetHigh, true},
		{"unknown preset rejected", "lossless", false},
		{"empty string rejected", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := LookupPreset(tt.preset)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.preset, p.Name)
			}
		})
	}
}

func TestLookupPreset_OriginalNeverTranscodes(t *testing.T) {
	p, ok := LookupPreset(PresetOriginal)
	assert.True(t, ok)
	assert.False(t, p.RequiresTranscoding)
	assert.Zero(t, p.TargetBitrateKbps)
}

func TestTranscodingPresets_ExcludesOriginal(t *testing.T) {
	presets := TranscodingPresets()
	assert.Len(t, presets, 3)
	for _, p := range presets {
		assert.True(t, p.RequiresTranscoding)
		assert.NotEqual(t, PresetOriginal, p.Name)
		assert.Positive(t, p.TargetBitrateKbps)
	}
}

func TestTranscodingPresets_AscendingBitrate(t *testing.T) {
	presets := TranscodingPresets()
	for i := 1; i < len(presets); i++ {
		assert.Greater(t, presets[i].TargetBitrateKbps, presets[i-1].TargetBitrateKbps)
	}
}

func TestErrUnknownPreset_Error(t *testing.T) {
	err := &ErrUnknownPreset{Name: "surround"}
	assert.Contains(t, err.Error(), "surround")
}
