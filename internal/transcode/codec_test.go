package transcode

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodecSelector_NonDarwinAlwaysSoftwareAAC(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("this case only exercises the non-darwin branch")
	}

	sel := NewCodecSelector("ffmpeg", discardLogger())
	assert.Equal(t, softwareAACEncoder, sel.PreferredAudioCodec())
}

func TestCodecSelector_MemoizesResult(t *testing.T) {
	sel := NewCodecSelector("ffmpeg", discardLogger())
	first := sel.PreferredAudioCodec()
	second := sel.PreferredAudioCodec()
	assert.Equal(t, first, second)
}

func TestCodecSelector_UnresolvableConverterFallsBackToSoftware(t *testing.T) {
	sel := NewCodecSelector("/no/such/converter-binary", discardLogger())
	assert.Equal(t, softwareAACEncoder, sel.PreferredAudioCodec())
}
