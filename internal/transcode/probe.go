package transcode

import (
	"context"
	"encoding/json/v2"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pchchv/flac"
)

// AudioProperties are the transient results of probing a source file.
// A zero value with Known=false represents spec.md's "Unknown" outcome.
type AudioProperties struct {
	Known        bool
	Codec        string
	BitrateBps    int64
	SampleRateHz int64
}

const probeTimeout = 5 * time.Second

// Prober runs the external prober (ffprobe) against a source path, with a
// subprocess-free fast path for FLAC sources via direct STREAMINFO parsing.
// Availability of the prober tool is detected lazily on first use and
// memoized, mirroring the Codec Selector's one-shot detection.
type Prober struct {
	proberPath string
	logger     *slog.Logger

	availOnce sync.Once
	available atomic.Bool
}

// NewProber creates a prober that shells out to proberPath (ffprobe) for
// non-FLAC sources.
func NewProber(proberPath string, logger *slog.Logger) *Prober {
	return &Prober{proberPath: proberPath, logger: logger}
}

// Probe returns the audio properties of path, or Known=false on any
// non-zero exit, parse error, or timeout.
func (p *Prober) Probe(ctx context.Context, path string) AudioProperties {
	p.availOnce.Do(func() {
		_, err := exec.LookPath(p.proberPath)
		p.available.Store(err == nil)
	})

	if strings.EqualFold(fileExt(path), ".flac") {
		if props, ok := p.probeFLAC(path); ok {
			return props
		}
	}

	if !p.available.Load() {
		return AudioProperties{Known: false}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.proberPath, //#nosec G204 -- proberPath resolved via exec.LookPath at construction
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "a:0",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		p.logger.Debug("probe: prober exited non-zero", "path", path, "error", err)
		return AudioProperties{Known: false}
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		p.logger.Debug("probe: could not parse prober output", "path", path, "error", err)
		return AudioProperties{Known: false}
	}

	props := AudioProperties{Known: true}
	if len(parsed.Streams) > 0 {
		props.Codec = parsed.Streams[0].CodecName
		if sr, err := strconv.ParseInt(parsed.Streams[0].SampleRate, 10, 64); err == nil {
			props.SampleRateHz = sr
		}
	}
	if parsed.Format.BitRate != "" {
		if br, err := strconv.ParseInt(parsed.Format.BitRate, 10, 64); err == nil {
			props.BitrateBps = br
		}
	}
	if props.BitrateBps == 0 && len(parsed.Streams) > 0 && parsed.Streams[0].BitRate != "" {
		if br, err := strconv.ParseInt(parsed.Streams[0].BitRate, 10, 64); err == nil {
			props.BitrateBps = br
		}
	}

	return props
}

// probeFLAC parses the FLAC STREAMINFO block directly, without spawning the
// external prober. Bitrate is derived from file size and stream duration
// since STREAMINFO carries sample count and rate, not bitrate directly.
func (p *Prober) probeFLAC(path string) (AudioProperties, bool) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		p.logger.Debug("probe: flac fast path failed, falling back to prober", "path", path, "error", err)
		return AudioProperties{}, false
	}

	info := stream.Info
	props := AudioProperties{
		Known:        true,
		Codec:        "flac",
		SampleRateHz: int64(info.SampleRate),
	}

	if info.SampleRate > 0 && info.NSamples > 0 {
		durationSeconds := float64(info.NSamples) / float64(info.SampleRate)
		if fi, err := os.Stat(path); err == nil && durationSeconds > 0 {
			props.BitrateBps = int64(float64(fi.Size()) * 8 / durationSeconds)
		}
	}

	return props, true
}

func fileExt(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i:]
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	BitRate string `json:"bit_rate"`
}

type probeStream struct {
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
	BitRate    string `json:"bit_rate"`
}

// ShouldSkip returns true iff props is known and its bitrate is already at
// or below the preset's target, so no transcode is needed.
func ShouldSkip(props AudioProperties, preset Preset) bool {
	if !props.Known || props.BitrateBps == 0 {
		return false
	}
	return props.BitrateBps <= int64(preset.TargetBitrateKbps)*1000
}
