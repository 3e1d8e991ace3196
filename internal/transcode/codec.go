package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// CodecSelector picks the preferred audio encoder name once per process
// lifetime. Modeled on canDecodeCodec's -decoders scan, mirrored here
// against -encoders.
type CodecSelector struct {
	converterPath string
	logger        *slog.Logger

	once  sync.Once
	codec string
}

// NewCodecSelector creates a selector for the given converter executable.
func NewCodecSelector(converterPath string, logger *slog.Logger) *CodecSelector {
	return &CodecSelector{converterPath: converterPath, logger: logger}
}

// PreferredAudioCodec returns the encoder name to pass to the converter's
// -c:a flag. On macOS, if the converter lists an AudioToolbox AAC encoder
// it is preferred; otherwise the portable software encoder name is used.
// Errors during detection fall back to the software name. Result is cached
// for the life of the process.
func (c *CodecSelector) PreferredAudioCodec() string {
	c.once.Do(func() {
		c.codec = c.detect()
	})
	return c.codec
}

const softwareAACEncoder = "aac"

func (c *CodecSelector) detect() string {
	if runtime.GOOS != "darwin" {
		return softwareAACEncoder
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.converterPath, "-encoders") //#nosec G204 -- converterPath resolved via exec.LookPath at construction
	output, err := cmd.Output()
	if err != nil {
		c.logger.Warn("codec selector: could not list encoders, falling back to software AAC", "error", err)
		return softwareAACEncoder
	}

	if strings.Contains(string(output), "aac_at") {
		return "aac_at"
	}
	return softwareAACEncoder
}

// canEncode reports whether the converter's -encoders output lists name.
// Unused today but kept available for future preset additions; mirrors
// canDecodeCodec's substring-scan shape for the probe side.
func (c *CodecSelector) canEncode(ctx context.Context, name string) (bool, error) {
	cmd := exec.CommandContext(ctx, c.converterPath, "-encoders") //#nosec G204 -- converterPath resolved via exec.LookPath at construction
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("list encoders: %w", err)
	}
	return strings.Contains(string(output), name), nil
}
