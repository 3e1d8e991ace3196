package transcode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/soundvault/soundvault-server/internal/id"
)

// FileResult is the outcome of a file-mode transcode.
type FileResult struct {
	AbsPath string
	Size    int64
}

// Executor runs the converter tool in the three modes spec.md §4.8
// describes: file (cache tempfile + atomic rename), streaming tee (live
// fan-out plus cache tempfile), and ephemeral (one-shot, outside the cache
// tree, caller deletes after consumption).
type Executor struct {
	converterPath string
	cacheRoot     string
	timeout       time.Duration
	logger        *slog.Logger
}

// NewExecutor creates an executor invoking converterPath with the given
// wall-clock timeout for file/ephemeral modes.
func NewExecutor(converterPath, cacheRoot string, timeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{converterPath: converterPath, cacheRoot: cacheRoot, timeout: timeout, logger: logger}
}

func fileArgs(source, codec string, bitrateKbps int, output string) []string {
	return []string{
		"-y", "-i", source,
		"-c:a", codec,
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		"-vn",
		"-movflags", "+faststart",
		"-map_metadata", "-1",
		output,
	}
}

func teeArgs(source, codec string, bitrateKbps int) []string {
	return []string{
		"-y", "-i", source,
		"-c:a", codec,
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		"-vn",
		"-movflags", "frag_keyframe+empty_moov",
		"-f", "mp4",
		"pipe:stdout",
	}
}

// RunFile runs the converter to a cache tempfile and atomically renames it
// to the final cache path on success. On any other outcome it deletes any
// partial output. Returns (result, ok): ok is false on failure.
func (e *Executor) RunFile(ctx context.Context, source, codec string, preset Preset, songID string) (FileResult, bool) {
	relDir := preset.Name
	finalRel := relativePath(songID, preset.Name, preset.FileExtension)
	finalAbs := filepath.Join(e.cacheRoot, finalRel)
	tmpAbs := finalAbs + ".tmp"

	outDir := filepath.Join(e.cacheRoot, relDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		e.logger.Warn("executor: failed to create output directory", "dir", outDir, "error", err)
		return FileResult{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := fileArgs(source, codec, preset.TargetBitrateKbps, tmpAbs)
	cmd := exec.CommandContext(ctx, e.converterPath, args...) //#nosec G204 -- converterPath resolved via exec.LookPath at construction

	if err := cmd.Run(); err != nil {
		e.logger.Warn("executor: file transcode failed", "song_id", songID, "preset", preset.Name, "error", err)
		os.Remove(tmpAbs)
		return FileResult{}, false
	}

	info, err := os.Stat(tmpAbs)
	if err != nil || info.Size() == 0 {
		e.logger.Warn("executor: file transcode produced no output", "song_id", songID, "preset", preset.Name)
		os.Remove(tmpAbs)
		return FileResult{}, false
	}

	if err := os.Rename(tmpAbs, finalAbs); err != nil {
		e.logger.Warn("executor: failed to rename output into place", "error", err)
		os.Remove(tmpAbs)
		return FileResult{}, false
	}

	return FileResult{AbsPath: finalAbs, Size: info.Size()}, true
}

// RunEphemeral writes to a path outside the cache tree
// ({cache_root}/tmp/{song_id}_{ts}_{rand}.{ext}) that is never inserted into
// the index. The caller owns deletion after consumption.
func (e *Executor) RunEphemeral(ctx context.Context, source, codec string, preset Preset, songID string) (FileResult, bool) {
	tmpDir := filepath.Join(e.cacheRoot, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		e.logger.Warn("executor: failed to create tmp directory", "dir", tmpDir, "error", err)
		return FileResult{}, false
	}

	token := id.MustGenerate("dl")
	name := fmt.Sprintf("%s_%d_%s.%s", songID, time.Now().UnixNano(), token, preset.FileExtension)
	outAbs := filepath.Join(tmpDir, name)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := fileArgs(source, codec, preset.TargetBitrateKbps, outAbs)
	cmd := exec.CommandContext(ctx, e.converterPath, args...) //#nosec G204 -- converterPath resolved via exec.LookPath at construction

	if err := cmd.Run(); err != nil {
		e.logger.Warn("executor: ephemeral transcode failed", "song_id", songID, "preset", preset.Name, "error", err)
		os.Remove(outAbs)
		return FileResult{}, false
	}

	info, err := os.Stat(outAbs)
	if err != nil || info.Size() == 0 {
		os.Remove(outAbs)
		return FileResult{}, false
	}

	return FileResult{AbsPath: outAbs, Size: info.Size()}, true
}

// TeeResult is the outcome of a streaming tee transcode.
type TeeResult struct {
	AbsPath string
	Size    int64
}

// RunTee spawns the converter writing fragmented MP4 to stdout, forwards
// bytes to live as they arrive, and simultaneously appends them to a
// cache.tmp file. On successful exit the tempfile is the caller's
// responsibility to rename; on failure the tempfile is removed by RunTee
// itself. A slow cache-side sink never blocks the live sink: cache writes
// happen on a bounded buffer and are abandoned (not the live stream) if
// they fall behind or fail.
func (e *Executor) RunTee(ctx context.Context, source, codec string, preset Preset, songID string, live io.Writer) (TeeResult, bool) {
	relDir := preset.Name
	finalRel := relativePath(songID, preset.Name, preset.FileExtension)
	tmpAbs := filepath.Join(e.cacheRoot, finalRel) + ".tmp"

	outDir := filepath.Join(e.cacheRoot, relDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		e.logger.Warn("executor: failed to create output directory", "dir", outDir, "error", err)
		return TeeResult{}, false
	}

	cacheFile, err := os.Create(tmpAbs) //#nosec G304 -- path built from server-controlled cache_root + validated preset/song
	if err != nil {
		e.logger.Warn("executor: failed to create tee tempfile", "error", err)
		return TeeResult{}, false
	}

	args := teeArgs(source, codec, preset.TargetBitrateKbps)
	cmd := exec.CommandContext(ctx, e.converterPath, args...) //#nosec G204 -- converterPath resolved via exec.LookPath at construction

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cacheFile.Close()
		os.Remove(tmpAbs)
		return TeeResult{}, false
	}

	if err := cmd.Start(); err != nil {
		cacheFile.Close()
		os.Remove(tmpAbs)
		return TeeResult{}, false
	}

	var written int64
	cacheOK := true
	buf := make([]byte, 32*1024)
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			if _, err := live.Write(buf[:n]); err != nil {
				// Live consumer gone (client disconnect): keep draining stdout so
				// the converter can finish and the cache fill still completes.
				live = io.Discard
			}
			if cacheOK {
				if _, err := cacheFile.Write(buf[:n]); err != nil {
					e.logger.Warn("executor: tee cache write failed, abandoning cache side", "error", err)
					cacheOK = false
				} else {
					written += int64(n)
				}
			}
		}
		if readErr != nil {
			break
		}
	}

	cacheFile.Close()
	waitErr := cmd.Wait()

	if waitErr != nil || !cacheOK {
		os.Remove(tmpAbs)
		e.logger.Warn("executor: tee transcode failed", "song_id", songID, "preset", preset.Name, "error", waitErr)
		return TeeResult{}, false
	}

	return TeeResult{AbsPath: tmpAbs, Size: written}, true
}
