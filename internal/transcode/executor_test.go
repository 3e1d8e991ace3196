package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileArgs(t *testing.T) {
	args := fileArgs("/music/song.flac", "aac", 128, "/cache/low/song.m4a")
	assert.Contains(t, args, "-i")
	assert.Contains(t, args, "/music/song.flac")
	assert.Contains(t, args, "-c:a")
	assert.Contains(t, args, "aac")
	assert.Contains(t, args, "-b:a")
	assert.Contains(t, args, "128k")
	assert.Equal(t, "/cache/low/song.m4a", args[len(args)-1])
}

func TestTeeArgs(t *testing.T) {
	args := teeArgs("/music/song.flac", "aac", 64)
	assert.Contains(t, args, "pipe:stdout")
	assert.Contains(t, args, "64k")
	assert.Equal(t, "pipe:stdout", args[len(args)-1])
}

// fakeConverter writes a tiny shell script standing in for ffmpeg: it writes
// fixed content to its last argument (file mode) or to stdout (tee mode,
// detected by the presence of "pipe:stdout"), and exits with the given
// status. Lets executor tests exercise real exec.CommandContext plumbing
// without depending on ffmpeg being installed.
func fakeConverter(t *testing.T, exitCode int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake converter script is POSIX shell only")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "fake-ffmpeg.sh")
	script := `#!/bin/sh
last=""
tee_mode=0
for arg in "$@"; do
  if [ "$arg" = "pipe:stdout" ]; then
    tee_mode=1
  fi
  last="$arg"
done
if [ "$tee_mode" = "1" ]; then
  printf 'fake-audio-bytes'
else
  printf 'fake-audio-bytes' > "$last"
fi
exit ` + fmt.Sprintf("%d", exitCode) + `
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestExecutor_RunFile_Success(t *testing.T) {
	cacheRoot := t.TempDir()
	converter := fakeConverter(t, 0)
	exec := NewExecutor(converter, cacheRoot, 5*time.Second, discardLogger())

	preset, _ := LookupPreset(PresetLow)
	res, ok := exec.RunFile(context.Background(), "/music/song.flac", "aac", preset, "song-1")

	require.True(t, ok)
	assert.Equal(t, filepath.Join(cacheRoot, "low", "song-1.m4a"), res.AbsPath)
	assert.EqualValues(t, len("fake-audio-bytes"), res.Size)

	data, err := os.ReadFile(res.AbsPath)
	require.NoError(t, err)
	assert.Equal(t, "fake-audio-bytes", string(data))

	_, err = os.Stat(res.AbsPath + ".tmp")
	assert.True(t, os.IsNotExist(err), "tempfile should be renamed away, not left behind")
}

func TestExecutor_RunFile_ConverterFailureCleansUpTempfile(t *testing.T) {
	cacheRoot := t.TempDir()
	converter := fakeConverter(t, 1)
	exec := NewExecutor(converter, cacheRoot, 5*time.Second, discardLogger())

	preset, _ := LookupPreset(PresetLow)
	_, ok := exec.RunFile(context.Background(), "/music/song.flac", "aac", preset, "song-1")

	assert.False(t, ok)
	_, err := os.Stat(filepath.Join(cacheRoot, "low", "song-1.m4a.tmp"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(cacheRoot, "low", "song-1.m4a"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecutor_RunEphemeral_Success(t *testing.T) {
	cacheRoot := t.TempDir()
	converter := fakeConverter(t, 0)
	exec := NewExecutor(converter, cacheRoot, 5*time.Second, discardLogger())

	preset, _ := LookupPreset(PresetHigh)
	res, ok := exec.RunEphemeral(context.Background(), "/music/song.flac", "aac", preset, "song-1")

	require.True(t, ok)
	assert.True(t, filepath.IsAbs(res.AbsPath))
	assert.Contains(t, res.AbsPath, filepath.Join(cacheRoot, "tmp"))
	assert.True(t, filepath.Ext(res.AbsPath) == ".m4a")
}

func TestExecutor_RunTee_Success(t *testing.T) {
	cacheRoot := t.TempDir()
	converter := fakeConverter(t, 0)
	exec := NewExecutor(converter, cacheRoot, 5*time.Second, discardLogger())

	preset, _ := LookupPreset(PresetMedium)
	var live bytes.Buffer
	res, ok := exec.RunTee(context.Background(), "/music/song.flac", "aac", preset, "song-1", &live)

	require.True(t, ok)
	assert.Equal(t, "fake-audio-bytes", live.String())

	data, err := os.ReadFile(res.AbsPath)
	require.NoError(t, err)
	assert.Equal(t, "fake-audio-bytes", string(data))
	assert.True(t, filepath.Ext(res.AbsPath) == ".tmp")
}

func TestExecutor_RunTee_ConverterFailureCleansUpTempfile(t *testing.T) {
	cacheRoot := t.TempDir()
	converter := fakeConverter(t, 1)
	exec := NewExecutor(converter, cacheRoot, 5*time.Second, discardLogger())

	preset, _ := LookupPreset(PresetMedium)
	var live bytes.Buffer
	_, ok := exec.RunTee(context.Background(), "/music/song.flac", "aac", preset, "song-1", &live)

	assert.False(t, ok)
	_, err := os.Stat(filepath.Join(cacheRoot, "medium", "song-1.m4a.tmp"))
	assert.True(t, os.IsNotExist(err))
}
