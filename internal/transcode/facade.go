package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// Options configures a Facade. Zero-valued durations/counts fall back to
// spec.md §6's documented defaults via DefaultOptions.
type Options struct {
	CacheRoot               string
	MaxCacheSizeBytes       uint64
	MaxStreamingConcurrency int
	MaxDownloadConcurrency  int
	TranscodeTimeout        time.Duration
	FailureBackoff          time.Duration
	IndexPersistInterval    time.Duration
	ConverterPath           string // ffmpeg, resolved via PATH if empty
	ProberPath              string // ffprobe, resolved via PATH if empty
}

// DefaultOptions returns spec.md §6's documented facade defaults, with
// CacheRoot left for the caller to fill in.
func DefaultOptions(cacheRoot string) Options {
	return Options{
		CacheRoot:               cacheRoot,
		MaxCacheSizeBytes:       2 << 30, // 2 GiB
		MaxStreamingConcurrency: 1,
		MaxDownloadConcurrency:  1,
		TranscodeTimeout:        5 * time.Minute,
		FailureBackoff:          5 * time.Minute,
		IndexPersistInterval:    30 * time.Second,
		ConverterPath:           "ffmpeg",
		ProberPath:              "ffprobe",
	}
}

var errTranscodeFailed = errors.New("transcode: converter failed")
var errNotNow = errors.New("transcode: pool at capacity")

// Facade is the Service Facade (spec.md §4.9): the single entry point that
// owns the Cache Index, Failure Ledger, Single-Flight Registry, and Pool
// State. Transcode Executors are spawned by the Facade and hold no
// references back into its maps.
type Facade struct {
	opts   Options
	logger *slog.Logger

	converterAvailable bool

	index    *CacheIndex
	evictor  *Evictor
	failures *FailureLedger
	inUse    *inUseSet
	flights  *flightRegistry

	streamingPool *Pool
	downloadPool  *Pool

	prober   *Prober
	codec    *CodecSelector
	executor *Executor

	persistCancel context.CancelFunc
	persistWG     sync.WaitGroup
}

// NewFacade constructs a Facade. Converter/prober absence on PATH disables
// the subsystem gracefully (IsEnabled() == false) rather than returning an
// error, matching spec.md §6: "absence is a permanent 'converter
// unavailable' signal that disables the subsystem gracefully."
func NewFacade(opts Options, logger *slog.Logger) (*Facade, error) {
	if opts.MaxStreamingConcurrency <= 0 {
		opts.MaxStreamingConcurrency = 1
	}
	if opts.MaxDownloadConcurrency <= 0 {
		opts.MaxDownloadConcurrency = opts.MaxStreamingConcurrency
	}
	if opts.TranscodeTimeout <= 0 {
		opts.TranscodeTimeout = 5 * time.Minute
	}
	if opts.FailureBackoff <= 0 {
		opts.FailureBackoff = 5 * time.Minute
	}
	if opts.IndexPersistInterval <= 0 {
		opts.IndexPersistInterval = 30 * time.Second
	}
	if opts.ConverterPath == "" {
		opts.ConverterPath = "ffmpeg"
	}
	if opts.ProberPath == "" {
		opts.ProberPath = "ffprobe"
	}
	if opts.CacheRoot == "" {
		return nil, fmt.Errorf("transcode: cache root is required")
	}

	converterPath, err := exec.LookPath(opts.ConverterPath)
	available := err == nil
	if !available {
		logger.Warn("converter not found on PATH, transcoding disabled", "converter", opts.ConverterPath)
		converterPath = opts.ConverterPath
	}

	if err := os.MkdirAll(opts.CacheRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}

	inUse := newInUseSet()
	index := NewCacheIndex(opts.CacheRoot, logger)

	f := &Facade{
		opts:                opts,
		logger:              logger,
		converterAvailable:  available,
		index:               index,
		evictor:             NewEvictor(opts.CacheRoot, opts.MaxCacheSizeBytes, index, inUse, logger),
		failures:            NewFailureLedger(opts.FailureBackoff),
		inUse:               inUse,
		flights:             newFlightRegistry(),
		streamingPool:       NewPool("streaming", opts.MaxStreamingConcurrency),
		downloadPool:        NewPool("download", opts.MaxDownloadConcurrency),
		prober:              NewProber(opts.ProberPath, logger),
		codec:               NewCodecSelector(converterPath, logger),
		executor:            NewExecutor(converterPath, opts.CacheRoot, opts.TranscodeTimeout, logger),
	}
	f.streamingPool.SetSibling(f.downloadPool)
	f.downloadPool.SetSibling(f.streamingPool)

	return f, nil
}

// IsEnabled reports whether the converter was found on PATH at construction.
func (f *Facade) IsEnabled() bool {
	return f.converterAvailable
}

// Start loads the cache index (from file or by scanning the cache
// directory) and begins the periodic persist timer.
func (f *Facade) Start(ctx context.Context) error {
	if err := f.index.Load(); err != nil {
		return fmt.Errorf("load cache index: %w", err)
	}

	persistCtx, cancel := context.WithCancel(ctx)
	f.persistCancel = cancel
	f.persistWG.Add(1)
	go func() {
		defer f.persistWG.Done()
		ticker := time.NewTicker(f.opts.IndexPersistInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := f.index.PersistIfDirty(); err != nil {
					f.logger.Warn("periodic index persist failed", "error", err)
				}
			case <-persistCtx.Done():
				return
			}
		}
	}()

	return nil
}

// Shutdown cancels the persistence timer and forces a synchronous index
// flush. Safe to call even if the index is clean.
func (f *Facade) Shutdown() error {
	if f.persistCancel != nil {
		f.persistCancel()
		f.persistWG.Wait()
	}
	if f.index.Dirty() {
		return f.index.Persist()
	}
	return nil
}

// CacheSize returns the current running total size of cached transcodes.
func (f *Facade) CacheSize() uint64 {
	return f.index.TotalSize()
}

// MarkInUse pins the cache entry for songID/preset against eviction.
func (f *Facade) MarkInUse(songID, presetName string) error {
	preset, ok := LookupPreset(presetName)
	if !ok {
		return &ErrUnknownPreset{Name: presetName}
	}
	f.inUse.mark(Fingerprint(songID, preset.Name))
	return nil
}

// ReleaseInUse unpins the cache entry for songID/preset.
func (f *Facade) ReleaseInUse(songID, presetName string) error {
	preset, ok := LookupPreset(presetName)
	if !ok {
		return &ErrUnknownPreset{Name: presetName}
	}
	f.inUse.release(Fingerprint(songID, preset.Name))
	return nil
}

// InvalidateSong deletes any cached file and index entry for songID across
// every preset that requires transcoding.
func (f *Facade) InvalidateSong(songID string) error {
	for _, preset := range TranscodingPresets() {
		fp := Fingerprint(songID, preset.Name)
		relPath, ok := f.index.Get(fp)
		if !ok {
			continue
		}
		abs := filepath.Join(f.opts.CacheRoot, relPath)
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			f.logger.Warn("invalidate_song: failed to delete cache file", "song_id", songID, "path", abs, "error", err)
		}
		f.index.Remove(fp)
	}
	return f.index.Persist()
}

// ClearCache deletes the cache directory recursively and resets every
// in-memory structure: index, total size, dirty flag, in-use set, and
// failure ledger.
func (f *Facade) ClearCache() error {
	if err := os.RemoveAll(f.opts.CacheRoot); err != nil {
		return fmt.Errorf("remove cache root: %w", err)
	}
	if err := os.MkdirAll(f.opts.CacheRoot, 0o755); err != nil {
		return fmt.Errorf("recreate cache root: %w", err)
	}
	f.index.reset()
	f.inUse = newInUseSet()
	f.failures = NewFailureLedger(f.opts.FailureBackoff)
	return nil
}

// GetCachedTranscode is spec.md §4.9's get_cached_transcode. A non-nil
// error indicates a programmer-facing misuse (unknown preset); ok=false
// with a nil error is the uniform "absence" signal for every domain-level
// reason (passthrough, disabled, backoff, probe-skip, or failed transcode).
// The caller owns the returned file and must Close it.
func (f *Facade) GetCachedTranscode(ctx context.Context, source, songID, presetName string) (*os.File, bool, error) {
	preset, ok := LookupPreset(presetName)
	if !ok {
		return nil, false, &ErrUnknownPreset{Name: presetName}
	}
	if !preset.RequiresTranscoding {
		return nil, false, nil
	}
	if !f.IsEnabled() {
		return nil, false, nil
	}

	fp := Fingerprint(songID, preset.Name)
	if f.failures.ShouldSkip(fp) {
		return nil, false, nil
	}

	if relPath, ok := f.index.Get(fp); ok {
		abs := filepath.Join(f.opts.CacheRoot, relPath)
		file, err := os.Open(abs) //#nosec G304 -- path built from server-controlled cache_root + index entry
		if err == nil {
			f.index.Touch(fp)
			return file, true, nil
		}
		f.index.Remove(fp)
	}

	props := f.prober.Probe(ctx, source)
	if ShouldSkip(props, preset) {
		return nil, false, nil
	}

	result, err := f.runCoalescedFileTranscode(ctx, source, songID, preset, fp)
	if err != nil {
		return nil, false, nil
	}

	file, err := os.Open(result) //#nosec G304 -- path returned by our own executor
	if err != nil {
		return nil, false, nil
	}
	return file, true, nil
}

// runCoalescedFileTranscode claims the single-flight slot for fp (or awaits
// an already in-flight one), runs the file executor under the streaming
// pool, and returns the absolute path of the resulting cache file.
func (f *Facade) runCoalescedFileTranscode(ctx context.Context, source, songID string, preset Preset, fp string) (string, error) {
	slot, owner := f.flights.claim(fp)
	if !owner {
		v, err := slot.await(ctx)
		if err != nil {
			return "", err
		}
		return v.(string), nil
	}

	if err := f.streamingPool.Acquire(ctx); err != nil {
		f.flights.resolve(fp, nil, err)
		return "", err
	}

	codec := f.codec.PreferredAudioCodec()
	res, ok := f.executor.RunFile(ctx, source, codec, preset, songID)
	f.streamingPool.Release()

	if !ok {
		f.failures.Record(fp, "transcode failed")
		f.flights.resolve(fp, nil, errTranscodeFailed)
		return "", errTranscodeFailed
	}

	f.index.Insert(fp, relativePath(songID, preset.Name, preset.FileExtension), uint64(res.Size))
	f.failures.Clear(fp)
	f.evictor.MaybeEvict()

	f.flights.resolve(fp, res.AbsPath, nil)
	return res.AbsPath, nil
}

// LiveTranscode is the result of start_live_transcode: a live byte stream
// plus a future resolving to the completed cache file once the tee
// finishes (or nil on failure), and the preset's MIME type.
type LiveTranscode struct {
	Stream   io.ReadCloser
	Eventual <-chan EventualFile
	MimeType string
}

// EventualFile is the eventual outcome of a streaming tee's cache fill.
type EventualFile struct {
	AbsPath string
	OK      bool
}

// StartLiveTranscode is spec.md §4.9's start_live_transcode. Unlike
// GetCachedTranscode, a single-flight conflict or a full streaming pool
// both return absence immediately rather than waiting — live streaming
// cannot be usefully queued, the client needs a decision now.
func (f *Facade) StartLiveTranscode(ctx context.Context, source, songID, presetName string) (*LiveTranscode, bool, error) {
	preset, ok := LookupPreset(presetName)
	if !ok {
		return nil, false, &ErrUnknownPreset{Name: presetName}
	}
	if !preset.RequiresTranscoding || !f.IsEnabled() {
		return nil, false, nil
	}

	fp := Fingerprint(songID, preset.Name)
	if f.failures.ShouldSkip(fp) {
		return nil, false, nil
	}
	if _, cached := f.index.Get(fp); cached {
		return nil, false, nil
	}

	props := f.prober.Probe(ctx, source)
	if ShouldSkip(props, preset) {
		return nil, false, nil
	}

	slot, owner := f.flights.claim(fp)
	if !owner {
		return nil, false, nil // single-flight conflict: caller picks another path
	}

	if !f.streamingPool.TryAcquire() {
		f.flights.resolve(fp, nil, errNotNow)
		return nil, false, nil
	}

	pr, pw := io.Pipe()
	eventual := make(chan EventualFile, 1)

	go func() {
		defer f.streamingPool.Release()
		defer pw.Close()

		codec := f.codec.PreferredAudioCodec()
		res, ok := f.executor.RunTee(ctx, source, codec, preset, songID, pw)
		if !ok {
			f.failures.Record(fp, "tee transcode failed")
			f.flights.resolve(fp, nil, errTranscodeFailed)
			eventual <- EventualFile{OK: false}
			close(eventual)
			return
		}

		finalAbs := filepath.Join(f.opts.CacheRoot, relativePath(songID, preset.Name, preset.FileExtension))
		if err := os.Rename(res.AbsPath, finalAbs); err != nil {
			f.logger.Warn("tee: failed to rename into cache", "error", err)
			os.Remove(res.AbsPath)
			f.failures.Record(fp, "tee rename failed")
			f.flights.resolve(fp, nil, errTranscodeFailed)
			eventual <- EventualFile{OK: false}
			close(eventual)
			return
		}

		f.index.Insert(fp, relativePath(songID, preset.Name, preset.FileExtension), uint64(res.Size))
		f.failures.Clear(fp)
		f.evictor.MaybeEvict()
		f.flights.resolve(fp, finalAbs, nil)

		eventual <- EventualFile{AbsPath: finalAbs, OK: true}
		close(eventual)
	}()

	return &LiveTranscode{Stream: pr, Eventual: eventual, MimeType: preset.MimeType}, true, nil
}

// EphemeralResult is the outcome of get_ephemeral_transcode: a one-shot
// file outside the cache tree the caller must delete after consumption.
type EphemeralResult struct {
	AbsPath      string
	ShouldDelete bool
}

// GetEphemeralTranscode is spec.md §4.9's get_ephemeral_transcode. Never
// touches the cache index; runs under the download pool with blocking
// admission (the caller waits, unlike start_live_transcode).
func (f *Facade) GetEphemeralTranscode(ctx context.Context, source, songID, presetName string) (*EphemeralResult, bool, error) {
	preset, ok := LookupPreset(presetName)
	if !ok {
		return nil, false, &ErrUnknownPreset{Name: presetName}
	}
	if !preset.RequiresTranscoding || !f.IsEnabled() {
		return nil, false, nil
	}

	fp := DownloadFingerprint(songID, preset.Name)
	if f.failures.ShouldSkip(fp) {
		return nil, false, nil
	}

	props := f.prober.Probe(ctx, source)
	if ShouldSkip(props, preset) {
		return nil, false, nil
	}

	if err := f.downloadPool.Acquire(ctx); err != nil {
		return nil, false, nil
	}
	defer f.downloadPool.Release()

	codec := f.codec.PreferredAudioCodec()
	res, ok := f.executor.RunEphemeral(ctx, source, codec, preset, songID)
	if !ok {
		f.failures.Record(fp, "ephemeral transcode failed")
		return nil, false, nil
	}
	f.failures.Clear(fp)

	return &EphemeralResult{AbsPath: res.AbsPath, ShouldDelete: true}, true, nil
}
