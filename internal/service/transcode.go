package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/soundvault/soundvault-server/internal/config"
	"github.com/soundvault/soundvault-server/internal/domain"
	"github.com/soundvault/soundvault-server/internal/sse"
	"github.com/soundvault/soundvault-server/internal/store"
	"github.com/soundvault/soundvault-server/internal/transcode"
)

// TranscodeService adapts the on-demand transcode cache (internal/transcode)
// to the rest of the server: it translates config.TranscodeConfig into
// transcode.Options, emits SSE events on cache-fill completion/failure, and
// implements scanner.TranscodeQueuer / store.TranscodeDeleter so the
// scanner, store, and DI wiring need only mechanical adjustment.
type TranscodeService struct {
	facade  *transcode.Facade
	store   *store.Store
	emitter *sse.Manager
	logger  *slog.Logger
	config  config.TranscodeConfig

	ctx    context.Context //nolint:containedctx // background context for warm-ups and the index persist timer
	cancel context.CancelFunc
}

// NewTranscodeService creates a new transcode service. A missing ffmpeg/
// ffprobe on PATH does not fail construction: the facade disables itself
// (IsEnabled() == false) and every operation becomes a no-op, matching the
// rest of the server's "degrade, don't crash" posture for optional audio
// tooling.
func NewTranscodeService(
	bookStore *store.Store,
	emitter *sse.Manager,
	cfg config.TranscodeConfig,
	logger *slog.Logger,
) (*TranscodeService, error) {
	opts := transcode.DefaultOptions(cfg.CachePath)
	if cfg.MaxCacheSizeBytes > 0 {
		opts.MaxCacheSizeBytes = uint64(cfg.MaxCacheSizeBytes)
	}
	if cfg.MaxStreamingConcurrency > 0 {
		opts.MaxStreamingConcurrency = cfg.MaxStreamingConcurrency
	}
	if cfg.MaxDownloadConcurrency > 0 {
		opts.MaxDownloadConcurrency = cfg.MaxDownloadConcurrency
	}
	if cfg.TranscodeTimeout > 0 {
		opts.TranscodeTimeout = cfg.TranscodeTimeout
	}
	if cfg.FailureBackoff > 0 {
		opts.FailureBackoff = cfg.FailureBackoff
	}
	if cfg.IndexPersistInterval > 0 {
		opts.IndexPersistInterval = cfg.IndexPersistInterval
	}
	if cfg.FFmpegPath != "" {
		opts.ConverterPath = cfg.FFmpegPath
	}
	if cfg.FFprobePath != "" {
		opts.ProberPath = cfg.FFprobePath
	}

	facade, err := transcode.NewFacade(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("construct transcode facade: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TranscodeService{
		facade:  facade,
		store:   bookStore,
		emitter: emitter,
		logger:  logger,
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start loads the cache index and begins the periodic persist timer.
func (s *TranscodeService) Start() {
	if !s.config.Enabled {
		s.logger.Info("transcoding disabled, not starting cache index")
		return
	}
	if err := s.facade.Start(s.ctx); err != nil {
		s.logger.Error("failed to start transcode cache", slog.Any("error", err))
	}
}

// Stop cancels the persist timer and flushes the cache index.
func (s *TranscodeService) Stop() {
	s.cancel()
	if err := s.facade.Shutdown(); err != nil {
		s.logger.Warn("failed to flush cache index on shutdown", slog.Any("error", err))
	}
}

// IsEnabled returns whether transcoding is enabled and the converter was
// found on PATH.
func (s *TranscodeService) IsEnabled() bool {
	return s.config.Enabled && s.facade.IsEnabled()
}

// CacheSize returns the current total size of cached transcodes in bytes.
func (s *TranscodeService) CacheSize() uint64 {
	return s.facade.CacheSize()
}

// GetCachedTranscode returns a cached or freshly transcoded file for
// songID at presetName, transcoding sourcePath on a cache miss. ok is false
// for every domain-level reason absence is legitimate (passthrough preset,
// disabled subsystem, backoff, or a source already below the preset's
// target bitrate); the caller falls back to serving the source directly.
func (s *TranscodeService) GetCachedTranscode(ctx context.Context, sourcePath, songID, presetName string) (*os.File, bool, error) {
	return s.facade.GetCachedTranscode(ctx, sourcePath, songID, presetName)
}

// StartLiveTranscode begins a streaming tee transcode of sourcePath,
// returning the live byte stream immediately and emitting an SSE
// transcode.complete or transcode.failed event once the cache fill
// finishes in the background.
func (s *TranscodeService) StartLiveTranscode(_ context.Context, sourcePath, songID, presetName string) (*transcode.LiveTranscode, bool, error) {
	live, ok, err := s.facade.StartLiveTranscode(s.ctx, sourcePath, songID, presetName)
	if err != nil || !ok {
		return nil, ok, err
	}

	fp := transcode.Fingerprint(songID, presetName)
	go func() {
		result, open := <-live.Eventual
		if !open {
			return
		}
		if result.OK {
			s.emitter.Emit(sse.NewTranscodeCompleteEvent(fp, songID, presetName))
		} else {
			s.emitter.Emit(sse.NewTranscodeFailedEvent(fp, songID, presetName, "transcode failed"))
		}
	}()

	return live, true, nil
}

// GetEphemeralTranscode returns a one-shot transcoded file outside the
// cache tree; the caller must delete it after consumption.
func (s *TranscodeService) GetEphemeralTranscode(ctx context.Context, sourcePath, songID, presetName string) (*transcode.EphemeralResult, bool, error) {
	return s.facade.GetEphemeralTranscode(ctx, sourcePath, songID, presetName)
}

// MarkInUse pins the cache entry for songID/presetName against eviction
// for the duration of active playback.
func (s *TranscodeService) MarkInUse(songID, presetName string) error {
	return s.facade.MarkInUse(songID, presetName)
}

// ReleaseInUse unpins the cache entry for songID/presetName.
func (s *TranscodeService) ReleaseInUse(songID, presetName string) error {
	return s.facade.ReleaseInUse(songID, presetName)
}

// InvalidateSong deletes every cached transcode of songID across all
// presets, e.g. after a re-scan replaces the underlying source file.
func (s *TranscodeService) InvalidateSong(songID string) error {
	return s.facade.InvalidateSong(songID)
}

// ClearCache deletes the entire transcode cache and resets all in-memory
// bookkeeping. Used by the operator CLI's "cache clear" subcommand.
func (s *TranscodeService) ClearCache() error {
	return s.facade.ClearCache()
}

// DeleteTranscodesForBook implements store.TranscodeDeleter. Audio files
// are the facade's song IDs, so a book-level delete fans out into one
// InvalidateSong per audio file the book has.
func (s *TranscodeService) DeleteTranscodesForBook(ctx context.Context, bookID string) error {
	if s.store == nil {
		return nil
	}
	book, err := s.store.GetBookNoAccessCheck(ctx, bookID)
	if err != nil {
		return fmt.Errorf("load book %s: %w", bookID, err)
	}

	var firstErr error
	for _, audioFile := range book.AudioFiles {
		if err := s.facade.InvalidateSong(audioFile.ID); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("invalidate song %s (book %s): %w", audioFile.ID, bookID, err)
		}
	}
	return firstErr
}

// QueueTranscode implements scanner.TranscodeQueuer. Rather than enqueue a
// DB-tracked job, it warms the medium preset in the background on the
// streaming pool so first playback after a scan doesn't pay transcode
// latency. A failed warm is logged and swallowed: the cache stays cold
// until the next real playback request, handled by GetCachedTranscode's
// own failure backoff.
func (s *TranscodeService) QueueTranscode(_ context.Context, _, audioFileID, sourcePath, sourceCodec string) error {
	if !s.IsEnabled() {
		return nil
	}
	if !domain.NeedsTranscode(sourceCodec) {
		return nil
	}

	go func() {
		file, ok, err := s.facade.GetCachedTranscode(s.ctx, sourcePath, audioFileID, transcode.PresetMedium)
		if err != nil {
			s.logger.Warn("background warm failed", slog.String("audio_file_id", audioFileID), slog.Any("error", err))
			return
		}
		if !ok {
			return
		}
		file.Close()
	}()

	return nil
}
