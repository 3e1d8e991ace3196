package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/soundvault/soundvault-server/internal/http/response"
	"github.com/soundvault/soundvault-server/internal/store"
	"github.com/soundvault/soundvault-server/internal/transcode"
)

// handleStreamAudio streams an audio file with HTTP Range support for seeking.
// GET /api/v1/books/{id}/audio/{audioFileId}
// Optional query param: ?preset=low|medium|high to serve a transcoded stream.
func (s *Server) handleStreamAudio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := mustGetUserID(ctx)
	bookID := chi.URLParam(r, "id")
	audioFileID := chi.URLParam(r, "audioFileId")
	presetName := r.URL.Query().Get("preset")

	if bookID == "" {
		response.BadRequest(w, "Book ID is required", s.logger)
		return
	}

	if audioFileID == "" {
		response.BadRequest(w, "Audio file ID is required", s.logger)
		return
	}

	// Get book (handles access control).
	book, err := s.services.Book.GetBook(ctx, userID, bookID)
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		s.logger.Error("Failed to get book", "error", err, "book_id", bookID)
		response.InternalError(w, "Failed to retrieve book", s.logger)
		return
	}

	// Find the audio file.
	var audioFilePath string
	var audioFormat string
	for _, af := range book.AudioFiles {
		if af.ID == audioFileID {
			audioFilePath = af.Path
			audioFormat = af.Format
			break
		}
	}

	if audioFilePath == "" {
		response.NotFound(w, "Audio file not found", s.logger)
		return
	}

	// Check if requesting a transcoded preset.
	if presetName != "" && presetName != "original" {
		if _, ok := transcode.LookupPreset(presetName); !ok {
			response.BadRequest(w, "Unknown preset", s.logger)
			return
		}
		s.streamTranscodedAudio(w, r, audioFileID, audioFilePath, presetName)
		return
	}

	// Serve original file.
	s.streamOriginalAudio(w, r, bookID, audioFileID, audioFilePath, audioFormat)
}

// streamOriginalAudio serves the original audio file.
func (s *Server) streamOriginalAudio(w http.ResponseWriter, r *http.Request, bookID, audioFileID, path, format string) {
	// Verify file exists on disk.
	if _, err := os.Stat(path); os.IsNotExist(err) {
		s.logger.Error("Audio file missing from disk",
			"book_id", bookID,
			"audio_file_id", audioFileID,
			"path", path,
		)
		response.NotFound(w, "Audio file not found on disk", s.logger)
		return
	}

	// Set content type based on format.
	contentType := getAudioContentType(format)
	w.Header().Set("Content-Type", contentType)

	// Allow caching (audio files don't change).
	w.Header().Set("Cache-Control", CacheOneDayPrivate)

	// http.ServeFile handles:
	// - Range requests (partial content, 206 responses)
	// - Content-Length and Content-Range headers
	// - Accept-Ranges: bytes header
	// - If-Range conditional requests
	// - Last-Modified based caching
	http.ServeFile(w, r, path)
}

// streamTranscodedAudio serves a transcoded stream at the requested preset.
// When the preset is already cached it is served like a normal file (Range
// support included); otherwise it starts a live transcode and tees the
// encoder's stdout to the response as bytes become available, so playback
// can begin before the cache fill completes.
func (s *Server) streamTranscodedAudio(w http.ResponseWriter, r *http.Request, audioFileID, originalPath, presetName string) {
	ctx := r.Context()

	if s.services.Transcode == nil || !s.services.Transcode.IsEnabled() {
		s.logger.Warn("Transcode requested but transcoding is disabled",
			"audio_file_id", audioFileID,
		)
		response.NotFound(w, "Transcoded variant not available", s.logger)
		return
	}

	preset, _ := transcode.LookupPreset(presetName)

	if cached, ok, err := s.services.Transcode.GetCachedTranscode(ctx, originalPath, audioFileID, presetName); err == nil && ok {
		defer cached.Close()
		w.Header().Set("Content-Type", preset.MimeType)
		w.Header().Set("Cache-Control", CacheOneDayPrivate)
		http.ServeContent(w, r, audioFileID+"."+preset.FileExtension, cachedModTime(cached), cached)
		return
	}

	live, ok, err := s.services.Transcode.StartLiveTranscode(ctx, originalPath, audioFileID, presetName)
	if err != nil {
		s.logger.Error("Failed to start live transcode", "error", err, "audio_file_id", audioFileID, "preset", presetName)
		response.InternalError(w, "Failed to transcode audio", s.logger)
		return
	}
	if !ok {
		response.NotFound(w, "Transcoded variant not available", s.logger)
		return
	}
	defer live.Stream.Close()

	w.Header().Set("Content-Type", live.MimeType)
	w.Header().Set("Cache-Control", CacheNoStore)
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := live.Stream.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				s.logger.Warn("Client disconnected during live transcode stream", "audio_file_id", audioFileID)
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				s.logger.Warn("Live transcode stream ended with error", "error", readErr, "audio_file_id", audioFileID)
			}
			return
		}
	}
}

// cachedModTime returns the modification time of a cached transcode file,
// falling back to the zero time if it cannot be determined.
func cachedModTime(f *os.File) time.Time {
	info, err := f.Stat()
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// getAudioContentType returns the MIME type for an audio format.
func getAudioContentType(format string) string {
	switch strings.ToLower(format) {
	case "mp3":
		return "audio/mpeg"
	case "m4a", "m4b", "mp4":
		return "audio/mp4"
	case "ogg", "oga", "opus":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	case "wav":
		return "audio/wav"
	case "aac":
		return "audio/aac"
	case "wma":
		return "audio/x-ms-wma"
	default:
		return "application/octet-stream"
	}
}
