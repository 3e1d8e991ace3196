package api

import (
	"context"
	"encoding/json/v2"
	"errors"
	"net/http"

	"github.com/soundvault/soundvault-server/internal/domain"
	"github.com/soundvault/soundvault-server/internal/http/response"
	"github.com/soundvault/soundvault-server/internal/store"
	"github.com/soundvault/soundvault-server/internal/transcode"
)

// PreparePlaybackRequest is the request body for preparing playback.
type PreparePlaybackRequest struct {
	BookID       string   `json:"book_id"`
	AudioFileID  string   `json:"audio_file_id"`
	Capabilities []string `json:"capabilities"` // Codecs the client can decode (e.g., ["aac", "ac4"])
	Preset       string   `json:"preset"`        // Desired quality preset; defaults to "medium" when transcoding is needed
}

// PreparePlaybackResponse is the response from the prepare endpoint.
type PreparePlaybackResponse struct {
	// Ready indicates the stream at StreamURL can be played immediately.
	Ready bool `json:"ready"`

	// StreamURL is the URL to stream the audio.
	StreamURL string `json:"stream_url"`

	// Preset is the quality preset actually served: "original" or one of
	// the transcoding presets ("low", "medium", "high").
	Preset string `json:"preset"`

	// Codec is the codec of the stream that will be served.
	Codec string `json:"codec"`
}

// handlePreparePlayback negotiates the best audio format for playback.
// POST /api/v1/playback/prepare
//
// The client sends its supported codecs and desired quality preset; the
// server returns the original stream URL when the source is already
// playable, or a transcoded stream URL at the requested preset otherwise.
func (s *Server) handlePreparePlayback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := getUserID(ctx)

	if userID == "" {
		response.Unauthorized(w, "Authentication required", s.logger)
		return
	}

	var req PreparePlaybackRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid request body", s.logger)
		return
	}

	if req.BookID == "" {
		response.BadRequest(w, "book_id is required", s.logger)
		return
	}

	if req.AudioFileID == "" {
		response.BadRequest(w, "audio_file_id is required", s.logger)
		return
	}

	presetName := req.Preset
	if presetName == "" {
		presetName = transcode.PresetMedium
	}
	if _, ok := transcode.LookupPreset(presetName); !ok {
		response.BadRequest(w, "unknown preset", s.logger)
		return
	}

	// Get book (handles access control).
	book, err := s.services.Book.GetBook(ctx, userID, req.BookID)
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			response.NotFound(w, "Book not found", s.logger)
			return
		}
		s.logger.Error("Failed to get book", "error", err, "book_id", req.BookID)
		response.InternalError(w, "Failed to retrieve book", s.logger)
		return
	}

	// Find the audio file.
	audioFile := book.GetAudioFileByID(req.AudioFileID)
	if audioFile == nil {
		response.NotFound(w, "Audio file not found", s.logger)
		return
	}

	clientSupportsSource := s.clientSupportsCodec(req.Capabilities, audioFile.Codec)

	s.logger.Debug("PreparePlayback decision",
		"audio_file_id", audioFile.ID,
		"source_codec", audioFile.Codec,
		"client_capabilities", req.Capabilities,
		"preset", presetName,
		"client_supports_source", clientSupportsSource,
	)

	if clientSupportsSource {
		resp := PreparePlaybackResponse{
			Ready:     true,
			StreamURL: s.buildStreamURL(req.BookID, req.AudioFileID, "original"),
			Preset:    "original",
			Codec:     audioFile.Codec,
		}
		response.Success(w, resp, s.logger)
		return
	}

	resp, err := s.prepareTranscodedPlayback(ctx, book, audioFile, presetName)
	if err != nil {
		s.logger.Error("Failed to prepare transcoded playback",
			"error", err,
			"book_id", req.BookID,
			"audio_file_id", req.AudioFileID,
			"preset", presetName,
		)
		response.InternalError(w, "Failed to prepare playback", s.logger)
		return
	}

	response.Success(w, resp, s.logger)
}

// prepareTranscodedPlayback handles the case where the client cannot decode
// the source codec. It serves the cached transcode for the requested
// preset, transcoding synchronously on a cache miss, and falls back to the
// original file when transcoding is unavailable or declines (the facade's
// absence signal covers disabled/backoff/already-below-target).
func (s *Server) prepareTranscodedPlayback(
	ctx context.Context,
	book *domain.Book,
	audioFile *domain.AudioFileInfo,
	presetName string,
) (*PreparePlaybackResponse, error) {
	if s.services.Transcode == nil || !s.services.Transcode.IsEnabled() {
		return &PreparePlaybackResponse{
			Ready:     true,
			StreamURL: s.buildStreamURL(book.ID, audioFile.ID, "original"),
			Preset:    "original",
			Codec:     audioFile.Codec,
		}, nil
	}

	file, ok, err := s.services.Transcode.GetCachedTranscode(ctx, audioFile.Path, audioFile.ID, presetName)
	if err != nil {
		return nil, err
	}
	if ok {
		file.Close()
		return &PreparePlaybackResponse{
			Ready:     true,
			StreamURL: s.buildStreamURL(book.ID, audioFile.ID, presetName),
			Preset:    presetName,
			Codec:     "aac",
		}, nil
	}

	// Transcoding declined for a domain-level reason (disabled, recent
	// failure, or the source is already at/below the target bitrate).
	// Serve the original so playback doesn't stall.
	return &PreparePlaybackResponse{
		Ready:     true,
		StreamURL: s.buildStreamURL(book.ID, audioFile.ID, "original"),
		Preset:    "original",
		Codec:     audioFile.Codec,
	}, nil
}

// clientSupportsCodec checks if the client's capability list includes the codec.
func (s *Server) clientSupportsCodec(capabilities []string, codec string) bool {
	// If no capabilities provided, assume client supports common codecs.
	if len(capabilities) == 0 {
		return !domain.NeedsTranscode(codec)
	}

	// Normalize codec name for comparison.
	normalizedCodec := normalizeCodecName(codec)

	for _, cap := range capabilities {
		if normalizeCodecName(cap) == normalizedCodec {
			return true
		}
	}

	return false
}

// normalizeCodecName normalizes codec names for comparison.
func normalizeCodecName(codec string) string {
	switch codec {
	case "aac", "mp4a", "mp4a-latm":
		return "aac"
	case "mp3", "mp3float", "libmp3lame":
		return "mp3"
	case "opus", "libopus":
		return "opus"
	case "vorbis", "libvorbis":
		return "vorbis"
	case "flac":
		return "flac"
	case "pcm_s16le", "pcm_s24le", "pcm_s32le", "pcm_f32le":
		return "pcm"
	case "ac3", "eac3", "ac-3", "e-ac-3":
		return "ac3"
	case "ac4", "ac-4":
		return "ac4"
	case "dts", "dca":
		return "dts"
	case "wma", "wmav1", "wmav2", "wmapro":
		return "wma"
	case "truehd", "mlp":
		return "truehd"
	default:
		return codec
	}
}

// buildStreamURL constructs the URL for streaming audio at the given preset
// ("original" or a quality preset name).
func (s *Server) buildStreamURL(bookID, audioFileID, preset string) string {
	return "/api/v1/books/" + bookID + "/audio/" + audioFileID + "?preset=" + preset
}
