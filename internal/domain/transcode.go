package domain

// QualityPreset is the API-facing view of a transcode quality tier: the
// named preset plus the properties a client needs to request or render it.
// It mirrors internal/transcode's closed preset table without importing
// that package from domain.
type QualityPreset struct {
	Name                string `json:"name"`
	TargetBitrateKbps   int    `json:"targetBitrateKbps,omitempty"`
	MimeType            string `json:"mimeType,omitempty"`
	RequiresTranscoding bool   `json:"requiresTranscoding"`
}

// ProblematicCodecs lists audio codecs that require transcoding for universal playback.
// These formats require hardware decoders that not all devices have.
//
// Note: Some codecs (ac4) are proprietary. Standard FFmpeg lacks decoders,
// but librempeg includes them. If transcoding fails due to missing decoder,
// playback for that codec isn't possible and the client falls back accordingly.
var ProblematicCodecs = map[string]bool{
	"ac3":    true, // Dolby Digital
	"eac3":   true, // Dolby Digital Plus
	"ac4":    true, // Dolby AC-4 (used for Dolby Atmos) - requires librempeg to decode
	"ac-4":   true, // Dolby AC-4 (ffprobe reports with hyphen)
	"truehd": true, // Dolby TrueHD
	"dts":    true, // DTS
	"wma":    true, // Windows Media Audio
}

// NeedsTranscode returns true if the given codec requires transcoding.
func NeedsTranscode(codec string) bool {
	return ProblematicCodecs[codec]
}
