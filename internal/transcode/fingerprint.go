package transcode

import "fmt"

// Fingerprint returns the cache key for a song transcoded to a preset:
// "{song_id}_{preset_name}".
func Fingerprint(songID, presetName string) string {
	return fmt.Sprintf("%s_%s", songID, presetName)
}

// DownloadFingerprint returns the failure-tracking key for an ephemeral
// (download) transcode of a song at a preset: "{song_id}_{preset_name}_download".
func DownloadFingerprint(songID, presetName string) string {
	return fmt.Sprintf("%s_%s_download", songID, presetName)
}

// relativePath returns the cache-relative path for a fingerprint's entry:
// "{preset_name}/{song_id}.{ext}".
func relativePath(songID, presetName, ext string) string {
	return fmt.Sprintf("%s/%s.%s", presetName, songID, ext)
}
