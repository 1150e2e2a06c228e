package whisper

// buildExtractArgs converts any media input to mono 16 kHz PCM WAV.
func buildExtractArgs(source, dest string) []string {
	return []string{
		"-y",
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-acodec", "pcm_s16le",
		"-ar", SampleRate,
		"-ac", "1",
		dest,
	}
}
