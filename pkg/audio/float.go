package audio

// Float32Mono decodes 16-bit little-endian PCM with the given channel count
// into mono float32 samples in [-1, 1], averaging each frame. A partial
// trailing frame is dropped.
func Float32Mono(pcm []byte, channels int) []float32 {
	ch := max(channels, 1)
	s := samples(pcm)
	out := make([]float32, len(s)/ch)
	for i := range out {
		var sum float32
		for _, v := range s[i*ch : (i+1)*ch] {
			sum += float32(v)
		}
		out[i] = sum / float32(ch) / 32768
	}
	return out
}
