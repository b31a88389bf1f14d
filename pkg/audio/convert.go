package audio

import (
	"encoding/binary"
	"log/slog"
)

// ConvertPCM converts 16-bit little-endian PCM between formats. Audio is
// resampled first, then re-channelled: any layout folds down to mono by
// averaging a frame, and mono fans out by copying the sample to every
// channel. Matching formats return pcm itself. A trailing odd byte is
// dropped.
func ConvertPCM(pcm []byte, from, to PCMFormat) []byte {
	if len(pcm)%2 != 0 {
		slog.Warn("audio: dropping trailing byte of odd-length PCM", "bytes", len(pcm), "format", from.String())
		pcm = pcm[:len(pcm)-1]
	}
	if from == to {
		return pcm
	}
	ch := max(from.Channels, 1)
	s := samples(pcm)
	if from.SampleRate != to.SampleRate {
		s = resample(s, ch, from.SampleRate, to.SampleRate)
	}
	if want := max(to.Channels, 1); want != ch {
		if ch > 1 {
			s = downmix(s, ch)
		}
		if want > 1 {
			s = fanout(s, want)
		}
	}
	return pcmBytes(s)
}

func samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return out
}

func pcmBytes(s []int16) []byte {
	out := make([]byte, 2*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

// downmix averages each frame of ch interleaved channels into one sample.
// A partial trailing frame is dropped.
func downmix(s []int16, ch int) []int16 {
	out := make([]int16, len(s)/ch)
	for i := range out {
		var sum int32
		for _, v := range s[i*ch : (i+1)*ch] {
			sum += int32(v)
		}
		out[i] = int16(sum / int32(ch))
	}
	return out
}

// fanout copies every mono sample into ch channels.
func fanout(s []int16, ch int) []int16 {
	out := make([]int16, 0, len(s)*ch)
	for _, v := range s {
		for range ch {
			out = append(out, v)
		}
	}
	return out
}

// resample converts interleaved audio between rates by linear interpolation
// per channel. Non-positive rates leave the audio unchanged.
func resample(s []int16, ch, src, dst int) []int16 {
	frames := len(s) / ch
	if src <= 0 || dst <= 0 || frames == 0 {
		return s
	}
	n := int(int64(frames) * int64(dst) / int64(src))
	out := make([]int16, n*ch)
	step := float64(src) / float64(dst)
	for i := range n {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		next := min(j+1, frames-1)
		for c := range ch {
			a, b := float64(s[j*ch+c]), float64(s[next*ch+c])
			out[i*ch+c] = int16(a + (b-a)*frac)
		}
	}
	return out
}
