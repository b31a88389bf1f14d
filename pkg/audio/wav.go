package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const bitsPerSample = 16

// ErrUnsupportedWAV is returned by [DecodeWAV] for WAV files that are not
// 16-bit integer PCM.
var ErrUnsupportedWAV = errors.New("audio: only 16-bit PCM WAV is supported")

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func EncodeWAV(pcm []byte, f PCMFormat) []byte {
	byteRate := f.SampleRate * f.Channels * bitsPerSample / 8
	blockAlign := f.Channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                   // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                    // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))     // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))   // block align
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)        // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV reads a RIFF/WAV stream and returns its PCM payload and format.
// Chunks other than "fmt " and "data" (LIST, fact, ...) are skipped.
func DecodeWAV(r io.Reader) ([]byte, PCMFormat, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, PCMFormat{}, fmt.Errorf("audio: read RIFF header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, PCMFormat{}, errors.New("audio: not a RIFF/WAVE stream")
	}

	var (
		f      PCMFormat
		gotFmt bool
	)
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return nil, PCMFormat{}, fmt.Errorf("audio: read chunk header: %w", err)
		}
		id := string(ch[0:4])
		size := int64(binary.LittleEndian.Uint32(ch[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, PCMFormat{}, fmt.Errorf("audio: fmt chunk too short (%d bytes)", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, PCMFormat{}, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			tag := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			// 0xFFFE is WAVE_FORMAT_EXTENSIBLE, which ffmpeg emits for PCM too.
			if (tag != 1 && tag != 0xFFFE) || bits != bitsPerSample {
				return nil, PCMFormat{}, ErrUnsupportedWAV
			}
			f.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			gotFmt = true
		case "data":
			if !gotFmt {
				return nil, PCMFormat{}, errors.New("audio: data chunk before fmt chunk")
			}
			pcm, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, PCMFormat{}, fmt.Errorf("audio: read data chunk: %w", err)
			}
			return pcm, f, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size); err != nil {
				return nil, PCMFormat{}, fmt.Errorf("audio: skip %q chunk: %w", id, err)
			}
		}
		if size%2 == 1 {
			// RIFF chunks are padded to even sizes.
			if _, err := io.CopyN(io.Discard, r, 1); err != nil && !errors.Is(err, io.EOF) {
				return nil, PCMFormat{}, err
			}
		}
	}
}

// Duration returns the playback length of pcm in f, in seconds.
func Duration(pcm []byte, f PCMFormat) float64 {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return float64(len(pcm)) / float64(f.SampleRate*f.Channels*bitsPerSample/8)
}
