// Package audio holds the file-level audio plumbing shared by the
// transcription and synthesis paths: container formats and their MIME
// types, WAV encoding and decoding, PCM resampling and down-mixing, and a
// [Normalizer] that converts synthesized files to a universally playable
// format when an external converter is available.
package audio

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is an audio container format, spelled as its file extension
// without the dot.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatWAV  Format = "wav"
	FormatOGG  Format = "ogg"
	FormatWebM Format = "webm"
	FormatM4A  Format = "m4a"
)

// Ext returns the file extension for f, including the dot.
func (f Format) Ext() string { return "." + string(f) }

// MIMEType returns the Content-Type used when serving f.
func (f Format) MIMEType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	case FormatOGG:
		return "audio/ogg"
	case FormatWebM:
		return "audio/webm"
	case FormatM4A:
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

// FormatOf derives the format from a file name's extension. ok is false for
// unknown extensions.
func FormatOf(name string) (f Format, ok bool) {
	switch Format(strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))) {
	case FormatMP3:
		return FormatMP3, true
	case FormatWAV:
		return FormatWAV, true
	case FormatOGG:
		return FormatOGG, true
	case FormatWebM:
		return FormatWebM, true
	case FormatM4A:
		return FormatM4A, true
	}
	return "", false
}

// PCMFormat describes the sample rate and channel count of 16-bit PCM audio.
type PCMFormat struct {
	SampleRate int
	Channels   int
}

// String formats f as "48000Hz stereo".
func (f PCMFormat) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// SpeechFormat is what speech recognisers expect: 16 kHz mono.
var SpeechFormat = PCMFormat{SampleRate: 16000, Channels: 1}
