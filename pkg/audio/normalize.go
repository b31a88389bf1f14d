package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNoConverter is returned when a conversion needs ffmpeg and none is
// available.
var ErrNoConverter = errors.New("audio: no format converter available")

// NormalizerOption configures a [Normalizer].
type NormalizerOption func(*Normalizer)

// WithFFmpeg sets the ffmpeg binary explicitly instead of searching PATH.
func WithFFmpeg(path string) NormalizerOption {
	return func(n *Normalizer) {
		n.ffmpeg = path
		n.resolved = true
	}
}

// WithoutConverter disables external conversion entirely. Every file is
// passed through unchanged.
func WithoutConverter() NormalizerOption {
	return func(n *Normalizer) {
		n.ffmpeg = ""
		n.resolved = true
	}
}

// WithTarget sets the playable format files are converted to. Defaults to
// [FormatMP3].
func WithTarget(f Format) NormalizerOption {
	return func(n *Normalizer) {
		if f != "" {
			n.target = f
		}
	}
}

// Normalizer converts audio files with ffmpeg. It is safe for concurrent use.
type Normalizer struct {
	target Format

	once     sync.Once
	ffmpeg   string
	resolved bool
}

// NewNormalizer returns a Normalizer targeting mp3. ffmpeg is looked up on
// PATH at first use unless set with [WithFFmpeg] or disabled with
// [WithoutConverter].
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{target: FormatMP3}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Target returns the format files are normalised to.
func (n *Normalizer) Target() Format { return n.target }

// Available reports whether an external converter can be used.
func (n *Normalizer) Available() bool { return n.converter() != "" }

func (n *Normalizer) converter() string {
	n.once.Do(func() {
		if n.resolved {
			return
		}
		if p, err := exec.LookPath("ffmpeg"); err == nil {
			n.ffmpeg = p
		}
	})
	return n.ffmpeg
}

// Normalize converts the file at path (in format f) to the target format and
// removes the intermediate file. If f is already the target, no converter is
// available, or conversion fails, the original file is returned unchanged;
// none of these are errors. converted reports whether a new file was
// produced.
func (n *Normalizer) Normalize(ctx context.Context, path string, f Format) (out string, outFormat Format, converted bool) {
	if f == n.target {
		return path, f, false
	}
	bin := n.converter()
	if bin == "" {
		slog.Info("audio: format conversion skipped, no converter available",
			"path", path, "format", f, "target", n.target)
		return path, f, false
	}

	dst := strings.TrimSuffix(path, filepath.Ext(path)) + n.target.Ext()
	if dst == path {
		return path, f, false
	}
	if err := runFFmpeg(ctx, bin, path, dst, targetCodecArgs(n.target)...); err != nil {
		slog.Warn("audio: format conversion failed, serving original",
			"path", path, "format", f, "target", n.target, "err", err)
		_ = os.Remove(dst)
		return path, f, false
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("audio: remove intermediate file", "path", path, "err", err)
	}
	return dst, n.target, true
}

// ToSpeechWAV writes a 16 kHz mono 16-bit WAV copy of in to out, as speech
// recognisers expect. PCM WAV input is converted in-process; anything else
// needs ffmpeg.
func (n *Normalizer) ToSpeechWAV(ctx context.Context, in, out string) error {
	if f, ok := FormatOf(in); ok && f == FormatWAV {
		err := convertWAV(in, out)
		if err == nil {
			return nil
		}
		slog.Debug("audio: in-process WAV conversion failed, trying ffmpeg", "path", in, "err", err)
	}

	bin := n.converter()
	if bin == "" {
		return fmt.Errorf("audio: convert %q to speech WAV: %w", filepath.Base(in), ErrNoConverter)
	}
	err := runFFmpeg(ctx, bin, in, out,
		"-ar", fmt.Sprint(SpeechFormat.SampleRate),
		"-ac", fmt.Sprint(SpeechFormat.Channels),
		"-codec:a", "pcm_s16le",
	)
	if err != nil {
		_ = os.Remove(out)
		return fmt.Errorf("audio: convert %q to speech WAV: %w", filepath.Base(in), err)
	}
	return nil
}

func convertWAV(in, out string) error {
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	defer f.Close()

	pcm, pf, err := DecodeWAV(f)
	if err != nil {
		return err
	}
	pcm = ConvertPCM(pcm, pf, SpeechFormat)
	return os.WriteFile(out, EncodeWAV(pcm, SpeechFormat), 0o644)
}

func targetCodecArgs(f Format) []string {
	switch f {
	case FormatMP3:
		return []string{"-codec:a", "libmp3lame", "-qscale:a", "4"}
	case FormatWAV:
		return []string{"-codec:a", "pcm_s16le"}
	case FormatOGG:
		return []string{"-codec:a", "libvorbis"}
	default:
		return nil
	}
}

func runFFmpeg(ctx context.Context, bin, in, out string, args ...string) error {
	full := append([]string{"-hide_banner", "-loglevel", "error", "-y", "-i", in}, args...)
	full = append(full, out)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, full...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	st, err := os.Stat(out)
	if err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	if st.Size() == 0 {
		return errors.New("ffmpeg: produced an empty file")
	}
	return nil
}
