package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/speakeasy/pkg/audio"
)

func TestFloat32Mono(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		pcm      []byte
		channels int
		want     []float32
	}{
		{"full scale positive", pcm16(32767), 1, []float32{32767.0 / 32768}},
		{"full scale negative", pcm16(-32768), 1, []float32{-1}},
		{"half negative", pcm16(-16384, 0), 1, []float32{-0.5, 0}},
		{"zero channels means mono", pcm16(16384), 0, []float32{0.5}},
		{"stereo frames average", pcm16(1000, 3000, -2000, -4000), 2, []float32{2000.0 / 32768, -3000.0 / 32768}},
		{"three channels", pcm16(3000, 6000, 9000), 3, []float32{6000.0 / 32768}},
		{"partial frame dropped", pcm16(100, 200, 300), 2, []float32{150.0 / 32768}},
		{"odd byte dropped", []byte{0x00, 0x40, 0xFF}, 1, []float32{0.5}},
		{"empty", nil, 1, []float32{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.Float32Mono(tt.pcm, tt.channels)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("sample %d = %f, want %f", i, got[i], tt.want[i])
				}
			}
		})
	}
}
