package audio

import (
	"encoding/binary"
	"testing"

	"pgregory.net/rapid"
)

func pcm(samples ...int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func TestLevelMeterSilenceIsMinimum(t *testing.T) {
	t.Parallel()

	m := &LevelMeter{}
	if got := m.Measure(pcm(0, 0, 0, 0)); got != MinCaptureLevel {
		t.Fatalf("expected %d for silence, got %d", MinCaptureLevel, got)
	}
}

func TestLevelMeterFullScale(t *testing.T) {
	t.Parallel()

	m := &LevelMeter{}
	if got := m.Measure(pcm(32767, -32768, 32767, -32768)); got != MaxLevel {
		t.Fatalf("expected %d for full scale, got %d", MaxLevel, got)
	}
}

func TestLevelMeterHalfScale(t *testing.T) {
	t.Parallel()

	m := &LevelMeter{}
	if got := m.Measure(pcm(16384, -16384)); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestLevelMeterCarriesOddByte(t *testing.T) {
	t.Parallel()

	whole := pcm(16384, -16384, 16384)
	m := &LevelMeter{}
	first := m.Measure(whole[:3])
	second := m.Measure(whole[3:])
	if first != 50 || second != 50 {
		t.Fatalf("expected split chunks to measure 50, got %d and %d", first, second)
	}
}

func TestLevelMeterRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOfN(rapid.Byte(), 0, 512).Draw(t, "pcm")
		m := &LevelMeter{}
		got := m.Measure(raw)
		if got < MinCaptureLevel || got > MaxLevel {
			t.Fatalf("level %d out of range", got)
		}
	})
}
