package audio

import (
	"encoding/binary"
	"math"
)

const (
	MinCaptureLevel = 1
	MaxLevel        = 100
)

// LevelMeter converts signed 16-bit little endian PCM into levels in
// [MinCaptureLevel, MaxLevel]. Zero is reserved for "not capturing". A byte
// left over from an odd sized chunk is carried into the next one.
type LevelMeter struct {
	carry    byte
	hasCarry bool
}

// Measure returns the RMS level of pcm scaled to 1..100.
func (m *LevelMeter) Measure(pcm []byte) int {
	var (
		sum   float64
		count int
	)
	if m.hasCarry && len(pcm) > 0 {
		sample := int16(binary.LittleEndian.Uint16([]byte{m.carry, pcm[0]}))
		sum += float64(sample) * float64(sample)
		count++
		pcm = pcm[1:]
		m.hasCarry = false
	}
	for len(pcm) >= 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm))
		sum += float64(sample) * float64(sample)
		count++
		pcm = pcm[2:]
	}
	if len(pcm) == 1 {
		m.carry = pcm[0]
		m.hasCarry = true
	}
	if count == 0 {
		return MinCaptureLevel
	}
	return scaleLevel(math.Sqrt(sum / float64(count)))
}

func scaleLevel(rms float64) int {
	level := int(math.Round(rms * MaxLevel / 32768))
	switch {
	case level < MinCaptureLevel:
		return MinCaptureLevel
	case level > MaxLevel:
		return MaxLevel
	default:
		return level
	}
}
