package segmenter

import (
	"encoding/binary"
	"math"
)

// vad classifies 16-bit mono PCM frames as voiced or unvoiced by RMS energy.
type vad struct {
	threshold float64
}

// IsVoiced reports whether the frame's RMS energy crosses the threshold.
func (v vad) IsVoiced(frame []byte) bool {
	return rms(frame) >= v.threshold
}

func rms(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(frame[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
