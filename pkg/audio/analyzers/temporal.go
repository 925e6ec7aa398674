package analyzers

import "math"

// RMS returns the root-mean-square energy of each centred frame. The
// signal is zero padded by frameLength/2 on each side.
func RMS(signal []float64, frameLength, hop int) []float64 {
	padded := PadConstant(signal, frameLength/2)
	numFrames := FrameCount(len(padded), frameLength, hop)

	out := make([]float64, numFrames)
	for t := range numFrames {
		frame := padded[t*hop : t*hop+frameLength]
		sum := 0.0
		for _, v := range frame {
			sum += v * v
		}
		out[t] = math.Sqrt(sum / float64(frameLength))
	}
	return out
}

// ZeroCrossingRate returns the fraction of sign changes in each centred
// frame. The signal is edge padded by frameLength/2 on each side and
// samples with magnitude at or below threshold count as zero (positive).
func ZeroCrossingRate(signal []float64, frameLength, hop int, threshold float64) []float64 {
	padded := PadEdge(signal, frameLength/2)
	for i, v := range padded {
		if math.Abs(v) <= threshold {
			padded[i] = 0
		}
	}
	numFrames := FrameCount(len(padded), frameLength, hop)

	out := make([]float64, numFrames)
	for t := range numFrames {
		frame := padded[t*hop : t*hop+frameLength]
		crossings := 0
		for i := 1; i < frameLength; i++ {
			if math.Signbit(frame[i]) != math.Signbit(frame[i-1]) {
				crossings++
			}
		}
		out[t] = float64(crossings) / float64(frameLength)
	}
	return out
}
