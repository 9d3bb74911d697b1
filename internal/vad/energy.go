package vad

import "math"

// EnergyClassifier marks a frame as speech when its RMS amplitude reaches
// Threshold.
type EnergyClassifier struct {
	Threshold float64
}

// NewEnergyClassifier creates an energy classifier, using 500 when threshold
// is not positive.
func NewEnergyClassifier(threshold float64) *EnergyClassifier {
	if threshold <= 0 {
		threshold = 500
	}
	return &EnergyClassifier{Threshold: threshold}
}

// IsSpeech implements Classifier.
func (c *EnergyClassifier) IsSpeech(frame []int16, _ int) (bool, error) {
	return RMS(frame) >= c.Threshold, nil
}

// RMS returns the root mean square amplitude of frame.
func RMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
