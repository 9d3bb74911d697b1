//go:build !silero

package vad

import "fmt"

// SileroConfig holds Silero model settings
type SileroConfig struct {
	ModelPath  string
	SampleRate int
	Threshold  float32
}

// SileroClassifier is unavailable without the silero build tag.
type SileroClassifier struct{}

// NewSileroClassifier always fails in builds without the silero tag.
func NewSileroClassifier(SileroConfig) (*SileroClassifier, error) {
	return nil, fmt.Errorf("%w: built without the silero tag", ErrConfig)
}

// IsSpeech implements Classifier.
func (c *SileroClassifier) IsSpeech([]int16, int) (bool, error) {
	return false, fmt.Errorf("%w: built without the silero tag", ErrConfig)
}

// Close is a no-op.
func (c *SileroClassifier) Close() error { return nil }
