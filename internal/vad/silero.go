//go:build silero

package vad

import (
	"fmt"
	"sync"

	"github.com/streamer45/silero-vad-go/speech"
)

// sileroWindow is the smallest input the Silero model accepts at 16 kHz.
const sileroWindow = 512

// SileroConfig holds Silero model settings
type SileroConfig struct {
	ModelPath  string
	SampleRate int     // 8000 or 16000
	Threshold  float32 // speech probability threshold, default 0.5
}

// SileroClassifier classifies frames with the Silero ONNX model. The detector
// is stateful, so calls are serialized and the state is reset per frame.
type SileroClassifier struct {
	mu       sync.Mutex
	detector *speech.Detector
	rate     int
}

// NewSileroClassifier loads the model at cfg.ModelPath.
func NewSileroClassifier(cfg SileroConfig) (*SileroClassifier, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.5
	}

	sd, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:  cfg.ModelPath,
		SampleRate: cfg.SampleRate,
		Threshold:  cfg.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create speech detector: %w", err)
	}

	return &SileroClassifier{detector: sd, rate: cfg.SampleRate}, nil
}

// IsSpeech implements Classifier.
func (c *SileroClassifier) IsSpeech(frame []int16, sampleRate int) (bool, error) {
	if sampleRate != c.rate {
		return false, fmt.Errorf("silero model loaded for %d Hz, got %d Hz", c.rate, sampleRate)
	}

	n := len(frame)
	if n < sileroWindow {
		n = sileroWindow
	}
	pcm := make([]float32, n)
	for i, s := range frame {
		pcm[i] = float32(s) / 32768
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.detector.Reset(); err != nil {
		return false, fmt.Errorf("failed to reset speech detector: %w", err)
	}
	segments, err := c.detector.Detect(pcm)
	if err != nil {
		return false, fmt.Errorf("failed to detect speech: %w", err)
	}
	return len(segments) > 0, nil
}

// Close releases the ONNX runtime session.
func (c *SileroClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detector.Destroy()
}
