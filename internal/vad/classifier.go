package vad

import "fmt"

// Classifier kinds accepted by NewClassifier.
const (
	KindEnergy = "energy"
	KindSilero = "silero"
)

// NewClassifier builds a classifier by kind. The returned close function
// releases model resources and is never nil.
func NewClassifier(kind string, energyThreshold float64, silero SileroConfig) (Classifier, func() error, error) {
	switch kind {
	case KindEnergy, "":
		return NewEnergyClassifier(energyThreshold), func() error { return nil }, nil
	case KindSilero:
		c, err := NewSileroClassifier(silero)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown classifier %q", ErrConfig, kind)
	}
}
