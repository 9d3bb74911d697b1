package dataset

import "fmt"

// FacetType is the persisted discriminator of a facet.
type FacetType string

const (
	TypeAudio    FacetType = "AudioFacet"
	TypeVideo    FacetType = "VideoFacet"
	TypeSubtitle FacetType = "SubtitleFacet"
)

// Facet is one stored stream. The implementations are *AudioFacet,
// *VideoFacet and *SubtitleFacet.
type Facet interface {
	Name() string
	Type() FacetType
	Modality() *Modality
	// Path is the group path inside the container, modality/name.
	Path() string

	sealed()
}

// Stream is a facet sampled at a fixed rate.
type Stream interface {
	Facet
	SampleRate() float64
	// Len returns the number of samples or frames.
	Len() int
	// Duration returns the length of the stream in seconds.
	Duration() float64
}

type facetBase struct {
	modality *Modality
	name     string
}

func (f facetBase) Name() string        { return f.name }
func (f facetBase) Modality() *Modality { return f.modality }
func (f facetBase) Path() string        { return join(f.modality.name, f.name) }
func (f facetBase) store() *store       { return f.modality.ds.store }
func (f facetBase) sealed()             {}

func loadFacet(m *Modality, name string) (Facet, error) {
	path := join(m.name, name)
	var typ string
	if err := m.ds.store.attr(path, facetTypeAttr, &typ); err != nil {
		return nil, err
	}

	base := facetBase{modality: m, name: name}
	switch FacetType(typ) {
	case TypeAudio:
		return openAudioFacet(base)
	case TypeVideo:
		return openVideoFacet(base)
	case TypeSubtitle:
		return openSubtitleFacet(base)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFacetType, typ)
	}
}

// createFacet writes a facet group through write and tags it with its type.
// The discriminator is written last so a group left behind by a crash is not
// mistaken for a facet. On error the group is removed.
func createFacet(m *Modality, name string, typ FacetType, write func(path string) error) error {
	if err := m.ds.check(); err != nil {
		return err
	}
	if _, ok := m.facets[name]; ok {
		return fmt.Errorf("%w: facet %q in modality %q", ErrExists, name, m.name)
	}

	st := m.ds.store
	path := join(m.name, name)
	if err := st.createGroup(path); err != nil {
		return fmt.Errorf("failed to create facet %s: %w", path, err)
	}

	err := write(path)
	if err == nil {
		err = st.setAttr(path, facetTypeAttr, string(typ))
	}
	if err != nil {
		if rerr := st.removeGroup(path); rerr != nil {
			m.ds.logger.WithError(rerr).Warnf("Failed to clean up facet %s", path)
		}
		return fmt.Errorf("failed to create facet %s: %w", path, err)
	}
	return nil
}
