package dataset

import (
	"errors"
	"fmt"
)

// Modality is a named group of facets carrying the same signal, for example
// one subtitle facet per language.
type Modality struct {
	ds          *Dataset
	name        string
	facets      map[string]Facet
	order       []string
	defaultName string
}

func newModality(d *Dataset, name string) *Modality {
	return &Modality{ds: d, name: name, facets: make(map[string]Facet)}
}

func loadModality(d *Dataset, name string) (*Modality, error) {
	m := newModality(d, name)
	names, err := d.store.childGroups(name)
	if err != nil {
		return nil, err
	}
	for _, facetName := range names {
		path := join(name, facetName)
		ok, err := d.store.hasAttr(path, facetTypeAttr)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		f, err := loadFacet(m, facetName)
		if err != nil {
			return nil, fmt.Errorf("facet %s: %w", path, err)
		}
		m.add(f)
	}

	var def string
	err = d.store.attr(name, defaultFacetAttr, &def)
	switch {
	case err == nil:
		if _, ok := m.facets[def]; ok {
			m.defaultName = def
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return m, nil
}

func (m *Modality) add(f Facet) {
	m.facets[f.Name()] = f
	m.order = append(m.order, f.Name())
	if m.defaultName == "" {
		m.defaultName = f.Name()
	}
}

func (m *Modality) remove(name string) {
	delete(m.facets, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.defaultName == name {
		m.defaultName = ""
		if len(m.order) > 0 {
			m.defaultName = m.order[0]
		}
	}
}

// Name returns the modality name.
func (m *Modality) Name() string { return m.name }

// Dataset returns the container holding the modality.
func (m *Modality) Dataset() *Dataset { return m.ds }

// Len returns the number of facets.
func (m *Modality) Len() int { return len(m.order) }

// Facets returns the facets in creation order.
func (m *Modality) Facets() []Facet {
	out := make([]Facet, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.facets[name])
	}
	return out
}

// FacetNames returns the facet names in creation order.
func (m *Modality) FacetNames() []string {
	return append([]string(nil), m.order...)
}

// DefaultName returns the name of the default facet.
func (m *Modality) DefaultName() string { return m.defaultName }

// Facet returns the named facet, or the default facet when name is "".
func (m *Modality) Facet(name string) (Facet, error) {
	if err := m.ds.check(); err != nil {
		return nil, err
	}
	if name == "" {
		name = m.defaultName
	}
	f, ok := m.facets[name]
	if !ok {
		return nil, fmt.Errorf("%w: facet %q in modality %q of %s", ErrNotFound, name, m.name, m.ds.path)
	}
	return f, nil
}

// SetDefault marks the named facet as default and persists the choice.
func (m *Modality) SetDefault(name string) error {
	if _, err := m.Facet(name); err != nil {
		return err
	}
	if err := m.ds.store.setAttr(m.name, defaultFacetAttr, name); err != nil {
		return fmt.Errorf("failed to set default facet of %q: %w", m.name, err)
	}
	m.defaultName = name
	return nil
}

// SampleRate returns the rate of the named facet, or of the default facet when
// name is "". Subtitle facets have no rate.
func (m *Modality) SampleRate(name string) (float64, error) {
	f, err := m.Facet(name)
	if err != nil {
		return 0, err
	}
	s, ok := f.(Stream)
	if !ok {
		return 0, fmt.Errorf("%w: facet %s has no sample rate", ErrPrecondition, f.Path())
	}
	return s.SampleRate(), nil
}

// RemoveFacet deletes a facet from the modality. The last facet cannot be
// removed; remove the modality instead.
func (m *Modality) RemoveFacet(name string) error {
	f, err := m.Facet(name)
	if err != nil {
		return err
	}
	if len(m.order) == 1 {
		return fmt.Errorf("%w: facet %s is the last of modality %q", ErrPrecondition, f.Path(), m.name)
	}
	if err := m.ds.store.removeGroup(f.Path()); err != nil {
		return fmt.Errorf("failed to remove facet %s: %w", f.Path(), err)
	}
	if m.defaultName == f.Name() {
		if err := m.ds.store.deleteAttr(m.name, defaultFacetAttr); err != nil {
			return err
		}
	}
	m.remove(f.Name())
	return nil
}
