// Package dataset stores multimodal recordings in a single SQLite container.
//
// A container holds named modalities, each a group of one or more facets. A
// facet is one typed stream: PCM audio, compressed video frames or styled
// subtitle cues. Facets describe themselves through the facet_type attribute
// so a reader needs no outside schema. Array data is chunked along its first
// axis and compressed per chunk, which lets readers slice a time range without
// decoding the whole stream.
//
// A container allows one writer and any number of readers. Writers are
// serialized by SQLite file locking.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/logging"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

// Mode selects how a container file is opened.
type Mode int

const (
	// ModeRead opens an existing container read-only.
	ModeRead Mode = iota
	// ModeReadWrite opens an existing container for augmentation.
	ModeReadWrite
	// ModeCreate creates a container, truncating any existing file.
	ModeCreate
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeReadWrite:
		return "read-write"
	case ModeCreate:
		return "create"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// FormatVersion is the layout version written to the root group.
const FormatVersion = 1

// Modality names used by ingest and the derived queries.
const (
	ModalityAudio     = "audio"
	ModalityVideo     = "video"
	ModalitySubtitles = "subtitles"
)

const (
	formatVersionAttr = "format_version"
	facetTypeAttr     = "facet_type"
	defaultFacetAttr  = "default_facet"
)

// Options tune how a container is opened
type Options struct {
	BusyTimeout time.Duration // how long to wait for another writer, default 5s
	Logger      *logging.Logger
}

// Dataset is an open container.
type Dataset struct {
	path       string
	mode       Mode
	store      *store
	modalities map[string]*Modality
	order      []string
	logger     *logging.Logger
}

// Open opens the container at path with default options.
func Open(path string, mode Mode) (*Dataset, error) {
	return OpenWithOptions(path, mode, Options{})
}

// OpenWithOptions opens the container at path. All modalities and facets are
// enumerated before it returns, so layout problems surface here.
func OpenWithOptions(path string, mode Mode, opts Options) (*Dataset, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	switch mode {
	case ModeCreate:
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to truncate container %s: %w", path, err)
		}
	case ModeRead, ModeReadWrite:
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: container %s", ErrNotFound, path)
			}
			return nil, fmt.Errorf("failed to stat container %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown open mode %d", ErrPrecondition, int(mode))
	}

	st, err := openStore(path, mode, opts.BusyTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open container %s: %w", path, err)
	}

	d := &Dataset{
		path:       path,
		mode:       mode,
		store:      st,
		modalities: make(map[string]*Modality),
		logger:     opts.Logger.WithDataset(path),
	}

	if mode == ModeCreate {
		err = st.setAttr("", formatVersionAttr, FormatVersion)
	} else {
		err = d.checkVersion()
	}
	if err == nil {
		err = d.load()
	}
	if err != nil {
		st.close()
		return nil, fmt.Errorf("failed to open container %s: %w", path, err)
	}

	d.logger.WithFields(map[string]interface{}{
		"mode":       mode.String(),
		"modalities": len(d.order),
	}).Debug("Container opened")

	return d, nil
}

// With opens a container, passes it to fn and closes it on every exit path,
// including panics.
func With(path string, mode Mode, fn func(*Dataset) error) (err error) {
	d, err := Open(path, mode)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close container %s: %w", path, cerr)
		}
	}()
	return fn(d)
}

func (d *Dataset) checkVersion() error {
	var version int
	if err := d.store.attr("", formatVersionAttr, &version); err != nil {
		return fmt.Errorf("%w: missing format version: %v", ErrSchemaMismatch, err)
	}
	if version != FormatVersion {
		return fmt.Errorf("%w: format version %d, want %d", ErrSchemaMismatch, version, FormatVersion)
	}
	return nil
}

func (d *Dataset) load() error {
	names, err := d.store.childGroups("")
	if err != nil {
		return err
	}
	for _, name := range names {
		m, err := loadModality(d, name)
		if err != nil {
			return fmt.Errorf("modality %s: %w", name, err)
		}
		d.modalities[name] = m
		d.order = append(d.order, name)
	}
	return nil
}

// SetLogger replaces the logger used for container events.
func (d *Dataset) SetLogger(logger *logging.Logger) {
	if logger == nil {
		logger = logging.Nop()
	}
	d.logger = logger.WithDataset(d.path)
}

// Path returns the container file path.
func (d *Dataset) Path() string { return d.path }

// Mode returns the mode the container was opened with.
func (d *Dataset) Mode() Mode { return d.mode }

// Close releases the container file. Every later call fails with ErrClosed.
func (d *Dataset) Close() error {
	if err := d.store.close(); err != nil {
		return err
	}
	d.logger.Debug("Container closed")
	return nil
}

func (d *Dataset) check() error {
	_, err := d.store.conn()
	return err
}

// Modalities returns the modality names in creation order.
func (d *Dataset) Modalities() ([]string, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return append([]string(nil), d.order...), nil
}

// HasModality reports whether the container holds the named modality.
func (d *Dataset) HasModality(name string) bool {
	_, ok := d.modalities[name]
	return ok && d.check() == nil
}

// Modality returns the named modality.
func (d *Dataset) Modality(name string) (*Modality, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	m, ok := d.modalities[name]
	if !ok {
		return nil, fmt.Errorf("%w: modality %q in %s", ErrNotFound, name, d.path)
	}
	return m, nil
}

// CreateModality adds a modality and runs build to populate it. If build
// fails or creates no facet the modality is removed again, so a modality is
// never left empty or half written.
func (d *Dataset) CreateModality(name string, build func(*Modality) error) (*Modality, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if _, ok := d.modalities[name]; ok {
		return nil, fmt.Errorf("%w: modality %q in %s", ErrExists, name, d.path)
	}
	if err := d.store.createGroup(name); err != nil {
		return nil, fmt.Errorf("failed to create modality %q in %s: %w", name, d.path, err)
	}

	m := newModality(d, name)
	err := build(m)
	if err == nil && len(m.order) == 0 {
		err = fmt.Errorf("%w: modality %q has no facets", ErrPrecondition, name)
	}
	if err != nil {
		if rerr := d.store.removeGroup(name); rerr != nil {
			d.logger.WithError(rerr).Warnf("Failed to clean up modality %s", name)
		}
		return nil, fmt.Errorf("failed to create modality %q in %s: %w", name, d.path, err)
	}

	d.modalities[name] = m
	d.order = append(d.order, name)
	d.logger.WithFields(map[string]interface{}{
		"modality": name,
		"facets":   len(m.order),
	}).Info("Modality created")
	return m, nil
}

// RemoveModality deletes a modality and all its facets. Removing a modality
// that does not exist fails with ErrNotFound.
func (d *Dataset) RemoveModality(name string) error {
	if err := d.check(); err != nil {
		return err
	}
	if _, ok := d.modalities[name]; !ok {
		return fmt.Errorf("%w: modality %q in %s", ErrNotFound, name, d.path)
	}
	if err := d.store.removeGroup(name); err != nil {
		return fmt.Errorf("failed to remove modality %q from %s: %w", name, d.path, err)
	}

	delete(d.modalities, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.logger.WithField("modality", name).Info("Modality removed")
	return nil
}

// GetFacet returns a facet of a modality, or its default when facet is "".
func (d *Dataset) GetFacet(modality, facet string) (Facet, error) {
	m, err := d.Modality(modality)
	if err != nil {
		return nil, err
	}
	return m.Facet(facet)
}

// GetAllFacets returns the facets of each named modality, in the order the
// modalities are given.
func (d *Dataset) GetAllFacets(modalities ...string) ([][]Facet, error) {
	out := make([][]Facet, 0, len(modalities))
	for _, name := range modalities {
		m, err := d.Modality(name)
		if err != nil {
			return nil, err
		}
		out = append(out, m.Facets())
	}
	return out, nil
}

// SampleRate returns the rate of the default facet of a modality.
func (d *Dataset) SampleRate(modality string) (float64, error) {
	m, err := d.Modality(modality)
	if err != nil {
		return 0, err
	}
	return m.SampleRate("")
}

// Summary describes every modality and facet of the container.
func (d *Dataset) Summary() (models.Summary, error) {
	if err := d.check(); err != nil {
		return models.Summary{}, err
	}

	summary := models.Summary{Path: d.path, Modalities: make([]models.ModalitySummary, 0, len(d.order))}
	for _, name := range d.order {
		m := d.modalities[name]
		ms := models.ModalitySummary{Name: name, Default: m.defaultName}
		for _, f := range m.Facets() {
			info := models.FacetSummary{Name: f.Name(), Type: string(f.Type())}
			switch f := f.(type) {
			case *AudioFacet:
				info.SampleRate, info.Length, info.Duration = f.SampleRate(), f.Len(), f.Duration()
				names, err := f.TimeIntervalNames()
				if err != nil {
					return models.Summary{}, err
				}
				info.Intervals = names
			case *VideoFacet:
				info.SampleRate, info.Length, info.Duration = f.SampleRate(), f.Len(), f.Duration()
			case *SubtitleFacet:
				info.Length = f.Len()
			}
			ms.Facets = append(ms.Facets, info)
		}
		summary.Modalities = append(summary.Modalities, ms)
	}
	return summary, nil
}

// RemoveModalityFromFile removes a modality from the container at path. A
// missing modality is not an error, which suits batch cleanup over many files.
func RemoveModalityFromFile(path, name string) error {
	return With(path, ModeReadWrite, func(d *Dataset) error {
		if !d.HasModality(name) {
			return nil
		}
		return d.RemoveModality(name)
	})
}
