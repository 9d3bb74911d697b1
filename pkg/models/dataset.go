package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Dataset is the catalog record of a published container
type Dataset struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	ObjectKey  string    `json:"object_key" db:"object_key"`
	Size       int64     `json:"size" db:"size"`
	Duration   float64   `json:"duration" db:"duration"`
	Modalities []string  `json:"modalities" db:"modalities"`
	Metadata   Metadata  `json:"metadata" db:"metadata"`
	Status     string    `json:"status" db:"status"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Metadata holds additional dataset metadata
type Metadata map[string]interface{}

// Value implements driver.Valuer for database storage
func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return nil
	}
}

// DatasetStatus constants
const (
	DatasetStatusPending   = "pending"
	DatasetStatusReady     = "ready"
	DatasetStatusFailed    = "failed"
	DatasetStatusAnnotated = "annotated"
)

// SegmentationRun records one derived interval set written to a dataset
type SegmentationRun struct {
	ID             string    `json:"id" db:"id"`
	DatasetID      string    `json:"dataset_id" db:"dataset_id"`
	JobID          string    `json:"job_id" db:"job_id"`
	Modality       string    `json:"modality" db:"modality"`
	Facet          string    `json:"facet" db:"facet"`
	IntervalSet    string    `json:"interval_set" db:"interval_set"`
	Segments       int       `json:"segments" db:"segments"`
	CoveredSeconds float64   `json:"covered_seconds" db:"covered_seconds"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Summary describes the layout of a container
type Summary struct {
	Path       string            `json:"path"`
	Modalities []ModalitySummary `json:"modalities"`
}

// ModalitySummary describes one modality of a container
type ModalitySummary struct {
	Name    string         `json:"name"`
	Default string         `json:"default"`
	Facets  []FacetSummary `json:"facets"`
}

// FacetSummary describes one facet of a modality
type FacetSummary struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	SampleRate float64  `json:"sample_rate,omitempty"`
	Length     int      `json:"length"`
	Duration   float64  `json:"duration,omitempty"`
	Intervals  []string `json:"intervals,omitempty"`
}

// Span is a time window in seconds
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
