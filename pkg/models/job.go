package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Job represents a dataset processing job
type Job struct {
	ID          string     `json:"id" db:"id"`
	Type        string     `json:"type" db:"type"`
	DatasetKey  string     `json:"dataset_key" db:"dataset_key"`
	Status      string     `json:"status" db:"status"`
	Priority    int        `json:"priority" db:"priority"`
	ErrorMsg    string     `json:"error_msg,omitempty" db:"error_msg"`
	RetryCount  int        `json:"retry_count" db:"retry_count"`
	WorkerID    string     `json:"worker_id,omitempty" db:"worker_id"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	Params      JobParams  `json:"params" db:"params"`
}

// JobParams holds the per-type job arguments
type JobParams struct {
	// ingest
	VideoKey      string   `json:"video_key,omitempty"`
	SubtitleKeys  []string `json:"subtitle_keys,omitempty"`
	SkipVideo     bool     `json:"skip_video,omitempty"`
	SkipAudio     bool     `json:"skip_audio,omitempty"`
	SkipSubtitles bool     `json:"skip_subtitles,omitempty"`

	// voiced_segments
	Overwrite bool `json:"overwrite,omitempty"`

	// speech
	Transcribe bool `json:"transcribe,omitempty"`

	// remove_modality
	Modality string `json:"modality,omitempty"`
}

// Value implements driver.Valuer for database storage
func (p JobParams) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for database retrieval
func (p *JobParams) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return nil
	}
}

// JobType constants
const (
	JobTypeIngest         = "ingest"
	JobTypeVoicedSegments = "voiced_segments"
	JobTypeSpeech         = "speech"
	JobTypeRemoveModality = "remove_modality"
)

// JobStatus constants
const (
	JobStatusPending    = "pending"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// JobPriority constants
const (
	JobPriorityLow    = 0
	JobPriorityNormal = 5
	JobPriorityHigh   = 10
)
