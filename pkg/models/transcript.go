package models

// Word is a single recognized word with its time span in seconds.
type Word struct {
	Start      float64 `json:"start_time"`
	End        float64 `json:"end_time"`
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Transcription is the recognized text of one audio segment.
type Transcription struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Transcript string  `json:"transcript"`
	Words      []Word  `json:"words,omitempty"`
}
