package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

// Write encodes transcripts as an indented JSON array.
func Write(w io.Writer, transcripts []models.Transcription) error {
	if transcripts == nil {
		transcripts = []models.Transcription{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(transcripts); err != nil {
		return fmt.Errorf("failed to encode transcripts: %w", err)
	}
	return nil
}

// Read decodes a JSON array of transcripts.
func Read(r io.Reader) ([]models.Transcription, error) {
	var out []models.Transcription
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode transcripts: %w", err)
	}
	return out, nil
}

// WriteFile writes transcripts to path, replacing it.
func WriteFile(path string, transcripts []models.Transcription) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create transcript file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close transcript file: %w", cerr)
		}
	}()
	return Write(f, transcripts)
}

// ReadFile reads the transcripts stored at path.
func ReadFile(path string) ([]models.Transcription, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer f.Close()
	return Read(f)
}
