package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/config"
)

func TestGetContentType(t *testing.T) {
	tests := []struct {
		filePath string
		wantType string
	}{
		{"clip.db", "application/vnd.sqlite3"},
		{"clip.json", "application/json"},
		{"clip.en.srt", "application/x-subrip"},
		{"video.mp4", "video/mp4"},
		{"video.mov", "video/quicktime"},
		{"video.mkv", "video/x-matroska"},
		{"video.webm", "video/webm"},
		{"unknown.xyz", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filePath, func(t *testing.T) {
			contentType := getContentType(tt.filePath)
			if contentType != tt.wantType {
				t.Errorf("getContentType(%q) = %q, want %q", tt.filePath, contentType, tt.wantType)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "datasets/clip.db", DatasetKey("clip.mp4"))
	assert.Equal(t, "datasets/clip.db", DatasetKey("clip"))
	assert.Equal(t, "transcripts/clip.json", TranscriptKey("datasets/clip.db"))
	assert.Equal(t, "transcripts/show/ep1.json", TranscriptKey("datasets/show/ep1.db"))
}

// TestRoundTrip runs against a live MinIO when MINIO_ENDPOINT is set.
func TestRoundTrip(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" || testing.Short() {
		t.Skip("MINIO_ENDPOINT not set")
	}

	s, err := New(config.StorageConfig{
		Endpoint:        endpoint,
		AccessKeyID:     os.Getenv("MINIO_ACCESS_KEY"),
		SecretAccessKey: os.Getenv("MINIO_SECRET_KEY"),
		BucketName:      "multimodal-test",
	}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "a.db")
	require.NoError(t, os.WriteFile(src, []byte("container bytes"), 0o644))

	key := DatasetKey("a.db")
	require.NoError(t, s.UploadFile(ctx, key, src))
	defer s.Delete(ctx, key)

	info, err := s.Stat(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(15), info.Size)

	dst := filepath.Join(dir, "b.db")
	require.NoError(t, s.DownloadFile(ctx, key, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "container bytes", string(data))

	_, err = s.Stat(ctx, "datasets/missing.db")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
