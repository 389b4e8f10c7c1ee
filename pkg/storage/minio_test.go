package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/doctor-voice-api/pkg/config"
)

func TestMinioStorePublicURL(t *testing.T) {
	withBase := &MinioStore{bucket: "media", endpoint: "minio:9000", baseURL: "https://cdn.example.com"}
	assert.Equal(t, "https://cdn.example.com/submissions/a.png", withBase.PublicURL("submissions/a.png"))

	pathStyle := &MinioStore{bucket: "media", endpoint: "minio:9000", useSSL: true}
	assert.Equal(t, "https://minio:9000/media/submissions/a.png", pathStyle.PublicURL("submissions/a.png"))
}

func TestNewMinioStoreRequiresBucket(t *testing.T) {
	_, err := NewMinioStore(context.Background(), config.StorageConfig{Endpoint: "minio:9000"})
	require.Error(t, err)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.StorageConfig{Driver: "ftp"}, "")
	require.Error(t, err)
}
