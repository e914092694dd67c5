package s3

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectURL(t *testing.T) {
	assert.Equal(t, "http://cdn.local/photos/vehicles/v1/a.jpg", ObjectURL("http://cdn.local/", "photos", "/vehicles/v1/a.jpg"))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "minio:9000", hostOf("http://minio:9000"))
	assert.Equal(t, "minio:9000", hostOf("minio:9000"))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Options{Bucket: "b"}, nil)
	require.Error(t, err)
	_, err = NewClient(Options{Endpoint: "http://minio:9000"}, nil)
	require.Error(t, err)

	c, err := NewClient(Options{Endpoint: "http://minio:9000", Bucket: "photos"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000", c.publicBaseURL)
}

func TestNoopUploader(t *testing.T) {
	_, err := NoopUploader{}.Upload(context.Background(), "k", strings.NewReader("x"), "image/jpeg")
	assert.Error(t, err)
}
