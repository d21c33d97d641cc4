package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// newTestBlobStore points a storage client at a fake GCS JSON API.
func newTestBlobStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "avatars-bucket"})
	require.NoError(t, err)
	return store
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	assert.EqualError(t, err, "storage client is required")

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	assert.EqualError(t, err, "bucket name is required")
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	payload := []byte("jpeg-bytes")
	store := newTestBlobStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/b/avatars-bucket/o")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), string(payload))
		assert.Contains(t, string(body), "image/jpeg")
		fmt.Fprintln(w, `{"bucket":"avatars-bucket","name":"small/1.jpg"}`)
	}))

	uri, err := store.PutObject(context.Background(), "small/1.jpg", "image/jpeg", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "gs://avatars-bucket/small/1.jpg", uri)

	_, err = store.PutObject(context.Background(), " ", "image/jpeg", bytes.NewReader(payload))
	assert.EqualError(t, err, "path is required")
}

func TestExists(t *testing.T) {
	t.Parallel()

	store := newTestBlobStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if strings.Contains(r.URL.Path, "missing") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"error":{"code":404,"message":"No such object"}}`)
			return
		}
		fmt.Fprintln(w, `{"bucket":"avatars-bucket","name":"small/1.jpg","size":"10"}`)
	}))

	ok, err := store.Exists(context.Background(), "small/1.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(context.Background(), "small/missing.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}
