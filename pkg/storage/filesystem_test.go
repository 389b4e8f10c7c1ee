package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir(), "http://api.local", NewSignedURLSigner("secret", time.Hour))
	require.NoError(t, err)

	obj, err := store.Put(ctx, "/submissions/dr-a-1/audio_0.mp3", strings.NewReader("ID3data"), 7, "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "submissions/dr-a-1/audio_0.mp3", obj.Key)
	assert.Equal(t, int64(7), obj.Size)
	assert.True(t, strings.HasPrefix(obj.URL, "http://api.local/media/download?token="))

	exists, err := store.Exists(ctx, obj.Key)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Get(ctx, obj.Key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "ID3data", string(body))

	require.NoError(t, store.Delete(ctx, obj.Key))
	_, err = store.Get(ctx, obj.Key)
	assert.ErrorIs(t, err, ErrObjectNotFound)
	require.NoError(t, store.Delete(ctx, obj.Key))
}

func TestLocalStorageResolveToken(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "", NewSignedURLSigner("secret", time.Hour))
	require.NoError(t, err)

	token, _, err := store.signer.Generate(DownloadScope, "sync/submissions.xlsx")
	require.NoError(t, err)
	key, err := store.ResolveToken(token)
	require.NoError(t, err)
	assert.Equal(t, "sync/submissions.xlsx", key)

	foreign, _, err := store.signer.Generate("reports", "sync/submissions.xlsx")
	require.NoError(t, err)
	_, err = store.ResolveToken(foreign)
	assert.Error(t, err)
}

func TestCleanKeyRejectsTraversal(t *testing.T) {
	_, err := CleanKey("../etc/passwd")
	assert.Error(t, err)
	_, err = CleanKey("   ")
	assert.Error(t, err)

	key, err := CleanKey(`\submissions\a.png`)
	require.NoError(t, err)
	assert.Equal(t, "submissions/a.png", key)
}
