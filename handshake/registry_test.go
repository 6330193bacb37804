package handshake

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPublishDiscover(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "idents"), nil)

	ident, err := r.Discover(100)
	require.NoError(t, err)
	assert.Zero(t, ident)

	require.NoError(t, r.Publish(100, 38920))
	ident, err = r.Discover(100)
	require.NoError(t, err)
	assert.Equal(t, uint32(38920), ident)

	// republishing replaces the ident
	require.NoError(t, r.Publish(100, 38921))
	ident, err = r.Discover(100)
	require.NoError(t, err)
	assert.Equal(t, uint32(38921), ident)

	entries, err := os.ReadDir(r.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, r.Remove(100))
	require.NoError(t, r.Remove(100))
	ident, err = r.Discover(100)
	require.NoError(t, err)
	assert.Zero(t, ident)
}

func TestRegistryMalformed(t *testing.T) {
	r := NewRegistry(t.TempDir(), nil)
	require.NoError(t, os.WriteFile(filepath.Join(r.Dir, "5"), []byte("not a number"), 0644))
	_, err := r.Discover(5)
	assert.Error(t, err)
}

func TestRegistryWatch(t *testing.T) {
	r := NewRegistry(t.TempDir(), nil)
	assert.Nil(t, r.Changed())
	require.NoError(t, r.Watch())
	require.NoError(t, r.Watch())
	defer r.Close()

	changed := r.Changed()
	require.NotNil(t, changed)

	require.NoError(t, r.Publish(9, 1))
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}
