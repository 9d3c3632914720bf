package manager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCacheRoundTrip(t *testing.T, cache Cache) {
	value, err := cache.Get("optimizelyDatafile-missing")
	require.NoError(t, err)
	assert.Nil(t, value)

	original := []byte(`{"revision":"7"}`)
	require.NoError(t, cache.Set("optimizelyDatafile-123", original))
	original[2] = 'X'

	value, err = cache.Get("optimizelyDatafile-123")
	require.NoError(t, err)
	assert.Equal(t, `{"revision":"7"}`, string(value))

	require.NoError(t, cache.Set("optimizelyDatafile-123", []byte(`{"revision":"8"}`)))
	value, err = cache.Get("optimizelyDatafile-123")
	require.NoError(t, err)
	assert.Equal(t, `{"revision":"8"}`, string(value))
}

func TestMemoryCache(t *testing.T) {
	testCacheRoundTrip(t, NewMemoryCache())
}

func TestBoltCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datafiles.db")
	cache, err := NewBoltCache(path)
	require.NoError(t, err)
	testCacheRoundTrip(t, cache)
	require.NoError(t, cache.Close())

	reopened, err := NewBoltCache(path)
	require.NoError(t, err)
	defer reopened.Close()
	value, err := reopened.Get("optimizelyDatafile-123")
	require.NoError(t, err)
	assert.Equal(t, `{"revision":"8"}`, string(value))
}

func TestBoltCacheSurvivesManagerRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datafiles.db")
	cache, err := NewBoltCache(path)
	require.NoError(t, err)

	first, _ := newTestManager(t, Options{SDKKey: "123", Cache: cache, Fetcher: newFakeFetcher(datafileR1)})
	<-first.OnReady()
	first.Close()
	require.NoError(t, cache.Close())

	cache, err = NewBoltCache(path)
	require.NoError(t, err)
	defer cache.Close()
	offline := newFakeFetcher()
	offline.setError(assert.AnError)
	second, _ := newTestManager(t, Options{SDKKey: "123", Cache: cache, Fetcher: offline})

	assert.True(t, second.IsFeatureEnabled("checkout_flow", "user123"))
	details, _ := second.ReadyDetails()
	assert.Equal(t, SourceCache, details.Source)
}
