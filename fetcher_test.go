package manager

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcherFetchesDatafile(t *testing.T) {
	var headers http.Header
	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		headers = req.Header.Clone()
		assert.Equal(t, "/datafiles/123.json", req.URL.Path)
		res.Header().Set("Content-Type", "application/json")
		_, _ = res.Write([]byte(`{"revision":"5","featureFlags":[]}`))
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(FetcherOptions{Headers: map[string]string{"X-Custom": "yes"}})
	datafile, err := fetcher.Fetch(context.Background(), getDefaultURL(server.URL, "123"))
	require.NoError(t, err)
	assert.Equal(t, "5", datafile.RevisionString())

	assert.Equal(t, "application/json", headers.Get("Accept"))
	assert.Equal(t, sdkType+"/"+sdkVersion, headers.Get("User-Agent"))
	assert.Equal(t, SessionID(), headers.Get("X-Manager-Session-Id"))
	assert.NotEmpty(t, headers.Get("X-Manager-Language-Version"))
	assert.Equal(t, "yes", headers.Get("X-Custom"))
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		if hits.Add(1) == 1 {
			res.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = res.Write([]byte(`{"revision":"6"}`))
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(FetcherOptions{Backoff: time.Millisecond})
	datafile, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "6", datafile.RevisionString())
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPFetcherGivesUpAfterRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		res.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(FetcherOptions{Retries: 2, Backoff: time.Millisecond})
	_, err := fetcher.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkRequest)
	assert.Equal(t, int32(3), hits.Load())

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusInternalServerError, transportErr.RequestMetadata.StatusCode)
	assert.Equal(t, 2, transportErr.RequestMetadata.Retries)

	var attempts *multierror.Error
	require.True(t, errors.As(err, &attempts))
	assert.Len(t, attempts.Errors, 3)
}

func TestHTTPFetcherDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		res.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewHTTPFetcher(FetcherOptions{Backoff: time.Millisecond}).Fetch(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrNetworkRequest)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPFetcherRejectsInvalidDatafiles(t *testing.T) {
	for _, body := range []string{`not json`, `[1,2,3]`, `null`} {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
			hits.Add(1)
			_, _ = res.Write([]byte(body))
		}))

		_, err := NewHTTPFetcher(FetcherOptions{Backoff: time.Millisecond}).Fetch(context.Background(), server.URL)
		assert.ErrorIs(t, err, ErrDatafileFormat, body)
		assert.NotErrorIs(t, err, ErrNetworkRequest, body)
		assert.Equal(t, int32(1), hits.Load(), body)
		server.Close()
	}
}

func TestHTTPFetcherNegativeRetriesDisablesRetrying(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		res.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewHTTPFetcher(FetcherOptions{Retries: -1}).Fetch(context.Background(), server.URL)
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPFetcherStopsRetryingWhenCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		res.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	_, err := NewHTTPFetcher(FetcherOptions{Retries: 5, Backoff: time.Second}).Fetch(ctx, server.URL)
	assert.ErrorIs(t, err, ErrNetworkRequest)
	assert.Less(t, time.Since(start), time.Second)
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, shouldRetry(http.StatusServiceUnavailable))
	assert.True(t, shouldRetry(http.StatusRequestTimeout))
	assert.False(t, shouldRetry(http.StatusNotFound))
	assert.False(t, shouldRetry(http.StatusOK))
}
