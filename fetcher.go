package manager

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/asaschachar/optimizely-manager-go/types"
)

const (
	defaultFetchRetries = 2
	defaultFetchBackoff = 100 * time.Millisecond
	defaultFetchTimeout = 10 * time.Second
	backoffMultiplier   = 10
)

// Fetcher downloads the datafile at url. Failures are returned, never retried
// by the manager itself.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (types.Datafile, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, url string) (types.Datafile, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (types.Datafile, error) {
	return f(ctx, url)
}

type FetcherOptions struct {
	Transport http.RoundTripper
	// Per request timeout. Defaults to 10 seconds.
	Timeout time.Duration
	// Retries on timeouts and 5xx responses. Defaults to 2, negative disables.
	Retries int
	// Wait before the first retry, multiplied by 10 for each further retry
	Backoff time.Duration
	Headers map[string]string
}

// HTTPFetcher fetches datafiles with GET requests
type HTTPFetcher struct {
	client   *http.Client
	retries  int
	backoff  time.Duration
	headers  map[string]string
	metadata managerMetadata
}

func NewHTTPFetcher(options FetcherOptions) *HTTPFetcher {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	retries := options.Retries
	if retries == 0 {
		retries = defaultFetchRetries
	} else if retries < 0 {
		retries = 0
	}
	backoff := options.Backoff
	if backoff <= 0 {
		backoff = defaultFetchBackoff
	}
	return &HTTPFetcher{
		client:   &http.Client{Transport: options.Transport, Timeout: timeout},
		retries:  retries,
		backoff:  backoff,
		headers:  options.Headers,
		metadata: getManagerMetadata(),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (types.Datafile, error) {
	var datafile types.Datafile
	var errs *multierror.Error
	attempts := 0
	statusCode := 0

	err := retry(ctx, f.retries, f.backoff, func() (bool, error) {
		attempts++
		response, err := f.doRequest(ctx, url)
		if err != nil {
			errs = multierror.Append(errs, err)
			return ctx.Err() == nil, err
		}
		defer response.Body.Close()
		statusCode = response.StatusCode

		if response.StatusCode >= 200 && response.StatusCode < 300 {
			body, err := io.ReadAll(response.Body)
			if err != nil {
				errs = multierror.Append(errs, err)
				return true, err
			}
			parsed, err := types.ParseDatafile(body)
			if err != nil {
				return false, &DatafileFormatError{URL: url, Err: err}
			}
			datafile = parsed
			return false, nil
		}

		err = fmt.Errorf("http response error code: %d", response.StatusCode)
		errs = multierror.Append(errs, err)
		return shouldRetry(response.StatusCode), err
	})
	if err == nil {
		return datafile, nil
	}
	if _, ok := err.(*DatafileFormatError); ok {
		return nil, err
	}
	return nil, &TransportError{
		RequestMetadata: &RequestMetadata{StatusCode: statusCode, URL: url, Retries: attempts - 1},
		Err:             errs.ErrorOrNil(),
	}
}

func (f *HTTPFetcher) doRequest(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", fmt.Sprintf("%s/%s", f.metadata.SDKType, f.metadata.SDKVersion))
	req.Header.Add("X-Manager-Language-Version", f.metadata.LanguageVersion)
	req.Header.Add("X-Manager-Session-Id", f.metadata.SessionID)
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	return f.client.Do(req)
}

func retry(ctx context.Context, retries int, backoff time.Duration, fn func() (bool, error)) error {
	for {
		if retry, err := fn(); retry {
			if retries <= 0 {
				return err
			}

			retries--
			select {
			case <-ctx.Done():
				return err
			case <-time.After(backoff):
			}
			backoff = backoff * backoffMultiplier
		} else {
			return err
		}
	}
}

func shouldRetry(code int) bool {
	switch code {
	case 408, 500, 502, 503, 504, 522, 524, 599:
		return true
	default:
		return false
	}
}
