package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/asaschachar/optimizely-manager-go/types"
)

// clientSlot is swapped as a whole so evaluations never see a half-updated client
type clientSlot struct {
	evaluator   Evaluator
	initialized bool
}

// DatafileManager keeps an evaluator in sync with the remote datafile for one
// sdk key. It loads a cached datafile on startup, fetches the latest one right
// away and, with live updates on, keeps polling for newer revisions.
type DatafileManager struct {
	sdkKey        string
	url           string
	options       Options
	fetcher       Fetcher
	cache         Cache
	factory       EvaluatorFactory
	logger        *OutputLogger
	errorBoundary *errorBoundary
	clock         clock.Clock
	startTime     time.Time

	client atomic.Pointer[clientSlot]
	group  singleflight.Group

	mu              sync.RWMutex
	currentDatafile Datafile
	ticker          *clock.Ticker
	done            chan struct{}
	closed          bool
	readyDetails    *ReadyDetails

	ready     chan struct{}
	readyOnce sync.Once
}

func NewDatafileManager(options Options) *DatafileManager {
	logger := NewOutputLogger(options.OutputLoggerOptions, options.ObservabilityClient)
	logger.Initialize()

	clk := options.Clock
	if clk == nil {
		clk = clock.New()
	}
	fetcher := options.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(options.FetcherOptions)
	}
	factory := options.EvaluatorFactory
	if factory == nil {
		factory = NewDefaultEvaluatorFactory(options.EvaluationOptions)
	}

	m := &DatafileManager{
		sdkKey:        options.SDKKey,
		options:       options,
		fetcher:       fetcher,
		cache:         options.Cache,
		factory:       factory,
		logger:        logger,
		errorBoundary: newErrorBoundary(logger),
		clock:         clk,
		startTime:     clk.Now(),
		done:          make(chan struct{}),
		ready:         make(chan struct{}),
	}
	m.logger.Debug("Loading datafile manager", zap.Any("options", GetOptionLoggingCopy(options)))

	// only a datafile the client was built from counts as current
	m.currentDatafile = Datafile{}

	cachedDatafile := m.loadCachedDatafile()

	source := SourceUninitialized
	var effective Datafile
	if !options.Datafile.IsEmpty() {
		effective, source = options.Datafile, SourceInline
	} else if !cachedDatafile.IsEmpty() {
		effective, source = cachedDatafile, SourceCache
	}

	m.client.Store(&clientSlot{evaluator: NewUninitializedClient(logger)})
	if effective != nil {
		if evaluator, err := m.buildClient(effective); err != nil {
			m.logger.Log(LogLevelError, "Falling back to an uninitialized client", err)
		} else {
			m.mu.Lock()
			m.client.Store(&clientSlot{evaluator: evaluator, initialized: true})
			m.currentDatafile = effective
			m.markReadyLocked(source, effective)
			m.mu.Unlock()
		}
	}

	if options.DatafileOptions.GetURL != nil {
		m.url = options.DatafileOptions.GetURL(m.sdkKey)
	} else {
		m.url = getDefaultURL(options.DatafileOptions.BaseURL, m.sdkKey)
	}

	if m.sdkKey == "" && options.DatafileOptions.GetURL == nil {
		m.logger.Debug("No sdk key or datafile url configured. The datafile will not be fetched.")
		return m
	}

	go m.refresh()

	if options.DatafileOptions.liveUpdates() {
		m.ticker = m.clock.Ticker(options.DatafileOptions.updateInterval())
		go m.pollForDatafileChanges(m.ticker, m.done)
	}
	return m
}

// RequestDatafile fetches the datafile at url and, if its revision is newer
// than the active one, rebuilds the client from it and caches it. The active
// datafile is returned either way. Fetch errors are returned as-is.
//
// Concurrent requests for the same url share one fetch, and a response that is
// not newer than the active datafile never replaces it.
//
// The shared fetch does not belong to any one caller, so it runs detached from
// ctx. Cancelling ctx only stops this caller from waiting on it.
func (m *DatafileManager) RequestDatafile(ctx context.Context, url string) (Datafile, error) {
	fetchCtx := context.WithoutCancel(ctx)
	results := m.group.DoChan(url, func() (interface{}, error) {
		return m.fetchAndApply(fetchCtx, url)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			if datafile, ok := res.Val.(Datafile); ok && datafile != nil {
				return datafile, res.Err
			}
			return nil, res.Err
		}
		return res.Val.(Datafile), nil
	}
}

func (m *DatafileManager) fetchAndApply(ctx context.Context, url string) (Datafile, error) {
	start := m.clock.Now()
	latest, err := m.fetcher.Fetch(ctx, url)
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.logger.Increment("datafile_fetch", 1, map[string]interface{}{"result": result})
	m.logger.Distribution("datafile_fetch_duration", m.clock.Since(start).Seconds(), map[string]interface{}{"result": result})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, &DatafileFormatError{URL: url, Err: fmt.Errorf("fetcher returned no datafile")}
	}
	return m.applyDatafile(latest)
}

func (m *DatafileManager) applyDatafile(latest Datafile) (Datafile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.currentDatafile

	if !latest.IsNewerThan(current) {
		m.logger.Debug(fmt.Sprintf("Latest datafile revision %s. Current datafile revision %s. Not updating client.",
			latest.RevisionString(), current.RevisionString()))
		m.logger.LogDatafileSync(false, latest.RevisionString(), current.RevisionString())
		return current, nil
	}

	m.logger.Info(fmt.Sprintf("Latest datafile revision %s. Current datafile revision %s. Updating client with latest feature configuration.",
		latest.RevisionString(), current.RevisionString()))
	evaluator, err := m.buildClient(latest)
	if err != nil {
		m.logger.Log(LogLevelError, "Keeping the current client", err)
		return current, err
	}
	m.client.Store(&clientSlot{evaluator: evaluator, initialized: true})
	m.currentDatafile = latest
	m.cacheDatafile(latest)
	m.logger.LogDatafileSync(true, latest.RevisionString(), current.RevisionString())
	m.logger.Gauge("datafile_revision", latest.Revision(), map[string]interface{}{})
	m.markReadyLocked(SourceNetwork, latest)
	return latest, nil
}

func (m *DatafileManager) buildClient(datafile Datafile) (evaluator Evaluator, err error) {
	defer func() {
		if r := recover(); r != nil {
			evaluator = nil
			err = &EvaluatorError{Err: toError(r), Revision: datafile.RevisionString()}
		}
	}()
	evaluator, err = m.factory(EvaluatorConfig{
		SDKKey:   m.sdkKey,
		Datafile: datafile,
		Logger:   m.logger,
		Options:  m.options.EvaluatorOptions,
	})
	if err != nil {
		return nil, &EvaluatorError{Err: err, Revision: datafile.RevisionString()}
	}
	if evaluator == nil {
		return nil, &EvaluatorError{Err: fmt.Errorf("factory returned no evaluator"), Revision: datafile.RevisionString()}
	}
	return evaluator, nil
}

// IsFeatureEnabled reports whether featureKey is on for userID. A random user
// id is used when userID is empty, so repeated anonymous calls may disagree.
func (m *DatafileManager) IsFeatureEnabled(featureKey string, userID string) bool {
	return m.IsFeatureEnabledForUser(featureKey, User{ID: userID})
}

func (m *DatafileManager) IsFeatureEnabledForUser(featureKey string, user User) bool {
	if user.ID == "" {
		user.ID = uuid.NewString()
		m.logger.Info(fmt.Sprintf("Using random string '%s' for userId.", user.ID))
	}
	slot := m.client.Load()
	return m.errorBoundary.captureIsFeatureEnabled(func() bool {
		return slot.evaluator.IsFeatureEnabled(featureKey, user)
	}, "IsFeatureEnabled", featureKey)
}

// Client returns the evaluator currently in use. Before any datafile is
// available this is an UninitializedClient.
func (m *DatafileManager) Client() Evaluator {
	return m.client.Load().evaluator
}

// IsInitialized reports whether the client was built from a datafile
func (m *DatafileManager) IsInitialized() bool {
	return m.client.Load().initialized
}

// Datafile returns the active datafile. It must not be modified.
func (m *DatafileManager) Datafile() Datafile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentDatafile
}

// URL is where the datafile is fetched from
func (m *DatafileManager) URL() string {
	return m.url
}

// OnReady is closed once a datafile has been loaded into the client
func (m *DatafileManager) OnReady() <-chan struct{} {
	return m.ready
}

func (m *DatafileManager) WaitForReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *DatafileManager) ReadyDetails() (ReadyDetails, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.readyDetails == nil {
		return ReadyDetails{}, false
	}
	return *m.readyDetails, true
}

// Close stops polling for new datafiles. A fetch already in flight is not
// cancelled. Calling Close more than once is a no-op.
func (m *DatafileManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	close(m.done)
	m.mu.Unlock()

	m.logger.Debug("Datafile manager closed")
	m.logger.Shutdown()
	m.logger.Sync()
}

func (m *DatafileManager) refresh() {
	if _, err := m.RequestDatafile(context.Background(), m.url); err != nil {
		m.logger.Log(LogLevelError, "Failed to update datafile. Will retry on the next update.", err, zap.String("url", m.url))
	}
}

func (m *DatafileManager) pollForDatafileChanges(ticker *clock.Ticker, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			select {
			case <-done:
				return
			default:
			}
			m.refresh()
		}
	}
}

func (m *DatafileManager) loadCachedDatafile() (datafile Datafile) {
	if m.cache == nil {
		return nil
	}
	key := getCacheKey(m.sdkKey)
	defer func() {
		if err := recover(); err != nil {
			m.logger.Increment("datafile_cache_errors", 1, map[string]interface{}{"method": "get"})
			m.logger.Log(LogLevelDebug, "Ignoring cached datafile", &CacheError{Err: toError(err), Method: "get", Key: key})
			datafile = nil
		}
	}()
	raw, err := m.cache.Get(key)
	if err != nil {
		m.logger.Increment("datafile_cache_errors", 1, map[string]interface{}{"method": "get"})
		m.logger.Log(LogLevelDebug, "Ignoring cached datafile", &CacheError{Err: err, Method: "get", Key: key})
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	parsed, err := types.ParseDatafile(raw)
	if err != nil {
		m.logger.Increment("datafile_cache_errors", 1, map[string]interface{}{"method": "parse"})
		m.logger.Log(LogLevelDebug, "Ignoring cached datafile", &CacheParseError{Err: err, Key: key})
		return nil
	}
	return parsed
}

func (m *DatafileManager) cacheDatafile(datafile Datafile) {
	if m.cache == nil {
		return
	}
	key := getCacheKey(m.sdkKey)
	defer func() {
		if err := recover(); err != nil {
			m.logger.Increment("datafile_cache_errors", 1, map[string]interface{}{"method": "set"})
			m.logger.Log(LogLevelError, "Failed to cache datafile", &CacheError{Err: toError(err), Method: "set", Key: key})
		}
	}()
	raw, err := json.Marshal(datafile)
	if err == nil {
		err = m.cache.Set(key, raw)
	}
	if err != nil {
		m.logger.Increment("datafile_cache_errors", 1, map[string]interface{}{"method": "set"})
		m.logger.Log(LogLevelError, "Failed to cache datafile", &CacheError{Err: err, Method: "set", Key: key})
	}
}

func (m *DatafileManager) markReadyLocked(source DatafileSource, datafile Datafile) {
	m.readyOnce.Do(func() {
		details := ReadyDetails{
			Source:   source,
			Revision: datafile.RevisionString(),
			Duration: m.clock.Since(m.startTime),
		}
		m.readyDetails = &details
		m.logger.LogReady(details)
		close(m.ready)
	})
}
