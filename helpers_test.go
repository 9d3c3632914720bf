package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/asaschachar/optimizely-manager-go/types"
)

var (
	datafileR1 = checkoutFlowDatafile("1", true)
	datafileR2 = checkoutFlowDatafile("2", false)
)

// checkoutFlowDatafile is a project datafile whose checkout_flow rollout
// serves everyone a variation with featureEnabled set to enabled
func checkoutFlowDatafile(revision string, enabled bool) Datafile {
	return Datafile{
		"revision":    revision,
		"experiments": []interface{}{},
		"audiences":   []interface{}{},
		"featureFlags": []interface{}{
			map[string]interface{}{"id": "f1", "key": "checkout_flow", "rolloutId": "r1", "experimentIds": []interface{}{}},
		},
		"rollouts": []interface{}{
			map[string]interface{}{
				"id": "r1",
				"experiments": []interface{}{
					map[string]interface{}{
						"id":                "e1",
						"key":               "everyone_else",
						"status":            "Running",
						"audienceIds":       []interface{}{},
						"trafficAllocation": []interface{}{map[string]interface{}{"entityId": "v1", "endOfRange": 10000}},
						"variations":        []interface{}{map[string]interface{}{"id": "v1", "key": "on", "featureEnabled": enabled}},
					},
				},
			},
		},
	}
}

// fakeFetcher serves datafiles from a queue and records every url requested.
// Once the queue is drained the last datafile is served again.
type fakeFetcher struct {
	mu        sync.Mutex
	datafiles []Datafile
	err       error
	urls      []string
	calls     atomic.Int32
	// blocks Fetch until closed when set
	gate chan struct{}
}

func newFakeFetcher(datafiles ...Datafile) *fakeFetcher {
	return &fakeFetcher{datafiles: datafiles}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (types.Datafile, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.datafiles) == 0 {
		return Datafile{}, nil
	}
	next := f.datafiles[0]
	if len(f.datafiles) > 1 {
		f.datafiles = f.datafiles[1:]
	}
	return next, nil
}

func (f *fakeFetcher) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFetcher) requestedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

// recordingEvaluator remembers every user it was asked about
type recordingEvaluator struct {
	revision string
	mu       sync.Mutex
	users    []User
}

func (r *recordingEvaluator) IsFeatureEnabled(featureKey string, user User) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, user)
	return true
}

func (r *recordingEvaluator) seenUsers() []User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]User(nil), r.users...)
}

func recordingFactory() (EvaluatorFactory, *sync.Map) {
	built := &sync.Map{}
	return func(config EvaluatorConfig) (Evaluator, error) {
		evaluator := &recordingEvaluator{revision: config.Datafile.RevisionString()}
		built.Store(evaluator.revision, evaluator)
		return evaluator, nil
	}, built
}

func observedLoggerOptions(t *testing.T) (OutputLoggerOptions, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return OutputLoggerOptions{LogLevel: LogLevelDebug, Logger: zap.New(core)}, logs
}

// testEvaluation skips the user agent and ip tables, which are slow to load
var testEvaluation = EvaluationOptions{DisableUAParser: true, DisableCountryLookup: true}

type memoryMetric struct {
	name  string
	value float64
	tags  map[string]interface{}
}

// memoryObservabilityClient records every metric it receives
type memoryObservabilityClient struct {
	mu       sync.Mutex
	metrics  []memoryMetric
	inited   bool
	shutdown bool
	// Init and Shutdown calls
	initCalls     int
	shutdownCalls int
}

func (m *memoryObservabilityClient) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inited = true
	m.initCalls++
	return nil
}

func (m *memoryObservabilityClient) record(name string, value float64, tags map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, memoryMetric{name: name, value: value, tags: tags})
	return nil
}

func (m *memoryObservabilityClient) Increment(metricName string, value int, tags map[string]interface{}) error {
	return m.record(metricName, float64(value), tags)
}

func (m *memoryObservabilityClient) Gauge(metricName string, value float64, tags map[string]interface{}) error {
	return m.record(metricName, value, tags)
}

func (m *memoryObservabilityClient) Distribution(metricName string, value float64, tags map[string]interface{}) error {
	return m.record(metricName, value, tags)
}

func (m *memoryObservabilityClient) ShouldEnableHighCardinalityForThisTag(tag string) bool {
	return false
}

func (m *memoryObservabilityClient) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = true
	m.shutdownCalls++
	return nil
}

func (m *memoryObservabilityClient) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, metric := range m.metrics {
		if metric.name == name {
			n++
		}
	}
	return n
}

func (m *memoryObservabilityClient) find(name string) []memoryMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []memoryMetric
	for _, metric := range m.metrics {
		if metric.name == name {
			out = append(out, metric)
		}
	}
	return out
}

func (m *memoryObservabilityClient) lifecycle() (initCalls int, shutdownCalls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initCalls, m.shutdownCalls
}
