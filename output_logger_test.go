package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputLoggerLevels(t *testing.T) {
	options, logs := observedLoggerOptions(t)
	options.LogLevel = LogLevelWarning
	logger := NewOutputLogger(options, nil)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Log(LogLevelError, "error message", errors.New("boom"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "warn message", entries[0].Message)
	assert.Equal(t, "error message", entries[1].Message)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
	assert.Equal(t, "optimizely-manager", entries[0].LoggerName)
}

func TestOutputLoggerCallback(t *testing.T) {
	type call struct {
		level   LogLevel
		message string
		err     error
	}
	var calls []call
	logger := NewOutputLogger(OutputLoggerOptions{
		LogLevel: LogLevelInfo,
		LogCallback: func(level LogLevel, message string, err error) {
			calls = append(calls, call{level, message, err})
		},
	}, nil)

	logger.Debug("skipped")
	logger.Info("hello")
	logger.LogError("went wrong")

	require.Len(t, calls, 2)
	assert.Equal(t, call{LogLevelInfo, "hello", nil}, calls[0])
	assert.Equal(t, LogLevelError, calls[1].level)
	assert.EqualError(t, calls[1].err, "went wrong")
}

func TestLogErrorCountsExceptions(t *testing.T) {
	options, logs := observedLoggerOptions(t)
	metrics := &memoryObservabilityClient{}
	logger := NewOutputLogger(options, metrics)

	logger.LogError(errors.New("first"))
	logger.LogError(42)

	assert.Equal(t, 2, metrics.count("optimizely.manager.sdk_exceptions_count"))
	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "42", entries[1].Message)
	assert.Contains(t, entries[0].ContextMap(), "stack")
}

type panickingObservabilityClient struct{ memoryObservabilityClient }

func (p *panickingObservabilityClient) Init(ctx context.Context) error {
	panic("init exploded")
}

func (p *panickingObservabilityClient) Increment(metricName string, value int, tags map[string]interface{}) error {
	return errors.New("increment failed")
}

func (p *panickingObservabilityClient) ShouldEnableHighCardinalityForThisTag(tag string) bool {
	panic("cardinality exploded")
}

func TestObservabilityClientFailuresAreContained(t *testing.T) {
	options, logs := observedLoggerOptions(t)
	logger := NewOutputLogger(options, &panickingObservabilityClient{})

	assert.NotPanics(t, func() {
		logger.Initialize()
		logger.Increment("datafile_update", 1, map[string]interface{}{"revision": "1"})
		logger.Gauge("datafile_revision", 1, map[string]interface{}{})
		logger.Shutdown()
	})
	assert.Equal(t, 1, logs.FilterMessage("Observability client Init panicked").Len())
	assert.Equal(t, 1, logs.FilterMessage("Observability client Increment failed").Len())
	assert.Equal(t, 1, logs.FilterMessageSnippet("ShouldEnableHighCardinalityForThisTag panicked").Len())
}

func TestHighCardinalityTagsAreFiltered(t *testing.T) {
	options, _ := observedLoggerOptions(t)
	metrics := &memoryObservabilityClient{}
	logger := NewOutputLogger(options, metrics)

	logger.LogDatafileSync(true, "2", "1")
	logger.LogDatafileSync(false, "1", "2")

	updates := metrics.find("optimizely.manager.datafile_update")
	require.Len(t, updates, 1)
	assert.Empty(t, updates[0].tags)
	assert.Equal(t, 1, metrics.count("optimizely.manager.datafile_no_update"))
}

func TestParseLogLevel(t *testing.T) {
	for input, expected := range map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"warn":    LogLevelWarning,
		"Warning": LogLevelWarning,
		" error ": LogLevelError,
	} {
		level, err := ParseLogLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, level, input)
	}
	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
	assert.Equal(t, "WARNING", LogLevelWarning.String())
}

func TestNilOutputLoggerIsSafe(t *testing.T) {
	var logger *OutputLogger
	assert.NotPanics(t, func() {
		logger.Info("nothing")
		logger.LogError("nothing")
		logger.Increment("x", 1, nil)
		logger.Sync()
	})
}

func TestSharedObservabilityClientOutlivesFirstLogger(t *testing.T) {
	options, _ := observedLoggerOptions(t)
	metrics := &memoryObservabilityClient{}
	first := NewOutputLogger(options, metrics)
	second := NewOutputLogger(options, metrics)

	first.Initialize()
	second.Initialize()
	inits, shutdowns := metrics.lifecycle()
	assert.Equal(t, 1, inits)
	assert.Equal(t, 0, shutdowns)

	first.Shutdown()
	first.Shutdown()
	_, shutdowns = metrics.lifecycle()
	assert.Equal(t, 0, shutdowns, "second logger still holds the client")

	second.Increment("datafile_update", 1, nil)
	assert.Equal(t, 1, metrics.count("optimizely.manager.datafile_update"))

	second.Shutdown()
	_, shutdowns = metrics.lifecycle()
	assert.Equal(t, 1, shutdowns)

	// a fresh logger starts a new lifecycle
	third := NewOutputLogger(options, metrics)
	third.Initialize()
	third.Shutdown()
	inits, shutdowns = metrics.lifecycle()
	assert.Equal(t, 2, inits)
	assert.Equal(t, 2, shutdowns)
}
