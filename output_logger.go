package manager

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarning
	LogLevelError
)

const METRIC_PREFIX = "optimizely.manager"

var HIGH_CARDINALITY_TAGS = map[string]bool{
	"revision":      true,
	"prev_revision": true,
}

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarning:
		return "WARNING"
	case LogLevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
}

// ParseLogLevel converts a level name such as "info" or "WARNING" to a LogLevel
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarning, nil
	case "error":
		return LogLevelError, nil
	}
	return LogLevelDebug, fmt.Errorf("unknown log level %q", s)
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarning:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.DebugLevel
	}
}

type OutputLoggerOptions struct {
	// Minimum level that is written. Defaults to LogLevelDebug.
	LogLevel LogLevel
	// Logger receives all output when set. A production zap logger is built otherwise.
	Logger *zap.Logger
	// LogCallback replaces zap output entirely when set
	LogCallback func(level LogLevel, message string, err error)
}

type OutputLogger struct {
	options             OutputLoggerOptions
	logger              *zap.Logger
	observabilityClient IObservabilityClient
	acquired            atomic.Bool
}

func NewOutputLogger(options OutputLoggerOptions, observabilityClient IObservabilityClient) *OutputLogger {
	logger := options.Logger
	if logger == nil && options.LogCallback == nil {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(options.LogLevel.zapLevel())
		built, err := config.Build()
		if err != nil {
			built = zap.NewNop()
		}
		logger = built
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutputLogger{
		options:             options,
		logger:              logger.Named("optimizely-manager"),
		observabilityClient: observabilityClient,
	}
}

func (o *OutputLogger) enabled(level LogLevel) bool {
	return level >= o.options.LogLevel
}

func (o *OutputLogger) Log(level LogLevel, msg string, err error, fields ...zap.Field) {
	if !o.isInitialized() || !o.enabled(level) {
		return
	}
	if o.options.LogCallback != nil {
		o.options.LogCallback(level, msg, err)
		return
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	switch level {
	case LogLevelDebug:
		o.logger.Debug(msg, fields...)
	case LogLevelInfo:
		o.logger.Info(msg, fields...)
	case LogLevelWarning:
		o.logger.Warn(msg, fields...)
	default:
		o.logger.Error(msg, fields...)
	}
}

func (o *OutputLogger) Debug(msg string, fields ...zap.Field) {
	o.Log(LogLevelDebug, msg, nil, fields...)
}

func (o *OutputLogger) Info(msg string, fields ...zap.Field) {
	o.Log(LogLevelInfo, msg, nil, fields...)
}

func (o *OutputLogger) Warn(msg string, fields ...zap.Field) {
	o.Log(LogLevelWarning, msg, nil, fields...)
}

// LogError logs err with a stack trace and counts it as an sdk exception.
// err may be an error, a string or any recovered panic value.
func (o *OutputLogger) LogError(err interface{}, fields ...zap.Field) {
	var errMsg error
	switch e := err.(type) {
	case string:
		errMsg = errors.New(e)
	case error:
		errMsg = e
	default:
		errMsg = fmt.Errorf("%v", err)
	}

	o.Increment("sdk_exceptions_count", 1, map[string]interface{}{})
	stack := make([]byte, 1024)
	n := runtime.Stack(stack, false)
	fields = append(fields, zap.ByteString("stack", stack[:n]))
	o.Log(LogLevelError, errMsg.Error(), errMsg, fields...)
}

func (o *OutputLogger) Sync() {
	if o.isInitialized() {
		_ = o.logger.Sync()
	}
}

// Initialize takes a reference on the observability client and initializes it
// unless another logger already did. Each Initialize is paired with one Shutdown.
func (o *OutputLogger) Initialize() {
	if o.isInitialized() && o.observabilityClient != nil {
		if o.acquired.Swap(true) || !acquireObservabilityClient(o.observabilityClient) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				o.Log(LogLevelError, "Observability client Init panicked", nil)
			}
		}()
		err := o.observabilityClient.Init(context.Background())
		if err != nil {
			o.Log(LogLevelError, "Observability client Init failed", err)
		}
	}
}

func (o *OutputLogger) Increment(metricName string, value int, tags map[string]interface{}) {
	if o.isInitialized() && o.observabilityClient != nil {
		defer func() {
			if r := recover(); r != nil {
				o.Log(LogLevelError, "Observability client Increment panicked", nil)
			}
		}()
		err := o.observabilityClient.Increment(fmt.Sprintf("%s.%s", METRIC_PREFIX, metricName), value, o.filterHighCardinalityTags(tags))
		if err != nil {
			o.Log(LogLevelError, "Observability client Increment failed", err)
		}
	}
}

func (o *OutputLogger) Gauge(metricName string, value float64, tags map[string]interface{}) {
	if o.isInitialized() && o.observabilityClient != nil {
		defer func() {
			if r := recover(); r != nil {
				o.Log(LogLevelError, "Observability client Gauge panicked", nil)
			}
		}()
		err := o.observabilityClient.Gauge(fmt.Sprintf("%s.%s", METRIC_PREFIX, metricName), value, o.filterHighCardinalityTags(tags))
		if err != nil {
			o.Log(LogLevelError, "Observability client Gauge failed", err)
		}
	}
}

func (o *OutputLogger) Distribution(metricName string, value float64, tags map[string]interface{}) {
	if o.isInitialized() && o.observabilityClient != nil {
		defer func() {
			if r := recover(); r != nil {
				o.Log(LogLevelError, "Observability client Distribution panicked", nil)
			}
		}()
		err := o.observabilityClient.Distribution(fmt.Sprintf("%s.%s", METRIC_PREFIX, metricName), value, o.filterHighCardinalityTags(tags))
		if err != nil {
			o.Log(LogLevelError, "Observability client Distribution failed", err)
		}
	}
}

// Shutdown drops the reference taken by Initialize. The client itself is shut
// down once no other logger holds it.
func (o *OutputLogger) Shutdown() {
	if o.isInitialized() && o.observabilityClient != nil {
		if !o.acquired.Swap(false) || !releaseObservabilityClient(o.observabilityClient) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				o.Log(LogLevelError, "Observability client Shutdown panicked", nil)
			}
		}()
		err := o.observabilityClient.Shutdown(context.Background())
		if err != nil {
			o.Log(LogLevelError, "Observability client Shutdown failed", err)
		}
	}
}

func (o *OutputLogger) LogReady(details ReadyDetails) {
	o.Distribution("initialization", details.Duration.Seconds(), map[string]interface{}{
		"source": details.Source.String(),
	})
	o.Info(fmt.Sprintf("Manager ready with datafile from %s.", details.Source),
		zap.String("revision", details.Revision),
		zap.Duration("duration", details.Duration))
}

func (o *OutputLogger) LogDatafileSync(updated bool, revision string, prevRevision string) {
	if !updated {
		o.Increment("datafile_no_update", 1, map[string]interface{}{})
		return
	}
	o.Increment("datafile_update", 1, map[string]interface{}{
		"revision":      revision,
		"prev_revision": prevRevision,
	})
}

func (o *OutputLogger) isInitialized() bool {
	return o != nil
}

func (o *OutputLogger) filterHighCardinalityTags(tags map[string]interface{}) map[string]interface{} {
	if !o.isInitialized() || o.observabilityClient == nil {
		return tags
	}

	filteredTags := make(map[string]interface{})
	for tag, value := range tags {
		if !HIGH_CARDINALITY_TAGS[tag] || o.shouldEnableHighCardinality(tag) {
			filteredTags[tag] = value
		}
	}
	return filteredTags
}

func (o *OutputLogger) shouldEnableHighCardinality(tag string) (enabled bool) {
	defer func() {
		if r := recover(); r != nil {
			o.Log(LogLevelError, fmt.Sprintf("Observability client ShouldEnableHighCardinalityForThisTag panicked: %v", r), nil)
			enabled = false
		}
	}()
	return o.observabilityClient.ShouldEnableHighCardinalityForThisTag(tag)
}
