package manager

import (
	"sync"

	"go.uber.org/zap"
)

// errorBoundary keeps panics in pluggable code (evaluators, caches,
// factories) from reaching application code.
type errorBoundary struct {
	logger   *OutputLogger
	seen     map[string]bool
	seenLock sync.RWMutex
}

func newErrorBoundary(logger *OutputLogger) *errorBoundary {
	return &errorBoundary{
		logger: logger,
		seen:   make(map[string]bool),
	}
}

func (e *errorBoundary) checkSeen(exceptionString string) bool {
	e.seenLock.Lock()
	defer e.seenLock.Unlock()
	if e.seen[exceptionString] {
		return true
	}
	e.seen[exceptionString] = true
	return false
}

func (e *errorBoundary) captureIsFeatureEnabled(
	task func() bool,
	caller string,
	featureKey string,
) (result bool) {
	defer e.ebRecover(func() {
		result = false
	}, caller, zap.String("feature_key", featureKey))
	return task()
}

func (e *errorBoundary) ebRecover(recoverCallback func(), caller string, fields ...zap.Field) {
	if err := recover(); err != nil {
		e.logException(toError(err), caller, fields...)
		recoverCallback()
	}
}

// logException logs the first occurrence of an exception with a stack trace
// and later occurrences at debug level.
func (e *errorBoundary) logException(exception error, caller string, fields ...zap.Field) {
	fields = append(fields, zap.String("caller", caller))
	if e.checkSeen(exception.Error()) {
		e.logger.Increment("sdk_exceptions_count", 1, map[string]interface{}{})
		e.logger.Log(LogLevelDebug, "Recovered from repeated exception", exception, fields...)
		return
	}
	e.logger.LogError(exception, fields...)
}
