package manager

import (
	"errors"
	"fmt"
)

// Error Variables
type ManagerError error

var (
	ErrNotConfigured  ManagerError = errors.New("manager not configured")
	ErrNetworkRequest ManagerError = errors.New("failed network request")
	ErrDatafileFormat ManagerError = errors.New("invalid datafile format")
	ErrCache          ManagerError = errors.New("failed cache")
	ErrCacheParse     ManagerError = errors.New("malformed cached datafile")
	ErrEvaluator      ManagerError = errors.New("failed to create evaluator")
)

// ConfigurationError is returned when the singleton is used before Configure
type ConfigurationError struct {
	Method string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("You must call Configure() before %s()", e.Method)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrNotConfigured }

type RequestMetadata struct {
	StatusCode int
	URL        string
	Retries    int
}

type TransportError struct {
	RequestMetadata *RequestMetadata
	Err             error
}

func (e *TransportError) Error() string {
	if e.RequestMetadata != nil {
		return fmt.Sprintf("Failed request to %s after %d retries: %s", e.RequestMetadata.URL, e.RequestMetadata.Retries, e.Err.Error())
	} else {
		return e.Err.Error()
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrNetworkRequest }

type DatafileFormatError struct {
	URL string
	Err error
}

func (e *DatafileFormatError) Error() string {
	return fmt.Sprintf("Invalid datafile received from %s: %s", e.URL, e.Err.Error())
}

func (e *DatafileFormatError) Unwrap() error { return e.Err }

func (e *DatafileFormatError) Is(target error) bool { return target == ErrDatafileFormat }

type CacheError struct {
	Err    error
	Method string
	Key    string
}

func (e *CacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Error calling cache %s for %s: %s", e.Method, e.Key, e.Err.Error())
	} else {
		return fmt.Sprintf("Error calling cache %s for %s", e.Method, e.Key)
	}
}

func (e *CacheError) Unwrap() error { return e.Err }

func (e *CacheError) Is(target error) bool { return target == ErrCache }

type CacheParseError struct {
	Err error
	Key string
}

func (e *CacheParseError) Error() string {
	return fmt.Sprintf("Unable to parse cached datafile %s. Try clearing the cache. Received error: %s", e.Key, e.Err.Error())
}

func (e *CacheParseError) Unwrap() error { return e.Err }

func (e *CacheParseError) Is(target error) bool { return target == ErrCacheParse }

type EvaluatorError struct {
	Err      error
	Revision string
}

func (e *EvaluatorError) Error() string {
	return fmt.Sprintf("Failed to create evaluator for datafile revision %s: %s", e.Revision, e.Err.Error())
}

func (e *EvaluatorError) Unwrap() error { return e.Err }

func (e *EvaluatorError) Is(target error) bool { return target == ErrEvaluator }
