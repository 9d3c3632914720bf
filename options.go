package manager

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/asaschachar/optimizely-manager-go/types"
)

const (
	DefaultCDNBase        = "https://cdn.optimizely.com"
	CacheKeyPrefix        = "optimizelyDatafile-"
	DefaultUpdateInterval = time.Second
)

// Live updates are on unless DatafileOptions.LiveUpdates says otherwise.
// A long running server process is the expected environment for this package.
const defaultLiveUpdates = true

// Options for configuring the datafile manager
type Options struct {
	// Identifies which datafile to fetch and cache
	SDKKey string `json:"sdkKey"`
	// Inline datafile used until a newer revision is fetched
	Datafile        types.Datafile
	DatafileOptions DatafileOptions
	// Fetcher used to download the datafile. Defaults to an HTTPFetcher.
	Fetcher Fetcher
	// Cache for the last known datafile. No caching when nil.
	Cache Cache
	// Builds evaluators from datafiles. Defaults to the built-in evaluator.
	EvaluatorFactory EvaluatorFactory
	// Passed through to the EvaluatorFactory untouched
	EvaluatorOptions    map[string]interface{}
	EvaluationOptions   EvaluationOptions
	FetcherOptions      FetcherOptions
	OutputLoggerOptions OutputLoggerOptions
	ObservabilityClient IObservabilityClient
	// Time source for the refresh schedule. Defaults to the wall clock.
	Clock clock.Clock
}

type DatafileOptions struct {
	// Time between datafile fetches when live updates are on. Defaults to one second.
	UpdateInterval time.Duration
	// Overrides the default of polling for new datafiles when set
	LiveUpdates *bool
	// Builds the datafile url for an sdk key. Takes precedence over BaseURL.
	GetURL func(sdkKey string) string
	// CDN base used for the default url. Defaults to DefaultCDNBase.
	BaseURL string
}

// Options for the built-in evaluator's user agent and ip lookups
// DatafileFormat selects how the built-in evaluator reads a datafile
type DatafileFormat string

const (
	// Optimizely project datafiles with feature tests, rollouts and audiences
	DatafileFormatOptimizely DatafileFormat = "optimizely"
	// Flags that carry their own conditions and pass percentages
	DatafileFormatRules DatafileFormat = "rules"
)

// ParseDatafileFormat converts a format name to a DatafileFormat. An empty
// name is the Optimizely format.
func ParseDatafileFormat(s string) (DatafileFormat, error) {
	switch DatafileFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", DatafileFormatOptimizely:
		return DatafileFormatOptimizely, nil
	case DatafileFormatRules:
		return DatafileFormatRules, nil
	}
	return DatafileFormatOptimizely, fmt.Errorf("unknown datafile format %q", s)
}

type EvaluationOptions struct {
	// Defaults to DatafileFormatOptimizely
	DatafileFormat       DatafileFormat
	DisableUAParser      bool
	DisableCountryLookup bool
	// Block evaluations until the lookup tables are loaded
	EnsureLookupsLoaded bool
}

// Bool returns a pointer to b, for optional settings such as LiveUpdates
func Bool(b bool) *bool {
	return &b
}

func (o DatafileOptions) liveUpdates() bool {
	if o.LiveUpdates != nil {
		return *o.LiveUpdates
	}
	return defaultLiveUpdates
}

func (o DatafileOptions) updateInterval() time.Duration {
	if o.UpdateInterval > 0 {
		return o.UpdateInterval
	}
	return DefaultUpdateInterval
}

// GetOptionLoggingCopy returns a loggable summary of options. Datafiles,
// callbacks and collaborators are reported as "set" rather than printed.
func GetOptionLoggingCopy(options Options) map[string]interface{} {
	loggingCopy := make(map[string]interface{})
	val := reflect.ValueOf(options)

	for i := 0; i < val.NumField(); i++ {
		field := val.Type().Field(i)
		fieldValue := val.Field(i)
		switch fieldValue.Kind() {
		case reflect.String:
			if fieldValue.String() != "" {
				if fieldValue.Len() < 50 {
					loggingCopy[field.Name] = fieldValue.String()
				} else {
					loggingCopy[field.Name] = "set"
				}
			}

		case reflect.Struct:
			if field.Name == "DatafileOptions" {
				datafileOptions := fieldValue.Interface().(DatafileOptions)
				loggingCopy[field.Name] = map[string]interface{}{
					"UpdateInterval": datafileOptions.updateInterval().String(),
					"LiveUpdates":    datafileOptions.liveUpdates(),
					"GetURL":         datafileOptions.GetURL != nil,
					"BaseURL":        defaultString(datafileOptions.BaseURL, DefaultCDNBase),
				}
				break
			}
			if !fieldValue.IsZero() {
				loggingCopy[field.Name] = "set"
			}

		case reflect.Map, reflect.Func, reflect.Interface:
			if !fieldValue.IsNil() {
				loggingCopy[field.Name] = "set"
			}

		default:
			// ignore other fields
		}
	}
	return loggingCopy
}
