package manager

import (
	"github.com/asaschachar/optimizely-manager-go/internal/evaluation"
	"github.com/asaschachar/optimizely-manager-go/types"
)

type User = types.User

type Datafile = types.Datafile

// Evaluator decides feature flags for a single datafile revision.
// Implementations must be safe for concurrent use and are never mutated by
// the manager; a newer datafile produces a new Evaluator.
type Evaluator interface {
	IsFeatureEnabled(featureKey string, user User) bool
}

// EvaluatorConfig is everything an EvaluatorFactory gets to build a client
type EvaluatorConfig struct {
	SDKKey   string
	Datafile Datafile
	Logger   *OutputLogger
	// Options.EvaluatorOptions, untouched
	Options map[string]interface{}
}

type EvaluatorFactory func(config EvaluatorConfig) (Evaluator, error)

// NewDefaultEvaluatorFactory returns a factory for the built-in evaluator
// selected by options.DatafileFormat. The user agent and ip lookup tables are
// loaded once and shared by every evaluator the factory builds.
func NewDefaultEvaluatorFactory(options EvaluationOptions) EvaluatorFactory {
	lookups := evaluation.NewLookups(evaluation.LookupOptions{
		DisableUAParser:      options.DisableUAParser,
		DisableCountryLookup: options.DisableCountryLookup,
		EnsureLoaded:         options.EnsureLookupsLoaded,
	})
	if options.DatafileFormat == DatafileFormatRules {
		return ruleEvaluatorFactory(lookups)
	}
	return func(config EvaluatorConfig) (Evaluator, error) {
		evaluator, err := evaluation.NewProjectEvaluator(config.Datafile, lookups)
		if err != nil {
			return nil, err
		}
		return evaluator, nil
	}
}

// NewRuleEvaluatorFactory returns a factory for datafiles in the compact
// rules format, where each flag lists its own conditions and pass percentage.
func NewRuleEvaluatorFactory(options EvaluationOptions) EvaluatorFactory {
	options.DatafileFormat = DatafileFormatRules
	return NewDefaultEvaluatorFactory(options)
}

func ruleEvaluatorFactory(lookups *evaluation.Lookups) EvaluatorFactory {
	return func(config EvaluatorConfig) (Evaluator, error) {
		evaluator, err := evaluation.NewRuleEvaluator(config.Datafile, lookups)
		if err != nil {
			return nil, err
		}
		return evaluator, nil
	}
}
