// Package evaluation decides feature flags from a datafile.
//
// ProjectEvaluator reads Optimizely project datafiles: feature flags backed by
// feature tests and rollouts, audiences and murmur3 traffic bucketing.
// RuleEvaluator reads a compact rules format for hand-written datafiles.
// Both share the user agent and ip country Lookups.
package evaluation
