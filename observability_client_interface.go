package manager

import (
	"context"
)

/**
 * IObservabilityClient is an interface for observability clients that allows users to plug in their
 * own observability integration for metrics collection and monitoring of datafile syncing.
 */
type IObservabilityClient interface {
	/**
	 * Init initializes the observability client with necessary configuration.
	 * The context parameter allows for cancellation and timeout control.
	 */
	Init(ctx context.Context) error

	/**
	 * Increment increments a counter metric.
	 * metricName: The name of the metric to increment.
	 * value: The value by which the counter should be incremented.
	 * tags: Optional map of tags for metric dimensions.
	 */
	Increment(metricName string, value int, tags map[string]interface{}) error

	/**
	 * Gauge sets a gauge metric, e.g. the active datafile revision.
	 */
	Gauge(metricName string, value float64, tags map[string]interface{}) error

	/**
	 * Distribution records a distribution metric such as fetch latency.
	 */
	Distribution(metricName string, value float64, tags map[string]interface{}) error

	/**
	 * ShouldEnableHighCardinalityForThisTag determines if a high cardinality tag
	 * (for example a datafile revision) should be attached to metrics.
	 */
	ShouldEnableHighCardinalityForThisTag(tag string) bool

	/**
	 * Shutdown shuts down the observability client.
	 */
	Shutdown(ctx context.Context) error
}
