package manager

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObservabilityClient exports manager metrics through a Prometheus
// registerer. Metric vectors are created lazily on first use; the tag keys of
// the first observation fix the label names of that metric.
type PrometheusObservabilityClient struct {
	registerer    prometheus.Registerer
	counters      map[string]*prometheus.CounterVec
	gauges        map[string]*prometheus.GaugeVec
	histograms    map[string]*prometheus.HistogramVec
	labels        map[string][]string
	highCardinals map[string]bool
	mu            sync.Mutex
}

// NewPrometheusObservabilityClient registers metrics with registerer, or with
// prometheus.DefaultRegisterer when registerer is nil. highCardinalityTags
// lists the high cardinality tags (e.g. "revision") that should be exported.
func NewPrometheusObservabilityClient(registerer prometheus.Registerer, highCardinalityTags ...string) *PrometheusObservabilityClient {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	highCardinals := make(map[string]bool)
	for _, tag := range highCardinalityTags {
		highCardinals[tag] = true
	}
	return &PrometheusObservabilityClient{
		registerer:    registerer,
		counters:      make(map[string]*prometheus.CounterVec),
		gauges:        make(map[string]*prometheus.GaugeVec),
		histograms:    make(map[string]*prometheus.HistogramVec),
		labels:        make(map[string][]string),
		highCardinals: highCardinals,
	}
}

func (p *PrometheusObservabilityClient) Init(ctx context.Context) error {
	return nil
}

func (p *PrometheusObservabilityClient) Increment(metricName string, value int, tags map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := prometheusName(metricName) + "_total"
	labelNames, labelValues, err := p.labelsFor(name, tags)
	if err != nil {
		return err
	}
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name,
			Help: fmt.Sprintf("Count of %s", metricName),
		}, labelNames)
		registered, err := p.register(vec)
		if err != nil {
			return err
		}
		vec = registered.(*prometheus.CounterVec)
		p.counters[name] = vec
	}
	vec.WithLabelValues(labelValues...).Add(float64(value))
	return nil
}

func (p *PrometheusObservabilityClient) Gauge(metricName string, value float64, tags map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := prometheusName(metricName)
	labelNames, labelValues, err := p.labelsFor(name, tags)
	if err != nil {
		return err
	}
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: fmt.Sprintf("Current value of %s", metricName),
		}, labelNames)
		registered, err := p.register(vec)
		if err != nil {
			return err
		}
		vec = registered.(*prometheus.GaugeVec)
		p.gauges[name] = vec
	}
	vec.WithLabelValues(labelValues...).Set(value)
	return nil
}

func (p *PrometheusObservabilityClient) Distribution(metricName string, value float64, tags map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := prometheusName(metricName) + "_seconds"
	labelNames, labelValues, err := p.labelsFor(name, tags)
	if err != nil {
		return err
	}
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    fmt.Sprintf("Distribution of %s", metricName),
			Buckets: prometheus.ExponentialBuckets(1e-3, 5, 7),
		}, labelNames)
		registered, err := p.register(vec)
		if err != nil {
			return err
		}
		vec = registered.(*prometheus.HistogramVec)
		p.histograms[name] = vec
	}
	vec.WithLabelValues(labelValues...).Observe(value)
	return nil
}

func (p *PrometheusObservabilityClient) ShouldEnableHighCardinalityForThisTag(tag string) bool {
	return p.highCardinals[tag]
}

func (p *PrometheusObservabilityClient) Shutdown(ctx context.Context) error {
	return nil
}

// register returns the collector that ends up registered, which is the
// existing one when another client already registered the same metric.
func (p *PrometheusObservabilityClient) register(collector prometheus.Collector) (prometheus.Collector, error) {
	if err := p.registerer.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector, nil
		}
		return nil, err
	}
	return collector, nil
}

// labelsFor returns sorted label names and matching values. Every observation
// of a metric must use the same tag keys.
func (p *PrometheusObservabilityClient) labelsFor(name string, tags map[string]interface{}) ([]string, []string, error) {
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	sort.Strings(names)
	if known, ok := p.labels[name]; ok {
		if strings.Join(known, ",") != strings.Join(names, ",") {
			return nil, nil, fmt.Errorf("metric %s observed with labels %v, expected %v", name, names, known)
		}
	} else {
		p.labels[name] = names
	}
	values := make([]string, 0, len(names))
	for _, k := range names {
		values = append(values, fmt.Sprintf("%v", tags[k]))
	}
	return names, values, nil
}

func prometheusName(metricName string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(metricName)
}
