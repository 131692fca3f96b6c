// Package metrics exports the native resources held by an acl.Runtime as Prometheus gauges.
//
// Register a Collector with a prometheus.Registerer, and the counts are read from the runtime on every scrape:
//
//	prometheus.MustRegister(metrics.NewCollector(rt, prometheus.Labels{"node": hostname}))
package metrics

import (
	"github.com/gomlx/goacl/acl"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "goacl"
	subsystem = "runtime"
)

// StatsSource is implemented by *acl.Runtime.
type StatsSource interface {
	Stats() acl.Stats
}

// Collector implements prometheus.Collector for the live resources of a runtime.
type Collector struct {
	source StatsSource

	contexts, streams, events, blocks, bytes *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func newDesc(name, help string, constLabels prometheus.Labels) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, constLabels)
}

// NewCollector creates a collector reading the stats of source. constLabels are added to every metric,
// and can be nil.
func NewCollector(source StatsSource, constLabels prometheus.Labels) *Collector {
	return &Collector{
		source:   source,
		contexts: newDesc("contexts_alive", "Secondary contexts created and not yet destroyed.", constLabels),
		streams:  newDesc("streams_alive", "Streams created and not yet destroyed.", constLabels),
		events:   newDesc("events_alive", "Events created and not yet destroyed.", constLabels),
		blocks:   newDesc("memory_blocks_alive", "Device memory allocations not yet freed.", constLabels),
		bytes:    newDesc("memory_bytes_alive", "Total size in bytes of the device memory not yet freed.", constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.contexts
	ch <- c.streams
	ch <- c.events
	ch <- c.blocks
	ch <- c.bytes
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	for _, m := range []struct {
		desc  *prometheus.Desc
		value int64
	}{
		{c.contexts, stats.Contexts},
		{c.streams, stats.Streams},
		{c.events, stats.Events},
		{c.blocks, stats.Blocks},
		{c.bytes, stats.Bytes},
	} {
		ch <- prometheus.MustNewConstMetric(m.desc, prometheus.GaugeValue, float64(m.value))
	}
}
