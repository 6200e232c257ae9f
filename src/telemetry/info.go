package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// infoCollector exposes a constant-1 gauge whose labels carry descriptive
// metadata, mirroring the prometheus_client Info instrument. Metadata keys
// are not known until the first Set, so the collector is unchecked: Describe
// sends nothing and Collect builds the metric from the current mapping.
// Last writer wins; metadata is expected constant over the process lifetime.
type infoCollector struct {
	name string
	help string

	mu       sync.RWMutex
	metadata map[string]string
}

func newInfoCollector(name, help string) *infoCollector {
	return &infoCollector{name: name, help: help}
}

// Set replaces the exposed metadata mapping.
func (c *infoCollector) Set(metadata map[string]string) {
	copied := make(map[string]string, len(metadata))
	for k, v := range metadata {
		copied[k] = v
	}

	c.mu.Lock()
	c.metadata = copied
	c.mu.Unlock()
}

func (c *infoCollector) Describe(chan<- *prometheus.Desc) {}

func (c *infoCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	metadata := c.metadata
	c.mu.RUnlock()

	if metadata == nil {
		return
	}
	desc := prometheus.NewDesc(c.name, c.help, nil, prometheus.Labels(metadata))
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, 1)
}
