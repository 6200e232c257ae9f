// Package telemetry aggregates per-request inference measurements into
// Prometheus instruments. The instrument set is fixed at construction; names
// and bucket boundaries are the scrape-side contract and must not change once
// dashboards depend on them.
package telemetry

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Bucket boundaries per instrument. Chosen to resolve the smallest
// meaningful distinction of each measurement: sub-millisecond for per-token
// sampling, tens of seconds for model loads and end-to-end latencies,
// counts for token volumes.
var (
	loadTimeBuckets = []float64{
		0.1, 0.25, 0.5, 0.75, 1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0,
		8.0, 9.0, 10.0, 12.5, 15.0, 20.0, 25.0, 30.0,
	}
	sampleTimeBuckets = []float64{
		0.00001, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025,
		0.005, 0.0075, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5,
	}
	tokenLatencyBuckets = []float64{
		0.001, 0.005, 0.01, 0.02, 0.04, 0.06, 0.08, 0.1, 0.25, 0.5,
		0.75, 1.0, 2.5, 5.0, 7.5, 10.0, 12.5, 15.0, 20.0, 25.0, 30.0,
	}
	evalTimeBuckets = []float64{
		0.1, 0.25, 0.5, 0.75, 1.0, 2.5, 5.0, 7.5, 10.0, 12.5, 15.0,
		20.0, 25.0, 30.0, 40.0, 50.0, 60.0,
	}
	tokenCountBuckets = []float64{
		1, 10, 25, 50, 100, 250, 500, 750, 1000, 1500, 2000, 2500, 3000,
		3500, 4000, 4500, 5000,
	}
)

// Exporter owns the full instrument set. One instance per process in
// production wiring; tests construct isolated instances against their own
// registries.
type Exporter struct {
	loadTime           *prometheus.HistogramVec
	sampleTime         *prometheus.HistogramVec
	timeToFirstToken   *prometheus.HistogramVec
	timePerOutputToken *prometheus.HistogramVec
	promptEvalTime     *prometheus.HistogramVec
	completionEvalTime *prometheus.HistogramVec
	e2eLatency         *prometheus.HistogramVec
	prefillTokens      *prometheus.HistogramVec
	generationTokens   *prometheus.HistogramVec

	promptEvalThroughput     *prometheus.GaugeVec
	completionEvalThroughput *prometheus.GaugeVec
	sampleThroughput         *prometheus.GaugeVec
	stateSize                *prometheus.GaugeVec
	cpuUtilization           *prometheus.GaugeVec
	cpuRAMByPID              *prometheus.GaugeVec
	gpuUtilization           *prometheus.GaugeVec
	gpuMemoryUsed            *prometheus.GaugeVec
	gpuMemoryFree            *prometheus.GaugeVec
	gpuMemoryByPID           *prometheus.GaugeVec
	kvCacheUsageRatio        *prometheus.GaugeVec

	info *infoCollector
}

func newHistogram(name, help string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	}, labelKeys)
}

func newGauge(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, labelKeys)
}

// NewExporter constructs the instrument set and registers it with reg.
// Registration failure is a programming error (duplicate wiring) and is
// returned rather than masked.
func NewExporter(reg prometheus.Registerer) (*Exporter, error) {
	e := &Exporter{
		loadTime:           newHistogram("llama_cpp:load_t_seconds", "Histogram of model load time in seconds", loadTimeBuckets),
		sampleTime:         newHistogram("llama_cpp:sample_t_seconds", "Histogram of token sampling time in seconds", sampleTimeBuckets),
		timeToFirstToken:   newHistogram("llama_cpp:ttft_seconds", "Histogram of time to first token in seconds", tokenLatencyBuckets),
		timePerOutputToken: newHistogram("llama_cpp:tpot_seconds", "Histogram of time per output token in seconds", tokenLatencyBuckets),
		promptEvalTime:     newHistogram("llama_cpp:p_eval_t_seconds", "Histogram of prompt evaluation time in seconds", evalTimeBuckets),
		completionEvalTime: newHistogram("llama_cpp:c_eval_t_seconds", "Histogram of completion evaluation time in seconds", evalTimeBuckets),
		e2eLatency:         newHistogram("llama_cpp:e2e_seconds", "Histogram of end-to-end request latency in seconds", evalTimeBuckets),
		prefillTokens:      newHistogram("llama_cpp:prefill_tokens_total", "Histogram of number of prefill tokens processed", tokenCountBuckets),
		generationTokens:   newHistogram("llama_cpp:completion_tokens_total", "Histogram of number of generation tokens processed", tokenCountBuckets),

		promptEvalThroughput:     newGauge("llama_cpp:prompt_eval_throughput", "Current throughput of the prompt evaluation process (tokens/second)"),
		completionEvalThroughput: newGauge("llama_cpp:completion_eval_throughput", "Current throughput of the completion evaluation process (tokens/second)"),
		sampleThroughput:         newGauge("llama_cpp:sample_throughput", "Current throughput of the token sampling process (tokens/second)"),
		stateSize:                newGauge("llama_cpp:state_size", "Current engine state size in bytes (rng, logits, embedding, kv_cache)"),
		cpuUtilization:           newGauge("llama_cpp:cpu_utilization", "Current CPU utilization"),
		cpuRAMByPID:              newGauge("llama_cpp:cpu_memory_usage_by_pid", "Current CPU memory usage of the serving process"),
		gpuUtilization:           newGauge("llama_cpp:gpu_utilization", "Current GPU utilization"),
		gpuMemoryUsed:            newGauge("llama_cpp:gpu_memory_usage", "Current GPU memory usage"),
		gpuMemoryFree:            newGauge("llama_cpp:gpu_memory_free", "Current free GPU memory"),
		gpuMemoryByPID:           newGauge("llama_cpp:gpu_memory_usage_by_pid", "Current GPU memory usage of the serving process"),
		kvCacheUsageRatio:        newGauge("llama_cpp:kv_cache_usage_ratio", "KV-cache usage. 1 means 100 percent usage"),

		info: newInfoCollector("llama_cpp:info", "Engine and server metadata"),
	}

	for _, c := range e.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register instrument: %w", err)
		}
	}
	return e, nil
}

func (e *Exporter) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		e.loadTime, e.sampleTime, e.timeToFirstToken, e.timePerOutputToken,
		e.promptEvalTime, e.completionEvalTime, e.e2eLatency,
		e.prefillTokens, e.generationTokens,
		e.promptEvalThroughput, e.completionEvalThroughput, e.sampleThroughput,
		e.stateSize, e.cpuUtilization, e.cpuRAMByPID,
		e.gpuUtilization, e.gpuMemoryUsed, e.gpuMemoryFree, e.gpuMemoryByPID,
		e.kvCacheUsageRatio,
		e.info,
	}
}

// Record observes one request's measurements under the given label set.
// Safe for concurrent use; each instrument serializes its own updates.
// Input is taken as-is: the exporter produces aggregates, it does not
// validate engine-reported numbers.
func (e *Exporter) Record(rec *MeasurementRecord, labels Labels) {
	lv := labels.values()

	e.loadTime.WithLabelValues(lv...).Observe(rec.LoadTime)
	e.sampleTime.WithLabelValues(lv...).Observe(rec.SampleTime)

	// A request that never produced a token reports TTFT 0; recording that
	// would skew the distribution.
	if rec.TimeToFirstToken > 0 {
		e.timeToFirstToken.WithLabelValues(lv...).Observe(rec.TimeToFirstToken)
	}
	for _, tpot := range rec.TimePerOutputToken {
		e.timePerOutputToken.WithLabelValues(lv...).Observe(tpot)
	}

	e.promptEvalTime.WithLabelValues(lv...).Observe(rec.PromptEvalTime)
	e.completionEvalTime.WithLabelValues(lv...).Observe(rec.CompletionEvalTime)
	e.e2eLatency.WithLabelValues(lv...).Observe(rec.EndToEndLatency)
	e.prefillTokens.WithLabelValues(lv...).Observe(float64(rec.PrefillTokens))
	e.generationTokens.WithLabelValues(lv...).Observe(float64(rec.GenerationTokens))

	e.promptEvalThroughput.WithLabelValues(lv...).Set(rec.PromptEvalThroughput)
	e.completionEvalThroughput.WithLabelValues(lv...).Set(rec.CompletionEvalThroughput)
	e.sampleThroughput.WithLabelValues(lv...).Set(rec.SampleThroughput)
	e.stateSize.WithLabelValues(lv...).Set(float64(rec.StateSize))
	e.cpuUtilization.WithLabelValues(lv...).Set(rec.CPUUtilization)
	e.cpuRAMByPID.WithLabelValues(lv...).Set(rec.CPURAMMiB)
	e.gpuUtilization.WithLabelValues(lv...).Set(rec.GPUUtilization)
	e.gpuMemoryUsed.WithLabelValues(lv...).Set(rec.GPUMemoryUsedMiB)
	e.gpuMemoryFree.WithLabelValues(lv...).Set(rec.GPUMemoryFreeMiB)
	e.gpuMemoryByPID.WithLabelValues(lv...).Set(rec.GPUMemoryPIDMiB)
	e.kvCacheUsageRatio.WithLabelValues(lv...).Set(rec.KVCacheUsageRatio)

	if len(rec.SystemInfo) > 0 {
		e.info.Set(rec.SystemInfo)
	}
}

var (
	defaultOnce     sync.Once
	defaultExporter *Exporter
	defaultErr      error
)

// Default returns the process-wide exporter registered with the default
// Prometheus registry. Construction happens once; later calls return the
// same instance, so re-running production wiring never duplicates
// instruments.
func Default() (*Exporter, error) {
	defaultOnce.Do(func() {
		defaultExporter, defaultErr = NewExporter(prometheus.DefaultRegisterer)
	})
	return defaultExporter, defaultErr
}
