package telemetry

// MeasurementRecord holds everything measured about a single inference
// request: a system snapshot taken around the request plus the timings the
// engine reported for it. Records are built once and never mutated.
//
// Durations are seconds, throughputs tokens/second, memory MiB.
type MeasurementRecord struct {
	// System snapshot
	SystemInfo       map[string]string `json:"systemInfo,omitempty"`
	StateSize        int64             `json:"stateSize"`
	CPUUtilization   float64           `json:"cpuUtilization"`
	CPURAMMiB        float64           `json:"cpuRamMib"`
	GPUUtilization   float64           `json:"gpuUtilization"`
	GPUMemoryUsedMiB float64           `json:"gpuMemoryUsedMib"`
	GPUMemoryFreeMiB float64           `json:"gpuMemoryFreeMib"`
	GPUMemoryPIDMiB  float64           `json:"gpuMemoryPidMib"`

	// Engine performance
	LoadTime                 float64   `json:"loadTime"`
	SampleTime               float64   `json:"sampleTime"`
	SampleThroughput         float64   `json:"sampleThroughput"`
	TimeToFirstToken         float64   `json:"timeToFirstToken"`
	TimePerOutputToken       []float64 `json:"timePerOutputToken,omitempty"`
	PromptEvalTime           float64   `json:"promptEvalTime"`
	PromptEvalThroughput     float64   `json:"promptEvalThroughput"`
	CompletionEvalTime       float64   `json:"completionEvalTime"`
	CompletionEvalThroughput float64   `json:"completionEvalThroughput"`
	EndToEndLatency          float64   `json:"endToEndLatency"`
	PrefillTokens            int       `json:"prefillTokens"`
	GenerationTokens         int       `json:"generationTokens"`
	KVCacheUsageRatio        float64   `json:"kvCacheUsageRatio"`
}

// Labels is the fixed label set that scopes every instrument instance.
// Values must stay low-cardinality: each distinct combination allocates
// independent aggregation state for every instrument.
type Labels struct {
	RequestType string `json:"requestType"`
	Service     string `json:"service"`
}

// labelKeys is the declared label key order used by every instrument.
var labelKeys = []string{"request_type", "service"}

func (l Labels) values() []string {
	return []string{l.RequestType, l.Service}
}
