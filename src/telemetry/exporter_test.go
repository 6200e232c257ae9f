package telemetry

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

var testLabels = Labels{RequestType: "chat/completions", Service: "test-service"}

func sampleRecord() *MeasurementRecord {
	return &MeasurementRecord{
		SystemInfo:               map[string]string{"model": "llama-7b", "n_ctx": "4096"},
		StateSize:                1 << 20,
		CPUUtilization:           12.5,
		CPURAMMiB:                2048.0,
		GPUUtilization:           80.0,
		GPUMemoryUsedMiB:         6000.0,
		GPUMemoryFreeMiB:         2000.0,
		GPUMemoryPIDMiB:          5500.0,
		LoadTime:                 1.5,
		SampleTime:               0.002,
		SampleThroughput:         450.0,
		TimeToFirstToken:         0.25,
		TimePerOutputToken:       []float64{0.03, 0.04, 0.05},
		PromptEvalTime:           0.4,
		PromptEvalThroughput:     300.0,
		CompletionEvalTime:       2.2,
		CompletionEvalThroughput: 60.0,
		EndToEndLatency:          2.9,
		PrefillTokens:            120,
		GenerationTokens:         3,
		KVCacheUsageRatio:        0.42,
	}
}

// histogramSampleCount gathers reg and returns the observation count of the
// named histogram, summed over all label sets.
func histogramSampleCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total uint64
		for _, m := range mf.GetMetric() {
			total += m.GetHistogram().GetSampleCount()
		}
		return total
	}
	t.Fatalf("histogram %q not found", name)
	return 0
}

func newTestExporter(t *testing.T) (*Exporter, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	exp, err := NewExporter(reg)
	if err != nil {
		t.Fatalf("NewExporter() error: %v", err)
	}
	return exp, reg
}

func TestRecord_HistogramCounts(t *testing.T) {
	exp, reg := newTestExporter(t)
	rec := sampleRecord()

	exp.Record(rec, testLabels)

	scalarHistograms := []string{
		"llama_cpp:load_t_seconds",
		"llama_cpp:sample_t_seconds",
		"llama_cpp:ttft_seconds",
		"llama_cpp:p_eval_t_seconds",
		"llama_cpp:c_eval_t_seconds",
		"llama_cpp:e2e_seconds",
		"llama_cpp:prefill_tokens_total",
		"llama_cpp:completion_tokens_total",
	}
	for _, name := range scalarHistograms {
		if got := histogramSampleCount(t, reg, name); got != 1 {
			t.Errorf("%s observation count = %d; want 1", name, got)
		}
	}

	want := uint64(len(rec.TimePerOutputToken))
	if got := histogramSampleCount(t, reg, "llama_cpp:tpot_seconds"); got != want {
		t.Errorf("tpot observation count = %d; want %d", got, want)
	}
}

func TestRecord_ZeroTTFTNotObserved(t *testing.T) {
	exp, reg := newTestExporter(t)

	rec := sampleRecord()
	rec.TimeToFirstToken = 0

	exp.Record(rec, testLabels)
	if got := histogramSampleCount(t, reg, "llama_cpp:ttft_seconds"); got != 0 {
		t.Errorf("ttft observation count after zero TTFT = %d; want 0", got)
	}

	rec.TimeToFirstToken = 0.001
	exp.Record(rec, testLabels)
	if got := histogramSampleCount(t, reg, "llama_cpp:ttft_seconds"); got != 1 {
		t.Errorf("ttft observation count after positive TTFT = %d; want 1", got)
	}
}

func TestRecord_GaugesHoldLatestValue(t *testing.T) {
	exp, _ := newTestExporter(t)
	lv := testLabels.values()

	rec := sampleRecord()
	exp.Record(rec, testLabels)

	rec2 := sampleRecord()
	rec2.KVCacheUsageRatio = 0.99
	rec2.SampleThroughput = 512.0
	exp.Record(rec2, testLabels)

	if got := testutil.ToFloat64(exp.kvCacheUsageRatio.WithLabelValues(lv...)); got != 0.99 {
		t.Errorf("kv_cache_usage_ratio = %v; want 0.99", got)
	}
	if got := testutil.ToFloat64(exp.sampleThroughput.WithLabelValues(lv...)); got != 512.0 {
		t.Errorf("sample_throughput = %v; want 512.0", got)
	}
	if got := testutil.ToFloat64(exp.gpuMemoryUsed.WithLabelValues(lv...)); got != 6000.0 {
		t.Errorf("gpu_memory_usage = %v; want 6000.0", got)
	}
}

func TestRecord_InfoMetadata(t *testing.T) {
	exp, reg := newTestExporter(t)

	exp.Record(sampleRecord(), testLabels)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	var info *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "llama_cpp:info" {
			info = mf
		}
	}
	if info == nil {
		t.Fatal("llama_cpp:info not exposed after Record")
	}

	labels := make(map[string]string)
	for _, lp := range info.GetMetric()[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	if labels["model"] != "llama-7b" || labels["n_ctx"] != "4096" {
		t.Errorf("info labels = %v; want model/n_ctx from the record", labels)
	}
	if v := info.GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("info gauge value = %v; want 1", v)
	}
}

func TestRecord_ConcurrentCallers(t *testing.T) {
	exp, reg := newTestExporter(t)

	const callers = 8
	const perCaller = 50

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perCaller; j++ {
				exp.Record(sampleRecord(), testLabels)
			}
		}()
	}
	wg.Wait()

	want := uint64(callers * perCaller)
	if got := histogramSampleCount(t, reg, "llama_cpp:e2e_seconds"); got != want {
		t.Errorf("e2e observation count = %d; want %d", got, want)
	}
	want = uint64(callers * perCaller * len(sampleRecord().TimePerOutputToken))
	if got := histogramSampleCount(t, reg, "llama_cpp:tpot_seconds"); got != want {
		t.Errorf("tpot observation count = %d; want %d", got, want)
	}
}

func TestNewExporter_DuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()

	if _, err := NewExporter(reg); err != nil {
		t.Fatalf("first NewExporter() error: %v", err)
	}
	_, err := NewExporter(reg)
	if err == nil {
		t.Fatal("second NewExporter() on same registry succeeded; want duplicate registration error")
	}
	if !strings.Contains(err.Error(), "register") {
		t.Errorf("error = %v; want registration failure", err)
	}
}

func TestDefault_Idempotent(t *testing.T) {
	first, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	second, err := Default()
	if err != nil {
		t.Fatalf("Default() second call error: %v", err)
	}
	if first != second {
		t.Error("Default() returned different instances across calls")
	}
}
