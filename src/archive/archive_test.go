package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"InferenceTelemetry/src/telemetry"
)

var testLabels = telemetry.Labels{RequestType: "completion", Service: "llama-server"}

func testRecord(e2e float64) *telemetry.MeasurementRecord {
	return &telemetry.MeasurementRecord{
		CPUUtilization:     25.0,
		CPURAMMiB:          1024.0,
		TimeToFirstToken:   0.2,
		TimePerOutputToken: []float64{0.03, 0.04},
		EndToEndLatency:    e2e,
		PrefillTokens:      64,
		GenerationTokens:   2,
		KVCacheUsageRatio:  0.5,
	}
}

func TestWriterRoundTripJSONL(t *testing.T) {
	dir := t.TempDir()
	session := uuid.New()

	w, err := NewWriter(dir, session, FormatJSONL)
	if err != nil {
		t.Fatalf("NewWriter() error: %v", err)
	}

	for i, e2e := range []float64{1.0, 2.0, 3.0} {
		if err := w.Append(testRecord(e2e), testLabels, uuid.NewString()); err != nil {
			t.Fatalf("Append(%d) error: %v", i, err)
		}
	}
	if w.Count() != 3 {
		t.Errorf("Count() = %d; want 3", w.Count())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	rows, err := Load(w.Path())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("loaded %d rows; want 3", len(rows))
	}
	if rows[1].EndToEndLatency != 2.0 {
		t.Errorf("rows[1].EndToEndLatency = %v; want 2.0", rows[1].EndToEndLatency)
	}
	if rows[0].RequestType != "completion" || rows[0].Service != "llama-server" {
		t.Errorf("labels not preserved: %+v", rows[0])
	}
	if len(rows[0].TimePerOutputToken) != 2 {
		t.Errorf("TimePerOutputToken length = %d; want 2", len(rows[0].TimePerOutputToken))
	}
}

func TestWriterRoundTripParquet(t *testing.T) {
	dir := t.TempDir()
	session := uuid.New()

	w, err := NewWriter(dir, session, FormatParquet)
	if err != nil {
		t.Fatalf("NewWriter() error: %v", err)
	}
	if err := w.Append(testRecord(1.5), testLabels, "req-1"); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	rows, err := Load(w.Path())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("loaded %d rows; want 1", len(rows))
	}
	if rows[0].EndToEndLatency != 1.5 {
		t.Errorf("EndToEndLatency = %v; want 1.5", rows[0].EndToEndLatency)
	}
	if rows[0].RequestID != "req-1" {
		t.Errorf("RequestID = %q; want req-1", rows[0].RequestID)
	}
}

func TestLoadRejectsUnrecognizedPaths(t *testing.T) {
	for _, path := range []string{
		filepath.Join(t.TempDir(), "no-extension-file"),
		filepath.Join(t.TempDir(), "session.csv"),
		filepath.Join(t.TempDir(), "trailing-dot."),
	} {
		rows, err := Load(path)
		if err == nil {
			t.Errorf("Load(%q) succeeded; want error", path)
		}
		if rows != nil {
			t.Errorf("Load(%q) returned rows on error", path)
		}
	}
}

func TestNewWriterRejectsUnknownFormat(t *testing.T) {
	_, err := NewWriter(t.TempDir(), uuid.New(), Format("xml"))
	if err == nil {
		t.Fatal("NewWriter with bad format succeeded; want error")
	}
}

func TestGenerateReport(t *testing.T) {
	rows := []Row{}
	for i := 0; i < 5; i++ {
		row := newRow(testRecord(float64(i)), testLabels, uuid.NewString())
		row.Timestamp = int64(i) * 1e9
		rows = append(rows, row)
	}

	path := filepath.Join(t.TempDir(), "report.html")
	if err := GenerateReport(path, "test-session", rows); err != nil {
		t.Fatalf("GenerateReport() error: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	html := string(content)
	for _, title := range []string{"Time to First Token", "End-to-End Latency", "KV-Cache Usage Ratio"} {
		if !strings.Contains(html, title) {
			t.Errorf("report missing chart %q", title)
		}
	}
}

func TestGenerateReportEmpty(t *testing.T) {
	err := GenerateReport(filepath.Join(t.TempDir(), "report.html"), "s", nil)
	if err == nil {
		t.Fatal("GenerateReport with no rows succeeded; want error")
	}
}
