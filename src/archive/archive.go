// Package archive persists per-request measurement records for offline
// analysis, one file per serving session, as JSONL or Parquet.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"InferenceTelemetry/src/telemetry"
)

// Format selects the on-disk encoding.
type Format string

const (
	FormatJSONL   Format = "jsonl"
	FormatParquet Format = "parquet"
)

// ValidFormat reports whether f names a supported encoding.
func ValidFormat(f Format) bool {
	return f == FormatJSONL || f == FormatParquet
}

// Row is one archived request: the measurement record flattened alongside
// its labels and identifiers.
type Row struct {
	Timestamp   int64  `json:"timestamp" parquet:"timestamp"`
	RequestID   string `json:"requestId" parquet:"requestId"`
	RequestType string `json:"requestType" parquet:"requestType"`
	Service     string `json:"service" parquet:"service"`

	StateSize        int64   `json:"stateSize" parquet:"stateSize"`
	CPUUtilization   float64 `json:"cpuUtilization" parquet:"cpuUtilization"`
	CPURAMMiB        float64 `json:"cpuRamMib" parquet:"cpuRamMib"`
	GPUUtilization   float64 `json:"gpuUtilization" parquet:"gpuUtilization"`
	GPUMemoryUsedMiB float64 `json:"gpuMemoryUsedMib" parquet:"gpuMemoryUsedMib"`
	GPUMemoryFreeMiB float64 `json:"gpuMemoryFreeMib" parquet:"gpuMemoryFreeMib"`
	GPUMemoryPIDMiB  float64 `json:"gpuMemoryPidMib" parquet:"gpuMemoryPidMib"`

	LoadTime                 float64   `json:"loadTime" parquet:"loadTime"`
	SampleTime               float64   `json:"sampleTime" parquet:"sampleTime"`
	SampleThroughput         float64   `json:"sampleThroughput" parquet:"sampleThroughput"`
	TimeToFirstToken         float64   `json:"timeToFirstToken" parquet:"timeToFirstToken"`
	TimePerOutputToken       []float64 `json:"timePerOutputToken,omitempty" parquet:"timePerOutputToken,list"`
	PromptEvalTime           float64   `json:"promptEvalTime" parquet:"promptEvalTime"`
	PromptEvalThroughput     float64   `json:"promptEvalThroughput" parquet:"promptEvalThroughput"`
	CompletionEvalTime       float64   `json:"completionEvalTime" parquet:"completionEvalTime"`
	CompletionEvalThroughput float64   `json:"completionEvalThroughput" parquet:"completionEvalThroughput"`
	EndToEndLatency          float64   `json:"endToEndLatency" parquet:"endToEndLatency"`
	PrefillTokens            int64     `json:"prefillTokens" parquet:"prefillTokens"`
	GenerationTokens         int64     `json:"generationTokens" parquet:"generationTokens"`
	KVCacheUsageRatio        float64   `json:"kvCacheUsageRatio" parquet:"kvCacheUsageRatio"`
}

func newRow(rec *telemetry.MeasurementRecord, labels telemetry.Labels, requestID string) Row {
	return Row{
		Timestamp:   time.Now().UnixNano(),
		RequestID:   requestID,
		RequestType: labels.RequestType,
		Service:     labels.Service,

		StateSize:        rec.StateSize,
		CPUUtilization:   rec.CPUUtilization,
		CPURAMMiB:        rec.CPURAMMiB,
		GPUUtilization:   rec.GPUUtilization,
		GPUMemoryUsedMiB: rec.GPUMemoryUsedMiB,
		GPUMemoryFreeMiB: rec.GPUMemoryFreeMiB,
		GPUMemoryPIDMiB:  rec.GPUMemoryPIDMiB,

		LoadTime:                 rec.LoadTime,
		SampleTime:               rec.SampleTime,
		SampleThroughput:         rec.SampleThroughput,
		TimeToFirstToken:         rec.TimeToFirstToken,
		TimePerOutputToken:       rec.TimePerOutputToken,
		PromptEvalTime:           rec.PromptEvalTime,
		PromptEvalThroughput:     rec.PromptEvalThroughput,
		CompletionEvalTime:       rec.CompletionEvalTime,
		CompletionEvalThroughput: rec.CompletionEvalThroughput,
		EndToEndLatency:          rec.EndToEndLatency,
		PrefillTokens:            int64(rec.PrefillTokens),
		GenerationTokens:         int64(rec.GenerationTokens),
		KVCacheUsageRatio:        rec.KVCacheUsageRatio,
	}
}

// Writer appends rows to a per-session archive file. Safe for concurrent
// request handlers.
type Writer struct {
	mu      sync.Mutex
	format  Format
	path    string
	file    *os.File
	buf     *bufio.Writer
	jsonEnc *json.Encoder
	parquet *parquet.GenericWriter[Row]
	count   int64
}

// NewWriter creates the session archive under dir. The file is named by the
// session UUID so concurrent or successive sessions never collide.
func NewWriter(dir string, session uuid.UUID, format Format) (*Writer, error) {
	if !ValidFormat(format) {
		return nil, fmt.Errorf("invalid archive format %q", format)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s.%s", session, format))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}

	w := &Writer{format: format, path: path, file: file}
	switch format {
	case FormatJSONL:
		w.buf = bufio.NewWriter(file)
		w.jsonEnc = json.NewEncoder(w.buf)
	case FormatParquet:
		w.parquet = parquet.NewGenericWriter[Row](file)
	}
	return w, nil
}

// Append writes one request's row.
func (w *Writer) Append(rec *telemetry.MeasurementRecord, labels telemetry.Labels, requestID string) error {
	row := newRow(rec, labels, requestID)

	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.format {
	case FormatJSONL:
		if err := w.jsonEnc.Encode(row); err != nil {
			return fmt.Errorf("failed to encode archive row: %w", err)
		}
	case FormatParquet:
		if _, err := w.parquet.Write([]Row{row}); err != nil {
			return fmt.Errorf("failed to write parquet row: %w", err)
		}
	}
	w.count++
	return nil
}

// Count returns the number of rows appended so far.
func (w *Writer) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Path returns the archive file location.
func (w *Writer) Path() string { return w.path }

// Close flushes and closes the archive file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.format {
	case FormatJSONL:
		if err := w.buf.Flush(); err != nil {
			return fmt.Errorf("failed to flush archive: %w", err)
		}
	case FormatParquet:
		if err := w.parquet.Close(); err != nil {
			return fmt.Errorf("failed to close parquet writer: %w", err)
		}
	}
	return w.file.Close()
}

// Load reads back a session archive written by Writer, inferring the
// encoding from the file extension.
func Load(path string) ([]Row, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return nil, fmt.Errorf("unrecognized archive extension on %q", path)
	}
	switch Format(ext[1:]) {
	case FormatJSONL:
		return loadJSONL(path)
	case FormatParquet:
		return loadParquet(path)
	default:
		return nil, fmt.Errorf("unrecognized archive extension on %q", path)
	}
}

func loadJSONL(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	var rows []Row
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		var row Row
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			return nil, fmt.Errorf("failed to decode archive row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}

func loadParquet(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet archive: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	rows := make([]Row, 0, reader.NumRows())
	buf := make([]Row, 64)
	for {
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet archive: %w", err)
		}
	}
	return rows, nil
}
