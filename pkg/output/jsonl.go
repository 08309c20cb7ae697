package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/velemoonkon/subprobe/pkg/scanner"
)

// HostRecord is one JSONL line: a host and its open ports
type HostRecord struct {
	ScanID    string `json:"scan_id"`
	Domain    string `json:"domain"`
	Host      string `json:"host"`
	OpenPorts []int  `json:"open_ports"`
}

// SummaryRecord is the final JSONL line of a scan
type SummaryRecord struct {
	ScanID    string `json:"scan_id"`
	Domain    string `json:"domain"`
	Hosts     int    `json:"hosts"`
	OpenPorts int    `json:"open_ports"`
	StartedAt string `json:"started_at"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Writer writes scan results as JSONL (JSON Lines) - one JSON object per host, then a summary
// This format is ideal for streaming, piping to jq, and processing large datasets
type Writer struct {
	file   *os.File
	writer *bufio.Writer
	count  int
}

// NewWriter creates a JSONL writer to the specified file
// Use "-" for stdout
func NewWriter(filename string) (*Writer, error) {
	file, err := openOutput(filename)
	if err != nil {
		return nil, err
	}

	return &Writer{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024), // 64KB buffer
	}, nil
}

// NewWriterFromWriter creates a JSONL writer from an existing io.Writer
// Useful for testing or custom output destinations
func NewWriterFromWriter(w io.Writer) *Writer {
	return &Writer{
		writer: bufio.NewWriterSize(w, 64*1024),
	}
}

// Write writes one line per host followed by a summary line
func (w *Writer) Write(result *scanner.ScanResult) error {
	for _, h := range result.Hosts {
		rec := HostRecord{
			ScanID:    result.ID,
			Domain:    result.Domain,
			Host:      h.Name,
			OpenPorts: h.PortNumbers(),
		}
		if err := w.writeLine(rec); err != nil {
			return err
		}
		w.count++

		// Flush every 100 results for responsive output
		if w.count%100 == 0 {
			if err := w.writer.Flush(); err != nil {
				return err
			}
		}
	}

	summary := SummaryRecord{
		ScanID:    result.ID,
		Domain:    result.Domain,
		Hosts:     len(result.Hosts),
		OpenPorts: result.OpenPortCount(),
		StartedAt: result.StartedAt.UTC().Format(time.RFC3339),
		ElapsedMs: result.Elapsed.Milliseconds(),
	}
	if err := w.writeLine(summary); err != nil {
		return err
	}
	return w.writer.Flush()
}

func (w *Writer) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if _, err := w.writer.Write(data); err != nil {
		return err
	}
	return w.writer.WriteByte('\n')
}

// Close flushes and closes the writer
func (w *Writer) Close() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return closeOutput(w.file)
}

// Count returns the number of host lines written
func (w *Writer) Count() int {
	return w.count
}

// openOutput opens filename for writing; "-" or "" means stdout
func openOutput(filename string) (*os.File, error) {
	if filename == "-" || filename == "" {
		return os.Stdout, nil
	}

	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return file, nil
}

// closeOutput closes file unless it is stdout
func closeOutput(file *os.File) error {
	if file != nil && file != os.Stdout {
		return file.Close()
	}
	return nil
}
