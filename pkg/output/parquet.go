package output

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
	"github.com/velemoonkon/subprobe/pkg/scanner"
)

// ParquetRow is a flattened representation of one probed host for Parquet storage
type ParquetRow struct {
	ScanID    string `parquet:"scan_id,zstd,dict"`
	Domain    string `parquet:"domain,zstd,dict"`
	Host      string `parquet:"host,zstd"`
	StartedAt int64  `parquet:"started_at_unix_ms"`
	ElapsedMs int64  `parquet:"elapsed_ms"`

	// Open ports (stored as comma-separated for simplicity)
	OpenPorts     string `parquet:"open_ports,zstd"`
	OpenPortCount int32  `parquet:"open_port_count"`
}

// ParquetWriter writes scan results to a Parquet file, one row per host
type ParquetWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[ParquetRow]
	count  int
}

// NewParquetWriter creates a Parquet writer with optimized settings
func NewParquetWriter(filename string) (*ParquetWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet file: %w", err)
	}

	// Configure Parquet writer with compression
	writer := parquet.NewGenericWriter[ParquetRow](file,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedDefault}),
		parquet.CreatedBy("subprobe", "1.0.0", "go"),
	)

	return &ParquetWriter{
		file:   file,
		writer: writer,
	}, nil
}

// Write converts every host of result to a flat ParquetRow and writes them
func (w *ParquetWriter) Write(result *scanner.ScanResult) error {
	rows := scanResultToParquetRows(result)
	if len(rows) == 0 {
		return nil
	}

	if _, err := w.writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}

	w.count += len(rows)
	return nil
}

// Close finalizes and closes the Parquet file
func (w *ParquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return w.file.Close()
}

// Count returns the number of rows written
func (w *ParquetWriter) Count() int {
	return w.count
}

// scanResultToParquetRows flattens a ScanResult into one row per host
func scanResultToParquetRows(r *scanner.ScanResult) []ParquetRow {
	rows := make([]ParquetRow, 0, len(r.Hosts))

	for _, h := range r.Hosts {
		row := ParquetRow{
			ScanID:        r.ID,
			Domain:        r.Domain,
			Host:          h.Name,
			StartedAt:     r.StartedAt.UnixMilli(),
			ElapsedMs:     r.Elapsed.Milliseconds(),
			OpenPortCount: int32(len(h.OpenPorts)),
		}

		if len(h.OpenPorts) > 0 {
			ports := make([]string, len(h.OpenPorts))
			for i, p := range h.OpenPorts {
				ports[i] = strconv.Itoa(p.Number)
			}
			row.OpenPorts = strings.Join(ports, ",")
		}

		rows = append(rows, row)
	}

	return rows
}
