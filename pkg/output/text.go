package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/velemoonkon/subprobe/pkg/scanner"
)

// TextWriter renders results for humans:
//
//	a.example.com:
//	    22: open
//	    80: open
//
//	Scan completed in 1.234s
type TextWriter struct {
	file      *os.File
	writer    *bufio.Writer
	hostColor *color.Color
	count     int
}

// NewTextWriter creates a text writer to the specified file ("-" for stdout).
// Host names are highlighted only when writing to a colour-capable stdout.
func NewTextWriter(filename string) (*TextWriter, error) {
	file, err := openOutput(filename)
	if err != nil {
		return nil, err
	}

	w := newTextWriter(file, file == os.Stdout && !color.NoColor)
	w.file = file
	return w, nil
}

// NewTextWriterFromWriter creates an uncoloured text writer from an existing io.Writer
func NewTextWriterFromWriter(w io.Writer) *TextWriter {
	return newTextWriter(w, false)
}

func newTextWriter(w io.Writer, colored bool) *TextWriter {
	hostColor := color.New(color.FgCyan, color.Bold)
	if colored {
		hostColor.EnableColor()
	} else {
		hostColor.DisableColor()
	}

	return &TextWriter{
		writer:    bufio.NewWriter(w),
		hostColor: hostColor,
	}
}

// Write renders every host in collection order, then the total duration
func (w *TextWriter) Write(result *scanner.ScanResult) error {
	for _, h := range result.Hosts {
		if _, err := fmt.Fprintf(w.writer, "%s:\n", w.hostColor.Sprint(h.Name)); err != nil {
			return err
		}
		for _, p := range h.OpenPorts {
			if _, err := fmt.Fprintf(w.writer, "    %d: open\n", p.Number); err != nil {
				return err
			}
		}
		if err := w.writer.WriteByte('\n'); err != nil {
			return err
		}
		w.count++
	}

	if _, err := fmt.Fprintf(w.writer, "Scan completed in %s\n", result.Elapsed.Round(time.Millisecond)); err != nil {
		return err
	}
	return w.writer.Flush()
}

// Close flushes and closes the writer
func (w *TextWriter) Close() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return closeOutput(w.file)
}

// Count returns the number of hosts written
func (w *TextWriter) Count() int {
	return w.count
}
