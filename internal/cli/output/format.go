// Package output renders dsmb command results as tables, JSON or YAML.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Format represents the output format type. A *Format can back a command
// line flag directly, so an unknown format fails flag parsing.
type Format string

const (
	// FormatTable outputs data in a formatted table.
	FormatTable Format = "table"
	// FormatJSON outputs data as JSON.
	FormatJSON Format = "json"
	// FormatYAML outputs data as YAML.
	FormatYAML Format = "yaml"
)

// ParseFormat parses a string into a Format, returning an error if invalid.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

// String returns the string representation of the format.
func (f *Format) String() string {
	if f == nil || *f == "" {
		return string(FormatTable)
	}
	return string(*f)
}

// Set parses s into f.
func (f *Format) Set(s string) error {
	parsed, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Type names the flag value in help output.
func (f *Format) Type() string {
	return "format"
}

// Printer writes command results in one format. Results go through Print;
// the message helpers write only in table format so that JSON and YAML
// output stays machine readable.
type Printer struct {
	out    io.Writer
	format Format
	color  bool
}

// NewPrinter creates a new Printer. color enables ANSI colors on messages.
func NewPrinter(out io.Writer, format Format, color bool) *Printer {
	if format == "" {
		format = FormatTable
	}
	return &Printer{out: out, format: format, color: color}
}

// Structured reports whether results are written as JSON or YAML.
func (p *Printer) Structured() bool {
	return p.format != FormatTable
}

// Print outputs data in the configured format. In table format data must
// implement TableRenderer, other values fall back to JSON.
func (p *Printer) Print(data any) error {
	switch p.format {
	case FormatJSON:
		return PrintJSON(p.out, data)
	case FormatYAML:
		return PrintYAML(p.out, data)
	}
	if renderer, ok := data.(TableRenderer); ok {
		return PrintTable(p.out, renderer)
	}
	return PrintJSON(p.out, data)
}

// Printf prints a formatted message.
func (p *Printer) Printf(format string, args ...any) {
	if p.Structured() {
		return
	}
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// Success prints a message in green.
func (p *Printer) Success(msg string) {
	p.message(ansiGreen, msg)
}

// Warning prints a message in yellow.
func (p *Printer) Warning(msg string) {
	p.message(ansiYellow, msg)
}

const (
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiReset  = "\033[0m"
)

func (p *Printer) message(color, msg string) {
	switch {
	case p.Structured():
	case p.color:
		_, _ = fmt.Fprint(p.out, color, msg, ansiReset, "\n")
	default:
		_, _ = fmt.Fprintln(p.out, msg)
	}
}
