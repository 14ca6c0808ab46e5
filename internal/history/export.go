package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"shellpilot/pkg/shelltypes"
)

// ErrUnknownFormat is returned for export formats other than text, json and yaml.
var ErrUnknownFormat = errors.New("unknown export format")

// ExportFormat selects the serialization of Export.
type ExportFormat string

// Export formats.
const (
	FormatText ExportFormat = "text"
	FormatJSON ExportFormat = "json"
	FormatYAML ExportFormat = "yaml"
)

// ExportOptions controls Export.
type ExportOptions struct {
	Format            ExportFormat
	Filter            RecordFilter
	IncludeTimestamps bool
	// IncludeMetadata adds record IDs, sources and commands, plus an envelope
	// describing the export for structured formats.
	IncludeMetadata bool
}

type exportRecord struct {
	ID        uint64     `json:"id,omitempty" yaml:"id,omitempty"`
	Session   string     `json:"session" yaml:"session"`
	Source    string     `json:"source,omitempty" yaml:"source,omitempty"`
	Command   string     `json:"command,omitempty" yaml:"command,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Severity  string     `json:"severity" yaml:"severity"`
	Content   string     `json:"content" yaml:"content"`
}

type exportEnvelope struct {
	ExportedAt time.Time      `json:"exported_at" yaml:"exported_at"`
	Count      int            `json:"count" yaml:"count"`
	Filter     RecordFilter   `json:"filter" yaml:"filter"`
	Records    []exportRecord `json:"records" yaml:"records"`
}

// Export serializes the selected records.
func (s *Store) Export(opts ExportOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.ExportTo(&buf, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportTo writes the selected records to w.
func (s *Store) ExportTo(w io.Writer, opts ExportOptions) error {
	format := opts.Format
	if format == "" {
		format = FormatText
	}
	switch format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}

	records, now := s.snapshot()
	selected, err := opts.Filter.apply(records, now)
	if err != nil {
		return err
	}

	if format == FormatText {
		return writeText(w, selected, opts)
	}

	rows := make([]exportRecord, 0, len(selected))
	for _, rec := range selected {
		rows = append(rows, toExportRecord(rec, opts))
	}

	var payload interface{} = rows
	if opts.IncludeMetadata {
		payload = exportEnvelope{ExportedAt: now, Count: len(rows), Filter: opts.Filter, Records: rows}
	}

	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			return fmt.Errorf("failed to encode history as json: %w", err)
		}
		return nil
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode history as yaml: %w", err)
	}
	return enc.Close()
}

func toExportRecord(rec shelltypes.OutputRecord, opts ExportOptions) exportRecord {
	row := exportRecord{
		Session:  rec.SessionName,
		Severity: string(rec.Severity),
		Content:  rec.Content,
	}
	if opts.IncludeTimestamps {
		ts := rec.Timestamp
		row.Timestamp = &ts
	}
	if opts.IncludeMetadata {
		row.ID = rec.ID
		row.Source = rec.Source
		row.Command = rec.Command
	}
	return row
}

func writeText(w io.Writer, records []shelltypes.OutputRecord, opts ExportOptions) error {
	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		if opts.IncludeTimestamps {
			b.WriteString("[" + rec.Timestamp.Format(time.RFC3339) + "] ")
		}
		fmt.Fprintf(&b, "[%s] [%s]", rec.SessionName, rec.Severity)
		if opts.IncludeMetadata {
			fmt.Fprintf(&b, " #%d %s", rec.ID, rec.Source)
			if rec.Command != "" {
				fmt.Fprintf(&b, " $ %s", rec.Command)
			}
		}
		b.WriteString("\n")
		b.WriteString(rec.Content)
		b.WriteString("\n")
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}
