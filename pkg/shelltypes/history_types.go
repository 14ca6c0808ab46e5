package shelltypes

import "time"

// Severity classifies a history record.
type Severity string

// Record severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// Record sources.
const (
	SourceCommand   = "command"
	SourceOutput    = "output"
	SourceDiagnosis = "diagnosis"
	SourceSystem    = "system"
)

// OutputRecord is one immutable unit of the output history. IDs are assigned
// by the store and increase monotonically.
type OutputRecord struct {
	ID          uint64    `json:"id" yaml:"id"`
	SessionName string    `json:"session" yaml:"session"`
	Source      string    `json:"source" yaml:"source"`
	Command     string    `json:"command,omitempty" yaml:"command,omitempty"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Severity    Severity  `json:"severity" yaml:"severity"`
	Content     string    `json:"content" yaml:"content"`
}
