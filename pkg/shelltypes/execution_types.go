package shelltypes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRequest is returned when an ExecutionRequest violates its invariants.
var ErrInvalidRequest = errors.New("invalid execution request")

// ExecutionRequest describes one logical "run this command" call.
type ExecutionRequest struct {
	Command          string            // Command text, non-empty after trimming
	Timeout          time.Duration     // Observation timeout, must be positive
	CaptureOutput    bool              // Return captured output in the result
	AutoMonitor      bool              // Hand off to monitoring instead of failing on timeout
	SandboxEnabled   bool              // Run the safety classifier before executing
	RequireApproval  bool              // Ask the status channel for approval before executing
	PreFilter        bool              // Use the noise pre-filter instead of plain truncation
	MaxOutputChars   int               // Output budget, 0 means the configured default
	WorkingDirectory string            // Working directory for a newly spawned session
	SessionName      string            // Target session, empty means auto-generated
	ReuseSession     bool              // Reuse SessionName if it is already live
	Env              map[string]string // Extra environment for a newly spawned session
}

// Validate checks the request invariants.
func (r ExecutionRequest) Validate() error {
	if strings.TrimSpace(r.Command) == "" {
		return fmt.Errorf("%w: command is empty", ErrInvalidRequest)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidRequest, r.Timeout)
	}
	if r.ReuseSession && strings.TrimSpace(r.SessionName) == "" {
		return fmt.Errorf("%w: reuse_session requires a session name", ErrInvalidRequest)
	}
	return nil
}

// ResultStatus is the terminal outcome of an execution.
type ResultStatus string

// Result statuses.
const (
	ResultSuccess           ResultStatus = "success"
	ResultError             ResultStatus = "error"
	ResultRejected          ResultStatus = "rejected"
	ResultTimeout           ResultStatus = "timeout"
	ResultTimeoutMonitoring ResultStatus = "timeout-monitoring"
)

// ExecutionMode records how a command was issued.
type ExecutionMode string

// Execution modes.
const (
	ModeNone     ExecutionMode = ""
	ModeRich     ExecutionMode = "rich"
	ModeFallback ExecutionMode = "fallback"
)

// ExecutionResult is the structured outcome returned to the caller.
type ExecutionResult struct {
	Status        ResultStatus  `json:"status" yaml:"status"`
	ExitCode      *int          `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	Elapsed       time.Duration `json:"elapsed" yaml:"elapsed"`
	Output        string        `json:"output" yaml:"output"`
	Truncated     bool          `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Filtered      bool          `json:"filtered,omitempty" yaml:"filtered,omitempty"`
	OmittedLines  int           `json:"omitted_lines,omitempty" yaml:"omitted_lines,omitempty"`
	FilteredLines int           `json:"filtered_lines,omitempty" yaml:"filtered_lines,omitempty"`
	Diagnosis     *Diagnosis    `json:"diagnosis,omitempty" yaml:"diagnosis,omitempty"`
	SessionName   string        `json:"session_name,omitempty" yaml:"session_name,omitempty"`
	Mode          ExecutionMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	Note          string        `json:"note,omitempty" yaml:"note,omitempty"`
}

// ElapsedMs returns the elapsed time in whole milliseconds.
func (r *ExecutionResult) ElapsedMs() int64 {
	return r.Elapsed.Milliseconds()
}

// Confidence expresses how sure a diagnosis is.
type Confidence string

// Confidence levels.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Diagnosis is the structured classification of a failed command.
// RelatedCommands are literal, directly runnable strings.
type Diagnosis struct {
	ErrorType       string     `json:"error_type" yaml:"error_type"`
	Category        string     `json:"category" yaml:"category"`
	Suggestion      string     `json:"suggestion" yaml:"suggestion"`
	RelatedCommands []string   `json:"related_commands,omitempty" yaml:"related_commands,omitempty"`
	Confidence      Confidence `json:"confidence" yaml:"confidence"`
}
