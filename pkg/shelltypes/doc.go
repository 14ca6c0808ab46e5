// Package shelltypes defines the data model and collaborator interfaces shared by
// the shellpilot command-execution engine.
//
// # Package Organization
//
// ## Session Types (session_types.go)
//
//   - Session: named execution context metadata
//   - SessionStatus: lifecycle status of a session
//
// ## Execution Types (execution_types.go)
//
//   - ExecutionRequest: one "run this command" call
//   - ExecutionResult: the structured outcome returned to the caller
//   - Diagnosis: classification of a failed command
//
// ## History Types (history_types.go)
//
//   - OutputRecord: one immutable entry in the output history
//   - Severity: info, warning, error or success
//
// ## Collaborator Interfaces (interfaces.go)
//
// The engine observes and drives shells through a narrow interface and never
// implements terminals itself:
//
//   - Spawner, Terminal, Execution: session spawn/read/wait capability
//   - ShellLocator: shell discovery
//   - StatusChannel: approval prompts and status updates
//
// A real pseudo-terminal implementation of these interfaces lives in
// shellpilot/internal/terminal; tests use the fakes in shellpilot/internal/testutils.
package shelltypes
