package shelltypes

import "time"

// SessionStatus is the lifecycle status of a named session.
type SessionStatus string

// Session statuses. StatusUnknown is only reported for live sessions that carry
// no registry metadata.
const (
	SessionIdle      SessionStatus = "idle"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
	SessionUnknown   SessionStatus = "unknown"
)

// Session is the registry metadata for a named, reusable execution context.
// CreatedAt never changes after the first registration and LastActiveAt is
// always at or after CreatedAt.
type Session struct {
	Name         string        `json:"name" yaml:"name"`
	Status       SessionStatus `json:"status" yaml:"status"`
	LastCommand  string        `json:"last_command,omitempty" yaml:"last_command,omitempty"`
	LastExitCode *int          `json:"last_exit_code,omitempty" yaml:"last_exit_code,omitempty"`
	CreatedAt    time.Time     `json:"created_at" yaml:"created_at"`
	LastActiveAt time.Time     `json:"last_active_at" yaml:"last_active_at"`
}

// IntPtr returns a pointer to v. It keeps optional exit codes readable at call sites.
func IntPtr(v int) *int {
	return &v
}
