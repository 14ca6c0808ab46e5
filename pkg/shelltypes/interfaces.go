package shelltypes

import "context"

// SpawnOptions configures a new terminal session.
type SpawnOptions struct {
	Name      string
	ShellKind string
	ShellPath string
	Cwd       string
	Env       map[string]string
}

// Spawner creates terminal sessions.
type Spawner interface {
	Spawn(ctx context.Context, opts SpawnOptions) (Terminal, error)
}

// Terminal is an opaque handle to one live shell session.
type Terminal interface {
	Name() string

	// ShellIntegration is closed once the shell announces support for the
	// command completion protocol. It is never closed for shells that do not.
	ShellIntegration() <-chan struct{}

	// Execute issues a command through the completion protocol.
	Execute(command string) (Execution, error)

	// SendText injects text without a completion channel (fallback mode).
	SendText(text string) error

	// SubscribeCompletion delivers the exit code of exec exactly once. The
	// returned function disposes the subscription and is safe to call twice.
	SubscribeCompletion(exec Execution) (<-chan int, func())

	// Closed is closed when the underlying process or terminal goes away.
	Closed() <-chan struct{}

	Close() error
}

// Execution is one command issued through the completion protocol.
type Execution interface {
	ID() string
	Command() string

	// Stream yields output chunks until the command completes. It is finite
	// and can be consumed only once.
	Stream() <-chan string

	// Detach stops delivery to Stream without touching the running command.
	Detach()
}

// ShellLocator resolves shell identifiers to executables.
type ShellLocator interface {
	Resolve(kind string) (string, bool)
	Available() []string
}

// AskKind identifies what an approval prompt is about.
type AskKind string

// Ask kinds.
const (
	AskCommand AskKind = "command"
)

// AskResponse is the answer to an approval prompt.
type AskResponse struct {
	Approved bool
	Feedback string
}

// StatusKind identifies an externally observable transition.
type StatusKind string

// Status kinds reported through StatusChannel.
const (
	StatusRejected          StatusKind = "rejected"
	StatusLoading           StatusKind = "loading"
	StatusSuccess           StatusKind = "success"
	StatusError             StatusKind = "error"
	StatusTimeoutMonitoring StatusKind = "timeout-monitoring"
)

// StatusChannel requests approvals and reports transitions. The engine does not
// retry calls on it.
type StatusChannel interface {
	Ask(ctx context.Context, kind AskKind, payload string) (AskResponse, error)
	UpdateAsk(kind StatusKind, payload string)
	Say(kind StatusKind, message string)
}
