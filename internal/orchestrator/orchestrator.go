// Package orchestrator runs one command request end to end: safety check,
// approval, session resolution, protocol negotiation, the completion race and
// output shaping. It owns the monitoring table for commands handed off after
// a timeout.
package orchestrator

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"shellpilot/internal/config"
	"shellpilot/internal/history"
	"shellpilot/internal/logger"
	"shellpilot/internal/sessions"
	"shellpilot/internal/shellintegration"
	"shellpilot/internal/stringprocessing"
	"shellpilot/pkg/shelltypes"
)

// ErrSessionClosed is reported when a terminal goes away while a command is
// being observed.
var ErrSessionClosed = errors.New("session closed while the command was running")

// ErrSessionBusy is reported when a reused session still runs a monitored command.
var ErrSessionBusy = errors.New("session is still running a monitored command")

// Defaults used when no option overrides them.
const (
	DefaultShell            = "bash"
	DefaultMaxOutputChars   = 30000
	DefaultProgressInterval = time.Second
)

// Deps are the collaborators of an Orchestrator. Spawner and Locator are
// required; the shared stores are created when nil.
type Deps struct {
	Spawner    shelltypes.Spawner
	Locator    shelltypes.ShellLocator
	Registry   *sessions.Registry
	Pool       *sessions.Pool
	Negotiator *shellintegration.Negotiator
	History    *history.Store
}

// Orchestrator executes requests. It is safe for concurrent use; requests on
// different sessions are fully independent.
type Orchestrator struct {
	spawner    shelltypes.Spawner
	locator    shelltypes.ShellLocator
	registry   *sessions.Registry
	pool       *sessions.Pool
	negotiator *shellintegration.Negotiator
	history    *history.Store

	shell            string
	maxOutput        int
	progressInterval time.Duration
	handshakeTimeout time.Duration
	filter           *stringprocessing.Filter
	newID            func() string
	now              func() time.Time
	log              *log.Logger

	mu       sync.Mutex
	shells   map[string]shellintegration.ProtocolKey
	monitors map[string]*monitor
	watchers sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithShell sets the shell kind used for new sessions.
func WithShell(kind string) Option {
	return func(o *Orchestrator) { o.shell = kind }
}

// WithMaxOutputChars sets the output budget for requests that do not set one.
func WithMaxOutputChars(n int) Option {
	return func(o *Orchestrator) { o.maxOutput = n }
}

// WithProgressInterval sets how often partial output is reported while a
// command runs. Zero disables progress updates.
func WithProgressInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.progressInterval = d }
}

// WithHandshakeTimeout bounds the wait for a new terminal to announce
// integration when the protocol cache already says its shell supports it.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.handshakeTimeout = d }
}

// WithFilter sets the pre-filter used by PreFilter requests.
func WithFilter(f *stringprocessing.Filter) Option {
	return func(o *Orchestrator) { o.filter = f }
}

// WithIDFunc replaces the generator of automatic session names.
func WithIDFunc(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// WithClock replaces the clock used for elapsed times.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithConfig applies the engine settings of cfg.
func WithConfig(cfg *config.Config) Option {
	return func(o *Orchestrator) {
		o.shell = cfg.Shell
		o.maxOutput = cfg.MaxOutputChars
		o.progressInterval = cfg.ProgressInterval
		o.handshakeTimeout = cfg.HandshakeTimeout
	}
}

// New creates an Orchestrator.
func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		spawner:          deps.Spawner,
		locator:          deps.Locator,
		registry:         deps.Registry,
		pool:             deps.Pool,
		negotiator:       deps.Negotiator,
		history:          deps.History,
		shell:            DefaultShell,
		maxOutput:        DefaultMaxOutputChars,
		progressInterval: DefaultProgressInterval,
		handshakeTimeout: shellintegration.DefaultHandshakeTimeout,
		filter:           stringprocessing.DefaultFilter(),
		newID:            uuid.NewString,
		now:              time.Now,
		log:              logger.NewStyledLogger("Orchestrator"),
		shells:           make(map[string]shellintegration.ProtocolKey),
		monitors:         make(map[string]*monitor),
	}
	if o.registry == nil {
		o.registry = sessions.NewRegistry()
	}
	if o.pool == nil {
		o.pool = sessions.NewPool(o.registry)
	}
	if o.negotiator == nil {
		o.negotiator = shellintegration.NewNegotiator(shellintegration.DefaultProtocolTTL, shellintegration.DefaultHandshakeTimeout)
	}
	if o.history == nil {
		o.history = history.NewStore()
	}
	for _, opt := range opts {
		opt(o)
	}

	o.pool.OnClosed(o.forgetSession)
	return o
}

// Registry returns the session registry.
func (o *Orchestrator) Registry() *sessions.Registry { return o.registry }

// History returns the output history.
func (o *Orchestrator) History() *history.Store { return o.history }

// Negotiator returns the protocol negotiator.
func (o *Orchestrator) Negotiator() *shellintegration.Negotiator { return o.negotiator }

// ListSessions returns the live sessions with their registry metadata.
func (o *Orchestrator) ListSessions() []shelltypes.Session {
	return o.registry.List(o.pool.Names())
}

// CloseSession stops observing any monitored command of name and closes its
// terminal.
func (o *Orchestrator) CloseSession(name string) error {
	o.Cancel(name)
	return o.pool.Close(name)
}

// Clear resets the registry, the protocol cache and the history. Running
// executions and monitored commands are not affected.
func (o *Orchestrator) Clear() {
	o.registry.Clear()
	o.negotiator.Clear()
	o.history.Clear("")

	o.mu.Lock()
	for name, m := range o.monitors {
		if !m.running() {
			delete(o.monitors, name)
		}
	}
	o.mu.Unlock()
}

// Close stops every monitor and closes every session.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	monitors := make([]*monitor, 0, len(o.monitors))
	for _, m := range o.monitors {
		monitors = append(monitors, m)
	}
	o.mu.Unlock()

	for _, m := range monitors {
		m.stop()
	}
	o.watchers.Wait()

	err := o.pool.CloseAll()
	o.pool.Wait()
	return err
}

func (o *Orchestrator) forgetSession(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.shells, name)
}

func (o *Orchestrator) budget(req shelltypes.ExecutionRequest) int {
	if req.MaxOutputChars > 0 {
		return req.MaxOutputChars
	}
	return o.maxOutput
}
