// Package preview holds the host-side state of one preview page: the
// selected tool, its last input and output, the event log, the host context
// and the bridge to the tool UI.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/bridge"
	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/infra/settings"
	"github.com/mcpapps/mcpapps/internal/infra/telemetry"
)

// Frame is the iframe a session drives, as seen from the host.
type Frame interface {
	// Load replaces the iframe element with a fresh document for tool.
	Load(ctx context.Context, tool string) error
	// Connect returns a new connection to the client in the current document.
	Connect(ctx context.Context, tool string) (mcp.Connection, error)
	// OpenLink opens url in a new top-level browsing context.
	OpenLink(ctx context.Context, url string) error
}

// State is a snapshot of the session for the preview page.
type State struct {
	ID          string              `json:"id"`
	Selected    string              `json:"selected,omitempty"`
	LastInput   json.RawMessage     `json:"lastInput,omitempty"`
	LastOutput  *mcp.CallToolResult `json:"lastOutput,omitempty"`
	LastError   string              `json:"lastError,omitempty"`
	Events      []bridge.Event      `json:"events"`
	Context     bridge.HostContext  `json:"context"`
	Connection  bridge.State        `json:"connection"`
	FrameHeight int                 `json:"frameHeight"`
	Tool        *mcp.Tool           `json:"tool,omitempty"`
}

type Options struct {
	Frame    Frame
	Caller   *Caller
	Settings *settings.Store
	Logger   *zap.Logger
	Metrics  domain.Metrics
	Bridge   bridge.Options
	// OnState receives a snapshot after every change.
	OnState func(State)
}

// Session is safe for concurrent use. Setups are numbered; a setup that
// finishes after a newer one started disposes itself.
type Session struct {
	id      string
	frame   Frame
	caller  *Caller
	store   *settings.Store
	logger  *zap.Logger
	metrics domain.Metrics
	bridge  bridge.Options
	onState func(State)

	setupSeq atomic.Uint64

	mu          sync.Mutex
	host        *bridge.Host
	selected    string
	tool        *mcp.Tool
	lastInput   json.RawMessage
	lastOutput  *mcp.CallToolResult
	lastError   string
	events      []bridge.Event
	hostContext bridge.HostContext
	connection  bridge.State
	frameHeight int
	disposed    bool
}

func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	id := uuid.NewString()
	s := &Session{
		id:          id,
		frame:       opts.Frame,
		caller:      opts.Caller,
		store:       opts.Settings,
		logger:      logger.Named("preview").With(telemetry.SessionField(id)),
		metrics:     metrics,
		bridge:      opts.Bridge,
		onState:     opts.OnState,
		hostContext: bridge.DefaultHostContext(),
		connection:  bridge.StateIdle,
		frameHeight: domain.MinFrameHeight,
	}
	s.loadContext()
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	events := make([]bridge.Event, len(s.events))
	copy(events, s.events)
	return State{
		ID:          s.id,
		Selected:    s.selected,
		LastInput:   s.lastInput,
		LastOutput:  s.lastOutput,
		LastError:   s.lastError,
		Events:      events,
		Context:     s.hostContext,
		Connection:  s.connection,
		FrameHeight: s.frameHeight,
		Tool:        s.tool,
	}
}

func (s *Session) changed() {
	if s.onState == nil {
		return
	}
	s.onState(s.State())
}

// Select switches to tool: output and event log reset, a fresh document is
// loaded and a new bridge is set up.
func (s *Session) Select(ctx context.Context, tool string) error {
	definition, err := s.caller.Tool(ctx, tool)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return domain.ErrBridgeClosed
	}
	s.selected = tool
	s.tool = definition
	s.lastOutput = nil
	s.lastError = ""
	s.events = nil
	s.lastInput = nil
	s.mu.Unlock()

	s.loadLastInput(tool)
	return s.setup(ctx, true)
}

// Reconnect recreates the bridge to the current document, keeping the
// output, event log and host context.
func (s *Session) Reconnect(ctx context.Context) error {
	if s.Selected() == "" {
		return domain.E(domain.CodeFailedPrecond, "reconnect", "no tool selected", nil)
	}
	return s.setup(ctx, false)
}

// Reload replaces the iframe element. Runs fail until the next Reconnect.
func (s *Session) Reload(ctx context.Context) error {
	tool := s.Selected()
	if tool == "" {
		return domain.E(domain.CodeFailedPrecond, "reload", "no tool selected", nil)
	}
	s.setupSeq.Add(1)
	s.detach(ctx)
	if err := s.frame.Load(ctx, tool); err != nil {
		s.fail(err)
		return err
	}
	s.setConnection(bridge.StateIdle)
	return nil
}

func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Dispose tears the bridge down and supersedes any setup in progress.
func (s *Session) Dispose(ctx context.Context) {
	s.setupSeq.Add(1)
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
	s.detach(ctx)
	s.setConnection(bridge.StateClosed)
}

func (s *Session) setup(ctx context.Context, load bool) error {
	seq := s.setupSeq.Add(1)
	tool := s.Selected()
	s.detach(ctx)

	if load {
		if err := s.frame.Load(ctx, tool); err != nil {
			s.fail(err)
			return err
		}
	}
	s.setConnection(bridge.StateConnecting)

	conn, err := s.frame.Connect(ctx, tool)
	if err != nil {
		return s.setupFailed(seq, fmt.Errorf("connect frame: %w", err))
	}
	opts := s.bridge
	opts.Logger = s.logger
	opts.OpenLink = s.frame.OpenLink
	opts.OnEvent = s.recordEvent
	opts.OnResize = s.resize
	host := bridge.NewHost(conn, opts)

	s.mu.Lock()
	hc := s.hostContext
	s.mu.Unlock()
	hc.ToolInfo = s.toolInfo()
	if err := host.Connect(ctx, hc); err != nil {
		_ = host.Close()
		return s.setupFailed(seq, err)
	}

	s.mu.Lock()
	if s.disposed || s.setupSeq.Load() != seq {
		s.mu.Unlock()
		_ = host.Teardown(ctx)
		s.logger.Debug("dropping superseded bridge setup", telemetry.EntityField(tool))
		return domain.ErrSuperseded
	}
	s.host = host
	s.connection = bridge.StateConnected
	s.lastError = ""
	input := s.lastInput
	output := s.lastOutput
	s.mu.Unlock()
	s.changed()

	// A fresh client knows nothing yet; replay the last completed run.
	if output != nil {
		if len(input) > 0 {
			_ = host.SendToolInput(ctx, input)
		}
		_ = host.SendToolResult(ctx, output)
	}
	return nil
}

func (s *Session) setupFailed(seq uint64, err error) error {
	if s.setupSeq.Load() != seq {
		return domain.ErrSuperseded
	}
	s.mu.Lock()
	s.connection = bridge.StateClosed
	s.lastError = err.Error()
	s.mu.Unlock()
	s.logger.Warn("bridge setup failed", zap.Error(err))
	s.changed()
	return err
}

func (s *Session) detach(ctx context.Context) {
	s.mu.Lock()
	host := s.host
	s.host = nil
	s.mu.Unlock()
	if host != nil {
		_ = host.Teardown(ctx)
	}
}

func (s *Session) toolInfo() *bridge.ToolInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tool == nil {
		return nil
	}
	return &bridge.ToolInfo{Tool: s.tool}
}

// Run validates input, shows it to the UI, calls the tool and delivers the
// result. On failure the UI receives tool-cancelled and the previous output
// stays in place.
func (s *Session) Run(ctx context.Context, input json.RawMessage) error {
	s.mu.Lock()
	tool := s.selected
	definition := s.tool
	host := s.host
	s.mu.Unlock()
	if tool == "" {
		return domain.E(domain.CodeFailedPrecond, "run", "no tool selected", nil)
	}

	logger := s.logger.With(telemetry.EntityField(tool))
	args, err := ValidateInput(definition, input)
	if err != nil {
		logger.Info("rejected tool input", telemetry.EventField(telemetry.EventValidationFailed), zap.Error(err))
		s.fail(err)
		return err
	}
	if host == nil || host.State() != bridge.StateConnected {
		err := fmt.Errorf("run %s: %w", tool, domain.ErrBridgeNotReady)
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.lastInput = args
	s.mu.Unlock()
	s.saveLastInput(tool, args)

	if err := host.SendToolInput(ctx, args); err != nil {
		err = fmt.Errorf("deliver input: %w", err)
		s.fail(err)
		return err
	}
	logger.Debug("tool input sent", telemetry.EventField(telemetry.EventToolInput))

	start := time.Now()
	result, err := s.caller.CallTool(ctx, tool, args)
	if err == nil && result.IsError {
		err = errors.New(resultText(result))
	}
	s.metrics.ObserveToolRun(tool, time.Since(start), err)
	if err != nil {
		reason := err.Error()
		if cancelErr := host.SendToolCancelled(ctx, reason); cancelErr != nil {
			logger.Debug("tool-cancelled not delivered", zap.Error(cancelErr))
		}
		logger.Info("tool call failed", telemetry.EventField(telemetry.EventToolCancelled), zap.Error(err))
		err = fmt.Errorf("%w: %s: %s", domain.ErrToolFailed, tool, reason)
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.lastOutput = result
	s.lastError = ""
	s.mu.Unlock()
	s.changed()
	if err := host.SendToolResult(ctx, result); err != nil {
		err = fmt.Errorf("deliver result: %w", err)
		s.fail(err)
		return err
	}
	logger.Debug("tool result sent", telemetry.EventField(telemetry.EventToolResult))
	return nil
}

// SetContext replaces the host context, persists it and forwards it to a
// connected UI.
func (s *Session) SetContext(ctx context.Context, hc bridge.HostContext) error {
	hc.ToolInfo = nil
	s.mu.Lock()
	s.hostContext = hc
	host := s.host
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveHostContext(hc); err != nil {
			s.logger.Warn("persist host context failed", zap.Error(err))
		}
	}
	return s.pushContext(ctx, host, hc)
}

// ResetContext forgets the saved host context and returns to the default.
func (s *Session) ResetContext(ctx context.Context) error {
	hc := bridge.DefaultHostContext()
	s.mu.Lock()
	s.hostContext = hc
	host := s.host
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.ClearHostContext(); err != nil {
			s.logger.Warn("clear host context failed", zap.Error(err))
		}
	}
	return s.pushContext(ctx, host, hc)
}

func (s *Session) pushContext(ctx context.Context, host *bridge.Host, hc bridge.HostContext) error {
	s.changed()
	if host == nil || host.State() != bridge.StateConnected {
		return nil
	}
	hc.ToolInfo = s.toolInfo()
	return host.SendHostContext(ctx, hc)
}

func (s *Session) recordEvent(event bridge.Event) {
	s.mu.Lock()
	s.events = append(s.events, event)
	if over := len(s.events) - domain.DefaultEventLogLimit; over > 0 {
		s.events = append([]bridge.Event(nil), s.events[over:]...)
	}
	s.mu.Unlock()
	s.changed()
}

func (s *Session) resize(_, height int) {
	s.mu.Lock()
	s.frameHeight = height
	s.mu.Unlock()
	s.changed()
}

func (s *Session) setConnection(state bridge.State) {
	s.mu.Lock()
	s.connection = state
	s.mu.Unlock()
	s.changed()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
	s.changed()
}

func (s *Session) loadContext() {
	if s.store == nil {
		return
	}
	var hc bridge.HostContext
	ok, err := s.store.HostContext(&hc)
	if err != nil {
		s.logger.Warn("load host context failed", zap.Error(err))
		return
	}
	if ok {
		s.mu.Lock()
		s.hostContext = hc
		s.mu.Unlock()
	}
}

func (s *Session) loadLastInput(tool string) {
	if s.store == nil {
		return
	}
	input, err := s.store.LastInput(tool)
	if err != nil || input == nil {
		return
	}
	s.mu.Lock()
	s.lastInput = input
	s.mu.Unlock()
}

func (s *Session) saveLastInput(tool string, input json.RawMessage) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveLastInput(tool, input); err != nil {
		s.logger.Debug("persist last input failed", zap.Error(err))
	}
}

func resultText(result *mcp.CallToolResult) string {
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok && text.Text != "" {
			return text.Text
		}
	}
	return "tool reported an error"
}
