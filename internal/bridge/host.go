package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/infra/telemetry"
)

// State is the host's view of the link to a client.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateClosed     State = "closed"
)

// Direction of a logged bridge message.
const (
	DirectionOut = "host->ui"
	DirectionIn  = "ui->host"
)

// Event is one protocol message seen by the host.
type Event struct {
	Time      time.Time       `json:"time"`
	Direction string          `json:"direction"`
	Method    string          `json:"method"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Options wires a host to the surrounding preview shell.
type Options struct {
	HostInfo         Implementation
	ProtocolVersion  string
	HandshakeTimeout time.Duration
	TeardownTimeout  time.Duration
	Logger           *zap.Logger
	// OpenLink opens url in a new top-level browsing context. Nil disables links.
	OpenLink func(ctx context.Context, url string) error
	// OnResize receives client content sizes, height clamped to MinFrameHeight.
	OnResize func(width, height int)
	OnEvent  func(Event)
}

type callResult struct {
	resp *jsonrpc.Response
	err  error
}

// Host drives one client over conn. Data notifications block until the
// handshake has completed.
type Host struct {
	conn   mcp.Connection
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	pending map[string]chan callResult
	nextID  atomic.Int64

	ready     chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
}

func NewHost(conn mcp.Connection, opts Options) *Host {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = domain.DefaultHandshakeTimeout
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = domain.DefaultTeardownTimeout
	}
	if opts.ProtocolVersion == "" {
		opts.ProtocolVersion = domain.DefaultProtocolVersion
	}
	if opts.HostInfo.Name == "" {
		opts.HostInfo = Implementation{Name: "mcpapps-preview", Version: domain.DefaultServerVersion}
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		conn:    conn,
		opts:    opts,
		logger:  logger.Named("bridge"),
		state:   StateIdle,
		pending: make(map[string]chan callResult),
		ready:   make(chan struct{}),
		closed:  make(chan struct{}),
		cancel:  cancel,
	}
	go h.readLoop(ctx)
	return h
}

func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once the host is closed.
func (h *Host) Done() <-chan struct{} {
	return h.closed
}

func (h *Host) setState(state State) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
	h.logger.Debug("bridge state", telemetry.StateField(string(state)))
}

// Connect performs the ui/initialize handshake. The link counts as
// connected only after the client answered.
func (h *Host) Connect(ctx context.Context, hc HostContext) error {
	h.mu.Lock()
	if h.state != StateIdle {
		state := h.state
		h.mu.Unlock()
		return fmt.Errorf("connect: bridge is %s", state)
	}
	h.state = StateConnecting
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, h.opts.HandshakeTimeout)
	defer cancel()

	raw, err := h.call(ctx, MethodInitialize, InitializeParams{
		ProtocolVersion:  h.opts.ProtocolVersion,
		HostInfo:         h.opts.HostInfo,
		HostCapabilities: HostCapabilities{OpenLinks: &struct{}{}, Logging: &struct{}{}},
		HostContext:      hc,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.ErrHandshakeTimeout
		}
		_ = h.Close()
		return fmt.Errorf("initialize: %w", err)
	}
	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		_ = h.Close()
		return fmt.Errorf("initialize: decode result: %w", err)
	}

	h.mu.Lock()
	if h.state != StateConnecting {
		h.mu.Unlock()
		return domain.ErrBridgeClosed
	}
	h.state = StateConnected
	close(h.ready)
	h.mu.Unlock()
	h.logger.Info("bridge connected",
		telemetry.EventField(telemetry.EventBridgeConnected),
		zap.String("app", result.AppInfo.Name),
	)
	return nil
}

func (h *Host) awaitReady(ctx context.Context) error {
	select {
	case <-h.ready:
		return nil
	case <-h.closed:
		return domain.ErrBridgeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Host) SendToolInput(ctx context.Context, arguments json.RawMessage) error {
	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}
	return h.notifyReady(ctx, MethodToolInput, ToolInputParams{Arguments: arguments})
}

func (h *Host) SendToolResult(ctx context.Context, result *mcp.CallToolResult) error {
	return h.notifyReady(ctx, MethodToolResult, result)
}

func (h *Host) SendToolCancelled(ctx context.Context, reason string) error {
	return h.notifyReady(ctx, MethodToolCancelled, ToolCancelledParams{Reason: reason})
}

func (h *Host) SendHostContext(ctx context.Context, hc HostContext) error {
	return h.notifyReady(ctx, MethodHostContextChanged, hc)
}

func (h *Host) notifyReady(ctx context.Context, method string, params any) error {
	if err := h.awaitReady(ctx); err != nil {
		return err
	}
	return h.notify(ctx, method, params)
}

// Teardown asks the client to release its resources, then closes the host.
// A client that does not answer in time is closed anyway.
func (h *Host) Teardown(ctx context.Context) error {
	if h.State() == StateConnected {
		ctx, cancel := context.WithTimeout(ctx, h.opts.TeardownTimeout)
		_, err := h.call(ctx, MethodResourceTeardown, struct{}{})
		cancel()
		if err != nil {
			h.logger.Debug("teardown not acknowledged", zap.Error(err))
		}
	}
	return h.Close()
}

func (h *Host) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.setState(StateClosed)
		close(h.closed)
		h.cancel()
		err = h.conn.Close()
		h.failPending(domain.ErrBridgeClosed)
		h.logger.Debug("bridge closed", telemetry.EventField(telemetry.EventBridgeClosed))
	})
	return err
}

func (h *Host) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

func (h *Host) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if h.isClosed() {
		return nil, domain.ErrBridgeClosed
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	key := "host-" + strconv.FormatInt(h.nextID.Add(1), 10)
	id, err := jsonrpc.MakeID(key)
	if err != nil {
		return nil, err
	}

	resultCh := make(chan callResult, 1)
	h.mu.Lock()
	if h.pending == nil {
		h.mu.Unlock()
		return nil, domain.ErrBridgeClosed
	}
	h.pending["s:"+key] = resultCh
	h.mu.Unlock()

	h.emit(DirectionOut, method, raw)
	if err := h.conn.Write(ctx, &jsonrpc.Request{ID: id, Method: method, Params: raw}); err != nil {
		h.removePending("s:" + key)
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, result.err
		}
		if result.resp.Error != nil {
			return nil, fmt.Errorf("%s: %w", method, result.resp.Error)
		}
		return result.resp.Result, nil
	case <-ctx.Done():
		h.removePending("s:" + key)
		return nil, ctx.Err()
	}
}

func (h *Host) notify(ctx context.Context, method string, params any) error {
	if h.isClosed() {
		return domain.ErrBridgeClosed
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", method, err)
	}
	h.emit(DirectionOut, method, raw)
	if err := h.conn.Write(ctx, &jsonrpc.Request{Method: method, Params: raw}); err != nil {
		return fmt.Errorf("write %s: %w", method, err)
	}
	return nil
}

func (h *Host) readLoop(ctx context.Context) {
	for {
		msg, err := h.conn.Read(ctx)
		if err != nil {
			if !h.isClosed() {
				h.logger.Debug("bridge read ended", zap.Error(err))
			}
			_ = h.Close()
			return
		}
		switch typed := msg.(type) {
		case *jsonrpc.Response:
			h.dispatchResponse(typed)
		case *jsonrpc.Request:
			h.emit(DirectionIn, typed.Method, typed.Params)
			if typed.ID.IsValid() {
				go h.handleCall(ctx, typed)
				continue
			}
			h.handleNotification(typed)
		}
	}
}

func (h *Host) dispatchResponse(resp *jsonrpc.Response) {
	key, err := idKey(resp.ID)
	if err != nil {
		h.logger.Debug("drop response with invalid id", zap.Error(err))
		return
	}
	h.mu.Lock()
	ch := h.pending[key]
	delete(h.pending, key)
	h.mu.Unlock()
	if ch == nil {
		h.logger.Debug("drop response with no pending call", zap.String("id", key))
		return
	}
	ch <- callResult{resp: resp}
}

func (h *Host) handleCall(ctx context.Context, req *jsonrpc.Request) {
	var resp *jsonrpc.Response
	switch req.Method {
	case MethodOpenLink:
		resp = h.handleOpenLink(ctx, req)
	case MethodMessage, MethodUpdateModelContext, MethodPing:
		resp = &jsonrpc.Response{ID: req.ID, Result: json.RawMessage("{}")}
	default:
		resp = errorResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
	if err := h.conn.Write(ctx, resp); err != nil && !h.isClosed() {
		h.logger.Warn("respond to ui call failed", zap.String("method", req.Method), zap.Error(err))
	}
}

func (h *Host) handleOpenLink(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var params OpenLinkParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid open-link params")
	}
	parsed, err := url.Parse(params.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("refusing to open %q", params.URL))
	}
	if h.opts.OpenLink == nil {
		return errorResponse(req.ID, codeServerError, "opening links is not supported")
	}
	ctx, cancel := context.WithTimeout(ctx, domain.DefaultOpenLinkTimeout)
	defer cancel()
	if err := h.opts.OpenLink(ctx, parsed.String()); err != nil {
		return errorResponse(req.ID, codeServerError, "open link failed: "+err.Error())
	}
	return &jsonrpc.Response{ID: req.ID, Result: json.RawMessage("{}")}
}

func (h *Host) handleNotification(req *jsonrpc.Request) {
	switch req.Method {
	case MethodSizeChanged:
		var params SizeChangedParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			h.logger.Debug("drop malformed size change", zap.Error(err))
			return
		}
		if params.Height < domain.MinFrameHeight {
			params.Height = domain.MinFrameHeight
		}
		if h.opts.OnResize != nil {
			h.opts.OnResize(params.Width, params.Height)
		}
	case MethodLog:
		h.logger.Debug("ui log", zap.ByteString("params", req.Params))
	}
}

func (h *Host) emit(direction, method string, payload json.RawMessage) {
	if h.opts.OnEvent == nil {
		return
	}
	h.opts.OnEvent(Event{
		Time:      time.Now(),
		Direction: direction,
		Method:    method,
		Payload:   payload,
	})
}

func (h *Host) failPending(err error) {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()
	for _, ch := range pending {
		ch <- callResult{err: err}
	}
}

func (h *Host) removePending(key string) {
	h.mu.Lock()
	if h.pending != nil {
		delete(h.pending, key)
	}
	h.mu.Unlock()
}
