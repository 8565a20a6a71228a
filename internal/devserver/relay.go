package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mcpapps/mcpapps/internal/bridge"
	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/infra/telemetry"
	"github.com/mcpapps/mcpapps/internal/preview"
)

// Envelope types exchanged with the preview shell.
const (
	// shell -> server
	TypeSelect         = "select"
	TypeRun            = "run"
	TypeContext        = "context"
	TypeResetContext   = "reset-context"
	TypeReconnect      = "reconnect"
	TypeReload         = "reload"
	TypeFrameReady     = "frame-ready"
	TypeOpenLinkResult = "open-link-result"
	// both directions; the message travels between host and iframe
	TypeFrame = "frame"
	// server -> shell
	TypeState    = "state"
	TypeLoad     = "load"
	TypeOpenLink = "open-link"
	TypeRegistry = "registry"
	TypeLog      = "log"
	TypeError    = "error"
)

const (
	writeWait      = 10 * time.Second
	relayQueueSize = 64
)

// Envelope is one websocket frame of the preview protocol.
type Envelope struct {
	Type       string              `json:"type"`
	Tool       string              `json:"tool,omitempty"`
	Input      json.RawMessage     `json:"input,omitempty"`
	Context    *bridge.HostContext `json:"context,omitempty"`
	Generation uint64              `json:"generation,omitempty"`
	Message    json.RawMessage     `json:"message,omitempty"`
	ID         string              `json:"id,omitempty"`
	URL        string              `json:"url,omitempty"`
	Src        string              `json:"src,omitempty"`
	Error      string              `json:"error,omitempty"`
	State      *preview.State      `json:"state,omitempty"`
	Registry   *domain.Registry    `json:"registry,omitempty"`
	Log        *domain.LogEntry    `json:"log,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("preview socket upgrade failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	socket := &previewSocket{
		conn:    conn,
		loaded:  make(map[uint64]chan struct{}),
		links:   make(map[string]chan error),
		actions: make(chan func(context.Context), relayQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		timeout: s.loadTimeout,
	}
	socket.session = preview.NewSession(preview.Options{
		Frame:    socket,
		Caller:   preview.NewCaller(s.newServer),
		Settings: s.settings,
		Logger:   s.logger,
		Metrics:  s.metrics,
		Bridge:   bridge.Options{HostInfo: bridge.Implementation{Name: s.config.Server.Name, Version: s.config.Server.Version}},
		OnState: func(state preview.State) {
			_ = socket.send(Envelope{Type: TypeState, State: &state})
		},
	})
	socket.logger = s.logger.With(telemetry.SessionField(socket.session.ID()))
	s.track(socket, true)
	socket.logger.Info("preview connected")

	go socket.work()
	go s.pushRegistry(socket)
	if s.logs != nil {
		go socket.streamLogs(s.logs)
	}
	state := socket.session.State()
	_ = socket.send(Envelope{Type: TypeState, State: &state})

	socket.readPump()

	cancel()
	socket.session.Dispose(context.Background())
	socket.closeRelay()
	_ = conn.Close()
	s.track(socket, false)
	socket.logger.Info("preview disconnected")
}

func (s *Server) pushRegistry(socket *previewSocket) {
	registry := s.registry.Current()
	_ = socket.send(Envelope{Type: TypeRegistry, Registry: &registry})
	for update := range s.registry.Subscribe(socket.ctx) {
		registry := update.Registry
		_ = socket.send(Envelope{Type: TypeRegistry, Registry: &registry})
	}
}

// previewSocket is one browser preview page. It is the Frame of its
// preview session: iframe traffic is relayed through the shell.
type previewSocket struct {
	conn    *websocket.Conn
	session *preview.Session
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	actions chan func(context.Context)

	writeMu sync.Mutex

	mu         sync.Mutex
	generation uint64
	loaded     map[uint64]chan struct{}
	links      map[string]chan error
	relay      *relayConn
}

func (p *previewSocket) readPump() {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.logger.Debug("preview socket read failed", zap.Error(err))
			}
			return
		}
		var envelope Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			p.logger.Debug("dropping malformed preview frame", zap.Error(err))
			continue
		}
		p.dispatch(envelope)
	}
}

func (p *previewSocket) dispatch(envelope Envelope) {
	switch envelope.Type {
	case TypeFrame:
		p.deliver(envelope.Message)
	case TypeFrameReady:
		p.mu.Lock()
		if ch, ok := p.loaded[envelope.Generation]; ok {
			close(ch)
			delete(p.loaded, envelope.Generation)
		}
		p.mu.Unlock()
	case TypeOpenLinkResult:
		p.mu.Lock()
		ch, ok := p.links[envelope.ID]
		delete(p.links, envelope.ID)
		p.mu.Unlock()
		if ok {
			var err error
			if envelope.Error != "" {
				err = errors.New(envelope.Error)
			}
			ch <- err
		}
	case TypeSelect:
		tool := envelope.Tool
		p.enqueue(func(ctx context.Context) error { return p.session.Select(ctx, tool) })
	case TypeRun:
		input := envelope.Input
		p.enqueue(func(ctx context.Context) error { return p.session.Run(ctx, input) })
	case TypeContext:
		if envelope.Context == nil {
			return
		}
		hc := *envelope.Context
		p.enqueue(func(ctx context.Context) error { return p.session.SetContext(ctx, hc) })
	case TypeResetContext:
		p.enqueue(p.session.ResetContext)
	case TypeReconnect:
		p.enqueue(p.session.Reconnect)
	case TypeReload:
		p.enqueue(p.session.Reload)
	default:
		p.logger.Debug("unknown preview frame", zap.String("type", envelope.Type))
	}
}

// Actions run one at a time in arrival order. Frame traffic is handled on
// the read loop so an action waiting for the iframe never blocks it.
func (p *previewSocket) enqueue(action func(context.Context) error) {
	select {
	case p.actions <- func(ctx context.Context) {
		if err := action(ctx); err != nil && !errors.Is(err, domain.ErrSuperseded) {
			_ = p.send(Envelope{Type: TypeError, Error: err.Error()})
		}
	}:
	case <-p.ctx.Done():
	}
}

func (p *previewSocket) work() {
	for {
		select {
		case action := <-p.actions:
			action(p.ctx)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *previewSocket) streamLogs(logs *telemetry.LogBroadcaster) {
	for entry := range logs.Subscribe(p.ctx, zapcore.InfoLevel, "") {
		_ = p.send(Envelope{Type: TypeLog, Log: &entry})
	}
}

func (p *previewSocket) send(envelope Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Load asks the shell to replace the iframe and waits until the new
// document has loaded.
func (p *previewSocket) Load(ctx context.Context, tool string) error {
	p.mu.Lock()
	p.generation++
	generation := p.generation
	ready := make(chan struct{})
	p.loaded[generation] = ready
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.loaded, generation)
		p.mu.Unlock()
	}()

	if err := p.send(Envelope{Type: TypeLoad, Tool: tool, Generation: generation, Src: IframePath(tool)}); err != nil {
		return fmt.Errorf("load frame: %w", err)
	}
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-timer.C:
		return fmt.Errorf("load frame %s: timed out", tool)
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return domain.ErrBridgeClosed
	}
}

// Connect opens a fresh relay channel to the current iframe document.
func (p *previewSocket) Connect(_ context.Context, _ string) (mcp.Connection, error) {
	relay := &relayConn{
		socket: p,
		in:     make(chan jsonrpc.Message, relayQueueSize),
		done:   make(chan struct{}),
	}
	p.mu.Lock()
	old := p.relay
	p.relay = relay
	p.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return relay, nil
}

// OpenLink asks the shell to open url and waits for its answer.
func (p *previewSocket) OpenLink(ctx context.Context, url string) error {
	id := uuid.NewString()
	result := make(chan error, 1)
	p.mu.Lock()
	p.links[id] = result
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.links, id)
		p.mu.Unlock()
	}()

	if err := p.send(Envelope{Type: TypeOpenLink, ID: id, URL: url}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return domain.ErrBridgeClosed
	}
}

func (p *previewSocket) deliver(raw json.RawMessage) {
	msg, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		p.logger.Debug("dropping malformed iframe message", zap.Error(err))
		return
	}
	p.mu.Lock()
	relay := p.relay
	p.mu.Unlock()
	if relay == nil {
		return
	}
	relay.deliver(msg)
}

func (p *previewSocket) closeRelay() {
	p.mu.Lock()
	relay := p.relay
	p.relay = nil
	p.mu.Unlock()
	if relay != nil {
		_ = relay.Close()
	}
}

// relayConn is the host end of one bridge channel through the shell.
type relayConn struct {
	socket *previewSocket
	in     chan jsonrpc.Message
	done   chan struct{}
	once   sync.Once
}

func (c *relayConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.done:
		return nil, mcp.ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *relayConn) Write(_ context.Context, msg jsonrpc.Message) error {
	select {
	case <-c.done:
		return mcp.ErrConnectionClosed
	default:
	}
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return c.socket.send(Envelope{Type: TypeFrame, Message: data})
}

func (c *relayConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *relayConn) SessionID() string {
	return c.socket.session.ID()
}

func (c *relayConn) deliver(msg jsonrpc.Message) {
	select {
	case c.in <- msg:
	case <-c.done:
	}
}
