package preview

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/mcpapps/mcpapps/internal/bridge"
	"github.com/mcpapps/mcpapps/internal/domain"
	"github.com/mcpapps/mcpapps/internal/infra/settings"
)

type todoInput struct {
	Filter string `json:"filter,omitempty"`
}

type todoOutput struct {
	Todos []string `json:"todos"`
	Total int      `json:"total"`
}

type noteInput struct {
	Title string `json:"title"`
}

type testServer struct {
	todoCalls atomic.Int32
	noteCalls atomic.Int32
	failTodos atomic.Bool
}

func (s *testServer) factory(context.Context) (*mcp.Server, error) {
	server := mcp.NewServer(&mcp.Implementation{Name: "todos", Version: "1.0.0"}, nil)
	mcp.AddTool(server, &mcp.Tool{Name: "get_todos"}, func(_ context.Context, _ *mcp.CallToolRequest, in todoInput) (*mcp.CallToolResult, todoOutput, error) {
		s.todoCalls.Add(1)
		if s.failTodos.Load() {
			return nil, todoOutput{}, errors.New("database unavailable")
		}
		todos := []string{"write docs", "ship"}
		if in.Filter == "completed" {
			todos = todos[:1]
		}
		return nil, todoOutput{Todos: todos, Total: len(todos)}, nil
	})
	mcp.AddTool(server, &mcp.Tool{Name: "create_note"}, func(_ context.Context, _ *mcp.CallToolRequest, in noteInput) (*mcp.CallToolResult, noteInput, error) {
		s.noteCalls.Add(1)
		return nil, in, nil
	})
	return server, nil
}

type iframeClient struct {
	received chan *jsonrpc.Request
}

func (c *iframeClient) expect(t *testing.T, method string) *jsonrpc.Request {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case req := <-c.received:
			if req.Method == method {
				return req
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", method)
			return nil
		}
	}
}

func (c *iframeClient) drain() {
	for {
		select {
		case <-c.received:
		default:
			return
		}
	}
}

type fakeFrame struct {
	mu        sync.Mutex
	loads     int
	clients   []*iframeClient
	onConnect func(n int)
}

func (f *fakeFrame) Load(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return nil
}

func (f *fakeFrame) Connect(ctx context.Context, _ string) (mcp.Connection, error) {
	hostSide, clientSide := mcp.NewInMemoryTransports()
	hostConn, err := hostSide.Connect(ctx)
	if err != nil {
		return nil, err
	}
	clientConn, err := clientSide.Connect(ctx)
	if err != nil {
		return nil, err
	}
	client := &iframeClient{received: make(chan *jsonrpc.Request, 64)}
	go func() {
		for {
			msg, err := clientConn.Read(context.Background())
			if err != nil {
				return
			}
			req, ok := msg.(*jsonrpc.Request)
			if !ok {
				continue
			}
			switch req.Method {
			case bridge.MethodInitialize:
				_ = clientConn.Write(context.Background(), &jsonrpc.Response{ID: req.ID, Result: json.RawMessage(`{"protocolVersion":"2025-11-25","appInfo":{"name":"todos","version":"1.0.0"}}`)})
			case bridge.MethodResourceTeardown:
				_ = clientConn.Write(context.Background(), &jsonrpc.Response{ID: req.ID, Result: json.RawMessage(`{}`)})
			}
			client.received <- req
		}
	}()

	f.mu.Lock()
	f.clients = append(f.clients, client)
	n := len(f.clients)
	hook := f.onConnect
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return hostConn, nil
}

func (f *fakeFrame) OpenLink(context.Context, string) error {
	return nil
}

func (f *fakeFrame) client(i int) *iframeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[i]
}

func (f *fakeFrame) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func newTestSession(t *testing.T, store *settings.Store) (*Session, *fakeFrame, *testServer) {
	t.Helper()
	server := &testServer{}
	frame := &fakeFrame{}
	session := NewSession(Options{
		Frame:    frame,
		Caller:   NewCaller(server.factory),
		Settings: store,
		Bridge:   bridge.Options{HandshakeTimeout: time.Second},
	})
	t.Cleanup(func() { session.Dispose(context.Background()) })
	return session, frame, server
}

func TestSession_ReconnectResyncsUI(t *testing.T) {
	ctx := context.Background()
	session, frame, _ := newTestSession(t, nil)

	require.NoError(t, session.Select(ctx, "get_todos"))
	first := frame.client(0)
	init := first.expect(t, bridge.MethodInitialize)
	var params bridge.InitializeParams
	require.NoError(t, json.Unmarshal(init.Params, &params))
	require.NotNil(t, params.HostContext.ToolInfo)
	require.Equal(t, "get_todos", params.HostContext.ToolInfo.Tool.Name)

	require.NoError(t, session.Run(ctx, json.RawMessage(`{"filter":"completed"}`)))
	input := first.expect(t, bridge.MethodToolInput)
	require.JSONEq(t, `{"arguments":{"filter":"completed"}}`, string(input.Params))
	result := first.expect(t, bridge.MethodToolResult)
	require.Contains(t, string(result.Params), `"total":1`)

	hc := bridge.DefaultHostContext()
	hc.Theme = "dark"
	require.NoError(t, session.SetContext(ctx, hc))
	changed := first.expect(t, bridge.MethodHostContextChanged)
	require.Contains(t, string(changed.Params), `"theme":"dark"`)

	require.NoError(t, session.Reconnect(ctx))
	first.expect(t, bridge.MethodResourceTeardown)
	second := frame.client(1)
	init = second.expect(t, bridge.MethodInitialize)
	require.NoError(t, json.Unmarshal(init.Params, &params))
	require.Equal(t, "dark", params.HostContext.Theme)
	second.expect(t, bridge.MethodToolInput)
	second.expect(t, bridge.MethodToolResult)

	state := session.State()
	require.Equal(t, bridge.StateConnected, state.Connection)
	require.NotNil(t, state.LastOutput)
	require.NotEmpty(t, state.Events)
	require.Equal(t, 1, frame.loadCount())
}

func TestSession_ReloadRequiresReconnect(t *testing.T) {
	ctx := context.Background()
	session, frame, server := newTestSession(t, nil)
	require.NoError(t, session.Select(ctx, "get_todos"))

	require.NoError(t, session.Reload(ctx))
	require.Equal(t, 2, frame.loadCount())
	require.Equal(t, bridge.StateIdle, session.State().Connection)

	err := session.Run(ctx, json.RawMessage(`{}`))
	require.ErrorIs(t, err, domain.ErrBridgeNotReady)
	require.Zero(t, server.todoCalls.Load())

	require.NoError(t, session.Reconnect(ctx))
	require.NoError(t, session.Run(ctx, json.RawMessage(`{}`)))
	frame.client(1).expect(t, bridge.MethodToolResult)
	require.EqualValues(t, 1, server.todoCalls.Load())
}

func TestSession_InvalidInputDoesNotCallTool(t *testing.T) {
	ctx := context.Background()
	session, frame, server := newTestSession(t, nil)
	require.NoError(t, session.Select(ctx, "create_note"))

	require.NoError(t, session.Run(ctx, json.RawMessage(`{"title":"groceries"}`)))
	frame.client(0).expect(t, bridge.MethodToolResult)
	before := session.State().LastOutput
	require.NotNil(t, before)

	frame.client(0).drain()
	err := session.Run(ctx, json.RawMessage(`{"title":""}`))
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	require.Contains(t, err.Error(), "title")
	require.EqualValues(t, 1, server.noteCalls.Load())

	state := session.State()
	require.Same(t, before, state.LastOutput)
	require.NotEmpty(t, state.LastError)
	select {
	case req := <-frame.client(0).received:
		t.Fatalf("ui received %s for rejected input", req.Method)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_ToolFailureCancelsAndKeepsOutput(t *testing.T) {
	ctx := context.Background()
	session, frame, server := newTestSession(t, nil)
	require.NoError(t, session.Select(ctx, "get_todos"))
	require.NoError(t, session.Run(ctx, json.RawMessage(`{}`)))
	before := session.State().LastOutput

	server.failTodos.Store(true)
	err := session.Run(ctx, json.RawMessage(`{}`))
	require.ErrorIs(t, err, domain.ErrToolFailed)
	cancelled := frame.client(0).expect(t, bridge.MethodToolCancelled)
	require.Contains(t, string(cancelled.Params), "database unavailable")
	require.Same(t, before, session.State().LastOutput)
}

func TestSession_StaleSetupIsDiscarded(t *testing.T) {
	ctx := context.Background()
	session, frame, _ := newTestSession(t, nil)
	frame.onConnect = func(n int) {
		if n == 1 {
			session.setupSeq.Add(1)
		}
	}

	err := session.Select(ctx, "get_todos")
	require.ErrorIs(t, err, domain.ErrSuperseded)
	frame.client(0).expect(t, bridge.MethodResourceTeardown)
	require.NotEqual(t, bridge.StateConnected, session.State().Connection)

	require.NoError(t, session.Reconnect(ctx))
	require.Equal(t, bridge.StateConnected, session.State().Connection)
}

func TestSession_PersistsContextAndLastInput(t *testing.T) {
	ctx := context.Background()
	store, err := settings.OpenStore(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	session, _, _ := newTestSession(t, store)
	require.NoError(t, session.Select(ctx, "get_todos"))
	hc := bridge.DefaultHostContext()
	hc.Locale = "de-DE"
	require.NoError(t, session.SetContext(ctx, hc))
	require.NoError(t, session.Run(ctx, json.RawMessage(`{"filter":"completed"}`)))

	restored, _, _ := newTestSession(t, store)
	require.Equal(t, "de-DE", restored.State().Context.Locale)
	require.NoError(t, restored.Select(ctx, "get_todos"))
	state := restored.State()
	require.JSONEq(t, `{"filter":"completed"}`, string(state.LastInput))
	require.Nil(t, state.LastOutput)
}

func TestSession_ResetContextClearsSavedContext(t *testing.T) {
	ctx := context.Background()
	store, err := settings.OpenStore(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	session, frame, _ := newTestSession(t, store)
	require.NoError(t, session.Select(ctx, "get_todos"))
	client := frame.client(0)
	client.expect(t, bridge.MethodInitialize)

	hc := bridge.DefaultHostContext()
	hc.Theme = "dark"
	require.NoError(t, session.SetContext(ctx, hc))
	client.expect(t, bridge.MethodHostContextChanged)

	require.NoError(t, session.ResetContext(ctx))
	changed := client.expect(t, bridge.MethodHostContextChanged)
	require.NotContains(t, string(changed.Params), `"theme":"dark"`)
	require.Equal(t, bridge.DefaultHostContext().Theme, session.State().Context.Theme)

	restored, _, _ := newTestSession(t, store)
	require.Equal(t, bridge.DefaultHostContext().Theme, restored.State().Context.Theme)
}

func TestValidateInput(t *testing.T) {
	tool := &mcp.Tool{Name: "create_note", InputSchema: map[string]any{
		"type":       "object",
		"required":   []any{"title"},
		"properties": map[string]any{"title": map[string]any{"type": "string"}},
	}}

	args, err := ValidateInput(tool, json.RawMessage(`{"title":"a","extra":""}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"title":"a"}`, string(args))

	_, err = ValidateInput(tool, json.RawMessage(`{"title":"   "}`))
	require.NoError(t, err)

	_, err = ValidateInput(tool, nil)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ValidateInput(tool, json.RawMessage(`[1,2]`))
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	args, err = ValidateInput(nil, json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"x":1}`, string(args))
}
