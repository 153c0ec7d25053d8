package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/auth"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/registry"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store/boltstore"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store/lstore"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/serializer"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport/base"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// fakeVerifier accepts the token "good" only
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	if token == "good" {
		return auth.Identity{Subject: "user-1", Email: "user@example.org", Domain: "example.org"}, nil
	}
	return auth.Identity{}, fmt.Errorf("%w: unknown token", auth.ErrInvalidToken)
}

func newTestRegistry(t *testing.T, dir string) *registry.StoreRegistry {
	t.Helper()
	persister, err := boltstore.NewPersister(dir)
	if err != nil {
		t.Fatalf("Failed to create persister: %v", err)
	}
	return registry.NewStoreRegistry(lstore.NewFactory(persister), lstore.NewLoader(persister))
}

func newTestServer(t *testing.T, config common.ServerConfig) *RPCServer {
	t.Helper()
	return &RPCServer{
		config:     config,
		serializer: serializer.NewJSONSerializer(),
		registry:   newTestRegistry(t, t.TempDir()),
		verifier:   fakeVerifier{},
		metrics:    newServerMetrics(),
	}
}

// testConn is the client end of an in-process connection to a dispatcher
type testConn struct {
	t    *testing.T
	raw  transport.IConn
	msgs *base.MsgConn
}

func connect(t *testing.T, s *RPCServer) *testConn {
	t.Helper()
	a, b := net.Pipe()
	// the transport closes the connection once the handler returns
	go func() {
		conn := base.NewStreamConn(b, common.DefaultMaxFrameBytes, 0)
		s.serveConn(conn)
		conn.Close()
	}()

	raw := base.NewStreamConn(a, common.DefaultMaxFrameBytes, 0)
	t.Cleanup(func() { raw.Close() })
	return &testConn{t: t, raw: raw, msgs: base.NewMsgConn(raw, serializer.NewJSONSerializer())}
}

func (c *testConn) send(req common.Message) {
	c.t.Helper()
	if err := c.msgs.Send(req); err != nil {
		c.t.Fatalf("Failed to send %s: %v", req, err)
	}
}

// receive waits for the next reply
func (c *testConn) receive() (common.Message, error) {
	c.t.Helper()
	type result struct {
		msg common.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		msg, err := c.msgs.Receive()
		ch <- result{msg, err}
	}()

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-time.After(2 * time.Second):
		c.t.Fatalf("Timed out waiting for a reply")
		return common.Message{}, nil
	}
}

// call sends req with the given id and returns the reply
func (c *testConn) call(id uint64, req common.Message) common.Message {
	c.t.Helper()
	req.ID = id
	c.send(req)
	reply, err := c.receive()
	if err != nil {
		c.t.Fatalf("Failed to receive reply for %s: %v", req, err)
	}
	if reply.ID != id {
		c.t.Fatalf("Reply id = %d, want %d", reply.ID, id)
	}
	return reply
}

func expectError(t *testing.T, reply common.Message, code common.ErrorCode) {
	t.Helper()
	if reply.CmdType != common.MsgTError || reply.Code != code {
		t.Fatalf("Expected errResp(%s), got %+v", code, reply)
	}
}

// --------------------------------------------------------------------------
// Dispatcher
// --------------------------------------------------------------------------

func TestDispatchGetSetList(t *testing.T) {
	s := newTestServer(t, common.ServerConfig{})
	c := connect(t, s)

	c.send(common.NewCreateRequest("notes"))

	reply := c.call(1, common.NewSetRequest("notes", "a", json.RawMessage(`{"x":1}`)))
	if reply.CmdType != common.MsgTSetResp || reply.Msg != "Value Set." {
		t.Fatalf("Unexpected set reply %+v", reply)
	}
	c.call(2, common.NewSetRequest("notes", "b", json.RawMessage(`"text"`)))

	reply = c.call(3, common.NewGetRequest("notes", "a"))
	if reply.CmdType != common.MsgTGetResp || reply.Key != "a" || reply.DBKey != "notes" || string(reply.Val) != `{"x":1}` {
		t.Fatalf("Unexpected get reply %+v", reply)
	}

	reply = c.call(4, common.NewListRequest("notes"))
	if reply.CmdType != common.MsgTListResp {
		t.Fatalf("Unexpected list reply %+v", reply)
	}
	keys, err := reply.Keys()
	if err != nil {
		t.Fatalf("Failed to decode keys: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Errorf("Keys = %v, want [a b]", keys)
	}
}

func TestDispatchErrorsKeepConnection(t *testing.T) {
	s := newTestServer(t, common.ServerConfig{})
	c := connect(t, s)

	expectError(t, c.call(1, common.NewGetRequest("missing", "a")), common.CodeStoreUnknown)
	expectError(t, c.call(2, common.NewSetRequest("missing", "a", json.RawMessage(`1`))), common.CodeStoreUnknown)
	expectError(t, c.call(3, common.NewListRequest("missing")), common.CodeStoreUnknown)

	c.send(common.NewCreateRequest("notes"))
	expectError(t, c.call(4, common.NewGetRequest("notes", "nope")), common.CodeNotFound)

	// still usable
	if reply := c.call(6, common.NewSetRequest("notes", "a", json.RawMessage(`1`))); reply.CmdType != common.MsgTSetResp {
		t.Fatalf("Unexpected reply %+v", reply)
	}
}

func TestDispatchInvalidValue(t *testing.T) {
	s := newTestServer(t, common.ServerConfig{})
	c := connect(t, s)
	c.send(common.NewCreateRequest("notes"))

	// a set without val has nothing to store
	expectError(t, c.call(1, common.Message{CmdType: common.MsgTSetVal, DBKey: "notes", Key: "a"}), common.CodeBadRequest)
}

func TestDispatchUnknownCmdType(t *testing.T) {
	s := newTestServer(t, common.ServerConfig{})
	c := connect(t, s)

	if err := c.raw.Send([]byte(`{"cmdType":"event","id":5,"destination":"x"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	reply, err := c.receive()
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if reply.ID != 5 {
		t.Errorf("Reply id = %d, want 5", reply.ID)
	}
	expectError(t, reply, common.CodeProtocol)

	// the ACI.js client sends string ids with a_auth
	if err := c.raw.Send([]byte(`{"cmdType":"a_auth","id":"user-7","token":"x"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	reply, err = c.receive()
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if reply.ID != 0 {
		t.Errorf("Reply id = %d, want 0", reply.ID)
	}
	expectError(t, reply, common.CodeProtocol)

	// replies are not accepted as requests
	expectError(t, c.call(6, common.NewSetResponse(0)), common.CodeProtocol)

	// connection stays open
	c.send(common.NewCreateRequest("notes"))
	if reply := c.call(7, common.NewListRequest("notes")); reply.CmdType != common.MsgTListResp || reply.Msg != "[]" {
		t.Fatalf("Unexpected reply %+v", reply)
	}
}

func TestDispatchMalformedFrameClosesConnection(t *testing.T) {
	s := newTestServer(t, common.ServerConfig{})
	c := connect(t, s)

	if err := c.raw.Send([]byte("not json")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	reply, err := c.receive()
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	expectError(t, reply, common.CodeProtocol)

	if _, err := c.receive(); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after malformed frame, got %v", err)
	}

	// other connections are unaffected
	other := connect(t, s)
	other.send(common.NewCreateRequest("notes"))
	if reply := other.call(1, common.NewListRequest("notes")); reply.CmdType != common.MsgTListResp {
		t.Fatalf("Unexpected reply %+v", reply)
	}
}

func TestDispatchAuth(t *testing.T) {
	s := newTestServer(t, common.ServerConfig{Auth: common.AuthConfig{Required: true}})
	s.registry.Create("notes")
	c := connect(t, s)

	expectError(t, c.call(1, common.NewGetRequest("notes", "a")), common.CodeAuthRequired)

	// a rejected token keeps the connection open
	expectError(t, c.call(2, common.NewAuthRequest("bad")), common.CodeAuthRejected)

	reply := c.call(3, common.NewAuthRequest("good"))
	if reply.CmdType != common.MsgTAuthResp || reply.Msg != "user-1" {
		t.Fatalf("Unexpected auth reply %+v", reply)
	}

	expectError(t, c.call(4, common.NewGetRequest("notes", "a")), common.CodeNotFound)

	// authentication is per connection
	other := connect(t, s)
	expectError(t, other.call(1, common.NewListRequest("notes")), common.CodeAuthRequired)
}

func TestDispatchAuthOptional(t *testing.T) {
	s := newTestServer(t, common.ServerConfig{})
	s.registry.Create("notes")
	c := connect(t, s)

	expectError(t, c.call(1, common.NewAuthRequest("bad")), common.CodeAuthRejected)
	if reply := c.call(2, common.NewListRequest("notes")); reply.CmdType != common.MsgTListResp {
		t.Fatalf("Unexpected reply %+v", reply)
	}
}

func TestDispatchIndexOperations(t *testing.T) {
	s := newTestServer(t, common.ServerConfig{})
	c := connect(t, s)
	c.send(common.NewCreateRequest("notes"))

	for i, v := range []string{`"a"`, `"b"`, `"c"`} {
		reply := c.call(uint64(i+1), common.NewAppendIndexRequest("notes", "list", json.RawMessage(v)))
		if reply.CmdType != common.MsgTSetResp {
			t.Fatalf("Unexpected append reply %+v", reply)
		}
	}

	reply := c.call(10, common.NewLenIndexRequest("notes", "list"))
	if reply.CmdType != common.MsgTIndexResp || string(reply.Val) != "3" {
		t.Fatalf("Unexpected length reply %+v", reply)
	}

	c.call(11, common.NewSetIndexRequest("notes", "list", 1, json.RawMessage(`"B"`)))

	reply = c.call(12, common.NewGetIndexRequest("notes", "list", 1))
	if string(reply.Val) != `"B"` {
		t.Errorf("get_index = %s, want \"B\"", reply.Val)
	}

	reply = c.call(13, common.NewRecentIndexRequest("notes", "list", 2))
	if string(reply.Val) != `["B","c"]` {
		t.Errorf("get_recent_index = %s", reply.Val)
	}

	expectError(t, c.call(14, common.NewGetIndexRequest("notes", "list", 3)), common.CodeBadRequest)
	expectError(t, c.call(15, common.NewRecentIndexRequest("notes", "list", -1)), common.CodeBadRequest)
	expectError(t, c.call(16, common.NewLenIndexRequest("notes", "nope")), common.CodeNotFound)
	expectError(t, c.call(17, common.NewGetIndexRequest("other", "list", 0)), common.CodeStoreUnknown)

	c.call(18, common.NewSetRequest("notes", "scalar", json.RawMessage(`1`)))
	expectError(t, c.call(19, common.NewLenIndexRequest("notes", "scalar")), common.CodeBadRequest)
}

func TestDispatchPersistRestore(t *testing.T) {
	s := newTestServer(t, common.ServerConfig{})
	c := connect(t, s)

	c.send(common.NewCreateRequest("notes"))
	c.call(1, common.NewSetRequest("notes", "a", json.RawMessage(`1`)))
	c.send(common.NewPersistRequest("notes"))

	// changes after the snapshot are lost by restore
	c.call(2, common.NewSetRequest("notes", "a", json.RawMessage(`2`)))
	c.call(3, common.NewSetRequest("notes", "b", json.RawMessage(`3`)))
	c.send(common.NewRestoreRequest("notes"))

	if reply := c.call(4, common.NewGetRequest("notes", "a")); string(reply.Val) != "1" {
		t.Errorf("Value after restore = %s, want 1", reply.Val)
	}
	expectError(t, c.call(5, common.NewGetRequest("notes", "b")), common.CodeNotFound)

	// restoring something that was never persisted keeps the server running
	c.send(common.NewRestoreRequest("ghost"))
	expectError(t, c.call(6, common.NewGetRequest("ghost", "a")), common.CodeStoreUnknown)

	// create discards the current instance
	c.send(common.NewCreateRequest("notes"))
	if reply := c.call(7, common.NewListRequest("notes")); reply.Msg != "[]" {
		t.Errorf("Keys after create = %s, want []", reply.Msg)
	}
}

// --------------------------------------------------------------------------
// Bootstrap
// --------------------------------------------------------------------------

func TestBootstrap(t *testing.T) {
	dir := t.TempDir()

	// Prepare snapshots with a first registry
	seed := newTestRegistry(t, dir)
	seed.Create("config")
	seed.Set("config", "dbs", []byte(`["a", "missing"]`))
	seed.Set("config", "ip", []byte(`"0.0.0.0"`))
	seed.Set("config", "port", []byte(`9999`))
	seed.Create("a")
	seed.Set("a", "k", []byte(`"v"`))
	seed.Create("b")
	for _, name := range []string{"config", "a", "b"} {
		if err := seed.Persist(name); err != nil {
			t.Fatalf("Failed to persist %q: %v", name, err)
		}
	}

	s := &RPCServer{
		config:   common.ServerConfig{Endpoint: "127.0.0.1:8765", RestoreStores: []string{"b", "unknown"}, ConfigStore: "config"},
		registry: newTestRegistry(t, dir),
		metrics:  newServerMetrics(),
	}
	s.bootstrap()

	// the listen address comes from the serve flags only
	if s.config.Endpoint != "127.0.0.1:8765" {
		t.Errorf("Endpoint = %q after bootstrap, want 127.0.0.1:8765", s.config.Endpoint)
	}

	if names := s.registry.Names(); !reflect.DeepEqual(names, []string{"a", "b", "config"}) {
		t.Errorf("Names() = %v, want [a b config]", names)
	}
	if val, err := s.registry.Get("a", "k"); err != nil || string(val) != `"v"` {
		t.Errorf("Get(a, k) = %s, %v", val, err)
	}
}

func TestBootstrapWithoutConfig(t *testing.T) {
	s := &RPCServer{
		config:   common.ServerConfig{ConfigStore: "config"},
		registry: newTestRegistry(t, t.TempDir()),
		metrics:  newServerMetrics(),
	}
	s.bootstrap()

	if names := s.registry.Names(); len(names) != 0 {
		t.Errorf("Expected no stores, got %v", names)
	}
}

// --------------------------------------------------------------------------
// Server
// --------------------------------------------------------------------------

// stubTransport records the handler and serves until ctx is cancelled
type stubTransport struct {
	handler transport.ConnHandleFunc
}

func (s *stubTransport) RegisterHandler(handler transport.ConnHandleFunc) { s.handler = handler }

func (s *stubTransport) Listen(ctx context.Context, _ common.ServerConfig) error {
	<-ctx.Done()
	return nil
}

func (s *stubTransport) Serve(ctx context.Context, config common.ServerConfig, listener net.Listener) error {
	listener.Close()
	return s.Listen(ctx, config)
}

func TestServePersistsOnShutdown(t *testing.T) {
	dir := t.TempDir()
	stub := &stubTransport{}
	s := NewRPCServer(
		common.ServerConfig{PersistOnShutdown: true},
		stub,
		serializer.NewJSONSerializer(),
		newTestRegistry(t, dir),
		nil,
	)
	if stub.handler == nil {
		t.Fatal("NewRPCServer did not register a handler")
	}

	s.Registry().Create("notes")
	s.Registry().Set("notes", "a", []byte("1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	restored := newTestRegistry(t, dir)
	if err := restored.Restore("notes"); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if val, err := restored.Get("notes", "a"); err != nil || string(val) != "1" {
		t.Errorf("Get after restore = %s, %v", val, err)
	}
}

// busyTransport fails to bind like a listener on a port already in use
type busyTransport struct{ stubTransport }

var errAddrInUse = errors.New("bind: address already in use")

func (b *busyTransport) Listen(context.Context, common.ServerConfig) error { return errAddrInUse }

func TestServeReturnsListenErrorWithAdmin(t *testing.T) {
	s := NewRPCServer(
		common.ServerConfig{MetricsEndpoint: "127.0.0.1:0"},
		&busyTransport{},
		serializer.NewJSONSerializer(),
		newTestRegistry(t, t.TempDir()),
		nil,
	)

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, errAddrInUse) {
			t.Fatalf("Serve returned %v, want %v", err, errAddrInUse)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the transport failed to listen")
	}
}

func TestNilVerifierRejects(t *testing.T) {
	s := NewRPCServer(common.ServerConfig{}, &stubTransport{}, serializer.NewJSONSerializer(), newTestRegistry(t, t.TempDir()), nil)
	c := connect(t, s)
	expectError(t, c.call(1, common.NewAuthRequest("good")), common.CodeAuthRejected)
}

// --------------------------------------------------------------------------
// Admin
// --------------------------------------------------------------------------

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, common.ServerConfig{})
	s.registry.Create("notes")
	s.registry.Set("notes", "a", []byte("1"))

	c := connect(t, s)
	c.call(1, common.NewGetRequest("notes", "a"))

	srv := httptest.NewServer(s.adminRouter())
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, body := get("/healthz"); code != http.StatusOK || body != "ok\n" {
		t.Errorf("/healthz = %d %q", code, body)
	}
	if code, body := get("/stores"); code != http.StatusOK || strings.TrimSpace(body) != `["notes"]` {
		t.Errorf("/stores = %d %q", code, body)
	}
	if code, body := get("/stores/notes/keys"); code != http.StatusOK || strings.TrimSpace(body) != `["a"]` {
		t.Errorf("/stores/notes/keys = %d %q", code, body)
	}
	if code, _ := get("/stores/nope/keys"); code != http.StatusNotFound {
		t.Errorf("/stores/nope/keys = %d, want 404", code)
	}

	code, body := get("/metrics")
	if code != http.StatusOK {
		t.Fatalf("/metrics = %d", code)
	}
	for _, want := range []string{"aci_connections_total 1", `aci_requests_total{cmd="get_val"} 1`} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics does not contain %q", want)
		}
	}
}
