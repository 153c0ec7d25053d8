package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/serializer"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport/base"
)

// pipeConnection returns a connection and the server end of its transport
func pipeConnection(t *testing.T, config common.ClientConfig) (*Connection, *base.MsgConn) {
	t.Helper()
	a, b := net.Pipe()
	conn := NewConnection("test", config,
		base.NewMsgConn(base.NewStreamConn(a, common.DefaultMaxFrameBytes, 0), serializer.NewJSONSerializer()))
	server := base.NewMsgConn(base.NewStreamConn(b, common.DefaultMaxFrameBytes, 0), serializer.NewJSONSerializer())
	t.Cleanup(func() {
		server.Close()
		conn.Close()
	})
	return conn, server
}

// receiveN reads n requests on the server end
func receiveN(t *testing.T, server *base.MsgConn, n int) []common.Message {
	t.Helper()
	msgs := make([]common.Message, 0, n)
	for i := 0; i < n; i++ {
		msg, err := server.Receive()
		if err != nil {
			t.Errorf("server receive failed: %v", err)
			return msgs
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// drain reads and discards requests until the connection is closed
func drain(server *base.MsgConn) {
	go func() {
		for {
			if _, err := server.Receive(); err != nil {
				return
			}
		}
	}()
}

func TestConcurrentGetsReversedReplies(t *testing.T) {
	conn, server := pipeConnection(t, common.ClientConfig{TimeoutSecond: 2})
	notes := conn.Store("notes")

	keys := []string{"a", "b", "a"} // the same request twice must not collide
	results := make([]string, len(keys))
	errs := make([]error, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			val, err := notes.Get(context.Background(), key)
			results[i], errs[i] = string(val), err
		}(i, key)
	}

	// reply in reverse order of arrival, the value names the key
	reqs := receiveN(t, server, len(keys))
	for i := len(reqs) - 1; i >= 0; i-- {
		req := reqs[i]
		val, _ := json.Marshal("value-" + req.Key)
		if err := server.Send(common.NewGetResponse(req.ID, req.DBKey, req.Key, val)); err != nil {
			t.Fatalf("server send failed: %v", err)
		}
	}
	wg.Wait()

	for i, key := range keys {
		if errs[i] != nil {
			t.Errorf("Get(%q) failed: %v", key, errs[i])
			continue
		}
		if want := `"value-` + key + `"`; results[i] != want {
			t.Errorf("Get(%q) = %s, want %s", key, results[i], want)
		}
	}
	if conn.correlator.size() != 0 {
		t.Errorf("Expected no pending calls, got %d", conn.correlator.size())
	}
}

func TestSetIsFireAndForget(t *testing.T) {
	conn, server := pipeConnection(t, common.ClientConfig{TimeoutSecond: 5})
	drain(server) // a server that never answers

	done := make(chan error, 1)
	go func() { done <- conn.Store("notes").Set("a", map[string]int{"x": 1}) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Set blocked on a silent server")
	}

	// the waiting variant times out
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := conn.Store("notes").SetAndWait(ctx, "a", 1); !errors.Is(err, common.ErrTimeout) {
		t.Errorf("Expected ErrTimeout from SetAndWait, got %v", err)
	}
}

func TestConfiguredTimeout(t *testing.T) {
	conn, server := pipeConnection(t, common.ClientConfig{TimeoutSecond: 1})
	drain(server)

	start := time.Now()
	_, err := conn.Store("notes").Get(context.Background(), "a")
	if !errors.Is(err, common.ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond || elapsed > 3*time.Second {
		t.Errorf("Get timed out after %s, want about 1s", elapsed)
	}
}

func TestErrorReplies(t *testing.T) {
	conn, server := pipeConnection(t, common.ClientConfig{TimeoutSecond: 2})

	go func() {
		for {
			req, err := server.Receive()
			if err != nil {
				return
			}
			var reply common.Message
			switch req.Key {
			case "unknown-store":
				reply = common.NewErrorResponse(req.ID, common.ErrStoreUnknown)
			case "missing":
				reply = common.NewErrorResponse(req.ID, common.ErrNotFound)
			default:
				// wrong reply type
				reply = common.NewSetResponse(req.ID)
			}
			server.Send(reply)
		}
	}()

	ctx := context.Background()
	if _, err := conn.Store("x").Get(ctx, "unknown-store"); !errors.Is(err, common.ErrStoreUnknown) {
		t.Errorf("Expected ErrStoreUnknown, got %v", err)
	}
	if _, err := conn.Store("x").Get(ctx, "missing"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := conn.Store("x").Get(ctx, "other"); !errors.Is(err, common.ErrProtocol) {
		t.Errorf("Expected ErrProtocol, got %v", err)
	}
}

func TestTransportClosed(t *testing.T) {
	conn, server := pipeConnection(t, common.ClientConfig{TimeoutSecond: 5})

	done := make(chan error, 1)
	go func() {
		_, err := conn.Store("notes").Get(context.Background(), "a")
		done <- err
	}()

	// the server drops the connection with the call pending
	receiveN(t, server, 1)
	server.Close()

	select {
	case err := <-done:
		if !errors.Is(err, common.ErrTransportClosed) {
			t.Errorf("Expected ErrTransportClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call was not failed")
	}

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("Done was not closed")
	}

	if !errors.Is(conn.Err(), common.ErrTransportClosed) {
		t.Errorf("Err() = %v", conn.Err())
	}
	if err := conn.Store("notes").Set("a", 1); !errors.Is(err, common.ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed from Set, got %v", err)
	}
	if _, err := conn.Store("notes").List(context.Background()); !errors.Is(err, common.ErrTransportClosed) {
		t.Errorf("Expected ErrTransportClosed from List, got %v", err)
	}
}

func TestCloseFailsPending(t *testing.T) {
	conn, server := pipeConnection(t, common.ClientConfig{TimeoutSecond: 5})
	drain(server)

	done := make(chan error, 1)
	go func() {
		_, err := conn.Store("notes").List(context.Background())
		done <- err
	}()

	// wait until the call is registered
	for i := 0; i < 100 && conn.correlator.size() == 0; i++ {
		time.Sleep(5 * time.Millisecond)
	}
	conn.Close()

	select {
	case err := <-done:
		if !errors.Is(err, common.ErrTransportClosed) {
			t.Errorf("Expected ErrTransportClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call was not failed by Close")
	}
}

func TestRequestsCarryIDs(t *testing.T) {
	conn, server := pipeConnection(t, common.ClientConfig{TimeoutSecond: 2})
	notes := conn.Store("notes")

	go func() {
		notes.Create()
		notes.Set("a", 1)
		notes.Persist()
		conn.PersistAll()
	}()

	reqs := receiveN(t, server, 4)
	ids := make([]uint64, 0, len(reqs))
	for _, req := range reqs {
		if req.ID == 0 {
			t.Errorf("%s has no id", req)
		}
		ids = append(ids, req.ID)
	}
	if !sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }) {
		t.Errorf("ids are not increasing: %v", ids)
	}

	want := []common.MessageType{common.MsgTCreate, common.MsgTSetVal, common.MsgTPersist, common.MsgTPersist}
	for i, req := range reqs {
		if req.CmdType != want[i] {
			t.Errorf("request %d is %s, want %s", i, req.CmdType, want[i])
		}
	}
	if reqs[1].DBKey != "notes" || reqs[1].Key != "a" || string(reqs[1].Val) != "1" {
		t.Errorf("unexpected set request %+v", reqs[1])
	}
	if reqs[3].DBKey != "" {
		t.Errorf("PersistAll sent db_key %q", reqs[3].DBKey)
	}
}

func TestStoreProxyCache(t *testing.T) {
	conn, _ := pipeConnection(t, common.ClientConfig{})
	if conn.Store("a") != conn.Store("a") {
		t.Errorf("Store returned different proxies for the same name")
	}
	if conn.Store("a") == conn.Store("b") {
		t.Errorf("Store returned the same proxy for different names")
	}
}

func TestEncodeValue(t *testing.T) {
	testCases := []struct {
		value   any
		want    string
		wantErr bool
	}{
		{value: 1, want: "1"},
		{value: "x", want: `"x"`},
		{value: []int{1, 2}, want: "[1,2]"},
		{value: json.RawMessage(`{"a": true}`), want: `{"a": true}`},
		{value: json.RawMessage(`{oops`), wantErr: true},
		{value: make(chan int), wantErr: true},
	}

	for _, tc := range testCases {
		got, err := encodeValue(tc.value)
		if tc.wantErr {
			if !errors.Is(err, common.ErrBadRequest) {
				t.Errorf("encodeValue(%v) error = %v, want ErrBadRequest", tc.value, err)
			}
			continue
		}
		if err != nil || string(got) != tc.want {
			t.Errorf("encodeValue(%v) = %s, %v, want %s", tc.value, got, err, tc.want)
		}
	}
}
