package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/auth"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport/base"
)

// authTimeout bounds a single id token verification
const authTimeout = 10 * time.Second

// dispatcher serves the messages of one connection, strictly in arrival order
type dispatcher struct {
	server   *RPCServer
	conn     *base.MsgConn
	identity *auth.Identity // set by a successful g_auth
}

func newDispatcher(server *RPCServer, conn *base.MsgConn) *dispatcher {
	return &dispatcher{server: server, conn: conn}
}

// run handles messages until the connection is closed or a frame cannot be decoded
func (d *dispatcher) run() {
	err := d.conn.Run(d.handle)

	switch {
	case errors.Is(err, io.EOF):
		Logger.Debugf("Connection from %s closed by client", d.conn.RemoteAddr())
	case errors.Is(err, common.ErrProtocol):
		// Tell the peer why, then drop the connection
		d.server.metrics.malformed.Inc()
		Logger.Warningf("Closing connection from %s: %v", d.conn.RemoteAddr(), err)
		if sendErr := d.conn.Send(common.NewErrorResponse(0, err)); sendErr != nil {
			Logger.Debugf("Failed to send protocol error to %s: %v", d.conn.RemoteAddr(), sendErr)
		}
	default:
		Logger.Infof("Connection from %s ended: %v", d.conn.RemoteAddr(), err)
	}
}

// handle dispatches one request and writes its reply, if there is one.
// Only a failing write ends the connection.
func (d *dispatcher) handle(req common.Message) error {
	start := time.Now()
	reply, ok := d.dispatch(req)

	var code common.ErrorCode
	if ok && reply.CmdType == common.MsgTError {
		code = reply.Code
	}
	d.server.metrics.observe(req.CmdType, code, start)

	if !ok {
		return nil
	}
	if err := d.conn.Send(reply); err != nil {
		return fmt.Errorf("failed to send %s: %w", reply.CmdType, err)
	}
	return nil
}

// dispatch executes a request. The boolean is false for requests without reply.
func (d *dispatcher) dispatch(req common.Message) (common.Message, bool) {
	Logger.Debugf("Dispatching %s from %s", req, d.conn.RemoteAddr())

	switch req.CmdType {
	case common.MsgTAuth:
		return d.authenticate(req), true
	case common.MsgTUnknown:
		return common.NewErrorResponse(req.ID, fmt.Errorf("%w: unsupported cmdType", common.ErrProtocol)), true
	}

	// Every remaining message addresses a store
	if d.server.config.Auth.Required && d.identity == nil {
		Logger.Infof("Rejected %s from unauthenticated connection %s", req.CmdType, d.conn.RemoteAddr())
		// also sent for wtd, rfd and cdb which are otherwise unanswered
		return common.NewErrorResponse(req.ID, common.ErrAuthRequired), true
	}

	registry := d.server.registry

	switch req.CmdType {
	case common.MsgTGetVal:
		val, err := registry.Get(req.DBKey, req.Key)
		if err != nil {
			return d.fail(req, err), true
		}
		return common.NewGetResponse(req.ID, req.DBKey, req.Key, val), true

	case common.MsgTSetVal:
		if err := registry.Set(req.DBKey, req.Key, req.Val); err != nil {
			return d.fail(req, err), true
		}
		return common.NewSetResponse(req.ID), true

	case common.MsgTListKeys:
		keys, err := registry.Keys(req.DBKey)
		if err != nil {
			return d.fail(req, err), true
		}
		return common.NewListResponse(req.ID, keys), true

	case common.MsgTPersist:
		var err error
		if req.DBKey == "" {
			err = registry.PersistAll()
		} else {
			err = registry.Persist(req.DBKey)
		}
		if err != nil {
			Logger.Warningf("Persist of %q requested by %s failed: %v", req.DBKey, d.conn.RemoteAddr(), err)
		}
		return common.Message{}, false

	case common.MsgTRestore:
		if err := registry.Restore(req.DBKey); err != nil {
			Logger.Warningf("Restore of %q requested by %s failed: %v", req.DBKey, d.conn.RemoteAddr(), err)
		}
		return common.Message{}, false

	case common.MsgTCreate:
		registry.Create(req.DBKey)
		return common.Message{}, false

	case common.MsgTGetIndex:
		return d.withStore(req, func(s store.IStore) (common.Message, error) {
			val, err := s.GetIndex(req.Key, req.Index)
			return common.NewIndexResponse(req.ID, req.DBKey, req.Key, val), err
		}), true

	case common.MsgTSetIndex:
		return d.withStore(req, func(s store.IStore) (common.Message, error) {
			return common.NewSetResponse(req.ID), s.SetIndex(req.Key, req.Index, req.Value)
		}), true

	case common.MsgTAppendIndex:
		return d.withStore(req, func(s store.IStore) (common.Message, error) {
			return common.NewSetResponse(req.ID), s.AppendIndex(req.Key, req.Value)
		}), true

	case common.MsgTLenIndex:
		return d.withStore(req, func(s store.IStore) (common.Message, error) {
			length, err := s.LenIndex(req.Key)
			val, _ := json.Marshal(length) // an int always encodes
			return common.NewIndexResponse(req.ID, req.DBKey, req.Key, val), err
		}), true

	case common.MsgTRecentIndex:
		return d.withStore(req, func(s store.IStore) (common.Message, error) {
			val, err := s.RecentIndex(req.Key, req.Num)
			return common.NewIndexResponse(req.ID, req.DBKey, req.Key, val), err
		}), true

	default:
		// replies and errors are never valid requests
		return common.NewErrorResponse(req.ID, fmt.Errorf("%w: %s is not a request", common.ErrProtocol, req.CmdType)), true
	}
}

// withStore runs op on the addressed store and converts failures into an errResp
func (d *dispatcher) withStore(req common.Message, op func(s store.IStore) (common.Message, error)) common.Message {
	s, err := d.server.registry.Lookup(req.DBKey)
	if err != nil {
		return d.fail(req, err)
	}
	reply, err := op(s)
	if err != nil {
		return d.fail(req, err)
	}
	return reply
}

// fail converts err into the errResp for req
func (d *dispatcher) fail(req common.Message, err error) common.Message {
	reply := common.NewErrorResponse(req.ID, err)
	if reply.Code == common.CodeInternal {
		Logger.Errorf("%s from %s failed: %v", req, d.conn.RemoteAddr(), err)
	} else {
		Logger.Debugf("%s from %s failed: %v", req, d.conn.RemoteAddr(), err)
	}
	return reply
}

// authenticate verifies the id token of a g_auth request.
// A rejected token is reported to the peer, the connection stays open.
func (d *dispatcher) authenticate(req common.Message) common.Message {
	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	identity, err := d.server.verifier.Verify(ctx, req.IDToken)
	if err != nil {
		Logger.Warningf("Authentication from %s rejected: %v", d.conn.RemoteAddr(), err)
		return common.NewErrorResponse(req.ID, fmt.Errorf("%w: %w", common.ErrAuthRejected, err))
	}

	d.identity = &identity
	Logger.Infof("Authenticated %s (%s) on %s", identity.Subject, identity.Email, d.conn.RemoteAddr())
	return common.NewAuthResponse(req.ID, identity.Subject)
}
