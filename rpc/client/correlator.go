package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// result is what a waiting call receives: a reply or the reason there is none
type result struct {
	msg common.Message
	err error
}

// correlator matches replies to waiting calls by request id.
// Every registered call receives exactly one result.
type correlator struct {
	nextID  atomic.Uint64
	pending *xsync.MapOf[uint64, chan result]

	mu     sync.Mutex // orders register against failAll
	closed error      // set once by failAll
}

func newCorrelator() *correlator {
	return &correlator{pending: xsync.NewMapOf[uint64, chan result]()}
}

// newID returns a fresh request id without registering a waiter
func (c *correlator) newID() uint64 {
	return c.nextID.Add(1)
}

// register creates a waiter for a new request id.
// It fails with ErrTransportClosed once the correlator was torn down.
func (c *correlator) register() (uint64, <-chan result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed != nil {
		return 0, nil, c.closed
	}

	id := c.newID()
	ch := make(chan result, 1)
	c.pending.Store(id, ch)
	return id, ch, nil
}

// deliver resolves the waiter for msg.ID. Replies nobody waits for (fire and forget
// acks, late replies after a timeout) are dropped, false is returned for them.
func (c *correlator) deliver(msg common.Message) bool {
	ch, ok := c.pending.LoadAndDelete(msg.ID)
	if !ok {
		if msg.CmdType == common.MsgTError {
			Logger.Warningf("Server reported an error for request %d: %s (%s)", msg.ID, msg.Err, msg.Code)
		} else {
			Logger.Debugf("Dropping unmatched reply %s", msg)
		}
		return false
	}
	ch <- result{msg: msg}
	return true
}

// wait blocks until the waiter for id is resolved or ctx is done.
// On ctx expiry the waiter is removed, so a late reply is dropped.
func (c *correlator) wait(ctx context.Context, id uint64, ch <-chan result) (common.Message, error) {
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		c.abandon(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return common.Message{}, fmt.Errorf("%w: %w", common.ErrTimeout, ctx.Err())
		}
		return common.Message{}, ctx.Err()
	}
}

// abandon removes the waiter for id
func (c *correlator) abandon(id uint64) {
	c.pending.Delete(id)
}

// failAll resolves every waiter with ErrTransportClosed wrapping cause.
// Later calls to register fail with the same error.
func (c *correlator) failAll(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed != nil {
		return
	}
	if cause == nil || errors.Is(cause, common.ErrTransportClosed) {
		c.closed = common.ErrTransportClosed
	} else {
		c.closed = fmt.Errorf("%w: %v", common.ErrTransportClosed, cause)
	}

	c.pending.Range(func(id uint64, _ chan result) bool {
		if ch, ok := c.pending.LoadAndDelete(id); ok {
			ch <- result{err: c.closed}
		}
		return true
	})
}

// err returns the teardown error or nil while the correlator is usable
func (c *correlator) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// size returns the number of waiting calls
func (c *correlator) size() int {
	return c.pending.Size()
}
