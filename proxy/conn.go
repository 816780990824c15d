// Package proxy implements the client side of the rendering proxy: a
// plotter stand-in whose every operation is forwarded to a worker process,
// plus live wrappers for the actors, cameras, and mappers it produces.
// Multiple logical plotters (layers) may share one worker and transport.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/tliron/commonlog"

	"github.com/neuronav/remoteplot/wire"
)

var log = commonlog.GetLogger("remoteplot.proxy")

var (
	// ErrRequestPending means a blocking call was attempted while another
	// was outstanding on the same channel. Interleaving them would make
	// reply matching ambiguous, so the second call is rejected.
	ErrRequestPending = errors.New("proxy: a blocking request is already outstanding")

	// ErrRequestTimedOut means a blocking call exceeded the configured
	// timeout. The request line is unusable afterwards: the late reply
	// would otherwise be matched against the wrong request.
	ErrRequestTimedOut = errors.New("proxy: blocking request timed out")

	// ErrSurfaceUnavailable means the worker never completed its handshake
	// or has since become unreachable. Fatal for this rendering surface.
	ErrSurfaceUnavailable = errors.New("proxy: rendering surface unavailable")
)

// portsInfo carries the worker's bound addresses out of the notice loop.
type portsInfo struct {
	repAddr  string
	pullAddr string
}

// conn is the transport shared by every plotter multiplexed onto one worker:
// the blocking request line, the fire-and-forget push line, and the reverse
// line the worker sends the handshake and callbacks on.
type conn struct {
	ctx    context.Context
	cancel context.CancelFunc

	repSock  zmq4.Socket // reverse line, bound before the worker starts
	reqSock  zmq4.Socket // blocking request line (dialed after handshake)
	pushSock zmq4.Socket // non-blocking line (dialed after handshake)

	callbacks *callbackRegistry

	pending   atomic.Bool
	pushCount atomic.Uint64
	broken    atomic.Bool

	// timeout bounds each blocking call; zero waits indefinitely.
	timeout time.Duration

	portsCh chan portsInfo
	ready   atomic.Bool
}

func newConn(ctx context.Context, timeout time.Duration) (*conn, error) {
	cctx, cancel := context.WithCancel(ctx)
	c := &conn{
		ctx:       cctx,
		cancel:    cancel,
		callbacks: newCallbackRegistry(),
		timeout:   timeout,
		portsCh:   make(chan portsInfo, 1),
	}
	c.repSock = zmq4.NewRep(cctx)
	if err := c.repSock.Listen("tcp://127.0.0.1:0"); err != nil {
		cancel()
		return nil, fmt.Errorf("proxy: bind reverse socket: %w", err)
	}
	go c.serveNotices()
	return c, nil
}

// endpoint is the address the worker must dial back to.
func (c *conn) endpoint() string {
	return fmt.Sprintf("tcp://%s", c.repSock.Addr())
}

// awaitHandshake waits for the worker's ports notice, then connects the
// request and push lines.
func (c *conn) awaitHandshake(ctx context.Context) error {
	var ports portsInfo
	select {
	case ports = <-c.portsCh:
	case <-ctx.Done():
		return fmt.Errorf("%w: handshake: %v", ErrSurfaceUnavailable, ctx.Err())
	case <-c.ctx.Done():
		return fmt.Errorf("%w: connection closed during handshake", ErrSurfaceUnavailable)
	}

	c.reqSock = zmq4.NewReq(c.ctx)
	if err := c.reqSock.Dial(ports.repAddr); err != nil {
		return fmt.Errorf("proxy: dial request line %s: %w", ports.repAddr, err)
	}
	c.pushSock = zmq4.NewPush(c.ctx)
	if err := c.pushSock.Dial(ports.pullAddr); err != nil {
		return fmt.Errorf("proxy: dial push line %s: %w", ports.pullAddr, err)
	}
	c.ready.Store(true)
	return nil
}

// serveNotices is the client's receive loop for the reverse line. It
// services the handshake and callback notices; callbacks may arrive while a
// blocking call is outstanding on the separate request line, and are
// executed here without disturbing that call's reply matching.
func (c *conn) serveNotices() {
	for {
		raw, err := c.repSock.Recv()
		if err != nil {
			if c.ctx.Err() == nil {
				log.Errorf("reverse line receive: %v", err)
				c.broken.Store(true)
			}
			return
		}

		var res wire.Result
		notice, err := wire.UnmarshalNotice(raw.Frames[0])
		if err != nil {
			res = wire.ErrResult(wire.ErrCodeSerialization, "", "%v", err)
		} else {
			res = c.handleNotice(notice)
		}

		data, err := wire.MarshalResult(&res)
		if err != nil {
			log.Errorf("marshal notice ack: %v", err)
			return
		}
		if err := c.repSock.Send(zmq4.NewMsg(data)); err != nil {
			if c.ctx.Err() == nil {
				log.Errorf("reverse line send: %v", err)
				c.broken.Store(true)
			}
			return
		}
	}
}

func (c *conn) handleNotice(n *wire.Notice) wire.Result {
	switch n.Kind {
	case wire.NoticePorts:
		log.Debugf("worker ports: rep=%s pull=%s", n.RepAddr, n.PullAddr)
		select {
		case c.portsCh <- portsInfo{repAddr: n.RepAddr, pullAddr: n.PullAddr}:
		default:
		}
		return wire.Ack()

	case wire.NoticeCallback:
		fn := c.callbacks.lookup(n.CallbackKey)
		if fn == nil {
			return wire.ErrResult(wire.ErrCodeUnknownCallback, "", "no callback registered for key %q", n.CallbackKey)
		}
		fn(n.Args, n.Kwargs)
		return wire.Ack()

	default:
		return wire.ErrResult(wire.ErrCodeUnknownOperation, "", "unexpected notice kind %d", n.Kind)
	}
}

// request performs a blocking call: send, await the single reply, decode.
// At most one may be outstanding at a time.
func (c *conn) request(msg *wire.CallMessage) (wire.Value, error) {
	if c.broken.Load() {
		return wire.Value{}, ErrSurfaceUnavailable
	}
	if !c.ready.Load() {
		return wire.Value{}, fmt.Errorf("%w: handshake not complete", ErrSurfaceUnavailable)
	}
	if !c.pending.CompareAndSwap(false, true) {
		log.Errorf("rejecting %s %s: previous request still pending", msg.Kind, msg.Method)
		return wire.Value{}, ErrRequestPending
	}
	defer c.pending.Store(false)

	msg.PushSeq = c.pushCount.Load()
	data, err := wire.MarshalCall(msg)
	if err != nil {
		return wire.Value{}, err
	}
	if err := c.reqSock.Send(zmq4.NewMsg(data)); err != nil {
		c.broken.Store(true)
		return wire.Value{}, fmt.Errorf("%w: send: %v", ErrSurfaceUnavailable, err)
	}

	raw, err := c.recvReply()
	if err != nil {
		return wire.Value{}, err
	}
	res, err := wire.UnmarshalResult(raw)
	if err != nil {
		return wire.Value{}, err
	}
	if !res.OK {
		if res.Err == nil {
			return wire.Value{}, fmt.Errorf("proxy: %s failed with no error detail", msg.Method)
		}
		return wire.Value{}, res.Err
	}
	return res.Value, nil
}

func (c *conn) recvReply() ([]byte, error) {
	if c.timeout <= 0 {
		raw, err := c.reqSock.Recv()
		if err != nil {
			c.broken.Store(true)
			return nil, fmt.Errorf("%w: receive: %v", ErrSurfaceUnavailable, err)
		}
		return raw.Frames[0], nil
	}

	type recvResult struct {
		msg zmq4.Msg
		err error
	}
	ch := make(chan recvResult, 1)
	go func() {
		m, err := c.reqSock.Recv()
		ch <- recvResult{msg: m, err: err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if r.err != nil {
			c.broken.Store(true)
			return nil, fmt.Errorf("%w: receive: %v", ErrSurfaceUnavailable, r.err)
		}
		return r.msg.Frames[0], nil
	case <-timer.C:
		// The reply, if it ever arrives, can no longer be matched safely.
		c.broken.Store(true)
		return nil, ErrRequestTimedOut
	}
}

// push sends a fire-and-forget call on the non-blocking line. Delivery is
// in order, and the worker applies every push before replying to any later
// blocking request.
func (c *conn) push(msg *wire.CallMessage) error {
	if c.broken.Load() {
		return ErrSurfaceUnavailable
	}
	if !c.ready.Load() {
		return fmt.Errorf("%w: handshake not complete", ErrSurfaceUnavailable)
	}
	data, err := wire.MarshalCall(msg)
	if err != nil {
		return err
	}
	if err := c.pushSock.Send(zmq4.NewMsg(data)); err != nil {
		c.broken.Store(true)
		return fmt.Errorf("%w: push: %v", ErrSurfaceUnavailable, err)
	}
	c.pushCount.Add(1)
	return nil
}

func (c *conn) close() {
	c.cancel()
	if c.repSock != nil {
		c.repSock.Close()
	}
	if c.reqSock != nil {
		c.reqSock.Close()
	}
	if c.pushSock != nil {
		c.pushSock.Close()
	}
}
