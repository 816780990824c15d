package host

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/neuronav/remoteplot/render"
	"github.com/neuronav/remoteplot/wire"
)

const (
	// pullQueueDepth bounds the non-blocking line inside the worker. When it
	// fills, the reader stops draining the socket and transport buffering
	// absorbs the backpressure.
	pullQueueDepth = 256

	// callbackQueueDepth bounds callbacks waiting for the reverse line.
	callbackQueueDepth = 64

	// quitGraceDelay lets the final acknowledgment flush before the worker
	// tears itself down.
	quitGraceDelay = 100 * time.Millisecond
)

// Options configures a worker App.
type Options struct {
	// ClientEndpoint is the client's reverse request endpoint, passed on the
	// worker command line. The first message sent through it is the
	// handshake carrying the worker's own freshly bound addresses.
	ClientEndpoint string

	// Factory builds the rendering engine; construction is deferred until
	// first use. Defaults to render.NewSoftEngine.
	Factory render.Factory

	Engine render.Options

	MinRenderPeriod time.Duration
}

type repRequest struct {
	msg   *wire.CallMessage
	reply chan wire.Result
}

// App is a worker process: it owns the engine via its Manager and services
// the blocking and non-blocking lines from exactly one client.
type App struct {
	opts    Options
	manager *Manager

	repSock  zmq4.Socket // blocking request line (bound here)
	pullSock zmq4.Socket // non-blocking line (bound here)
	reqSock  zmq4.Socket // reverse line to the client (dialed)

	// cbCh feeds the single sender goroutine that owns the reverse line
	// after the handshake, so callbacks reach the client in emission order.
	cbCh chan *wire.Notice

	pullCh chan *wire.CallMessage
	repCh  chan repRequest

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewApp creates a worker application.
func NewApp(opts Options) (*App, error) {
	if opts.ClientEndpoint == "" {
		return nil, fmt.Errorf("host: client endpoint is required")
	}
	if opts.Factory == nil {
		opts.Factory = render.NewSoftEngine
	}
	a := &App{
		opts:    opts,
		manager: NewManager(opts.Factory, opts.Engine, opts.MinRenderPeriod),
		cbCh:    make(chan *wire.Notice, callbackQueueDepth),
		pullCh:  make(chan *wire.CallMessage, pullQueueDepth),
		repCh:   make(chan repRequest),
		done:    make(chan struct{}),
	}
	a.manager.SetCallbackSink(a.sendCallback)
	return a, nil
}

// Manager exposes the dispatcher, mainly for in-process embedding and tests.
func (a *App) Manager() *Manager { return a.manager }

// Done is closed once the app has fully shut down.
func (a *App) Done() <-chan struct{} { return a.done }

// Run binds the worker's endpoints, performs the handshake, and services
// messages until the context is canceled or a quit message arrives.
func (a *App) Run(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	defer close(a.done)
	defer a.cleanup()

	a.repSock = zmq4.NewRep(a.ctx)
	if err := a.repSock.Listen("tcp://127.0.0.1:0"); err != nil {
		return fmt.Errorf("host: bind reply socket: %w", err)
	}
	a.pullSock = zmq4.NewPull(a.ctx)
	if err := a.pullSock.Listen("tcp://127.0.0.1:0"); err != nil {
		return fmt.Errorf("host: bind pull socket: %w", err)
	}

	a.reqSock = zmq4.NewReq(a.ctx)
	if err := a.reqSock.Dial(a.opts.ClientEndpoint); err != nil {
		return fmt.Errorf("host: dial client at %s: %w", a.opts.ClientEndpoint, err)
	}

	if err := a.handshake(); err != nil {
		return err
	}

	go a.callbackLoop()
	go a.pullLoop()
	go a.repLoop()

	a.dispatchLoop()
	return nil
}

func (a *App) cleanup() {
	a.manager.Close()
	if a.repSock != nil {
		a.repSock.Close()
	}
	if a.pullSock != nil {
		a.pullSock.Close()
	}
	if a.reqSock != nil {
		a.reqSock.Close()
	}
}

// handshake sends the worker's bound addresses as the first message on the
// reverse line and waits for the client's acknowledgment. It runs before the
// callback loop starts, so the two never contend for the socket.
func (a *App) handshake() error {
	repAddr := fmt.Sprintf("tcp://%s", a.repSock.Addr())
	pullAddr := fmt.Sprintf("tcp://%s", a.pullSock.Addr())
	log.Infof("handshake: rep=%s pull=%s", repAddr, pullAddr)

	data, err := wire.MarshalNotice(&wire.Notice{
		Kind:     wire.NoticePorts,
		RepAddr:  repAddr,
		PullAddr: pullAddr,
	})
	if err != nil {
		return err
	}
	if err := a.reqSock.Send(zmq4.NewMsg(data)); err != nil {
		return fmt.Errorf("host: send handshake: %w", err)
	}
	raw, err := a.reqSock.Recv()
	if err != nil {
		return fmt.Errorf("host: handshake ack: %w", err)
	}
	res, err := wire.UnmarshalResult(raw.Frames[0])
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("host: handshake rejected: %w", res.Err)
	}
	return nil
}

// sendCallback queues a reverse callback notice. Enqueueing keeps engine
// threads off the socket; the callback loop delivers in emission order.
func (a *App) sendCallback(key string, args []wire.Value, kwargs map[string]wire.Value) {
	n := &wire.Notice{
		Kind:        wire.NoticeCallback,
		CallbackKey: key,
		Args:        args,
		Kwargs:      kwargs,
	}
	select {
	case a.cbCh <- n:
	case <-a.ctx.Done():
	}
}

// callbackLoop is the only goroutine on the reverse line after the handshake.
// Each notice completes a full send/receive pair before the next is taken,
// so callbacks reach the client in the order they were emitted.
func (a *App) callbackLoop() {
	for {
		var n *wire.Notice
		select {
		case n = <-a.cbCh:
		case <-a.ctx.Done():
			return
		}
		a.deliverCallback(n)
	}
}

func (a *App) deliverCallback(n *wire.Notice) {
	data, err := wire.MarshalNotice(n)
	if err != nil {
		log.Errorf("marshal callback %s: %v", n.CallbackKey, err)
		return
	}
	if err := a.reqSock.Send(zmq4.NewMsg(data)); err != nil {
		log.Errorf("send callback %s: %v", n.CallbackKey, err)
		return
	}
	raw, err := a.reqSock.Recv()
	if err != nil {
		log.Errorf("callback %s ack: %v", n.CallbackKey, err)
		return
	}
	res, err := wire.UnmarshalResult(raw.Frames[0])
	if err != nil {
		log.Errorf("callback %s ack decode: %v", n.CallbackKey, err)
		return
	}
	if !res.OK {
		log.Errorf("callback %s failed on client: %v", n.CallbackKey, res.Err)
	}
}

func (a *App) pullLoop() {
	for {
		raw, err := a.pullSock.Recv()
		if err != nil {
			if a.ctx.Err() == nil {
				log.Errorf("pull receive: %v", err)
			}
			return
		}
		msg, err := wire.UnmarshalCall(raw.Frames[0])
		if err != nil {
			// Nothing to reply on; push-pull is unidirectional.
			log.Errorf("dropping undecodable non-blocking message: %v", err)
			msg = &wire.CallMessage{Kind: wire.KindNoop}
		}
		select {
		case a.pullCh <- msg:
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) repLoop() {
	for {
		raw, err := a.repSock.Recv()
		if err != nil {
			if a.ctx.Err() == nil {
				log.Errorf("reply-line receive: %v", err)
			}
			return
		}

		var res wire.Result
		msg, err := wire.UnmarshalCall(raw.Frames[0])
		if err != nil {
			res = wire.ErrResult(wire.ErrCodeSerialization, "", "%v", err)
		} else {
			reply := make(chan wire.Result, 1)
			select {
			case a.repCh <- repRequest{msg: msg, reply: reply}:
			case <-a.ctx.Done():
				return
			}
			select {
			case res = <-reply:
			case <-a.ctx.Done():
				return
			}
		}

		data, err := wire.MarshalResult(&res)
		if err != nil {
			log.Errorf("marshal reply: %v", err)
			data, _ = wire.MarshalResult(&wire.Result{OK: false, Err: &wire.RemoteError{
				Code:    wire.ErrCodeSerialization,
				Message: "result not representable",
			}})
		}
		if err := a.repSock.Send(zmq4.NewMsg(data)); err != nil {
			if a.ctx.Err() == nil {
				log.Errorf("reply-line send: %v", err)
			}
			return
		}
	}
}

// dispatchLoop is the single goroutine that touches engine state. It drains
// non-blocking messages eagerly and holds a blocking request back until
// every push sent before it has been applied, so the non-blocking line is
// always observed first. Rendering is paused while a burst drains.
func (a *App) dispatchLoop() {
	var (
		pending       *repRequest
		pushesApplied uint64
		draining      bool
	)

	startDrain := func() {
		if !draining {
			if c := a.manager.Coalescer(); c != nil {
				c.Pause()
			}
			draining = true
		}
	}
	endDrain := func() {
		if draining {
			if c := a.manager.Coalescer(); c != nil {
				c.Resume()
			}
			draining = false
		}
	}
	defer endDrain()

	for {
		if pending != nil && pushesApplied >= pending.msg.PushSeq {
			startDrain()
			pending.reply <- a.handle(pending.msg)
			pending = nil
			continue
		}

		if pending != nil {
			// A blocking request is gated on pushes that were sent before
			// it; keep applying the non-blocking line until it catches up.
			select {
			case msg := <-a.pullCh:
				startDrain()
				a.handle(msg)
				pushesApplied++
			case <-a.ctx.Done():
				return
			}
			continue
		}

		select {
		case msg := <-a.pullCh:
			startDrain()
			a.handle(msg)
			pushesApplied++
			continue
		case req := <-a.repCh:
			pending = &req
			continue
		case <-a.ctx.Done():
			return
		default:
		}

		// Both queues are momentarily empty: let rendering resume, then
		// block until something arrives.
		endDrain()
		select {
		case msg := <-a.pullCh:
			startDrain()
			a.handle(msg)
			pushesApplied++
		case req := <-a.repCh:
			pending = &req
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handle(msg *wire.CallMessage) wire.Result {
	if msg.Kind == wire.KindQuit {
		log.Info("quit requested, shutting down after grace delay")
		time.AfterFunc(quitGraceDelay, a.cancel)
		return wire.Ack()
	}
	return a.manager.Handle(msg)
}
