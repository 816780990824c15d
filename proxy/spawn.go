package proxy

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/neuronav/remoteplot/host"
	"github.com/neuronav/remoteplot/wire"
)

// DefaultHandshakeTimeout bounds how long Spawn waits for the worker's
// first message before declaring the surface unavailable.
const DefaultHandshakeTimeout = 30 * time.Second

// killGraceDelay is how long Close waits for a graceful worker exit before
// forcing termination.
const killGraceDelay = 2 * time.Second

// Option configures a spawned plotter.
type Option func(*spawnConfig)

type spawnConfig struct {
	theme            string
	logFile          string
	minRenderPeriod  time.Duration
	callTimeout      time.Duration
	handshakeTimeout time.Duration
	extraArgs        []string
}

func defaultSpawnConfig() spawnConfig {
	return spawnConfig{
		theme:            "dark",
		handshakeTimeout: DefaultHandshakeTimeout,
	}
}

// WithTheme sets the worker's light/dark theme hint.
func WithTheme(theme string) Option {
	return func(c *spawnConfig) { c.theme = theme }
}

// WithLogFile routes the worker's log output to a file, typically the same
// file the client process logs to.
func WithLogFile(path string) Option {
	return func(c *spawnConfig) { c.logFile = path }
}

// WithMinRenderPeriod sets the worker's render coalescing period.
func WithMinRenderPeriod(d time.Duration) Option {
	return func(c *spawnConfig) { c.minRenderPeriod = d }
}

// WithCallTimeout bounds every blocking call. Zero (the default) waits
// indefinitely.
func WithCallTimeout(d time.Duration) Option {
	return func(c *spawnConfig) { c.callTimeout = d }
}

// WithHandshakeTimeout bounds the wait for the worker's first message.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *spawnConfig) { c.handshakeTimeout = d }
}

// WithWorkerArgs appends extra command-line arguments to the worker binary.
func WithWorkerArgs(args ...string) Option {
	return func(c *spawnConfig) { c.extraArgs = append(c.extraArgs, args...) }
}

// Spawn launches workerPath as a new worker process and connects a primary
// plotter to it. The returned plotter is ready: the handshake completed,
// the window exists, and its native handle is available via WindowID.
func Spawn(ctx context.Context, workerPath string, opts ...Option) (*Plotter, error) {
	cfg := defaultSpawnConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	c, err := newConn(context.Background(), cfg.callTimeout)
	if err != nil {
		return nil, err
	}

	args := []string{"--connect", c.endpoint(), "--theme", cfg.theme}
	if cfg.logFile != "" {
		args = append(args, "--log-file", cfg.logFile)
	}
	if cfg.minRenderPeriod > 0 {
		args = append(args, "--min-render-period", cfg.minRenderPeriod.String())
	}
	args = append(args, cfg.extraArgs...)

	log.Infof("spawning worker %s", workerPath)
	cmd := exec.Command(workerPath, args...)
	if err := cmd.Start(); err != nil {
		c.close()
		return nil, fmt.Errorf("proxy: start worker: %w", err)
	}

	p, err := connect(ctx, c, cfg.handshakeTimeout)
	if err != nil {
		cmd.Process.Kill()
		c.close()
		return nil, err
	}

	p.stop = func(ctx context.Context) error {
		quitErr := p.sendQuit()
		c.close()

		exited := make(chan error, 1)
		go func() { exited <- cmd.Wait() }()
		select {
		case <-exited:
		case <-time.After(killGraceDelay):
			log.Warning("worker did not exit in time, killing")
			cmd.Process.Kill()
			<-exited
		case <-ctx.Done():
			cmd.Process.Kill()
			<-exited
		}
		return quitErr
	}
	return p, nil
}

// StartInProcess runs a worker App inside this process, connected over
// loopback sockets exactly as a spawned worker would be. Used by tests and
// by embedders that want the protocol without process isolation.
func StartInProcess(ctx context.Context, appOpts host.Options, opts ...Option) (*Plotter, *host.App, error) {
	cfg := defaultSpawnConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	c, err := newConn(context.Background(), cfg.callTimeout)
	if err != nil {
		return nil, nil, err
	}

	appOpts.ClientEndpoint = c.endpoint()
	if appOpts.MinRenderPeriod == 0 {
		appOpts.MinRenderPeriod = cfg.minRenderPeriod
	}
	if appOpts.Engine.Theme == "" {
		appOpts.Engine.Theme = cfg.theme
	}
	app, err := host.NewApp(appOpts)
	if err != nil {
		c.close()
		return nil, nil, err
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(appCtx) }()

	p, err := connect(ctx, c, cfg.handshakeTimeout)
	if err != nil {
		appCancel()
		c.close()
		return nil, nil, err
	}

	p.stop = func(ctx context.Context) error {
		quitErr := p.sendQuit()
		select {
		case <-app.Done():
		case <-time.After(killGraceDelay):
			appCancel()
			<-app.Done()
		case <-ctx.Done():
			appCancel()
			<-app.Done()
		}
		appCancel()
		c.close()
		return quitErr
	}
	return p, app, nil
}

// connect completes the startup sequence on a fresh conn: handshake, window
// handle retrieval, and showing the window.
func connect(ctx context.Context, c *conn, handshakeTimeout time.Duration) (*Plotter, error) {
	hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := c.awaitHandshake(hsCtx); err != nil {
		return nil, err
	}

	p := &Plotter{c: c}

	winVal, err := p.query(wire.KindGetWinID, "", nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("proxy: get window handle: %w", err)
	}
	winID, ok := winVal.AsInt()
	if !ok {
		return nil, fmt.Errorf("proxy: getWinID returned unexpected value")
	}
	p.winID = uint64(winID)

	if _, err := p.query(wire.KindShowWindow, "", nil, nil, nil); err != nil {
		return nil, fmt.Errorf("proxy: show window: %w", err)
	}

	log.Infof("worker ready, window handle %#x", p.winID)
	return p, nil
}
