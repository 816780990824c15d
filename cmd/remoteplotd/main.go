// remoteplotd hosts one rendering surface in its own process. It is spawned
// by a client application, dials back to the endpoint given on the command
// line, and services rendering calls until told to quit.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"

	"github.com/neuronav/remoteplot/config"
	"github.com/neuronav/remoteplot/host"
	"github.com/neuronav/remoteplot/render"
)

func main() {
	connect := flag.String("connect", "", "Client reverse endpoint to dial back to (required)")
	configPath := flag.String("config", "", "Path to remoteplot.toml")
	theme := flag.String("theme", "", "Window theme: light or dark")
	minRenderPeriod := flag.Duration("min-render-period", 0, "Minimum period between coalesced renders")
	logFile := flag.String("log-file", "", "Log to this file instead of stderr")
	verbose := flag.Bool("v", false, "Verbose logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: remoteplotd --connect tcp://host:port [options]\n\n")
		fmt.Fprintf(os.Stderr, "Hosts one rendering surface for a client process.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *connect == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *theme != "" {
		cfg.Window.Theme = *theme
	}
	if *minRenderPeriod > 0 {
		cfg.Render.MinRenderPeriodMS = int(minRenderPeriod.Milliseconds())
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *verbose {
		cfg.Log.Verbosity = 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var logPath *string
	if cfg.Log.File != "" {
		logPath = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, logPath)

	app, err := host.NewApp(host.Options{
		ClientEndpoint: *connect,
		Factory:        render.NewSoftEngine,
		Engine: render.Options{
			Title:  cfg.Window.Title,
			Width:  cfg.Window.Width,
			Height: cfg.Window.Height,
			Theme:  cfg.Window.Theme,
		},
		MinRenderPeriod: cfg.MinRenderPeriod(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Give the final reply a moment to flush before the process goes away.
	time.Sleep(50 * time.Millisecond)
}
