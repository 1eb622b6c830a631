package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbforge/knowledge-agent/internal/app"
	"github.com/kbforge/knowledge-agent/internal/config"
	"github.com/kbforge/knowledge-agent/internal/progress"
	"github.com/kbforge/knowledge-agent/internal/server"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "serve":
		serveCmd(os.Args[2:])
	case "version":
		fmt.Printf("knowledge-agent %s (%s)\n", Version, Commit)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `knowledge-agent

Usage:
  knowledge-agent run [flags]
  knowledge-agent serve [flags]
  knowledge-agent version

Commands:
  run      Execute one pipeline run and stream progress events to stdout.
  serve    Serve the pipeline over HTTP (POST /v1/runs streams SSE).
  version  Print build information.

`)
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	asSSE := fs.Bool("sse", false, "Emit events as SSE frames instead of human-readable lines")
	_ = fs.Parse(args)

	a := mustBuild(*cfgPath)
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporter := progress.NewReporter(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range reporter.Events() {
			if *asSSE {
				_ = progress.WriteSSE(os.Stdout, ev)
				continue
			}
			printEvent(ev)
		}
	}()

	result, err := a.Pipeline.Run(ctx, a.Request, reporter)
	<-done
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("run complete: %d cards (complete=%v)\n", result.CardCount, result.Complete)
}

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	addr := fs.String("addr", "127.0.0.1:8787", "Listen address")
	_ = fs.Parse(args)

	a := mustBuild(*cfgPath)
	defer a.Close()

	srv, err := server.New(server.Options{
		Runner:         a.Pipeline,
		DefaultRequest: a.Request,
		Store:          a.Store,
		Logger:         a.Log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve failed: %v\n", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	a.Log.Info("serving", "addr", *addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "serve failed: %v\n", err)
		os.Exit(1)
	}
}

func mustBuild(cfgPath string) *app.App {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	a, err := app.Build(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		os.Exit(1)
	}
	return a
}

func printEvent(ev progress.Event) {
	switch ev.Type {
	case progress.EventProgress:
		p := ev.Progress
		fmt.Printf("[%s] %s (%d/%d, %d%%)\n", p.Phase, p.Message, p.CurrentChunk, p.TotalChunks, p.Percentage)
	case progress.EventError:
		fmt.Printf("[error] %s\n", ev.Error.Message)
	case progress.EventComplete:
		fmt.Printf("[complete] %s\n", ev.Complete.Message)
	}
}
