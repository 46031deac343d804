// procfleetd is the daemon: it serves the HTTP/WebSocket control surface
// for a fleet of supervised child processes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ryym/procfleet/internal/auth"
	"github.com/ryym/procfleet/internal/config"
	"github.com/ryym/procfleet/internal/httpapi"
	"github.com/ryym/procfleet/internal/logging"
	"github.com/ryym/procfleet/internal/registry"
	"github.com/ryym/procfleet/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		manifestPath string
		logLevel     string
		pretty       bool
	)
	flag.StringVar(&manifestPath, "manifest", os.Getenv("PROCFLEET_MANIFEST"), "Path to a startup manifest file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	flag.BoolVar(&pretty, "pretty", false, "Use human-readable console logging")
	flag.Parse()

	logging.Init(logLevel, pretty)

	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	reg := registry.New()

	if manifestPath != "" {
		if err := bootstrapManifest(reg, manifestPath); err != nil {
			return fmt.Errorf("bootstrap manifest: %w", err)
		}
	}

	server := httpapi.New(reg, auth.New(settings))

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
	}()

	err = server.Run(ctx, settings.Addr)
	reg.StopAll(false)
	return err
}

// bootstrapManifest loads a manifest and registers (and optionally starts)
// every process it declares, in dependency order.
func bootstrapManifest(reg *registry.Registry, path string) error {
	manifest, err := config.LoadManifest(path)
	if err != nil {
		return err
	}

	for _, svc := range manifest.StartupOrder() {
		sv, err := reg.Insert(svc.Name, svc.Argv())
		if err != nil {
			return fmt.Errorf("register %q: %w", svc.Name, err)
		}
		sv.WorkingDir = svc.WorkingDir
		sv.Env = svc.Env
		if svc.Restart != "" {
			sv.SetRestartPolicy(supervisor.RestartPolicy(svc.Restart))
		}
		if svc.AutoStart {
			if err := sv.Start(); err != nil {
				return fmt.Errorf("start %q: %w", svc.Name, err)
			}
		}
	}
	return nil
}
