// Command shaded is the shading automation daemon: it loads every device
// configuration in a directory, wires a controller per device against a
// host adapter, runs the 30-second tick scheduler, and serves the operator
// HTTP API. Structure adapted from cmd/collector's flag/config/signal
// handling and cmd/web-server's server wiring.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tobiasrehn/shadeflow/internal/api"
	"github.com/tobiasrehn/shadeflow/internal/audit"
	"github.com/tobiasrehn/shadeflow/internal/authn"
	"github.com/tobiasrehn/shadeflow/internal/entitytemplate"
	"github.com/tobiasrehn/shadeflow/internal/hostadapter"
	"github.com/tobiasrehn/shadeflow/internal/hostadapter/memory"
	"github.com/tobiasrehn/shadeflow/internal/hostadapter/rest"
	"github.com/tobiasrehn/shadeflow/internal/logging"
	"github.com/tobiasrehn/shadeflow/internal/shading/controller"
	"github.com/tobiasrehn/shadeflow/pkg/config"
)

const tickInterval = 30 * time.Second

func main() {
	configDir := flag.String("config-dir", "configs/devices", "Directory of per-device JSON config files")
	addr := flag.String("addr", ":8080", "Operator HTTP API listen address")
	hostMode := flag.String("host", "memory", "Host adapter: \"memory\" (dry run) or \"rest\" (Home Assistant-style REST API)")
	hostURL := flag.String("host-url", "http://localhost:8123", "Base URL for the rest host adapter")
	hostToken := flag.String("host-token", "", "Long-lived access token for the rest host adapter")
	appDir := flag.String("app-dir", "/var/lib/shadeflow", "Writable directory for snapshots and the entity template")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger := logging.New(logging.Options{Debug: *debug})
	logger.Info("shading automation daemon starting", "config_dir", *configDir, "host", *hostMode)

	cfgs, err := loadConfigs(*configDir)
	if err != nil {
		logger.Error("failed to load device configs", "error", err)
		os.Exit(1)
	}
	if len(cfgs) == 0 {
		logger.Error("no device configs found", "config_dir", *configDir)
		os.Exit(1)
	}

	var host hostadapter.HostAdapter
	switch *hostMode {
	case "rest":
		host = rest.New(rest.Config{BaseURL: *hostURL, Token: *hostToken, AppDir: *appDir}, logger)
	default:
		host = memory.New(time.Now())
		logger.Warn("running against the in-memory host adapter: no real device will move")
	}

	auditSink, err := audit.Connect(cfgs[0].Audit, logger)
	if err != nil {
		logger.Error("audit sink connection failed, continuing without audit persistence", "error", err)
		auditSink = audit.Nop()
	}
	defer auditSink.Close()

	collector := entitytemplate.New()
	controllers := make(map[string]*controller.Controller)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var needsSetup bool
	for _, cfg := range cfgs {
		c := controller.New(cfg, host, logger)
		c.Audit = auditSink

		if err := c.Bootstrap(ctx, collector); err != nil {
			logNeedsSetup(logger, cfg.UniqueID, err)
			needsSetup = true
			continue
		}

		wireEventHandlers(host, cfg, c)
		controllers[cfg.UniqueID] = c
	}

	if needsSetup {
		path, werr := collector.WriteTo(host.AppDir())
		if werr != nil {
			logger.Error("failed to write entity template", "error", werr)
		} else {
			logger.Error("one or more devices are missing managed entities; install the template and restart", "path", path)
		}
		os.Exit(1)
	}

	authSvc := authn.NewService(authn.Config{JWTSecret: jwtSecret(logger)})
	operators := operatorsFromEnv(authSvc, logger)
	apiServer := api.NewServer(controllers, authSvc, operators, logger)

	httpServer := &http.Server{Addr: *addr, Handler: apiServer.Router()}
	go func() {
		logger.Info("operator API listening", "addr", *addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	runScheduler(ctx, host, controllers, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func loadConfigs(dir string) ([]*config.Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read config dir: %w", err)
	}

	var cfgs []*config.Config
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate %s: %w", path, err)
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

func logNeedsSetup(logger *slog.Logger, uniqueID string, err error) {
	logger.Error("device needs operator setup", "unique_id", uniqueID, "error", err)
}

func wireEventHandlers(host hostadapter.HostAdapter, cfg *config.Config, c *controller.Controller) {
	host.ListenState(cfg.Entities.Sun, c.OnSunStateChanged)
	host.ListenState(cfg.Entities.BrightnessShadow, c.OnBrightnessShadowChanged)
	if cfg.Entities.BrightnessDawn != "" {
		host.ListenState(cfg.Entities.BrightnessDawn, c.OnBrightnessDawnChanged)
	}
	if cfg.Entities.WindowSensor != "" {
		host.ListenState(cfg.Entities.WindowSensor, c.OnWindowStateChanged)
	}
	if cfg.Entities.Climate != "" {
		host.ListenState(cfg.Entities.Climate, c.OnClimateStateChanged)
	}
	host.ListenState(cfg.Entities.Cover, func(ctx context.Context, entity string, old, v hostadapter.StateValue) {
		var position, tilt *int
		if p, ok := v.Attributes["current_position"].(float64); ok {
			pi := int(p)
			position = &pi
		}
		if p, ok := v.Attributes["current_tilt_position"].(float64); ok {
			pi := int(p)
			tilt = &pi
		}
		c.OnCoverTelemetry(ctx, host.Now(), v.State, position, tilt)
	})
}

// runScheduler ticks every controller every tickInterval, aligned to the
// wall-clock interval boundary so every device evaluates in lockstep. Hosts
// without push subscriptions (the rest adapter) are polled before each tick.
func runScheduler(ctx context.Context, host hostadapter.HostAdapter, controllers map[string]*controller.Controller, logger *slog.Logger) {
	now := time.Now()
	next := now.Truncate(tickInterval).Add(tickInterval)

	go func() {
		wait := time.Until(next)
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}

		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		for {
			if p, ok := host.(interface{ Poll(context.Context) }); ok {
				p.Poll(ctx)
			}
			for id, c := range controllers {
				id, c := id, c
				go func() {
					defer func() {
						if r := recover(); r != nil {
							logger.Error("controller tick panicked", "unique_id", id, "panic", r)
						}
					}()
					c.Tick(ctx, time.Now())
				}()
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func jwtSecret(logger *slog.Logger) string {
	if v := os.Getenv("SHADEFLOW_JWT_SECRET"); v != "" {
		return v
	}
	logger.Warn("SHADEFLOW_JWT_SECRET not set, using an insecure development default")
	return "dev-secret-change-in-production"
}

// operatorsFromEnv builds the operator credential list from
// SHADEFLOW_OPERATORS, a JSON array of {"username","password","role"}. If
// unset, a single insecure development admin account is created.
func operatorsFromEnv(authSvc *authn.Service, logger *slog.Logger) []api.Operator {
	raw := os.Getenv("SHADEFLOW_OPERATORS")
	if raw == "" {
		logger.Warn("SHADEFLOW_OPERATORS not set, creating an insecure development admin account (admin/admin)")
		hash, _ := authSvc.HashPassword("admin")
		return []api.Operator{{Username: "admin", PasswordHash: hash, Role: authn.RoleAdmin}}
	}

	var specs []struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		logger.Error("failed to parse SHADEFLOW_OPERATORS, no operators configured", "error", err)
		return nil
	}

	ops := make([]api.Operator, 0, len(specs))
	for _, spec := range specs {
		hash, err := authSvc.HashPassword(spec.Password)
		if err != nil {
			logger.Error("failed to hash operator password", "username", spec.Username, "error", err)
			continue
		}
		ops = append(ops, api.Operator{Username: spec.Username, PasswordHash: hash, Role: spec.Role})
	}
	return ops
}
