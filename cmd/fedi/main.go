// Command fedi starts the orchestration core as a long-running HTTP/WebSocket
// service: it loads configuration, wires the bus/relay/session/orchestrator
// stack together with one driver per configured agent role, mounts the
// control-plane API and render hub on one gin.Engine, and optionally mirrors
// bus traffic to NATS. Grounded on cmd/agent-manager/main.go's
// load-config/init-logger/wire-components/serve/graceful-shutdown ordering;
// this binary is the §11 domain-stack host process, not the terminal
// renderer or input editor spec.md's Non-goals exclude.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fedi-cli/fedi/internal/agentdriver"
	"github.com/fedi-cli/fedi/internal/agents"
	"github.com/fedi-cli/fedi/internal/api"
	"github.com/fedi-cli/fedi/internal/bus"
	"github.com/fedi-cli/fedi/internal/common/config"
	"github.com/fedi-cli/fedi/internal/common/logger"
	"github.com/fedi-cli/fedi/internal/eventmirror"
	"github.com/fedi-cli/fedi/internal/hub"
	"github.com/fedi-cli/fedi/internal/model"
	"github.com/fedi-cli/fedi/internal/orchestrator"
	"github.com/fedi-cli/fedi/internal/relay"
	"github.com/fedi-cli/fedi/internal/session"
)

const appName = "fedi"

// roster lists the agent roles this process drives and which registered
// CLI adapter backs each one. A deployment with different workers swaps
// this table; the orchestration core itself has no notion of a fixed
// worker count.
var roster = map[model.AgentId]string{
	orchestrator.LeadAgent:    "claude-code",
	model.AgentId("worker_a"): "claude-code",
}

func main() {
	cfg, err := config.Load(appName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.NewRotatingLogger(appName, cfg.Logging.Level, cfg.Logging.MaxLogFiles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	for _, w := range cfg.Warnings {
		log.Warn("config fallback", zap.String("detail", w))
	}

	log.Info("starting fedi orchestrator")

	projectDir, err := os.Getwd()
	if err != nil {
		log.Fatal("failed to resolve project directory", zap.Error(err))
	}

	b := bus.New()
	relayCtrl := relay.New(b, relay.Config{
		DraftFlush:         time.Duration(cfg.FlushIntervalMs) * time.Millisecond,
		SafetyNetDebounce:  relay.DefaultSafetyNetDebounce,
		MaxRelaysPerWindow: cfg.MaxRelaysPerWindow,
		RelayWindow:        time.Duration(cfg.RelayWindowMs) * time.Millisecond,
	})

	registry := agents.NewRegistry()
	registry.LoadDefaults()
	log.Info("loaded agent registry", zap.Int("agent_types", len(registry.List())))

	store := session.New(projectDir, 2*time.Second, log)

	orch := orchestrator.New(b, relayCtrl, store, orchestrator.Config{
		DelegateTimeout: time.Duration(cfg.DelegateTimeoutMs) * time.Millisecond,
	})

	drivers := make(map[model.AgentId]*agentdriver.Driver, len(roster))
	for agentID, cliType := range roster {
		adapter, err := registry.Get(cliType)
		if err != nil {
			log.Fatal("unregistered agent CLI type in roster", zap.String("agent", string(agentID)), zap.Error(err))
		}
		d := agentdriver.New(agentdriver.Config{
			AgentID:     agentID,
			Agent:       adapter,
			Model:       cfg.ModelFor(string(agentID)),
			ExecTimeout: time.Duration(cfg.ExecTimeoutMs) * time.Millisecond,
		}, log)
		drivers[agentID] = d
		orch.RegisterDriver(agentID, d)
	}

	mirror, err := eventmirror.New(cfg.NATS, log)
	if err != nil {
		log.Fatal("failed to connect nats mirror", zap.Error(err))
	}
	defer mirror.Close()
	if mirror != nil {
		b.Subscribe(func(ev bus.Event) {
			mirror.Publish(orch.CurrentSessionID(), ev)
		})
	}

	renderHub := hub.New(log)
	orch.OnOutput(func(agent model.AgentId, line model.OutputLine) {
		renderHub.Broadcast(hub.RenderEvent{
			SessionID: orch.CurrentSessionID(),
			Type:      "output",
			Agent:     string(agent),
			Text:      line.Text,
			Kind:      string(line.Kind),
			Timestamp: line.Timestamp,
		})
	})
	orch.OnStatus(func(agent model.AgentId, status model.AgentStatus) {
		renderHub.Broadcast(hub.RenderEvent{
			SessionID: orch.CurrentSessionID(),
			Type:      "status",
			Agent:     string(agent),
			Status:    string(status),
			Timestamp: time.Now(),
		})
	})

	engine := api.NewRouter(orch, store, log)
	engine.GET("/ws", func(c *gin.Context) {
		if err := renderHub.ServeWS(c.Writer, c.Request); err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
		}
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down fedi orchestrator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	if err := orch.Stop(); err != nil {
		log.Error("orchestrator stop error", zap.Error(err))
	}

	for agentID, d := range drivers {
		if err := d.Stop(); err != nil {
			log.Warn("driver stop error", zap.String("agent", string(agentID)), zap.Error(err))
		}
	}

	log.Info("fedi orchestrator stopped")
}
