// Command orchestratord runs the voice-session orchestrator as a standalone
// HTTP service: session lifecycle, text turns, an observer SSE stream, and
// a WebSocket audio binding, with Prometheus metrics and OpenTelemetry
// tracing wired into the same observer event bus every session publishes to.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/AltairaLabs/PromptKit/runtime/events"
	"github.com/AltairaLabs/PromptKit/runtime/httpserver"
	"github.com/AltairaLabs/PromptKit/runtime/logger"
	metricsprom "github.com/AltairaLabs/PromptKit/runtime/metrics/prometheus"
	"github.com/AltairaLabs/PromptKit/runtime/orchestrator"
	"github.com/AltairaLabs/PromptKit/runtime/providers"
	_ "github.com/AltairaLabs/PromptKit/runtime/providers/openai"
	"github.com/AltairaLabs/PromptKit/runtime/retrieval"
	"github.com/AltairaLabs/PromptKit/runtime/session"
	"github.com/AltairaLabs/PromptKit/runtime/statestore"
	"github.com/AltairaLabs/PromptKit/runtime/stt"
	"github.com/AltairaLabs/PromptKit/runtime/telemetry"
	"github.com/AltairaLabs/PromptKit/runtime/tts"
)

const shutdownGrace = 10 * time.Second

func main() {
	addr := flag.String("addr", ":8080", "address for the session API")
	metricsAddr := flag.String("metrics-addr", ":9090", "address for the Prometheus /metrics endpoint")
	agentsDir := flag.String("agents-dir", "", "directory of agent YAML manifests; falls back to a single mock agent when empty")
	flag.Parse()

	otelListener := telemetry.NewOTelEventListener(otel.Tracer("orchestratord"))

	bus := events.NewEventBus()
	bus.SubscribeAll(metricsprom.NewMetricsListener().Handle)
	bus.SubscribeAll(otelListener.OnEvent)

	deps := orchestrator.Deps{
		STT:       stt.NewRegistry(),
		TTS:       tts.NewRegistry(),
		LLM:       newProviderRegistry(),
		Retrieval: retrieval.NewRegistry(),
		Store:     statestore.NewMemoryStore(),
		Bus:       bus,
		Tools:     map[string]orchestrator.ToolFunc{},
	}

	resolver, err := newResolver(*agentsDir)
	if err != nil {
		logger.Error("orchestratord: failed to load agent resolver", "error", err)
		os.Exit(1)
	}

	manager := session.NewManager(resolver, deps).
		WithTracer(otelListener).
		WithProviderSpecs([]providers.ProviderSpec{openAIProviderSpec()})

	metricsExporter := metricsprom.NewExporter(*metricsAddr)
	apiServer := httpserver.NewServer(*addr, manager, bus)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() { errCh <- runOrNil(metricsExporter.Start) }()
	go func() { errCh <- runOrNil(apiServer.ListenAndServe) }()

	select {
	case <-ctx.Done():
		logger.Info("orchestratord: shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("orchestratord: server exited", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsExporter.Shutdown(shutdownCtx)
}

func runOrNil(start func() error) error {
	if err := start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newProviderRegistry registers the mock LLM provider eagerly so the daemon
// is runnable out of the box with no configuration. Vendor adapters
// referenced by an agent manifest (openAIProviderSpec below, for example)
// are registered lazily on first use instead, via
// session.Manager.WithProviderSpecs and providers.CreateProviderFromSpec,
// so a bad AdditionalConfig surfaces as a rejected session rather than a
// boot-time failure.
func newProviderRegistry() *providers.Registry {
	reg := providers.NewRegistry()
	reg.Register(providers.NewMockProvider("mock", "mock-1", false))
	return reg
}

// openAIProviderSpec describes the "openai" LLM provider referenced by
// agent manifests that set llmProvider: openai. ConfigSchema rejects any
// AdditionalConfig missing a reasoning effort level, so a misconfigured
// manifest fails CreateSession instead of silently running with defaults.
func openAIProviderSpec() providers.ProviderSpec {
	return providers.ProviderSpec{
		ID:    "openai",
		Type:  "openai",
		Model: "gpt-4o-mini",
		Defaults: providers.ProviderDefaults{
			Temperature: 0.7,
		},
		AdditionalConfig: map[string]interface{}{
			"reasoning_effort": "medium",
		},
		ConfigSchema: `{
			"type": "object",
			"properties": {
				"reasoning_effort": {"type": "string", "enum": ["low", "medium", "high"]}
			},
			"required": ["reasoning_effort"]
		}`,
	}
}

// newResolver loads agent manifests from agentsDir, falling back to a
// single "mock" agent wired to the mock LLM provider when no directory is
// configured, so the daemon has something to create sessions against.
func newResolver(agentsDir string) (session.AgentResolver, error) {
	if agentsDir != "" {
		return session.NewYAMLResolver(agentsDir)
	}
	return session.StaticResolver{
		"mock": orchestrator.AgentReference{
			ID:            "mock",
			SystemPrompt:  "You are a helpful voice assistant.",
			LLMProviderID: "mock",
		},
	}, nil
}
