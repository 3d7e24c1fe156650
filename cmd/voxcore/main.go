// Command voxcore is the process entrypoint: it loads configuration, wires
// every provider package into the registry, opens the storage and metrics
// backends, and starts whichever of the WebSocket/Twilio HTTP servers
// config.Process.ServerType names. Structure mirrors the teacher's main.go
// signal-driven graceful shutdown almost exactly.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"gopkg.in/yaml.v3"

	"github.com/room4-2/voxcore/internal/config"
	"github.com/room4-2/voxcore/internal/metrics"
	"github.com/room4-2/voxcore/internal/providers/gemini"
	"github.com/room4-2/voxcore/internal/providers/localtool"
	"github.com/room4-2/voxcore/internal/providers/mcptool"
	"github.com/room4-2/voxcore/internal/providers/ollama"
	"github.com/room4-2/voxcore/internal/providers/openai"
	"github.com/room4-2/voxcore/internal/providers/whisper"
	"github.com/room4-2/voxcore/internal/registry"
	"github.com/room4-2/voxcore/internal/server"
	"github.com/room4-2/voxcore/internal/storage/pgrecords"
	"github.com/room4-2/voxcore/internal/storage/redisreg"

	"net/http"
)

func main() {
	cfg, err := config.LoadProcess()
	if err != nil {
		log.Fatalf("voxcore: failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := buildRegistry(ctx, cfg)

	sink, err := pgrecords.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Printf("voxcore: turn persistence unavailable: %v", err)
		sink = nil
	} else {
		defer sink.Close()
	}

	sessions := redisreg.New(cfg.RedisURL, cfg.RedisPassword)
	if !sessions.Available() {
		log.Printf("voxcore: session registry unavailable, continuing without it")
	}
	defer sessions.Close()

	shutdownMetrics, err := metrics.InitProvider(ctx, metrics.ProviderConfig{ServiceName: "voxcore"})
	if err != nil {
		log.Fatalf("voxcore: failed to init metrics: %v", err)
	}
	m, err := metrics.New(otel.GetMeterProvider())
	if err != nil {
		log.Fatalf("voxcore: failed to build metrics instruments: %v", err)
	}
	startMetricsServer(cfg.MetricsAddr)

	deps := server.Deps{
		Registry: reg,
		Metrics:  m,
		Sink:     sink,
		Sessions: sessions,
		Process:  cfg,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	shutdown := func(closers ...func(context.Context) error) {
		<-sigChan
		log.Println("voxcore: received shutdown signal")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		for _, closeFn := range closers {
			if err := closeFn(shutdownCtx); err != nil {
				log.Printf("voxcore: shutdown error: %v", err)
			}
		}
		_ = shutdownMetrics(shutdownCtx)
	}

	switch cfg.ServerType {
	case "websocket":
		srv := server.NewWebSocket(deps)
		go shutdown(srv.Shutdown)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("voxcore: websocket server error: %v", err)
		}

	case "twilio":
		srv := server.NewTwilio(deps)
		go shutdown(srv.Shutdown)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("voxcore: twilio server error: %v", err)
		}

	case "both":
		wsSrv := server.NewWebSocket(deps)
		twilioSrv := server.NewTwilio(deps)
		go shutdown(wsSrv.Shutdown, twilioSrv.Shutdown)

		go func() {
			if err := twilioSrv.Start(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("voxcore: twilio server error: %v", err)
			}
		}()
		if err := wsSrv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("voxcore: websocket server error: %v", err)
		}

	default:
		log.Fatalf("voxcore: unknown SERVER_TYPE: %s", cfg.ServerType)
	}

	log.Println("voxcore: stopped")
}

// buildRegistry wires every provider package. Registration always succeeds
// for providers whose credentials are optional (gemini, openai, ollama,
// local); whisper and mcp are only registered when their configuration is
// present, since both need to do real work (load a model, dial a server)
// at registration time.
func buildRegistry(ctx context.Context, cfg *config.Process) *registry.Registry {
	reg := registry.New()

	if err := reg.LoadStaticConfig(cfg.RegistryPath); err != nil {
		log.Printf("voxcore: registry config: %v", err)
	}

	gemini.Register(reg)
	if cfg.GeminiAPIKey != "" {
		override := registry.ProviderConfig{"api_key": cfg.GeminiAPIKey}
		reg.SetConfig(registry.KindSTT, "gemini", override)
		reg.SetConfig(registry.KindLLM, "gemini", override)
		reg.SetConfig(registry.KindTTS, "gemini", override)
	}

	openai.Register(reg)
	if cfg.OpenAIAPIKey != "" {
		override := registry.ProviderConfig{"api_key": cfg.OpenAIAPIKey}
		reg.SetConfig(registry.KindSTT, "openai", override)
		reg.SetConfig(registry.KindLLM, "openai", override)
		reg.SetConfig(registry.KindTTS, "openai", override)
	}

	ollama.Register(reg)

	if cfg.WhisperModelPath != "" {
		if err := whisper.Register(reg, registry.ProviderConfig{"model_path": cfg.WhisperModelPath}); err != nil {
			log.Printf("voxcore: whisper registration skipped: %v", err)
		}
	}

	if cfg.MCPServersPath != "" {
		servers, err := loadMCPServers(cfg.MCPServersPath)
		if err != nil {
			log.Printf("voxcore: mcp servers config: %v", err)
		} else if err := mcptool.Register(ctx, reg, servers); err != nil {
			log.Printf("voxcore: mcp registration skipped: %v", err)
		}
	}

	localtool.Register(reg, nil)

	return reg
}

func loadMCPServers(path string) ([]mcptool.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var servers []mcptool.ServerConfig
	if err := yaml.Unmarshal(data, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("voxcore: metrics server error: %v", err)
		}
	}()
}
