// The orchestrator runs live phone conversations: caller audio
// arrives over carrier media-stream websockets, is transcribed,
// reasoned over, and spoken back, with barge-in support and
// per-organization admission control.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vocaliq/go-vocaliq/internal/config"
	"github.com/vocaliq/go-vocaliq/internal/log"
	"github.com/vocaliq/go-vocaliq/pkg/agent"
	"github.com/vocaliq/go-vocaliq/pkg/engine"
	"github.com/vocaliq/go-vocaliq/pkg/event"
	"github.com/vocaliq/go-vocaliq/pkg/reasoning"
	"github.com/vocaliq/go-vocaliq/pkg/session"
	"github.com/vocaliq/go-vocaliq/pkg/stt"
	"github.com/vocaliq/go-vocaliq/pkg/tts"
	"github.com/vocaliq/go-vocaliq/pkg/web"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}
	log.Init(cfg.LogLevel)
	logger := log.L()

	sttProvider, err := buildSTT(cfg)
	if err != nil {
		logger.Error("transcription provider", "error", err)
		os.Exit(1)
	}
	defer sttProvider.Close()

	ttsProvider, err := buildTTS(cfg)
	if err != nil {
		logger.Error("synthesis provider", "error", err)
		os.Exit(1)
	}
	defer ttsProvider.Close()

	reasoner, err := buildReasoning(cfg)
	if err != nil {
		logger.Error("reasoning provider", "error", err)
		os.Exit(1)
	}
	defer reasoner.Close()

	var configSvc agent.ConfigService
	if cfg.ConfigServiceURL != "" {
		configSvc = agent.NewHTTPService(cfg.ConfigServiceURL, 5*time.Second)
	} else {
		logger.Warn("no config service URL, serving default agent config")
		fallback := agent.Default()
		fallback.OrgID = "default"
		fallback.MaxConcurrentCalls = cfg.DefaultOrgCallLimit
		fallback.ReasoningBudget = cfg.ReasoningBudget
		configSvc = defaultConfigService{base: fallback}
	}

	events := event.NewBus()
	defer events.Close()

	manager := session.NewManager(session.ManagerConfig{
		ConfigService: configSvc,
		STT:           sttProvider,
		TTS:           ttsProvider,
		Engine:        engine.New(reasoner, engine.WithLogger(logger)),
		Events:        events,
		Logger:        logger,
		IdleTimeout:   cfg.IdleTimeout,
		FlushBudget:   cfg.FlushBudget,
	})

	server := web.NewServer(cfg.ListenAddr, manager, events)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	manager.Close()
	logger.Info("stopped")
}

func buildSTT(cfg config.Config) (stt.Provider, error) {
	if cfg.DeepgramAPIKey != "" {
		return stt.NewDeepgram(stt.WithAPIKey(cfg.DeepgramAPIKey))
	}
	// Whisper batches utterances locally; higher latency, but it only
	// needs the OpenAI key.
	return stt.NewWhisper(stt.WithAPIKey(cfg.OpenAIAPIKey))
}

func buildTTS(cfg config.Config) (tts.Provider, error) {
	var providers []tts.Provider
	if cfg.ElevenLabsAPIKey != "" {
		p, err := tts.NewElevenLabs(tts.WithAPIKey(cfg.ElevenLabsAPIKey))
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.OpenAIAPIKey != "" {
		p, err := tts.NewOpenAI(tts.WithAPIKey(cfg.OpenAIAPIKey))
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	// A pre-rendered clip as the last chain element keeps the agent
	// audible when every synthesis vendor is down.
	if cfg.FallbackAudioPath != "" {
		clip, err := os.ReadFile(cfg.FallbackAudioPath)
		if err != nil {
			return nil, fmt.Errorf("fallback audio: %w", err)
		}
		p, err := tts.NewStatic(clip)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return tts.NewChain(providers...)
}

func buildReasoning(cfg config.Config) (reasoning.Provider, error) {
	var providers []reasoning.Provider
	if cfg.OpenAIAPIKey != "" {
		p, err := reasoning.NewOpenAI(reasoning.WithAPIKey(cfg.OpenAIAPIKey))
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.AnthropicAPIKey != "" {
		p, err := reasoning.NewAnthropic(reasoning.WithAPIKey(cfg.AnthropicAPIKey))
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return reasoning.NewChain(providers...)
}

// defaultConfigService serves one static config to every org. Used in
// single-tenant deployments without a dashboard backend.
type defaultConfigService struct {
	base *agent.AgentConfig
}

func (d defaultConfigService) Fetch(ctx context.Context, orgID string) (*agent.AgentConfig, error) {
	clone := *d.base
	clone.OrgID = orgID
	return &clone, nil
}
