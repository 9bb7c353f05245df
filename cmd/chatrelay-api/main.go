package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/PabloGalante/chatrelay/internal/adapters/gateway"
	httpadapter "github.com/PabloGalante/chatrelay/internal/adapters/http"
	"github.com/PabloGalante/chatrelay/internal/adapters/llm"
	"github.com/PabloGalante/chatrelay/internal/app/chatsession"
	"github.com/PabloGalante/chatrelay/internal/app/relay"
	"github.com/PabloGalante/chatrelay/internal/config"
	"github.com/PabloGalante/chatrelay/internal/domain"
	"github.com/PabloGalante/chatrelay/internal/observability"
)

func main() {
	log := observability.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	observability.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var llmClient domain.LLMClient
	if cfg.MockLLM() {
		log.Info("using mock LLM client")
		llmClient = llm.NewMockLLM()
	} else {
		geminiCfg := llm.GeminiConfig{ModelName: cfg.ModelName}
		if cfg.Mode == config.ModeGCP {
			geminiCfg.Project = cfg.GCPProjectID
			geminiCfg.Location = cfg.GCPLocation
		} else {
			geminiCfg.APIKey = cfg.GeminiAPIKey
		}

		log.Info("using Gemini LLM client", "mode", cfg.Mode, "model", cfg.ModelName)
		llmClient, err = llm.NewGeminiClient(ctx, geminiCfg)
		if err != nil {
			log.Error("failed to init Gemini client", "error", err)
			os.Exit(1)
		}
	}

	relaySvc := relay.NewService(llmClient)

	// The session API either talks to the relay in-process or to a remote /api/chat.
	var completion domain.CompletionGateway = relaySvc
	if cfg.GatewayURL != "" {
		log.Info("session store uses remote gateway", "url", cfg.GatewayURL)
		completion = gateway.NewClient(cfg.GatewayURL)
	}

	store := chatsession.NewStore(completion,
		chatsession.WithInitialThreads(cfg.InitialThreads...),
		chatsession.WithPlaceholder(cfg.PlaceholderText),
		chatsession.WithRequestTimeout(cfg.RequestTimeout),
	)

	srv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: httpadapter.NewServer(relaySvc, store, httpadapter.WithGeminiKey(cfg.GeminiAPIKey)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("chatrelay API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped gracefully")
}
