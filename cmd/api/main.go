package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkarlsen/voiceloop/internal/config"
	"github.com/mkarlsen/voiceloop/internal/handler"
	"github.com/mkarlsen/voiceloop/internal/service/ai"
	"github.com/mkarlsen/voiceloop/internal/service/pipeline"
	"github.com/mkarlsen/voiceloop/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// The generation model is the heart of the pipeline; refuse to start
	// without it.
	aiService, err := ai.NewService(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("failed to initialize AI service (provider %s): %v", cfg.AI.Provider, err)
	}
	log.Printf("AI service initialized, provider=%s model=%s", cfg.AI.Provider, cfg.AI.Model)

	speechTimeout := time.Duration(cfg.Speech.Timeout) * time.Second
	engines := pipeline.Engines{
		Transcriber: speech.NewWhisperClient(cfg.Speech.STTBaseURL, speechTimeout),
		Streamer:    aiService,
		Synthesizer: speech.NewStreamElementsClient(cfg.Speech.TTSBaseURL, cfg.Speech.TTSVoice, speechTimeout),
	}

	router, clipHandler := handler.NewRouter(cfg, engines)
	defer clipHandler.Close()

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("voiceloop backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
