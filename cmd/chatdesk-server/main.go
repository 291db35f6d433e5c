package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatdesk/internal/config"
	"chatdesk/internal/logging"
	"chatdesk/internal/mock"
	"chatdesk/internal/server"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (default ~/.chatdesk/config.toml)")
	addr := flag.String("addr", "", "listen address (overrides server.addr)")
	logToFile := flag.Bool("log-file", false, "write logs to log.path instead of stderr")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := logging.New(os.Stderr, cfg.Log.Level)
	if *logToFile {
		fileLogger, f, err := logging.OpenFile(cfg.Log.Path, cfg.Log.Level)
		if err != nil {
			log.Fatal("Failed to open log file: ", err)
		}
		defer f.Close()
		logger = fileLogger
	}

	if logging.ParseLevel(cfg.Log.Level) != slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	var responder mock.Responder
	switch cfg.Server.Responder {
	case config.ResponderOpenAI:
		responder = mock.NewOpenAIResponder(cfg.Server.OpenAIKey, cfg.Server.OpenAIBaseURL, cfg.Server.OpenAIModel)
	case config.ResponderAnthropic:
		responder = mock.NewAnthropicResponder(cfg.Server.AnthropicModel)
	default:
		responder = mock.NewCannedResponder()
	}

	minDelay := time.Duration(cfg.Server.MinDelayMS) * time.Millisecond
	maxDelay := time.Duration(cfg.Server.MaxDelayMS) * time.Millisecond

	srv := server.New(server.Options{
		Tokens:        cfg.Server.Tokens,
		ChatPerMinute: cfg.Server.ChatPerMinute,
		Logger:        logger,
		NewBackend: func() *mock.Backend {
			return mock.New(
				mock.WithResponder(responder),
				mock.WithDelay(minDelay, maxDelay),
				mock.WithLogger(logger),
			)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting chatdesk-server",
		"addr", cfg.Server.Addr,
		"responder", cfg.Server.Responder,
		"chat_per_minute", cfg.Server.ChatPerMinute,
	)
	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
