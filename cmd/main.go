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
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/MDastan2005/whatsapp-ai-bot/internal/bot"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/config"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/faq"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/llm"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/routes"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/session"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/utils"
	"github.com/MDastan2005/whatsapp-ai-bot/internal/whatsapp"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		fmt.Println("Warning: Error loading .env file", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	cleanup := utils.InitLogger(cfg)
	defer cleanup()

	utils.Zlog.Info("Starting application",
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.ServerPort))

	store, err := faq.NewStore(cfg.FAQFilePath)
	if err != nil {
		utils.Zlog.Error("Failed to load FAQ corpus", zap.Error(err))
		os.Exit(1)
	}
	utils.Zlog.Info("FAQ corpus loaded",
		zap.String("path", cfg.FAQFilePath),
		zap.Int("entries", store.Len()))

	provider, err := llm.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel,
		cfg.OpenAIMaxTokens, cfg.OpenAITemperature, cfg.OpenAITimeout)
	if err != nil {
		utils.Zlog.Error("Failed to create LLM client", zap.Error(err))
		os.Exit(1)
	}

	sessions := session.NewRegistry(cfg.SessionTimeout, cfg.UserRateLimit)
	sessions.StartSweeper(5 * time.Minute)
	defer sessions.Stop()

	gateway := whatsapp.NewClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneNumberID)

	dispatcher := bot.NewDispatcher(
		faq.NewMatcher(store, cfg.MatchThreshold, cfg.MaxFAQResults),
		sessions,
		bot.NewComposer(provider, cfg.MaxMessageLength),
		gateway,
		bot.NewDedupCache(cfg.DedupMaxIDs, cfg.DedupWindow),
	)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	routes.SetupRoutes(router, cfg, store, dispatcher)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		utils.Zlog.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Zlog.Error("Failed to start server", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Zlog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		utils.Zlog.Error("Server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	utils.Zlog.Info("Server exited")
}
