package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/anthropics/chat-autopilot/internal/api"
	"github.com/anthropics/chat-autopilot/internal/biz/domain"
	"github.com/anthropics/chat-autopilot/internal/biz/usecase"
	"github.com/anthropics/chat-autopilot/internal/conf"
	"github.com/anthropics/chat-autopilot/internal/data"
	"github.com/anthropics/chat-autopilot/internal/registry"
	"github.com/anthropics/chat-autopilot/internal/service"
	"github.com/anthropics/chat-autopilot/internal/transport"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Initialize repository layer
	repos, err := data.NewRepositories(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to create repositories: %v", err)
	}
	fmt.Printf("[Autopilot] Data dir: %s\n", cfg.DataDir)

	// Initialize usecase layer
	composerUC := usecase.NewComposerUsecase(repos.Templates)
	autoReplyUC := usecase.NewAutoReplyUsecase(repos.Rules, composerUC)

	// Initialize session registry with the in-memory network driver.
	// A real network binding implements repo.DriverFactory the same way.
	network := transport.NewMemoryNetwork()
	reg := registry.New(network.Factory(), cfg.MessageLogSize)
	reg.SetAutoReplyEnabled(cfg.AutoReplyEnabled)

	reg.OnStatusChanged(func(accountID string, state domain.ConnState) {
		fmt.Printf("[Autopilot] Account %s: %s\n", accountID, state)
	})
	reg.OnQRCodeIssued(func(accountID string, token string) {
		fmt.Printf("[Autopilot] Account %s pairing token: %s\n", accountID, token)
	})

	// Initialize service layer
	dispatcher := service.NewDispatcher(reg, repos.Rules, cfg.ToDispatchConfig())
	autoReplySvc := service.NewAutoReplyService(autoReplyUC, dispatcher)
	reg.SetInboundProcessor(autoReplySvc)

	// Initialize HTTP API server
	apiServer := api.NewServer(reg, dispatcher, repos.Rules, repos.Templates, cfg.APIPort)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		reg.Shutdown(context.Background())
		apiServer.Stop()
		repos.Close()
		os.Exit(0)
	}()

	fmt.Println("Starting Chat Autopilot...")
	if err := apiServer.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
