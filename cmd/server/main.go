package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"basedgift/offchain/internal/api"
	"basedgift/offchain/internal/blockchain"
	"basedgift/offchain/internal/config"
	"basedgift/offchain/internal/lifecycle"
	"basedgift/offchain/internal/recordstore"
	"basedgift/offchain/internal/workflow"
)

func main() {
	logger, err := initLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting gift escrow coordinator")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.Int64("default_chain", cfg.DefaultChainID),
		zap.Int("num_chains", len(cfg.Chains)))

	// Connect to the escrow contract on every configured chain.
	gateways, err := blockchain.NewClientSet(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect chain gateways", zap.Error(err))
	}
	defer gateways.Close()

	logger.Info("Chain gateways connected")

	records := recordstore.NewClient(cfg.RecordStore, logger)
	markers := lifecycle.NewMarkers()

	creation := workflow.NewCreationWorkflow(gateways, records, cfg.ShareLinkOrigin, logger)
	claim := workflow.NewClaimWorkflow(gateways, records, markers, logger)

	logger.Info("Workflows initialized")

	apiHandler := api.NewHandler(creation, claim, logger)
	router := api.SetupRouter(apiHandler, logger)

	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // deposits wait for on-chain confirmation
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", serverAddr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	logger.Info("Service initialized successfully",
		zap.String("status", "ready"),
		zap.Int("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatal("HTTP server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
		httpServer.Close()
	} else {
		logger.Info("HTTP server stopped gracefully")
	}

	logger.Info("Service stopped successfully")
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENV")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
