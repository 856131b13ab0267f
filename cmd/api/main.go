package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"database/sql"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/bankoperations/bank-service/internal/config"
	"github.com/bankoperations/bank-service/internal/handler"
	"github.com/bankoperations/bank-service/internal/integrations/cbr"
	"github.com/bankoperations/bank-service/internal/middleware"
	"github.com/bankoperations/bank-service/internal/repository"
	"github.com/bankoperations/bank-service/internal/service"
	"github.com/bankoperations/bank-service/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewPostgres(db, cfg.LockTimeout)
	var notifier service.Notifier
	if cfg.SMTPHost != "" {
		notifier = email.NewSender(cfg, logger)
	}
	svc := service.NewService(repo, logger, cfg, notifier)
	h := handler.NewHandler(svc, logger)
	cbrClient := cbr.NewClient(cfg, logger)

	// Start accrual job
	accrual := service.NewAccrualJob(repo, logger, cfg)
	if err := accrual.Start(); err != nil {
		logger.Fatalf("Failed to start accrual job: %v", err)
	}
	defer accrual.Stop()

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/auth/sign-up", h.SignUp).Methods("POST")
	r.HandleFunc("/auth/sign-in", h.SignIn).Methods("POST")
	// CBR key rate endpoint
	r.HandleFunc("/key-rate", func(w http.ResponseWriter, r *http.Request) {
		rate, err := cbrClient.GetKeyRate()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get key rate: %v", err), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]float64{"key_rate": rate})
	}).Methods("GET")
	// Protected routes
	authRouter := r.PathPrefix("/api").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/transfer", h.SendMoney).Methods("POST")
	authRouter.HandleFunc("/transfers", h.ListTransfers).Methods("GET")
	authRouter.HandleFunc("/accounts/{ownerID}", h.GetAccount).Methods("GET")
	authRouter.HandleFunc("/users", h.GetAllUsers).Methods("GET")
	authRouter.HandleFunc("/users/search", h.SearchUsers).Methods("GET")
	authRouter.HandleFunc("/users/{id}/email", h.UpdateEmail).Methods("PUT")
	authRouter.HandleFunc("/users/{id}/phone", h.UpdatePhone).Methods("PUT")
	authRouter.HandleFunc("/users/{id}/email", h.DeleteEmail).Methods("DELETE")
	authRouter.HandleFunc("/users/{id}/phone", h.DeletePhone).Methods("DELETE")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Stop the accrual schedule and drain connections on shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
}
