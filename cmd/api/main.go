package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pragyanlabs/receiptops/internal/api"
	"github.com/pragyanlabs/receiptops/internal/config"
	"github.com/pragyanlabs/receiptops/internal/notify"
	"github.com/pragyanlabs/receiptops/internal/service"
	"github.com/pragyanlabs/receiptops/internal/store"
	"github.com/pragyanlabs/receiptops/internal/watcher"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	receiptStore, err := store.NewStore(cfg.DBSource, cfg.AppID)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer receiptStore.Close()

	if cfg.SendGridKey == "" {
		log.Println("SENDGRID_API_KEY not set; confirmation emails will be skipped")
	}
	mailer := notify.NewMailer(cfg.SendGridKey, cfg.SenderName, cfg.SenderEmail)

	// Initialize Layers
	intake := service.NewIntake(receiptStore)
	handler := api.NewHandler(intake, receiptStore)

	// Confirmation watcher: dedicated LISTEN connection plus a poll fallback.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var waiter watcher.Waiter
	listener, err := store.NewEventListener(ctx, cfg.DBSource)
	if err != nil {
		log.Printf("Event listener unavailable, watcher will poll only: %v", err)
	} else {
		defer listener.Close(context.Background())
		waiter = listener
	}

	confirmWatcher := watcher.New(receiptStore, mailer, waiter, cfg.PollInterval)
	go func() {
		if err := confirmWatcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("watcher stopped: %v", err)
		}
	}()

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/receipts", handler.SubmitReceiptHandler).Methods("POST", "OPTIONS")

	admin := apiV1.NewRoute().Subrouter()
	admin.Use(api.RequireSecret(cfg.AdminSecret))
	admin.HandleFunc("/receipts", handler.ListClaimsHandler).Methods("GET")
	admin.HandleFunc("/receipts/{id}", handler.GetClaimHandler).Methods("GET")
	admin.HandleFunc("/receipts/{id}/status", handler.UpdateStatusHandler).Methods("PATCH")

	log.Printf("Server starting on :%s (app %s, env %s)", cfg.Port, cfg.AppID, cfg.Env)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
