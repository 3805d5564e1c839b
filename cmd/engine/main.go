package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marginbot/internal/config"
	"marginbot/internal/database"
	"marginbot/internal/engine"
	"marginbot/internal/exchange"
	"marginbot/internal/metrics"
	"marginbot/internal/models"
	"marginbot/internal/notify"
	"marginbot/internal/state"
)

func main() {
	log.Println("Starting execution engine...")

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Config loaded successfully")

	var journal engine.Journal
	if cfg.DatabaseURL != "" {
		db, err := database.NewConnection(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		journal = db
		log.Println("Trade journal connected")
	} else {
		log.Println("No MYSQL_DSN set, trade journal disabled")
	}

	venue, err := exchange.New(cfg.Exchange)
	if err != nil {
		log.Fatalf("Failed to initialize exchange client: %v", err)
	}
	log.Println("Exchange client initialized")

	store := state.NewStore()
	notifier := notify.NewLogNotifier()
	eng := engine.New(cfg, venue, store, notifier, journal)
	log.Println("Engine initialized")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/signal", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sig, err := decodeSignal(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// Gates and placement can take several round trips; respond
		// once the signal reaches a terminal state.
		if err := eng.Execute(r.Context(), sig); err != nil {
			log.Printf("Signal for %s not accepted: %v", sig.Pair, err)
		}
		w.WriteHeader(http.StatusAccepted)
	})

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Printf("Listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	eng.Close()
	log.Println("All watchers stopped, bye")
}

// decodeSignal maps the webhook payload onto a Signal. Risk arrives both
// as a bare number and as a percent string depending on the sender.
func decodeSignal(r *http.Request) (*models.Signal, error) {
	var payload struct {
		models.Signal
		Risk json.RawMessage `json:"risk"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, err
	}

	sig := payload.Signal
	if len(payload.Risk) > 0 {
		var pct float64
		if err := json.Unmarshal(payload.Risk, &pct); err == nil {
			sig.RiskPct = pct
		} else {
			var raw string
			if err := json.Unmarshal(payload.Risk, &raw); err != nil {
				return nil, err
			}
			pct, err := models.ParsePercent(raw)
			if err != nil {
				return nil, err
			}
			sig.RiskPct = pct
		}
	}
	return &sig, nil
}
