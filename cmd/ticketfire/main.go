package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/freedomfinance/ticketfire/internal/classifier"
	"github.com/freedomfinance/ticketfire/internal/config"
	"github.com/freedomfinance/ticketfire/internal/geocoder"
	"github.com/freedomfinance/ticketfire/internal/llmclient"
	"github.com/freedomfinance/ticketfire/internal/logx"
	"github.com/freedomfinance/ticketfire/internal/models"
	"github.com/freedomfinance/ticketfire/internal/orchestrator"
	"github.com/freedomfinance/ticketfire/internal/pii"
	"github.com/freedomfinance/ticketfire/internal/progress"
	"github.com/freedomfinance/ticketfire/internal/sentiment"
	"github.com/freedomfinance/ticketfire/internal/spam"
	"github.com/freedomfinance/ticketfire/internal/store"
)

var log_ = logx.Tag("main")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	genkitApp := genkit.Init(ctx)

	client := llmclient.New(genkitApp)

	classifierEp := llmclient.Endpoint{Name: "classifier", BaseURL: cfg.Classifier.Endpoint, APIKey: cfg.Classifier.APIKey, Model: cfg.Classifier.Model, Timeout: 45 * time.Second}
	sentimentEp := llmclient.Endpoint{Name: "sentiment", BaseURL: cfg.Sentiment.Endpoint, APIKey: cfg.Sentiment.APIKey, Model: cfg.Sentiment.Model, Timeout: 30 * time.Second}
	spamEp := llmclient.Endpoint{Name: "spam", BaseURL: cfg.Sentiment.Endpoint, APIKey: cfg.Sentiment.APIKey, Model: cfg.Sentiment.Model, Timeout: 15 * time.Second}

	classifierStage := classifier.New(client, classifierEp)
	sentimentStage := sentiment.New(client, sentimentEp)
	spamStage := spam.New(spam.NewLLMClassifier(client, spamEp))

	geoCache := geocoder.NewCache()
	primaryProvider := geocoder.NewPrimaryProvider(cfg.Geocoder.PrimaryURL, cfg.Geocoder.PrimaryKey)
	fallbackProvider := geocoder.NewFallbackProvider(cfg.Geocoder.FallbackURL)
	geo := geocoder.New(geoCache, primaryProvider, fallbackProvider)

	bus := progress.NewBus()
	memStore := store.NewMemoryStore()

	orch := &orchestrator.Orchestrator{
		Store:              memStore,
		Bus:                bus,
		Anonymizer:         pii.New(),
		Spam:               spamStage,
		Classifier:         classifierStage,
		Sentiment:          sentimentStage,
		Geocoder:           geo,
		ExpansionCountries: cfg.Priority.ExpansionCountries,
		UploadsDir:         cfg.Uploads.Dir,
	}

	registry := demoRegistry()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", bus.ServeWS)
	mux.HandleFunc("/events", bus.ServeSSE)
	mux.HandleFunc("/batches/", batchHandler(orch, memStore, registry))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		log_.Printf("starting http server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log_.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log_.Printf("server shutdown error: %v", err)
	}
}

// batchHandler serves POST /batches/{id}/process (runs the pipeline
// synchronously against whatever was seeded for that batch id) and
// GET /batches/{id}/progress (a snapshot polling endpoint, §6).
func batchHandler(orch *orchestrator.Orchestrator, st *store.MemoryStore, registry *orchestrator.ManagerRegistry) http.HandlerFunc {
	snapshots := map[uuid.UUID]*models.ProgressSnapshot{}

	return func(w http.ResponseWriter, r *http.Request) {
		var batchIDStr, action string
		if _, err := fmt.Sscanf(r.URL.Path, "/batches/%s", &batchIDStr); err != nil {
			http.NotFound(w, r)
			return
		}
		for i, c := range batchIDStr {
			if c == '/' {
				action = batchIDStr[i+1:]
				batchIDStr = batchIDStr[:i]
				break
			}
		}
		batchID, err := uuid.Parse(batchIDStr)
		if err != nil {
			http.Error(w, "invalid batch id", http.StatusBadRequest)
			return
		}

		switch {
		case action == "process" && r.Method == http.MethodPost:
			snapshot, err := orch.ProcessBatch(r.Context(), batchID, registry)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			snapshots[batchID] = snapshot
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(snapshot.Snapshot())
		case action == "progress" && r.Method == http.MethodGet:
			snapshot, ok := snapshots[batchID]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(snapshot.Snapshot())
		default:
			http.NotFound(w, r)
		}
	}
}

// demoRegistry seeds a small fixed manager/office roster — the
// out-of-scope roster-loading collaborator's stand-in for local
// exercising of the router.
func demoRegistry() *orchestrator.ManagerRegistry {
	almatyID := uuid.New()
	astanaID := uuid.New()

	offices := map[uuid.UUID]*models.Office{
		almatyID: {ID: almatyID, Name: "Almaty", Address: "Almaty HQ", Coordinates: &models.Coordinates{Lat: 43.2220, Lon: 76.8512}},
		astanaID: {ID: astanaID, Name: "Astana", Address: "Astana HQ", Coordinates: &models.Coordinates{Lat: 51.1694, Lon: 71.4491}},
	}

	managers := []*models.Manager{
		{ID: uuid.New(), FullName: "Aigerim Bekova", Position: models.PositionLeadSpecialist, Skills: map[string]bool{"RU": true, "KZ": true}, OfficeID: almatyID, Active: true},
		{ID: uuid.New(), FullName: "Daniyar Seitkali", Position: models.PositionSpecialist, Skills: map[string]bool{"RU": true, "VIP": true}, OfficeID: almatyID, Active: true},
		{ID: uuid.New(), FullName: "Olga Kim", Position: models.PositionChiefSpecialist, Skills: map[string]bool{"RU": true, "KZ": true, "ENG": true, "VIP": true}, OfficeID: astanaID, Active: true},
		{ID: uuid.New(), FullName: "Marat Yusupov", Position: models.PositionSpecialist, Skills: map[string]bool{"RU": true}, OfficeID: astanaID, Active: true},
	}

	return &orchestrator.ManagerRegistry{Managers: managers, Offices: offices}
}
