package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/hearthplan/hearthplan/internal/auth"
	"github.com/hearthplan/hearthplan/internal/database"
	"github.com/hearthplan/hearthplan/internal/notify"
	"github.com/hearthplan/hearthplan/internal/pipeline"
	"github.com/hearthplan/hearthplan/internal/registration"
)

// SetupRoutes wires every endpoint onto the mux. Webhooks and health
// are unauthenticated; everything mutating state behind /api requires
// a bearer token.
func SetupRoutes(
	mux *http.ServeMux,
	db *sql.DB,
	events *database.EventRepository,
	merges *database.MergeRecordRepository,
	household *database.HouseholdRepository,
	registrar *registration.Registrar,
	notifier *notify.Service,
	runner *pipeline.Runner,
	authConfig auth.Config,
	metricsHandler http.Handler,
	logger *slog.Logger,
) {
	handler := NewHandler(events, merges, household, registrar, db, logger)
	authHandler := NewAuthHandler(authConfig, logger)
	webhookHandler := NewWebhookHandler(notifier, logger)
	pipelineHandler := NewPipelineHandler(runner, logger)

	authed := auth.Middleware(authConfig)

	mux.HandleFunc("/api/auth/login", authHandler.Login)

	mux.HandleFunc("/api/events", handler.ListEvents)
	mux.HandleFunc("/api/events/", handler.EventSubroutes(authed))

	mux.HandleFunc("/api/household", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			handler.GetHousehold(w, r)
			return
		}
		authed(http.HandlerFunc(handler.UpdateHousehold)).ServeHTTP(w, r)
	})

	mux.HandleFunc("/api/webhooks/sms", webhookHandler.InboundSMS)
	mux.HandleFunc("/api/webhooks/email", webhookHandler.InboundEmail)

	mux.Handle("/api/pipeline/run", authed(http.HandlerFunc(pipelineHandler.Run)))
	mux.HandleFunc("/api/pipeline/last", pipelineHandler.LastRun)

	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/healthz", handler.Health)
}
