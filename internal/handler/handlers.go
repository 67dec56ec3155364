package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Schera-ole/hostagent/internal/client"
	"github.com/Schera-ole/hostagent/internal/config"
	middlewareinternal "github.com/Schera-ole/hostagent/internal/middleware"
	models "github.com/Schera-ole/hostagent/internal/model"
	"github.com/Schera-ole/hostagent/internal/service"
)

// defaultSnapshotLimit is used when GET /agents/{token}/snapshots has no limit.
const defaultSnapshotLimit = 100

func Router(
	collectorService *service.CollectorService,
	logger *zap.SugaredLogger,
	config *config.ServerConfig,
) chi.Router {
	router := chi.NewRouter()
	router.Use(middlewareinternal.LoggingMiddleware(logger))
	router.Use(middlewareinternal.GzipMiddleware)
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Timeout(15 * time.Second))

	router.Group(func(r chi.Router) {
		r.Use(middlewareinternal.AuthMiddleware(collectorService.Authenticate, logger))
		r.Get(client.ConfigPath, func(w http.ResponseWriter, r *http.Request) {
			ConfigHandler(w, r, collectorService, logger)
		})
		r.Post(client.EmitPath, func(w http.ResponseWriter, r *http.Request) {
			EmitHandler(w, r, collectorService, logger, config)
		})
	})
	router.Put("/agents/{token}/config", func(w http.ResponseWriter, r *http.Request) {
		UpdateConfigHandler(w, r, collectorService, logger)
	})
	router.Get("/agents/{token}/snapshots", func(w http.ResponseWriter, r *http.Request) {
		ListSnapshotsHandler(w, r, collectorService, logger)
	})
	router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		PingHandler(w, r, collectorService, logger)
	})
	return router
}

// ConfigHandler returns the configuration of the authenticated agent.
func ConfigHandler(w http.ResponseWriter, r *http.Request, collectorService *service.CollectorService, logger *zap.SugaredLogger) {
	token := middlewareinternal.TokenFromContext(r.Context())
	agentConfig, err := collectorService.Config(r.Context(), token)
	if err != nil {
		writeStorageError(w, err, logger)
		return
	}
	writeJSON(w, http.StatusOK, agentConfig)
}

// EmitHandler accepts one snapshot from the authenticated agent.
func EmitHandler(
	w http.ResponseWriter,
	r *http.Request,
	collectorService *service.CollectorService,
	logger *zap.SugaredLogger,
	config *config.ServerConfig,
) {
	body, err := ReadRequestBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := VerifyRequestHash(body, r.Header.Get(client.HashHeader), config.Key); err != nil {
		logger.Infow("snapshot signature rejected", "error", err, "remote", RemoteIP(r))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
		body, err = DecompressBody(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		http.Error(w, "Invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return
	}
	if snapshot == nil {
		http.Error(w, "empty snapshot", http.StatusBadRequest)
		return
	}

	token := middlewareinternal.TokenFromContext(r.Context())
	if err := collectorService.Ingest(r.Context(), token, snapshot, RemoteIP(r)); err != nil {
		writeStorageError(w, err, logger)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// UpdateConfigHandler replaces the configuration of an agent.
func UpdateConfigHandler(w http.ResponseWriter, r *http.Request, collectorService *service.CollectorService, logger *zap.SugaredLogger) {
	var agentConfig models.Configuration
	if err := json.NewDecoder(r.Body).Decode(&agentConfig); err != nil {
		http.Error(w, "Invalid JSON format: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := collectorService.UpdateConfig(r.Context(), chi.URLParam(r, "token"), agentConfig); err != nil {
		writeStorageError(w, err, logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSnapshotsHandler returns the most recent snapshots of an agent.
func ListSnapshotsHandler(w http.ResponseWriter, r *http.Request, collectorService *service.CollectorService, logger *zap.SugaredLogger) {
	limit := defaultSnapshotLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit should be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	records, err := collectorService.Snapshots(r.Context(), chi.URLParam(r, "token"), limit)
	if err != nil {
		writeStorageError(w, err, logger)
		return
	}
	if records == nil {
		records = []models.SnapshotRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func PingHandler(w http.ResponseWriter, r *http.Request, collectorService *service.CollectorService, logger *zap.SugaredLogger) {
	if err := collectorService.Ping(r.Context()); err != nil {
		logger.Errorw("storage ping failed", "error", err)
		http.Error(w, "Failed to connect to storage: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
