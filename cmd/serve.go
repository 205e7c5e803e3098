package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askcarbuddy/advisor-cli/internal/model"
	"github.com/askcarbuddy/advisor-cli/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the listing analysis HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(e),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the chi router with the API routes.
func newRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/analyze", handleAnalyze(e))
	r.Post("/api/parse-url", handleParseURL(e))
	r.Post("/api/feedback", handleFeedback(e))
	r.Post("/api/engagement", handleEngagement(e))
	r.Get("/api/traces/{id}", handleGetTrace(e))

	return r
}

func handleAnalyze(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in model.ListingInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if in.URL == "" && (in.Make == "" || in.Model == "") && in.VIN == "" {
			writeError(w, http.StatusBadRequest, "provide a listing url, a vin, or make and model")
			return
		}

		report, err := e.Pipeline.Analyze(r.Context(), in)
		if err != nil {
			var resErr *pipeline.IdentityResolutionError
			if errors.As(err, &resErr) {
				writeError(w, http.StatusUnprocessableEntity, "could not identify the vehicle from this listing")
				return
			}
			var allFailed *pipeline.AllSectionsFailedError
			if errors.As(err, &allFailed) {
				writeError(w, http.StatusBadGateway, "report generation is currently unavailable")
				return
			}
			zap.L().Error("analyze request failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "analysis failed")
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}

func handleParseURL(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}

		id, err := e.Pipeline.ParsePreview(r.Context(), model.ListingInput{URL: req.URL})
		if err != nil {
			var resErr *pipeline.IdentityResolutionError
			if errors.As(err, &resErr) {
				writeError(w, http.StatusUnprocessableEntity, "could not identify the vehicle from this url")
				return
			}
			writeError(w, http.StatusInternalServerError, "parse failed")
			return
		}

		writeJSON(w, http.StatusOK, id)
	}
}

func handleFeedback(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TraceID string `json:"trace_id"`
			Signal  string `json:"signal"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TraceID == "" {
			writeError(w, http.StatusBadRequest, "trace_id is required")
			return
		}
		kind := model.RewardSignalKind(req.Signal)
		if kind != model.RewardHelpful && kind != model.RewardNotHelpful {
			writeError(w, http.StatusBadRequest, "signal must be helpful or not_helpful")
			return
		}

		// Fire and forget: the reader should never wait on feedback writes.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := e.Store.AttachReward(ctx, req.TraceID, kind); err != nil {
				zap.L().Warn("reward write failed", zap.String("trace_id", req.TraceID), zap.Error(err))
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func handleEngagement(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TraceID string `json:"trace_id"`
			Section string `json:"section"`
			DwellMS int64  `json:"dwell_ms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TraceID == "" || req.Section == "" {
			writeError(w, http.StatusBadRequest, "trace_id and section are required")
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := e.Store.RecordEngagement(ctx, req.TraceID, model.SectionName(req.Section), req.DwellMS); err != nil {
				zap.L().Warn("engagement write failed", zap.String("trace_id", req.TraceID), zap.Error(err))
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func handleGetTrace(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := chi.URLParam(r, "id")

		trace, err := e.Store.GetTrace(r.Context(), traceID)
		if err != nil {
			writeError(w, http.StatusNotFound, "trace not found")
			return
		}
		writeJSON(w, http.StatusOK, trace)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
