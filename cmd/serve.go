package main

import (
	"context"
	"encoding/json"
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

	"github.com/markbunyevacz/lambda-extract/internal/model"
	"github.com/markbunyevacz/lambda-extract/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for extraction requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/webhook/extract", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				DocumentPath string `json:"document_path"`
				Source       string `json:"source"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if body.DocumentPath == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document_path is required"})
				return
			}
			if body.Source == "" {
				body.Source = "webhook"
			}

			task := model.NewTask(body.DocumentPath, body.Source)

			// Extraction runs in the background; the caller polls
			// /records/{task_id} for the result.
			go func() {
				outcome, err := env.Orchestrator.Submit(ctx, task)
				if err != nil {
					zap.L().Error("webhook extraction errored",
						zap.String("task_id", task.ID), zap.Error(err))
					return
				}
				zap.L().Info("webhook extraction finished",
					zap.String("task_id", task.ID),
					zap.String("kind", string(outcome.Kind)))
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":  "accepted",
				"task_id": task.ID,
			})
		})

		r.Get("/records/{taskID}", func(w http.ResponseWriter, req *http.Request) {
			rec, err := env.Store.GetRecord(req.Context(), chi.URLParam(req, "taskID"))
			if err != nil {
				if eris.Is(err, store.ErrNotFound) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
					return
				}
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
				return
			}
			writeJSON(w, http.StatusOK, rec)
		})

		r.Get("/search", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query().Get("q")
			if q == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
				return
			}
			hits, err := env.Index.Search(req.Context(), q, 20)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "search failed"})
				return
			}
			writeJSON(w, http.StatusOK, hits)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
