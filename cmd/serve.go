package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ems-pipeline/internal/gold"
	"github.com/sells-group/ems-pipeline/internal/silver"
	"github.com/sells-group/ems-pipeline/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pipeline status API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: serveMux(ctx, st, cfg.Pipeline.BatchSize),
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

// serveMux builds the status API routes. Pipeline runs are serialized: a
// run request while one is in flight gets 409.
func serveMux(ctx context.Context, st store.Store, batchSize int) *http.ServeMux {
	mux := http.NewServeMux()
	var running atomic.Bool

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/steps", func(w http.ResponseWriter, r *http.Request) {
		steps, err := st.ListSteps(r.Context())
		if err != nil {
			zap.L().Error("list steps failed", zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, steps)
	})

	mux.HandleFunc("GET /api/watermark", func(w http.ResponseWriter, r *http.Request) {
		watermark, err := st.Watermark(r.Context(), silver.Pipeline)
		if err != nil {
			zap.L().Error("read watermark failed", zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"pipeline":       silver.Pipeline,
			"last_bronze_id": watermark,
		})
	})

	mux.HandleFunc("POST /api/runs", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			RunID       string `json:"run_id"`
			FullRefresh bool   `json:"full_refresh"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
		}
		if req.RunID == "" {
			req.RunID = uuid.NewString()
		}

		if !running.CompareAndSwap(false, true) {
			http.Error(w, `{"error":"a run is already in progress"}`, http.StatusConflict)
			return
		}

		// Run the pipeline asynchronously against the server context so an
		// in-flight run survives the request closing.
		go func() {
			defer running.Store(false)

			if _, err := silver.NewLoader(st, batchSize).Run(ctx, req.RunID, req.FullRefresh); err != nil {
				zap.L().Error("silver load failed", zap.String("run_id", req.RunID), zap.Error(err))
				return
			}
			if _, err := gold.NewLoader(st).Run(ctx, req.RunID, req.FullRefresh); err != nil {
				zap.L().Error("gold load failed", zap.String("run_id", req.RunID), zap.Error(err))
				return
			}
			zap.L().Info("pipeline run complete", zap.String("run_id", req.RunID))
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"run_id": req.RunID,
		})
	})

	return mux
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
