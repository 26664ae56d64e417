package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/K2-bot/sender/internal/sender/monitor"
	"github.com/K2-bot/sender/pkg/logging"
)

type ServerConfig struct {
	Address         string
	ShutdownTimeout time.Duration
}

// Server exposes a health endpoint and manual one-shot triggers for the
// polling loops.
type Server struct {
	logger     *logging.ZapLogger
	httpServer *http.Server
	cfg        ServerConfig
}

func NewServer(cfg ServerConfig, loops []*monitor.Loop, logger *logging.ZapLogger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	srv := &http.Server{
		Addr:    cfg.Address,
		Handler: createMux(loops, logger),
	}
	return &Server{
		cfg:        cfg,
		logger:     logger,
		httpServer: srv,
	}
}

func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server ListenAndServe failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func createMux(loops []*monitor.Loop, logger *logging.ZapLogger) *chi.Mux {
	byName := make(map[string]*monitor.Loop, len(loops))
	for _, loop := range loops {
		byName[loop.Name()] = loop
	}

	router := chi.NewRouter()

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Get("/trigger/{loop}", func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "loop")
		loop, ok := byName[name]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown loop"})
			return
		}
		go func() {
			if err := loop.TickNow(context.Background()); err != nil {
				logger.ErrorCtx(context.Background(), "manual trigger failed",
					zap.String("loop", name), zap.Error(err))
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"triggered": name})
	})

	return router
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
