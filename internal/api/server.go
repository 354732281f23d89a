// Package api exposes the localhost status/settings surface consumed by UI
// clients. It is glue around the engine: every decision stays in the engine,
// the handlers only validate boundary input and translate JSON.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/stridegate/stridegate/internal/domain"
	"github.com/stridegate/stridegate/internal/engine"
	"github.com/stridegate/stridegate/internal/infra"
)

// Step-goal bounds enforced at this boundary only; the engine itself accepts
// any positive goal.
const (
	minStepGoal = 1000
	maxStepGoal = 30000
)

// Server is the localhost HTTP API.
type Server struct {
	engine    *engine.Engine
	favorites *infra.FavoritesStore
	steps     *infra.StepSlotSource
	logger    *zap.Logger

	handler   http.Handler
	httpSrv   *http.Server
	statusSub int
}

// New builds the router. The server subscribes to the engine so gate flips
// show up in the log even with no client polling.
func New(eng *engine.Engine, favorites *infra.FavoritesStore, steps *infra.StepSlotSource, logger *zap.Logger) *Server {
	s := &Server{
		engine:    eng,
		favorites: favorites,
		steps:     steps,
		logger:    logger,
	}

	r := mux.NewRouter()
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	v1.HandleFunc("/settings", s.handlePatchSettings).Methods(http.MethodPatch)
	v1.HandleFunc("/progress/steps", s.handlePutSteps).Methods(http.MethodPut)
	v1.HandleFunc("/check", s.handleCheck).Methods(http.MethodGet)
	v1.HandleFunc("/favorites", s.handleListFavorites).Methods(http.MethodGet)
	v1.HandleFunc("/favorites", s.handleAddFavorite).Methods(http.MethodPost)
	v1.HandleFunc("/favorites/{id}", s.handleRemoveFavorite).Methods(http.MethodDelete)

	// Local UI surfaces only.
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.handler = c.Handler(r)

	var wasBlocked bool
	s.statusSub = eng.Subscribe(func(st domain.BlockingStatus) {
		if st.IsBlocked != wasBlocked {
			wasBlocked = st.IsBlocked
			logger.Info("gate flipped",
				zap.Bool("blocked", st.IsBlocked),
				zap.String("reason", st.Reason))
		}
	})

	return s
}

// Handler returns the HTTP handler (for tests and embedding).
func (s *Server) Handler() http.Handler { return s.handler }

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("api listening", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server and drops the engine subscription.
func (s *Server) Shutdown(ctx context.Context) error {
	s.engine.Unsubscribe(s.statusSub)
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Settings())
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch domain.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings patch")
		return
	}

	if patch.DailyStepGoal != nil {
		if *patch.DailyStepGoal < minStepGoal || *patch.DailyStepGoal > maxStepGoal {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("daily_step_goal must be between %d and %d", minStepGoal, maxStepGoal))
			return
		}
	}
	if patch.TrackingMode != nil {
		switch *patch.TrackingMode {
		case domain.TrackSteps, domain.TrackLocation, domain.TrackBoth:
		default:
			writeError(w, http.StatusBadRequest, "invalid tracking_mode")
			return
		}
	}

	s.engine.UpdateSettings(patch)
	writeJSON(w, http.StatusOK, s.engine.Settings())
}

func (s *Server) handlePutSteps(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Steps int `json:"steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid steps payload")
		return
	}
	if body.Steps < 0 {
		writeError(w, http.StatusBadRequest, "steps must be non-negative")
		return
	}

	if s.steps != nil {
		if err := s.steps.RecordSteps(body.Steps); err != nil {
			s.logger.Warn("failed to persist steps", zap.Error(err))
		}
	}
	s.engine.UpdateStepCount(body.Steps)
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// handleCheck answers "would this URL be blocked right now" for UI surfaces.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	writeJSON(w, http.StatusOK, map[string]any{
		"url":     target,
		"blocked": s.engine.ShouldBlock(target),
	})
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	favs, err := s.favorites.List()
	if err != nil {
		s.logger.Warn("failed to list favorites", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list favorites")
		return
	}
	if favs == nil {
		favs = []domain.Favorite{}
	}
	writeJSON(w, http.StatusOK, favs)
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	var fav domain.Favorite
	if err := json.NewDecoder(r.Body).Decode(&fav); err != nil {
		writeError(w, http.StatusBadRequest, "invalid favorite")
		return
	}
	if err := s.favorites.Add(fav); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, fav)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.favorites.Remove(id); err != nil {
		s.logger.Warn("failed to remove favorite", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to remove favorite")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
