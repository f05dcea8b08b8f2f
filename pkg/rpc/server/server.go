// Package server exposes the oracle's public operations over plain HTTP with
// JSON bodies. Each named engine error maps to a distinct status code so
// clients can branch on failures precisely.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	"github.com/rs/cors"

	"github.com/romulus-oracle/romulus/engine"
	"github.com/romulus-oracle/romulus/types"
)

// Server wraps the engine with an HTTP surface.
type Server struct {
	engine *engine.Engine
	logger logging.EventLogger
}

// NewServer creates a server around the given engine.
func NewServer(eng *engine.Engine, logger logging.EventLogger) *Server {
	return &Server{engine: eng, logger: logger}
}

// Handler returns the fully routed HTTP handler, CORS-wrapped.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health/live", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/requests", s.handleRequestRandom).Methods(http.MethodPost)
	v1.HandleFunc("/requests/{id}/reveal", s.handleReveal).Methods(http.MethodPost)
	v1.HandleFunc("/requests/{id}/time", s.handleRevealTime).Methods(http.MethodGet)
	v1.HandleFunc("/requests/{id}/valid", s.handleIsValid).Methods(http.MethodGet)
	v1.HandleFunc("/instant", s.handleInstant).Methods(http.MethodPost)
	v1.HandleFunc("/seeds/generate", s.handleGenerateSeed).Methods(http.MethodPost)
	v1.HandleFunc("/seeds/{slot}/invalidate", s.handleInvalidateSeed).Methods(http.MethodPost)
	v1.HandleFunc("/callback-budget", s.handleSetBudget).Methods(http.MethodPut)
	v1.HandleFunc("/ring", s.handleRingStatus).Methods(http.MethodGet)
	v1.HandleFunc("/entropy", s.handleEntropyStats).Methods(http.MethodGet)
	v1.HandleFunc("/constants", s.handleConstants).Methods(http.MethodGet)

	return cors.Default().Handler(r)
}

type callRequest struct {
	Caller       common.Address `json:"caller"`
	GasRemaining uint64         `json:"gas_remaining"`
	Data         hexutil.Bytes  `json:"data"`
	Span         *uint16        `json:"span"`
	Budget       uint64         `json:"budget"`
}

func (c callRequest) call() types.Call {
	return types.Call{Caller: c.Caller, GasRemaining: c.GasRemaining}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.logger.Error("failed to encode response", "error", err)
		}
	}
}

// writeError maps the engine's error taxonomy onto HTTP status codes:
// validation 400, authorization 403, unknown id 404, temporal 425,
// expired/unavailable resources 410.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidSpan),
		errors.Is(err, engine.ErrSpanTooLarge),
		errors.Is(err, engine.ErrInvalidSlot),
		errors.Is(err, engine.ErrInvalidBudget):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrRequestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrTooEarlyToReveal),
		errors.Is(err, engine.ErrTooEarlyToGenerateSeed):
		status = http.StatusTooEarly
	case errors.Is(err, engine.ErrHashUnavailable),
		errors.Is(err, engine.ErrNoValidSeeds),
		errors.Is(err, engine.ErrNotEnoughHistory):
		status = http.StatusGone
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) decodeCall(w http.ResponseWriter, r *http.Request) (callRequest, bool) {
	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return req, false
	}
	return req, true
}

func requestID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

func (s *Server) handleRequestRandom(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCall(w, r)
	if !ok {
		return
	}

	var id uint64
	var err error
	if req.Span != nil {
		id, err = s.engine.RequestRandom(r.Context(), req.call(), req.Data, *req.Span)
	} else {
		id, err = s.engine.RequestRandomDefault(r.Context(), req.call(), req.Data)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	canRevealAt, wait, err := s.engine.RevealTime(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"id":               id,
		"can_reveal_at":    canRevealAt,
		"est_wait_seconds": uint64(wait / time.Second),
	})
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request id"})
		return
	}
	req, ok := s.decodeCall(w, r)
	if !ok {
		return
	}

	random, err := s.engine.RevealRandom(r.Context(), req.call(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "random": random})
}

func (s *Server) handleRevealTime(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request id"})
		return
	}

	canRevealAt, wait, err := s.engine.RevealTime(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"can_reveal_at":    canRevealAt,
		"est_wait_seconds": uint64(wait / time.Second),
	})
}

func (s *Server) handleIsValid(w http.ResponseWriter, r *http.Request) {
	id, err := requestID(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request id"})
		return
	}

	valid, blocksLeft, err := s.engine.IsRequestValid(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"valid":               valid,
		"blocks_until_expiry": blocksLeft,
	})
}

func (s *Server) handleInstant(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCall(w, r)
	if !ok {
		return
	}

	random, err := s.engine.GetInstantRandom(r.Context(), req.call(), req.Data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"random": random})
}

func (s *Server) handleGenerateSeed(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCall(w, r)
	if !ok {
		return
	}
	if err := s.engine.GenerateSeed(r.Context(), req.call()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvalidateSeed(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.ParseUint(mux.Vars(r)["slot"], 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid slot"})
		return
	}
	req, ok := s.decodeCall(w, r)
	if !ok {
		return
	}
	if err := s.engine.InvalidateSeed(r.Context(), req.call(), slot); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCall(w, r)
	if !ok {
		return
	}
	if err := s.engine.SetCallbackBudget(r.Context(), req.call(), req.Budget); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.RingStatus(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"valid_seeds":     status.ValidSeeds,
		"oldest_seed_age": status.OldestSeedAge,
		"next_refresh_in": status.NextRefreshIn,
	})
}

func (s *Server) handleEntropyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.EntropyStats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"contributions":     stats.Contributions,
		"last_block":        stats.LastBlock,
		"blocks_since_last": stats.BlocksSinceLast,
	})
}

func (s *Server) handleConstants(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Constants())
}
