package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
	pipelinex "github.com/sjin4861/deepcatch-agent/agent/pipeline"
	statex "github.com/sjin4861/deepcatch-agent/agent/state"
)

type Config struct {
	Addr            string        `split_words:"true" default:":8080"`
	RequestTimeout  time.Duration `split_words:"true" default:"60s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

// Server exposes the pipeline over HTTP: the chat endpoint and the
// telephony event webhook.
type Server struct {
	cfg      Config
	pipeline *pipelinex.Pipeline
	httpSrv  *http.Server
}

func New(cfg Config, p *pipelinex.Pipeline) *Server {
	s := &Server{cfg: cfg, pipeline: p}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(s.cfg.RequestTimeout))
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/call/events", s.handleCallEvent)
	})

	return r
}

func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req contractx.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// Session ids are minted here so the very first message needs none.
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	resp, err := s.pipeline.HandleMessage(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, pipelinex.ErrInvalidMessage), errors.Is(err, pipelinex.ErrInvalidSession):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).Str("session_id", req.SessionID).Msg("chat turn failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, struct {
		SessionID string `json:"sessionId"`
		contractx.ChatResponse
	}{SessionID: req.SessionID, ChatResponse: resp})
}

func (s *Server) handleCallEvent(w http.ResponseWriter, r *http.Request) {
	var ev contractx.CallEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.pipeline.ReconcileCallEvent(r.Context(), ev); err != nil {
		switch {
		case errors.Is(err, statex.ErrStateNotFound):
			writeError(w, http.StatusNotFound, "unknown session")
		case errors.Is(err, contractx.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).Str("call_sid", ev.CallSID).Msg("call event reconcile failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
