package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/tgvoicechat/internal/config"
	"github.com/ent0n29/tgvoicechat/internal/observability"
	"github.com/ent0n29/tgvoicechat/internal/policy"
	"github.com/ent0n29/tgvoicechat/internal/relay"
	"github.com/ent0n29/tgvoicechat/internal/telegram"
)

// maxUpdateBytes bounds a single webhook body.
const maxUpdateBytes = 1 << 20

type TurnHandler interface {
	HandleUpdate(ctx context.Context, update telegram.Update) relay.Outcome
}

type WebhookRegistrar interface {
	EnsureWebhook(ctx context.Context, targetURL string) (telegram.WebhookResult, error)
}

// Status is reported on the readiness endpoint. ActiveTurns is optional.
type Status struct {
	TTSProvider string
	StoreMode   string
	ActiveTurns func() int
}

type Server struct {
	cfg      config.Config
	turns    TurnHandler
	webhooks WebhookRegistrar
	metrics  *observability.Metrics
	status   Status
}

func New(cfg config.Config, turns TurnHandler, webhooks WebhookRegistrar, metrics *observability.Metrics, status Status) *Server {
	return &Server{
		cfg:      cfg,
		turns:    turns,
		webhooks: webhooks,
		metrics:  metrics,
		status:   status,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/init", s.handleInit)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			http.NotFound(w, r)
			return
		}
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Route("/v1/perf", s.perfRoutes)
	r.Get("/", acknowledge)

	// Any POST is treated as a webhook delivery.
	r.Post("/", s.handleUpdate)
	r.Post("/*", s.handleUpdate)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":       "ready",
		"tts_provider": s.status.TTSProvider,
		"store_mode":   s.status.StoreMode,
	}
	if s.status.ActiveTurns != nil {
		body["active_turns"] = s.status.ActiveTurns()
	}
	respondJSON(w, http.StatusOK, body)
}

// handleInit registers this deployment as the bot webhook.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	target := s.publicURL(r)
	log.Printf("webhook init: target=%s", target)
	result, err := s.webhooks.EnsureWebhook(r.Context(), target)
	if err != nil {
		msg := policy.Redact(err.Error())
		log.Printf("webhook init failed: %s", msg)
		respondJSON(w, http.StatusOK, telegram.WebhookResult{OK: false, Error: msg})
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleUpdate always acknowledges so the platform never retries a turn.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var update telegram.Update
	if err := decodeJSON(r, &update); err != nil {
		log.Printf("webhook: ignoring undecodable update: %v", err)
		acknowledge(w, r)
		return
	}
	out := s.turns.HandleUpdate(r.Context(), update)
	if out.Status != relay.StatusSkipped {
		log.Printf("turn=%s chat=%d status=%s failed=%v", out.TurnID, out.ChatID, out.Status, out.Failed())
	}
	acknowledge(w, r)
}

func (s *Server) publicURL(r *http.Request) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = strings.ToLower(strings.Split(proto, ",")[0])
	}
	host := r.Host
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); fwd != "" {
		host = strings.Split(fwd, ",")[0]
	}
	path := strings.TrimSuffix(strings.Replace(r.URL.Path, "/init", "", 1), "/")
	return scheme + "://" + strings.TrimSpace(host) + path
}

func acknowledge(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}

var errEmptyBody = errors.New("empty request body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
