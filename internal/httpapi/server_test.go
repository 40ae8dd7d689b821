package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ent0n29/tgvoicechat/internal/config"
	"github.com/ent0n29/tgvoicechat/internal/observability"
	"github.com/ent0n29/tgvoicechat/internal/relay"
	"github.com/ent0n29/tgvoicechat/internal/telegram"
)

type stubTurns struct {
	mu      sync.Mutex
	updates []telegram.Update
	status  relay.Status
}

func (s *stubTurns) HandleUpdate(_ context.Context, update telegram.Update) relay.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update)
	return relay.Outcome{Status: s.status}
}

type stubWebhooks struct {
	targets []string
	err     error
}

func (s *stubWebhooks) EnsureWebhook(_ context.Context, target string) (telegram.WebhookResult, error) {
	s.targets = append(s.targets, target)
	if s.err != nil {
		return telegram.WebhookResult{}, s.err
	}
	return telegram.WebhookResult{OK: true, Result: telegram.AlreadyRegistered}, nil
}

func newTestServer(t *testing.T, cfg config.Config, turns *stubTurns, hooks *stubWebhooks) *httptest.Server {
	t.Helper()
	srv := New(cfg, turns, hooks, observability.NewMetrics("httpapi_test"), Status{
		TTSProvider: "deepgram",
		StoreMode:   "in-memory",
		ActiveTurns: func() int { return 2 },
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func readAll(t *testing.T, res *http.Response) string {
	t.Helper()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestWebhookAcknowledgesAndRunsTurn(t *testing.T) {
	turns := &stubTurns{status: relay.StatusFailed}
	ts := newTestServer(t, config.Config{}, turns, &stubWebhooks{})

	res, err := http.Post(ts.URL+"/", "application/json", strings.NewReader(`{"update_id":1,"message":{"chat":{"id":99},"text":"hi"}}`))
	if err != nil {
		t.Fatalf("POST / error = %v", err)
	}
	if body := readAll(t, res); res.StatusCode != http.StatusOK || body != "OK" {
		t.Fatalf("POST / = %d %q, want 200 OK", res.StatusCode, body)
	}
	if len(turns.updates) != 1 || turns.updates[0].Message.Chat.ID != 99 || turns.updates[0].Message.Text != "hi" {
		t.Fatalf("updates = %+v, want one text update for chat 99", turns.updates)
	}
}

func TestWebhookAcknowledgesUndecodableBodies(t *testing.T) {
	turns := &stubTurns{}
	ts := newTestServer(t, config.Config{}, turns, &stubWebhooks{})

	for _, body := range []string{"", "{not json", "[]"} {
		res, err := http.Post(ts.URL+"/", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST / error = %v", err)
		}
		if got := readAll(t, res); res.StatusCode != http.StatusOK || got != "OK" {
			t.Fatalf("POST %q = %d %q, want 200 OK", body, res.StatusCode, got)
		}
	}
	if len(turns.updates) != 0 {
		t.Fatalf("updates = %d, want 0", len(turns.updates))
	}
}

func TestWebhookAcceptsAnyPostPath(t *testing.T) {
	turns := &stubTurns{}
	ts := newTestServer(t, config.Config{}, turns, &stubWebhooks{})

	res, err := http.Post(ts.URL+"/bot/hook", "application/json", strings.NewReader(`{"message":{"chat":{"id":1},"text":"x"}}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	if body := readAll(t, res); res.StatusCode != http.StatusOK || body != "OK" {
		t.Fatalf("POST /bot/hook = %d %q, want 200 OK", res.StatusCode, body)
	}
	if len(turns.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(turns.updates))
	}
}

func TestInitDerivesPublicURL(t *testing.T) {
	hooks := &stubWebhooks{}
	ts := newTestServer(t, config.Config{}, &stubTurns{}, hooks)

	res, err := http.Get(ts.URL + "/init")
	if err != nil {
		t.Fatalf("GET /init error = %v", err)
	}
	var got telegram.WebhookResult
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode /init: %v", err)
	}
	res.Body.Close()
	if !got.OK || got.Result != telegram.AlreadyRegistered {
		t.Fatalf("/init = %+v, want already registered", got)
	}
	if len(hooks.targets) != 1 || hooks.targets[0] != ts.URL {
		t.Fatalf("targets = %q, want [%s]", hooks.targets, ts.URL)
	}
}

func TestInitPrefersConfiguredPublicURL(t *testing.T) {
	hooks := &stubWebhooks{}
	ts := newTestServer(t, config.Config{PublicURL: "https://relay.example.com"}, &stubTurns{}, hooks)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/init", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /init error = %v", err)
	}
	res.Body.Close()
	if len(hooks.targets) != 1 || hooks.targets[0] != "https://relay.example.com" {
		t.Fatalf("targets = %q, want configured url", hooks.targets)
	}
}

func TestInitReportsRegistrationError(t *testing.T) {
	hooks := &stubWebhooks{err: errors.New("telegram unreachable")}
	ts := newTestServer(t, config.Config{}, &stubTurns{}, hooks)

	res, err := http.Get(ts.URL + "/init")
	if err != nil {
		t.Fatalf("GET /init error = %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	var got map[string]any
	_ = json.NewDecoder(res.Body).Decode(&got)
	res.Body.Close()
	if got["ok"] != false || got["error"] != "telegram unreachable" {
		t.Fatalf("/init = %v, want ok=false with error", got)
	}
}

func TestPublicURLFromForwardedHeaders(t *testing.T) {
	s := New(config.Config{}, nil, nil, nil, Status{})
	r := httptest.NewRequest(http.MethodGet, "/init", nil)
	r.Host = "internal:8080"
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "bot.example.com")
	if got := s.publicURL(r); got != "https://bot.example.com" {
		t.Fatalf("publicURL() = %q, want https://bot.example.com", got)
	}
}

func TestReadyReportsProviderAndStore(t *testing.T) {
	ts := newTestServer(t, config.Config{}, &stubTurns{}, &stubWebhooks{})
	res, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	var got map[string]any
	_ = json.NewDecoder(res.Body).Decode(&got)
	res.Body.Close()
	if got["tts_provider"] != "deepgram" || got["store_mode"] != "in-memory" || got["active_turns"] != float64(2) {
		t.Fatalf("/readyz = %v", got)
	}
}

func TestMetricsAndPerfEndpoints(t *testing.T) {
	ts := newTestServer(t, config.Config{}, &stubTurns{}, &stubWebhooks{})
	for _, path := range []string{"/metrics", "/v1/perf/latency", "/healthz"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, res.StatusCode)
		}
	}
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/perf/latency", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /v1/perf/latency error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", res.StatusCode)
	}
}
