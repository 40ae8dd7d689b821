package workersai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunDecodesResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/acct/ai/run/@cf/openai/whisper-large-v3-turbo" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result":{"text":"hello there"},"success":true,"errors":[],"messages":[]}`)
	}))
	defer ts.Close()

	c := NewClient(Config{AccountID: "acct", APIToken: "tok", BaseURL: ts.URL})
	var out struct {
		Text string `json:"text"`
	}
	if err := c.Run(context.Background(), ModelWhisper, map[string]any{"audio": "AAA="}, &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Text != "hello there" {
		t.Fatalf("Text = %q, want %q", out.Text, "hello there")
	}
}

func TestRunReturnsAPIErrorWithMessages(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"result":null,"success":false,"errors":[{"code":5006,"message":"bad input"}]}`)
	}))
	defer ts.Close()

	c := NewClient(Config{AccountID: "acct", APIToken: "tok", BaseURL: ts.URL})
	err := c.Run(context.Background(), ModelImage, map[string]any{"prompt": "x"}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Run() error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Fatalf("Status = %d, want %d", apiErr.Status, http.StatusBadRequest)
	}
	if len(apiErr.Messages) != 1 || apiErr.Messages[0] != "bad input" {
		t.Fatalf("Messages = %v, want [bad input]", apiErr.Messages)
	}
}

func TestRunRawReturnsResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte{0x49, 0x44, 0x33})
	}))
	defer ts.Close()

	c := NewClient(Config{AccountID: "acct", APIToken: "tok", BaseURL: ts.URL})
	raw, err := c.RunRaw(context.Background(), ModelAura, map[string]any{"text": "hi", "speaker": "angus"})
	if err != nil {
		t.Fatalf("RunRaw() error = %v", err)
	}
	res, ok := raw.(*http.Response)
	if !ok {
		t.Fatalf("RunRaw() type = %T, want *http.Response", raw)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if len(body) != 3 {
		t.Fatalf("len(body) = %d, want 3", len(body))
	}
}

func TestOpenAIBaseURL(t *testing.T) {
	c := NewClient(Config{AccountID: "acct"})
	want := DefaultBaseURL + "/accounts/acct/ai/v1"
	if got := c.OpenAIBaseURL(); got != want {
		t.Fatalf("OpenAIBaseURL() = %q, want %q", got, want)
	}
}
