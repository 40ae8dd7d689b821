// Package workersai talks to Cloudflare Workers AI over its REST surface.
package workersai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	ModelWhisper = "@cf/openai/whisper-large-v3-turbo"
	ModelChat    = "@cf/meta/llama-4-scout-17b-16e-instruct"
	ModelMeloTTS = "@cf/myshell-ai/melotts"
	ModelAura    = "@cf/deepgram/aura-1"
	ModelImage   = "@cf/leonardo/lucid-origin"

	DefaultBaseURL = "https://api.cloudflare.com/client/v4"
)

type Config struct {
	AccountID  string
	APIToken   string
	BaseURL    string
	HTTPClient *http.Client
}

// Client runs models on an account. It is safe for concurrent use.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Client{cfg: cfg, client: client}
}

// APIError is returned for non-2xx responses and unsuccessful envelopes.
type APIError struct {
	Model    string
	Status   int
	Messages []string
}

func (e *APIError) Error() string {
	detail := strings.Join(e.Messages, "; ")
	if detail == "" {
		detail = http.StatusText(e.Status)
	}
	return fmt.Sprintf("workers ai %s status %d: %s", e.Model, e.Status, detail)
}

type envelope struct {
	Result  json.RawMessage `json:"result"`
	Success bool            `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// OpenAIBaseURL is the OpenAI-compatible endpoint root for chat completions.
func (c *Client) OpenAIBaseURL() string {
	return c.cfg.BaseURL + "/accounts/" + url.PathEscape(c.cfg.AccountID) + "/ai/v1"
}

// APIToken is the bearer credential shared with the OpenAI-compatible surface.
func (c *Client) APIToken() string {
	return c.cfg.APIToken
}

// Run invokes model with input and decodes the envelope result into out.
// out may be nil when the caller only cares about success.
func (c *Client) Run(ctx context.Context, model string, input, out any) error {
	res, err := c.post(ctx, model, input)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", model, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return apiErrorFrom(model, res.StatusCode, body)
	}

	var env envelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode %s envelope: %w", model, err)
	}
	if !env.Success {
		return apiErrorFrom(model, res.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", model, err)
	}
	return nil
}

// RunRaw invokes model and hands back the untransformed transport object
// instead of decoding it. The concrete type is currently *http.Response and
// the caller owns its body.
func (c *Client) RunRaw(ctx context.Context, model string, input any) (any, error) {
	res, err := c.post(ctx, model, input)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, apiErrorFrom(model, res.StatusCode, body)
	}
	return res, nil
}

func (c *Client) post(ctx context.Context, model string, input any) (*http.Response, error) {
	payload, err := sonic.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal %s input: %w", model, err)
	}

	endpoint := c.cfg.BaseURL + "/accounts/" + url.PathEscape(c.cfg.AccountID) + "/ai/run/" + model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", model, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send %s request: %w", model, err)
	}
	return res, nil
}

func apiErrorFrom(model string, status int, body []byte) *APIError {
	apiErr := &APIError{Model: model, Status: status}
	var env envelope
	if err := sonic.Unmarshal(body, &env); err == nil {
		for _, e := range env.Errors {
			apiErr.Messages = append(apiErr.Messages, e.Message)
		}
	}
	if len(apiErr.Messages) == 0 {
		if text := strings.TrimSpace(string(body)); text != "" {
			apiErr.Messages = []string{text}
		}
	}
	return apiErr
}
