// Package telegram wraps the Bot API calls the relay sends and reads.
package telegram

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/ent0n29/tgvoicechat/internal/reliability"
	"github.com/ent0n29/tgvoicechat/internal/voice"
)

const DefaultBaseURL = "https://api.telegram.org"

// AlreadyRegistered is the result reported when the webhook needs no change.
const AlreadyRegistered = "Webhook already registered"

// maxErrorBody caps how much of a failed reply is kept on an APIError.
const maxErrorBody = 64 << 10

type Config struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	bot    *bot.Bot
	client *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	b, err := bot.New(cfg.Token,
		bot.WithServerURL(base),
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(client.Timeout, statusClient{client: client}),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram client: %w", err)
	}
	return &Client{bot: b, client: client}, nil
}

// APIError is a non-success HTTP reply from the Bot API.
type APIError struct {
	Method string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: status %d: %s", e.Method, e.Status, e.Body)
}

// Retryable reports whether the platform signalled a transient failure.
func (e *APIError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.Status)
}

// statusClient turns non-2xx replies into *APIError before the bot library
// decodes them, so callers keep the HTTP status.
type statusClient struct {
	client *http.Client
}

func (s statusClient) Do(req *http.Request) (*http.Response, error) {
	res, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 200 && res.StatusCode <= 299 {
		return res, nil
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	return nil, &APIError{
		Method: path.Base(req.URL.Path),
		Status: res.StatusCode,
		Body:   strings.TrimSpace(string(data)),
	}
}

func wrap(method string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return fmt.Errorf("telegram %s: %w", method, err)
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		return wrap("sendMessage", err)
	}
	return nil
}

// SendVoice uploads synthesized speech as a voice message.
func (c *Client) SendVoice(ctx context.Context, chatID int64, audio voice.AudioPayload) error {
	_, err := c.bot.SendVoice(ctx, &bot.SendVoiceParams{
		ChatID: chatID,
		Voice: &models.InputFileUpload{
			Filename: "response" + audioExtension(audio.MIMEType),
			Data:     bytes.NewReader(audio.Data),
		},
	})
	if err != nil {
		return wrap("sendVoice", err)
	}
	return nil
}

// SendImage decodes a base64 image and uploads it as a JPEG photo.
func (c *Client) SendImage(ctx context.Context, chatID int64, imageBase64 string) error {
	data, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	_, err = c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID: chatID,
		Photo:  &models.InputFileUpload{Filename: "image.jpg", Data: bytes.NewReader(data)},
	})
	if err != nil {
		return wrap("sendPhoto", err)
	}
	return nil
}

// ResolveFileURL turns a file id into its download URL.
func (c *Client) ResolveFileURL(ctx context.Context, fileID string) (string, error) {
	file, err := c.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", wrap("getFile", err)
	}
	if file == nil || file.FilePath == "" {
		return "", errors.New("telegram getFile: empty file_path")
	}
	return c.bot.FileDownloadLink(file), nil
}

// Download fetches a file URL from ResolveFileURL. The bot library only builds
// the link, so this goes through the shared http.Client directly.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &APIError{Method: "file", Status: res.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

func (c *Client) WebhookInfo(ctx context.Context) (WebhookInfo, error) {
	info, err := c.bot.GetWebhookInfo(ctx)
	if err != nil {
		return WebhookInfo{}, wrap("getWebhookInfo", err)
	}
	if info == nil {
		return WebhookInfo{}, nil
	}
	return WebhookInfo{
		URL:                  info.URL,
		PendingUpdateCount:   int(info.PendingUpdateCount),
		LastErrorDate:        int64(info.LastErrorDate),
		LastErrorMessage:     info.LastErrorMessage,
		HasCustomCertificate: info.HasCustomCertificate,
	}, nil
}

// EnsureWebhook registers targetURL unless it is already the active webhook.
func (c *Client) EnsureWebhook(ctx context.Context, targetURL string) (WebhookResult, error) {
	info, err := c.WebhookInfo(ctx)
	if err != nil {
		return WebhookResult{}, err
	}
	if info.URL == targetURL {
		return WebhookResult{OK: true, Result: AlreadyRegistered, WebhookInfo: &info}, nil
	}

	ok, err := c.bot.SetWebhook(ctx, &bot.SetWebhookParams{URL: targetURL})
	if err != nil {
		return WebhookResult{}, wrap("setWebhook", err)
	}
	log.Printf("telegram: webhook registered url=%s", targetURL)
	return WebhookResult{OK: ok, Result: ok}, nil
}

// audioExtension maps a MIME type to an upload file extension.
func audioExtension(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = ""
	}
	switch mt {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/aac":
		return ".aac"
	case "audio/flac":
		return ".flac"
	default:
		return ".mp3"
	}
}
