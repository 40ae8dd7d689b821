package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	DefaultSiliconFlowURL = "https://api.siliconflow.cn/v1/audio/speech"

	siliconFlowModel = "RVC-Boss/GPT-SoVITS"
	siliconFlowVoice = "RVC-Boss/GPT-SoVITS:anna"
)

type SiliconFlowConfig struct {
	Token string
	URL   string
}

// SiliconFlowProvider calls the external GPT-SoVITS speech endpoint.
type SiliconFlowProvider struct {
	token  string
	url    string
	client *http.Client
}

type siliconFlowRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	SampleRate     int     `json:"sample_rate"`
	Stream         bool    `json:"stream"`
	Speed          float64 `json:"speed"`
	Gain           float64 `json:"gain"`
}

func NewSiliconFlowProvider(cfg SiliconFlowConfig, client *http.Client) (*SiliconFlowProvider, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, ErrMissingSiliconFlowToken
	}
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = DefaultSiliconFlowURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &SiliconFlowProvider{token: token, url: url, client: client}, nil
}

func (p *SiliconFlowProvider) Name() ProviderName { return ProviderSiliconFlow }

func (p *SiliconFlowProvider) Synthesize(ctx context.Context, text string) (AudioPayload, error) {
	if p == nil || p.token == "" {
		return AudioPayload{}, fmt.Errorf("%w: %w", ErrVoiceGeneration, ErrMissingSiliconFlowToken)
	}
	body, err := sonic.Marshal(siliconFlowRequest{
		Model:          siliconFlowModel,
		Input:          text,
		Voice:          siliconFlowVoice,
		ResponseFormat: "mp3",
		SampleRate:     32000,
		Stream:         false,
		Speed:          1,
		Gain:           0,
	})
	if err != nil {
		return AudioPayload{}, generationFailed(p.Name(), err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return AudioPayload{}, generationFailed(p.Name(), err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return AudioPayload{}, generationFailed(p.Name(), err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return AudioPayload{}, generationFailed(p.Name(), err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return AudioPayload{}, generationFailed(p.Name(), fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(data))))
	}

	mimeType := "audio/mpeg"
	if mt, _, err := mime.ParseMediaType(res.Header.Get("Content-Type")); err == nil && strings.HasPrefix(mt, "audio/") {
		mimeType = mt
	}
	log.Printf("tts %s: voice generated (%d bytes, %s)", p.Name(), len(data), mimeType)
	return AudioPayload{Data: data, MIMEType: mimeType}, nil
}
