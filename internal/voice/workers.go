package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ent0n29/tgvoicechat/internal/workersai"
)

// WorkersProvider synthesizes speech with the MeloTTS model.
type WorkersProvider struct {
	runner Runner
	model  string
	lang   string
}

func NewWorkersProvider(runner Runner, lang string) *WorkersProvider {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = "en"
	}
	return &WorkersProvider{runner: runner, model: workersai.ModelMeloTTS, lang: lang}
}

func (p *WorkersProvider) Name() ProviderName { return ProviderWorkers }

func (p *WorkersProvider) Synthesize(ctx context.Context, text string) (AudioPayload, error) {
	var raw json.RawMessage
	if err := p.runner.Run(ctx, p.model, map[string]any{"prompt": text, "lang": p.lang}, &raw); err != nil {
		return AudioPayload{}, generationFailed(p.Name(), err)
	}
	encoded, err := melottsAudio(raw)
	if err != nil {
		return AudioPayload{}, generationFailed(p.Name(), err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return AudioPayload{}, generationFailed(p.Name(), fmt.Errorf("decode audio: %w", err))
	}
	log.Printf("tts %s: voice generated (%d bytes)", p.Name(), len(data))
	return AudioPayload{Data: data, MIMEType: "audio/mpeg"}, nil
}

// melottsAudio accepts either a bare base64 string or an object carrying it
// in its audio field.
func melottsAudio(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", errors.New("no audio returned")
		}
		return s, nil
	}
	var obj struct {
		Audio string `json:"audio"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("decode result: %w", err)
	}
	if obj.Audio == "" {
		return "", errors.New("no audio returned")
	}
	return obj.Audio, nil
}
