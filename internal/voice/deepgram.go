package voice

import (
	"context"
	"fmt"
	"log"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/ent0n29/tgvoicechat/internal/audio"
	"github.com/ent0n29/tgvoicechat/internal/config"
	"github.com/ent0n29/tgvoicechat/internal/workersai"
)

const (
	defaultDeepgramSpeaker    = "angus"
	defaultDeepgramSampleRate = 24000
)

var (
	deepgramSpeakers = []string{
		"angus", "asteria", "arcas", "orion", "orpheus", "athena",
		"luna", "zeus", "perseus", "helios", "hera", "stella",
	}
	deepgramEncodings  = []string{"linear16", "flac", "mulaw", "alaw", "mp3", "opus", "aac"}
	deepgramContainers = []string{"none", "wav", "ogg"}
)

// DeepgramRequest is the Aura model input. Optional fields are omitted when
// their configured value did not validate.
type DeepgramRequest struct {
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker"`
	Encoding   string  `json:"encoding,omitempty"`
	Container  string  `json:"container,omitempty"`
	SampleRate float64 `json:"sample_rate,omitempty"`
	BitRate    float64 `json:"bit_rate,omitempty"`
}

// BuildDeepgramRequest applies the configured options that pass validation.
// Invalid values never fail the request; they fall back to provider defaults.
func BuildDeepgramRequest(text string, cfg config.TTSConfig) DeepgramRequest {
	req := DeepgramRequest{Text: text, Speaker: defaultDeepgramSpeaker}
	if v := strings.TrimSpace(cfg.Speaker); slices.Contains(deepgramSpeakers, v) {
		req.Speaker = v
	}
	if v := strings.TrimSpace(cfg.Encoding); slices.Contains(deepgramEncodings, v) {
		req.Encoding = v
	}
	if v := strings.TrimSpace(cfg.Container); slices.Contains(deepgramContainers, v) {
		req.Container = v
	}
	if n, ok := positiveNumber(cfg.SampleRate); ok {
		req.SampleRate = n
	}
	if n, ok := positiveNumber(cfg.BitRate); ok {
		req.BitRate = n
	}
	return req
}

func positiveNumber(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return 0, false
	}
	return n, true
}

// DeepgramMIME derives the payload MIME type from the requested output.
func DeepgramMIME(req DeepgramRequest) string {
	switch {
	case req.Container == "wav" || req.Encoding == "linear16":
		return "audio/wav"
	case req.Container == "ogg" || req.Encoding == "opus":
		return "audio/ogg"
	case req.Encoding == "aac":
		return "audio/aac"
	default:
		return "audio/mpeg"
	}
}

// DeepgramProvider synthesizes speech with the Aura model.
type DeepgramProvider struct {
	runner RawRunner
	model  string
	cfg    config.TTSConfig
}

func NewDeepgramProvider(runner RawRunner, cfg config.TTSConfig) *DeepgramProvider {
	return &DeepgramProvider{runner: runner, model: workersai.ModelAura, cfg: cfg}
}

func (p *DeepgramProvider) Name() ProviderName { return ProviderDeepgram }

func (p *DeepgramProvider) Synthesize(ctx context.Context, text string) (AudioPayload, error) {
	req := BuildDeepgramRequest(text, p.cfg)
	raw, err := p.runner.RunRaw(ctx, p.model, req)
	if err != nil {
		return AudioPayload{}, generationFailed(p.Name(), err)
	}
	payload, err := normalizeDeepgram(raw, DeepgramMIME(req))
	if err != nil {
		return AudioPayload{}, generationFailed(p.Name(), err)
	}
	if req.Encoding == "linear16" && req.Container == "none" {
		// Bare PCM; give it a container so the audio/wav label holds.
		rate := int(req.SampleRate)
		if rate <= 0 {
			rate = defaultDeepgramSampleRate
		}
		wav, err := audio.WrapPCM16(payload.Data, rate)
		if err != nil {
			return AudioPayload{}, generationFailed(p.Name(), fmt.Errorf("wrap pcm: %w", err))
		}
		payload = AudioPayload{Data: wav, MIMEType: "audio/wav"}
	}
	log.Printf("tts %s: voice generated (%d bytes, %s)", p.Name(), len(payload.Data), payload.MIMEType)
	return payload, nil
}
