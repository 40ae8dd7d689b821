package app

import (
	"fmt"
	"net/http"

	"github.com/ent0n29/tgvoicechat/internal/config"
	"github.com/ent0n29/tgvoicechat/internal/voice"
)

type voiceSetup struct {
	transcriber *voice.Transcriber
	synthesizer voice.Synthesizer
	provider    voice.ProviderName
	detail      string
}

// resolveVoice builds the transcriber and the single tts provider selected by
// configuration.
func resolveVoice(cfg config.Config, backend voice.Backend, client *http.Client) (voiceSetup, error) {
	synth, err := voice.NewSynthesizer(cfg.TTS, backend, client)
	if err != nil {
		return voiceSetup{}, fmt.Errorf("tts provider init failed: %w", err)
	}

	provider := synth.Name()
	var detail string
	switch provider {
	case voice.ProviderDeepgram:
		req := voice.BuildDeepgramRequest("", cfg.TTS)
		detail = fmt.Sprintf("deepgram aura (speaker=%s, %s)", req.Speaker, voice.DeepgramMIME(req))
	case voice.ProviderSiliconFlow:
		detail = "siliconflow gpt-sovits"
	default:
		detail = "workers melotts"
	}

	return voiceSetup{
		transcriber: voice.NewTranscriber(backend, cfg.WhisperModel),
		synthesizer: synth,
		provider:    provider,
		detail:      detail,
	}, nil
}
