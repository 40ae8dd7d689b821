package voice

import (
	"log"
	"net/http"
	"strings"

	"github.com/ent0n29/tgvoicechat/internal/config"
	"github.com/ent0n29/tgvoicechat/internal/policy"
)

type ProviderName string

const (
	ProviderWorkers     ProviderName = "workers"
	ProviderSiliconFlow ProviderName = "siliconflow"
	ProviderDeepgram    ProviderName = "deepgram"
)

// ResolveProvider picks the tts provider from configuration alone: a
// recognized explicit name wins, otherwise siliconflow when its credential is
// present, else workers.
func ResolveProvider(cfg config.TTSConfig) ProviderName {
	switch ProviderName(strings.ToLower(strings.TrimSpace(cfg.Provider))) {
	case ProviderWorkers:
		return ProviderWorkers
	case ProviderSiliconFlow:
		return ProviderSiliconFlow
	case ProviderDeepgram:
		return ProviderDeepgram
	}
	if strings.TrimSpace(cfg.SiliconFlowToken) != "" {
		return ProviderSiliconFlow
	}
	return ProviderWorkers
}

// NewSynthesizer resolves the provider once and builds it.
func NewSynthesizer(cfg config.TTSConfig, backend Backend, client *http.Client) (Synthesizer, error) {
	switch ResolveProvider(cfg) {
	case ProviderDeepgram:
		return NewDeepgramProvider(backend, cfg), nil
	case ProviderSiliconFlow:
		p, err := NewSiliconFlowProvider(SiliconFlowConfig{Token: cfg.SiliconFlowToken}, client)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return NewWorkersProvider(backend, cfg.Lang), nil
	}
}

func generationFailed(name ProviderName, err error) error {
	log.Printf("tts %s: generation failed: %s", name, policy.Redact(err.Error()))
	return ErrVoiceGeneration
}
