package voice

import (
	"context"
	"errors"
)

var (
	// ErrVoiceGeneration is the only error callers see from a failed synthesis;
	// the provider cause is logged at the boundary.
	ErrVoiceGeneration = errors.New("voice generation failed")

	ErrMissingSiliconFlowToken = errors.New("siliconflow token is required for the selected tts provider")
	ErrUnsupportedResponse     = errors.New("unsupported response type")
)

// AudioPayload is synthesized speech normalized to bytes plus a MIME type.
type AudioPayload struct {
	Data     []byte
	MIMEType string
}

// Synthesizer turns reply text into speech. Exactly one provider backs it.
type Synthesizer interface {
	Name() ProviderName
	Synthesize(ctx context.Context, text string) (AudioPayload, error)
}

// Runner runs a model and decodes its result into out.
type Runner interface {
	Run(ctx context.Context, model string, input, out any) error
}

// RawRunner runs a model and returns whatever transport object the backend
// produced, untouched.
type RawRunner interface {
	RunRaw(ctx context.Context, model string, input any) (any, error)
}

// Backend is the AI capability binding shared by the model-backed providers.
type Backend interface {
	Runner
	RawRunner
}
