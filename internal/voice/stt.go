package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/tgvoicechat/internal/workersai"
)

var ErrEmptyAudio = errors.New("voice note has no audio")

// Transcriber turns voice note bytes into text with the whisper model.
type Transcriber struct {
	runner Runner
	model  string
}

func NewTranscriber(runner Runner, model string) *Transcriber {
	model = strings.TrimSpace(model)
	if model == "" {
		model = workersai.ModelWhisper
	}
	return &Transcriber{runner: runner, model: model}
}

// Transcribe returns the recognized text. An empty transcription is not an
// error; the caller carries on with it.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	var out struct {
		Text string `json:"text"`
	}
	input := map[string]any{"audio": base64.StdEncoding.EncodeToString(audio)}
	if err := t.runner.Run(ctx, t.model, input, &out); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
