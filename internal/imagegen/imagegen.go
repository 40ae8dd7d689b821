// Package imagegen renders an image prompt with the Workers AI image model.
package imagegen

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/ent0n29/tgvoicechat/internal/workersai"
)

var ErrImageGeneration = errors.New("image generation failed")

type Runner interface {
	Run(ctx context.Context, model string, input, out any) error
}

type Generator struct {
	runner Runner
	model  string
}

func NewGenerator(runner Runner, model string) *Generator {
	model = strings.TrimSpace(model)
	if model == "" {
		model = workersai.ModelImage
	}
	return &Generator{runner: runner, model: model}
}

// Generate returns the image as base64. Failures are logged and reported as
// ErrImageGeneration.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	var out struct {
		Image string `json:"image"`
	}
	if err := g.runner.Run(ctx, g.model, map[string]any{"prompt": prompt}, &out); err != nil {
		log.Printf("imagegen %s: %v", g.model, err)
		return "", ErrImageGeneration
	}
	if out.Image == "" {
		log.Printf("imagegen %s: empty image in result", g.model)
		return "", ErrImageGeneration
	}
	return out.Image, nil
}
