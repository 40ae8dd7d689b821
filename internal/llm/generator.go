// Package llm produces chat replies and image prompts with the Workers AI
// chat model over its OpenAI-compatible endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ent0n29/tgvoicechat/internal/memory"
)

// HistoryWindow is how many of the most recent turns are rendered into a reply.
const HistoryWindow = 10

type Mode int

const (
	ModeReply Mode = iota
	ModeImagePrompt
)

func (m Mode) String() string {
	if m == ModeImagePrompt {
		return "image_prompt"
	}
	return "reply"
}

var ErrEmptyCompletion = errors.New("model returned an empty completion")

// ChatClient is the subset of *openai.Client the generator needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Generator struct {
	client ChatClient
	model  string
}

func NewGenerator(client ChatClient, model string) *Generator {
	return &Generator{client: client, model: model}
}

// NewOpenAIClient points go-openai at an OpenAI-compatible base URL.
func NewOpenAIClient(baseURL, token string, httpClient openai.HTTPDoer) *openai.Client {
	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = baseURL
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(cfg)
}

// Generate runs one completion. Concurrent calls are independent.
func (g *Generator) Generate(ctx context.Context, input string, history []memory.Turn, mode Mode) (string, error) {
	var prompt string
	switch mode {
	case ModeImagePrompt:
		prompt = imagePrompt(input)
	default:
		prompt = replyPrompt(input, RenderHistory(history))
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", mode, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate %s: %w", mode, ErrEmptyCompletion)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("generate %s: %w", mode, ErrEmptyCompletion)
	}
	return text, nil
}

// RenderHistory formats the last HistoryWindow turns one per line.
func RenderHistory(history []memory.Turn) string {
	recent := memory.Truncate(history, HistoryWindow)
	lines := make([]string, 0, len(recent))
	for _, turn := range recent {
		label := "aibot(me)"
		if turn.Role == memory.RoleUser {
			label = "user"
		}
		lines = append(lines, label+": "+turn.Text)
	}
	return strings.Join(lines, "\n")
}

func replyPrompt(input, history string) string {
	return "You are a good friend of the user and keep them company with humor and warmth. " +
		"The user mostly talks to you through voice input, so their words may be transcribed imperfectly. " +
		"Stay relaxed and understanding, work out what they really mean, and answer in a way that is fun and caring. " +
		"Recent chat history:\n" + history + "\n" +
		"The user's current input is: " + input
}

func imagePrompt(input string) string {
	return "The user's current input is: " + input + ". " +
		"Write a detailed, visually descriptive prompt for an AI art generator inspired by it. " +
		"Describe a beautiful, imaginative scene: the main subject, the background, the atmosphere and the artistic style. " +
		"Output only the final prompt, with no explanations or additional text."
}
