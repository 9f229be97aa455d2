package processors

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"lessonkb/config"
	"lessonkb/storage"
)

const captionPrompt = "Describe what this video frame shows in one or two factual sentences. " +
	"Focus on visible content: slides, code, diagrams, text, people, objects. No speculation."

// PickCaptioner chooses the frame-description backend from configuration.
func PickCaptioner(cfg *config.Config, log *zap.Logger) Captioner {
	if cfg.Captioner == "mock" || !cfg.HasValidAPI() {
		if cfg.Captioner != "mock" {
			log.Warn("API configuration missing, using mock captioner")
		}
		return MockCaptioner{}
	}
	return &VisionCaptioner{cli: storage.Client(cfg), model: cfg.CaptionModel}
}

// VisionCaptioner describes frames through a vision-capable chat model.
type VisionCaptioner struct {
	cli   *openai.Client
	model string
}

func (c *VisionCaptioner) Describe(ctx context.Context, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := c.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: 150,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: captionPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("caption API failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no caption returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// MockCaptioner returns a canned description so the pipeline stays
// exercisable without a vision model.
type MockCaptioner struct{}

func (MockCaptioner) Describe(ctx context.Context, imagePath string) (string, error) {
	return "A frame from the lesson video.", nil
}
