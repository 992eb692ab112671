package DecideWithGenAi

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const genAiModel = "gemini-3-pro-preview"

// Client wraps the genai client behind the single text-in/text-out call the
// decision pipeline needs.
type Client struct {
	genAiClient *genai.Client
}

func NewClient(genAiClient *genai.Client) *Client {
	return &Client{genAiClient: genAiClient}
}

// Complete sends the prompt and returns the model's raw decision text. It
// fails when no usable text came back; callers treat that as the operation
// failing and do not retry.
func (c *Client) Complete(ctx context.Context, prompt string, systemInstructions string) (string, error) {

	var config *genai.GenerateContentConfig
	if systemInstructions != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstructions}}},
		}
	}

	generateContentResult, generateContentError := c.genAiClient.Models.GenerateContent(
		ctx,
		genAiModel,
		genai.Text(prompt),
		config,
	)
	if generateContentError != nil {
		return "", generateContentError
	}

	var b strings.Builder
	if len(generateContentResult.Candidates) > 0 && generateContentResult.Candidates[0].Content != nil {
		for _, part := range generateContentResult.Candidates[0].Content.Parts {
			b.WriteString(part.Text)
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("decision service returned no usable text")
	}
	return text, nil
}
