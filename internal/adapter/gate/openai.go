// Package gate validates selected images with an external vision
// classifier. The adapter reports errors; the fail-open policy lives in the
// caller.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"curator/internal/domain"
)

// DefaultModel is the vision model used for classification.
const DefaultModel = "gpt-4o-mini"

const classifierPrompt = `You are a strict visual classifier. Answer ONLY JSON with keys is_clothing and has_text.
Definitions:
- is_clothing: true if the image primarily features fashion clothing (single item, outfit flatlay, or a person modeling clothes). false if nails/hair/makeup/scenery/objects/quote slides.
- has_text: true if there is any overlaid text visible (words, captions, quotes, banners), even small.
Return:
{"is_clothing":true|false, "has_text":true|false}
Be conservative: when unsure, set is_clothing=false or has_text=true.`

// Verdict is the classifier's parsed answer.
type Verdict struct {
	IsClothing bool `json:"is_clothing"`
	HasText    bool `json:"has_text"`
}

// OpenAIGate asks a vision model whether an image depicts wearable
// clothing without overlaid text.
type OpenAIGate struct {
	client *openai.Client
	model  string
}

// NewOpenAIGate creates a gate using the given API key. An empty model
// falls back to DefaultModel.
func NewOpenAIGate(apiKey, model string) (*OpenAIGate, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIGate{client: openai.NewClient(apiKey), model: model}, nil
}

// Validate returns true when the image passes the clothing/no-text check.
func (g *OpenAIGate) Validate(ctx context.Context, img domain.ImageRecord) (bool, error) {
	if img.ImagePath == "" {
		return false, nil
	}
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   80,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: classifierPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    img.ImagePath,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("vision classifier: %w", err)
	}
	if len(resp.Choices) == 0 {
		return false, fmt.Errorf("vision classifier: empty response")
	}
	v, err := ParseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return false, err
	}
	return v.IsClothing && !v.HasText, nil
}

// ParseVerdict decodes the classifier's JSON answer.
func ParseVerdict(content string) (Verdict, error) {
	var v Verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &v); err != nil {
		return v, fmt.Errorf("vision classifier: bad verdict %q: %w", content, err)
	}
	return v, nil
}
