package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Gemini generates answers with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini generator. An empty model uses DefaultModel.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing Gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// analysisSchema constrains the model to the Analysis shape.
var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"analysis":         {Type: genai.TypeString},
		"recommendation":   {Type: genai.TypeString, Enum: []string{Buy, Sell, Hold}},
		"ticker":           {Type: genai.TypeString},
		"confidence_score": {Type: genai.TypeNumber},
		"risk_assessment":  {Type: genai.TypeString, Enum: []string{RiskLow, RiskMedium, RiskHigh}},
	},
	Required: []string{"analysis", "recommendation", "confidence_score", "risk_assessment"},
}

// Generate asks for a JSON answer matching the Analysis schema.
func (g *Gemini) Generate(ctx context.Context, system, prompt string) (string, error) {
	temperature := float32(0.2)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    analysisSchema,
		Temperature:       &temperature,
	})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no response from %s", g.model)
	}
	return text, nil
}
