// Package llm turns a finished call transcript into structured insights via
// an OpenAI chat completion constrained to a JSON schema.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Objection is one prospect objection raised during the call.
type Objection struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Address     string `json:"address"`
}

// Analysis is the structured result returned to the caller. Transcript
// echoes the input; it is never taken from the model output.
type Analysis struct {
	Transcript  string      `json:"transcript"`
	Competitors []string    `json:"competitors"`
	Objections  []Objection `json:"objections"`
}

const systemPrompt = `You analyze finished sales-call transcripts. ` +
	`Extract every competitor product or company mentioned and every objection the prospect raised. ` +
	`For each objection report its type (for example pricing, timing, authority, need, trust), ` +
	`a short description of what the prospect said, and how the rep should address it. ` +
	`Respond only with the requested JSON.`

var analysisSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"competitors": {
			Type:        jsonschema.Array,
			Description: "Competitor products or companies mentioned on the call",
			Items:       &jsonschema.Definition{Type: jsonschema.String},
		},
		"objections": {
			Type: jsonschema.Array,
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"type":        {Type: jsonschema.String, Description: "Objection category"},
					"description": {Type: jsonschema.String, Description: "What the prospect said"},
					"address":     {Type: jsonschema.String, Description: "How the rep should respond"},
				},
				Required:             []string{"type", "description", "address"},
				AdditionalProperties: false,
			},
		},
	},
	Required:             []string{"competitors", "objections"},
	AdditionalProperties: false,
}

// Extractor performs transcript analysis against the OpenAI API.
type Extractor struct {
	client *openai.Client
	model  string
}

// NewExtractor creates an Extractor for the given credentials and model.
func NewExtractor(apiKey, model string) (*Extractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &Extractor{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Extract submits the transcript and returns the validated analysis. The
// model output is decoded and checked against the schema's requirements
// before being returned; output that fails validation is an error.
func (e *Extractor) Extract(ctx context.Context, transcriptText string) (*Analysis, error) {
	if strings.TrimSpace(transcriptText) == "" {
		return nil, fmt.Errorf("transcript is empty")
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcriptText},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "call_analysis",
				Schema: &analysisSchema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("requesting analysis: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	return parseAnalysis(resp.Choices[0].Message.Content, transcriptText)
}

// parseAnalysis decodes and validates the model output.
func parseAnalysis(content, transcriptText string) (*Analysis, error) {
	var a Analysis
	if err := json.Unmarshal([]byte(content), &a); err != nil {
		return nil, fmt.Errorf("decoding model output: %w", err)
	}

	a.Transcript = transcriptText
	if a.Competitors == nil {
		a.Competitors = []string{}
	}
	if a.Objections == nil {
		a.Objections = []Objection{}
	}
	for i, o := range a.Objections {
		if o.Type == "" || o.Description == "" || o.Address == "" {
			return nil, fmt.Errorf("objection %d is missing required fields", i)
		}
	}
	return &a, nil
}
